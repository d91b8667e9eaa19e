package service

// ConfidenceMemory stores the last smoothed confidence per symbol:timeframe key.
type ConfidenceMemory interface {
	// Apply runs next with the previous value (ok=false if none) while holding
	// the key's lock, stores the returned value and returns it.
	Apply(key string, next func(prev float64, ok bool) float64) float64
	// Peek reads the stored value without locking the key.
	Peek(key string) (float64, bool)
}
