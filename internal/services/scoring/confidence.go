package scoring

import (
	"fmt"
	"math"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/domain/service"
)

const (
	MinConfidence     = 35.0
	MaxConfidence     = 95.0
	NeutralConfidence = 50.0

	DefaultShaping = 2.5
	SmoothingAlpha = 0.7 // weight of the fresh value
	SignalCutoff   = 0.25
	accuracyBand   = 5.0
)

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// Calibrate maps a fused score to a 0-100 value with a sharpened sigmoid,
// clamped to [35,95].
func Calibrate(fused, shaping float64) float64 {
	if shaping <= 0 {
		shaping = DefaultShaping
	}
	return clamp(sigmoid(fused*shaping)*100, MinConfidence, MaxConfidence)
}

// Smooth blends a fresh value with the previous one (0.7 / 0.3).
func Smooth(raw, prev float64) float64 {
	return SmoothingAlpha*raw + (1-SmoothingAlpha)*prev
}

// ClampConfidence holds a confidence inside [35,95].
func ClampConfidence(c float64) float64 { return clamp(c, MinConfidence, MaxConfidence) }

// AccuracyRange formats [c-5, c+5] clamped to the confidence bounds.
func AccuracyRange(c float64) string {
	lo := clamp(c-accuracyBand, MinConfidence, MaxConfidence)
	hi := clamp(c+accuracyBand, MinConfidence, MaxConfidence)
	return fmt.Sprintf("%.0f-%.0f%%", lo, hi)
}

// SignalFor thresholds the fused score at ±0.25.
func SignalFor(fused float64) models.Signal {
	switch {
	case fused >= SignalCutoff:
		return models.SignalBuy
	case fused <= -SignalCutoff:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// BiasFor is SignalFor expressed as a timeframe bias.
func BiasFor(fused float64) models.Bias {
	switch SignalFor(fused) {
	case models.SignalBuy:
		return models.BiasBullish
	case models.SignalSell:
		return models.BiasBearish
	default:
		return models.BiasNeutral
	}
}

// MemoryKey is the confidence memory key for a symbol and timeframe.
func MemoryKey(symbol, tf string) string { return symbol + ":" + tf }

// Confidence is one calibrated and smoothed reading. Key is the memory
// entry it smooths against.
type Confidence struct {
	Key      string
	Raw      float64
	Smoothed float64
	Previous float64
	HadPrev  bool
}

// Engine calibrates fused scores and smooths them against stored state.
type Engine struct {
	memory  service.ConfidenceMemory
	shaping float64
}

func NewEngine(memory service.ConfidenceMemory, shaping float64) *Engine {
	if shaping <= 0 {
		shaping = DefaultShaping
	}
	return &Engine{memory: memory, shaping: shaping}
}

// Score calibrates fused and smooths it against the value stored under
// symbol:tf. Memory is only read; Commit stores the reading.
func (e *Engine) Score(symbol, tf string, fused float64) Confidence {
	c := Confidence{Key: MemoryKey(symbol, tf), Raw: round2(Calibrate(fused, e.shaping))}
	c.Smoothed = c.Raw
	if e.memory == nil {
		return c
	}
	if prev, ok := e.memory.Peek(c.Key); ok {
		c.Previous, c.HadPrev = prev, true
		c.Smoothed = round2(ClampConfidence(Smooth(c.Raw, prev)))
	}
	return c
}

// Commit smooths c.Raw against the current entry for c.Key and stores the
// result. The read-modify-write is atomic per key.
func (e *Engine) Commit(c Confidence) float64 {
	if e.memory == nil || c.Key == "" {
		return c.Smoothed
	}
	return e.memory.Apply(c.Key, func(prev float64, ok bool) float64 {
		if !ok {
			return c.Raw
		}
		return round2(ClampConfidence(Smooth(c.Raw, prev)))
	})
}

// Shaping returns the sigmoid sharpening factor in use.
func (e *Engine) Shaping() float64 { return e.shaping }

var breakdownCategories = map[string][]models.FeatureKey{
	"technicals":     {models.FeatureRSI, models.FeatureMACD, models.FeatureTrend},
	"orderFlow":      {models.FeatureOrderbook, models.FeatureVolume},
	"sentiment":      {models.FeatureSentiment},
	"derivatives":    {models.FeatureDerivatives},
	"volatility":     {models.FeatureVolatility},
	"momentum":       {models.FeatureMomentum},
	"liquidity":      {models.FeatureLiquidity},
	"microstructure": {models.FeatureOrderbook, models.FeatureLiquidity},
}

// Breakdown averages available scores per category.
func Breakdown(s models.FeatureScoreState) models.ConfidenceBreakdown {
	avg := func(cat string) *float64 {
		var sum float64
		var n int
		for _, k := range breakdownCategories[cat] {
			if v, ok := s.Get(k); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			return nil
		}
		v := round2(sum / float64(n))
		return &v
	}
	return models.ConfidenceBreakdown{
		Technicals:     avg("technicals"),
		OrderFlow:      avg("orderFlow"),
		Sentiment:      avg("sentiment"),
		Derivatives:    avg("derivatives"),
		Volatility:     avg("volatility"),
		Momentum:       avg("momentum"),
		Liquidity:      avg("liquidity"),
		Microstructure: avg("microstructure"),
	}
}
