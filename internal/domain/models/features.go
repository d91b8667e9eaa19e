package models

type FeatureKey string

const (
	FeatureRSI         FeatureKey = "rsi"
	FeatureMACD        FeatureKey = "macd"
	FeatureTrend       FeatureKey = "trend"
	FeatureVolatility  FeatureKey = "volatility"
	FeatureVolume      FeatureKey = "volume"
	FeatureOrderbook   FeatureKey = "orderbook"
	FeatureLiquidity   FeatureKey = "liquidity"
	FeatureSentiment   FeatureKey = "sentiment"
	FeatureDerivatives FeatureKey = "derivatives"
	FeatureMomentum    FeatureKey = "momentum"
)

// AllFeatures lists every feature key in report order.
var AllFeatures = []FeatureKey{
	FeatureRSI, FeatureMACD, FeatureTrend, FeatureVolatility, FeatureVolume,
	FeatureOrderbook, FeatureLiquidity, FeatureSentiment, FeatureDerivatives, FeatureMomentum,
}

// FeatureScoreState carries normalized scores plus an availability flag per key.
// A score is meaningful only when its key is marked available.
type FeatureScoreState struct {
	Scores    map[FeatureKey]float64 `json:"scores"`
	Available map[FeatureKey]bool    `json:"available"`
}

// NewFeatureScoreState returns a state with every known key present and unavailable.
func NewFeatureScoreState() FeatureScoreState {
	s := FeatureScoreState{
		Scores:    make(map[FeatureKey]float64, len(AllFeatures)),
		Available: make(map[FeatureKey]bool, len(AllFeatures)),
	}
	for _, k := range AllFeatures {
		s.Scores[k] = 0
		s.Available[k] = false
	}
	return s
}

func (s FeatureScoreState) Set(k FeatureKey, score float64) {
	s.Scores[k] = score
	s.Available[k] = true
}

func (s FeatureScoreState) Unset(k FeatureKey) {
	s.Scores[k] = 0
	s.Available[k] = false
}

// Get returns the score and whether it is available.
func (s FeatureScoreState) Get(k FeatureKey) (float64, bool) {
	if !s.Available[k] {
		return 0, false
	}
	return s.Scores[k], true
}

// AvailableCount counts available features.
func (s FeatureScoreState) AvailableCount() int {
	n := 0
	for _, ok := range s.Available {
		if ok {
			n++
		}
	}
	return n
}

// Clone copies the state so it can be handed out without aliasing.
func (s FeatureScoreState) Clone() FeatureScoreState {
	c := FeatureScoreState{
		Scores:    make(map[FeatureKey]float64, len(s.Scores)),
		Available: make(map[FeatureKey]bool, len(s.Available)),
	}
	for k, v := range s.Scores {
		c.Scores[k] = v
	}
	for k, v := range s.Available {
		c.Available[k] = v
	}
	return c
}
