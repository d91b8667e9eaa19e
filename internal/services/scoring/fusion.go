package scoring

import (
	"math"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/services/features"
)

// Weights is the fixed contribution of each feature to the fused score.
var Weights = map[models.FeatureKey]float64{
	models.FeatureOrderbook:   1.5,
	models.FeatureDerivatives: 1.5,
	models.FeatureMACD:        1.2,
	models.FeatureTrend:       1.2,
	models.FeatureRSI:         1.0,
	models.FeatureMomentum:    1.0,
	models.FeatureVolume:      0.8,
	models.FeatureSentiment:   0.8,
	models.FeatureLiquidity:   0.6,
	models.FeatureVolatility:  0.4,
}

// Fuse is the weighted mean of available scores, each held to ±DefaultClamp.
// Unavailable keys contribute neither to the numerator nor to the weight
// sum. Terms are added in AllFeatures order. No available features fuse to 0.
func Fuse(s models.FeatureScoreState) float64 {
	var num, den float64
	for _, k := range models.AllFeatures {
		if !s.Available[k] {
			continue
		}
		w := Weights[k]
		if w <= 0 {
			continue
		}
		num += w * clamp(s.Scores[k], -DefaultClamp, DefaultClamp)
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

var tierFactor = map[models.LiquidityTier]float64{
	models.LiquidityHigh:   1.0,
	models.LiquidityMedium: 0.6,
	models.LiquidityLow:    0.3,
}

// Score normalizes every computable feature of a snapshot into a state.
func Score(snap features.Snapshot) models.FeatureScoreState {
	st := models.NewFeatureScoreState()

	if snap.RSI != nil {
		// overbought reads bearish
		st.Set(models.FeatureRSI, -Normalize(*snap.RSI, NormalizeOptions{Center: 50, Scale: 20}))
	}
	if snap.MACD != nil && snap.Close > 0 {
		histPct := snap.MACD.Histogram / snap.Close * 100
		st.Set(models.FeatureMACD, Normalize(histPct, NormalizeOptions{Scale: 0.1}))
	}
	if snap.Trend != nil {
		st.Set(models.FeatureTrend, Normalize(snap.Trend.SpreadPct, NormalizeOptions{Scale: 0.5}))
	}
	if snap.ATR != nil {
		dir := direction(snap)
		calm := clamp(1-snap.ATR.ATRPct/2.5, -1, 1)
		st.Set(models.FeatureVolatility, Normalize(dir*calm, NormalizeOptions{Scale: 1}))
	}
	if snap.Volume != nil {
		mag := clamp(snap.Volume.Relative, 0.5, 2)
		v := 0.0
		switch snap.Volume.Signal {
		case models.TrendBullish:
			v = mag
		case models.TrendBearish:
			v = -mag
		}
		st.Set(models.FeatureVolume, Normalize(v, NormalizeOptions{Scale: 1}))
	}
	if snap.Imbalance != nil {
		st.Set(models.FeatureOrderbook, Normalize(*snap.Imbalance, NormalizeOptions{Scale: 0.33}))
	}
	if snap.Liquidity != nil {
		v := snap.Liquidity.DepthSkew * tierFactor[snap.Liquidity.Tier]
		st.Set(models.FeatureLiquidity, Normalize(v, NormalizeOptions{Scale: 0.5}))
	}
	if snap.Sentiment != nil {
		st.Set(models.FeatureSentiment, Normalize(snap.Sentiment.Score, NormalizeOptions{Scale: 0.5}))
	}
	if snap.Derivatives.Available {
		st.Set(models.FeatureDerivatives, Normalize(snap.Derivatives.NetScore, NormalizeOptions{Scale: 0.5}))
	}
	if snap.Momentum != nil {
		st.Set(models.FeatureMomentum, Normalize(*snap.Momentum, NormalizeOptions{Scale: 1}))
	}
	return st
}

// direction is the sign of the prevailing move, from the EMA trend if
// present and momentum otherwise.
func direction(snap features.Snapshot) float64 {
	if snap.Trend != nil && snap.Trend.SpreadPct != 0 {
		return math.Copysign(1, snap.Trend.SpreadPct)
	}
	if snap.Momentum != nil && *snap.Momentum != 0 {
		return math.Copysign(1, *snap.Momentum)
	}
	return 0
}
