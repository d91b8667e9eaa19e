package features

import (
	"math"

	"DeepResearch/internal/domain/models"
)

type ATRResult struct {
	ATR    float64 `json:"atr"`
	ATRPct float64 `json:"atrPct"` // ATR as percent of last close
}

// ATR averages the true range with Wilder smoothing.
func ATR(candles []models.Candle, period int) (ATRResult, bool) {
	if period <= 0 || len(candles) <= period {
		return ATRResult{}, false
	}
	tr := func(i int) float64 {
		c, prev := candles[i], candles[i-1].Close
		return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr(i)
	}
	atr := sum / float64(period)
	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + tr(i)) / float64(period)
	}
	lastClose := candles[len(candles)-1].Close
	if lastClose <= 0 {
		return ATRResult{}, false
	}
	return ATRResult{ATR: atr, ATRPct: atr / lastClose * 100}, true
}

type VolumeResult struct {
	Relative  float64      `json:"relative"`  // last volume / mean of lookback
	ChangePct float64      `json:"changePct"` // recent window vs prior window
	Signal    models.Trend `json:"signal"`
}

const (
	volumeLookback     = 20
	volumeWindow       = 5
	volumeChangeThresh = 20.0
)

// VolumeTrend compares the last window's volume against the one before it.
// A change above 20% with price moving the same way is Bullish or Bearish,
// anything else is Stable.
func VolumeTrend(candles []models.Candle) (VolumeResult, bool) {
	n := len(candles)
	if n < volumeLookback || n < 2*volumeWindow {
		return VolumeResult{}, false
	}
	var avg float64
	for _, c := range candles[n-volumeLookback:] {
		avg += c.Volume
	}
	avg /= volumeLookback

	var recent, prior float64
	for i := n - volumeWindow; i < n; i++ {
		recent += candles[i].Volume
	}
	for i := n - 2*volumeWindow; i < n-volumeWindow; i++ {
		prior += candles[i].Volume
	}

	r := VolumeResult{Signal: models.TrendStable}
	if avg > 0 {
		r.Relative = candles[n-1].Volume / avg
	}
	if prior > 0 {
		r.ChangePct = (recent - prior) / prior * 100
	}
	priceMove := candles[n-1].Close - candles[n-volumeWindow].Close
	if r.ChangePct > volumeChangeThresh {
		switch {
		case priceMove > 0:
			r.Signal = models.TrendBullish
		case priceMove < 0:
			r.Signal = models.TrendBearish
		}
	}
	return r, true
}
