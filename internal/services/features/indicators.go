package features

import (
	"math"
	"time"

	"DeepResearch/internal/domain/models"
)

// SMA over the last p points, aligned to the input with NaN warmup.
func SMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	var sum float64
	for i := range x {
		sum += x[i]
		if i >= p {
			sum -= x[i-p]
		}
		if i < p-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(p)
	}
	return out
}

// EMA with smoothing 2/(p+1), seeded with SMA(p). NaN until index p-1.
func EMA(x []float64, p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(x) < p {
		return out
	}
	var seed float64
	for i := 0; i < p; i++ {
		seed += x[i]
	}
	out[p-1] = seed / float64(p)
	k := 2.0 / float64(p+1)
	for i := p; i < len(x); i++ {
		out[i] = (x[i]-out[i-1])*k + out[i-1]
	}
	return out
}

func last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}

// RSI uses Wilder's smoothed average gain and loss.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) <= period {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, true
	case avgLoss == 0:
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

type MACDResult struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD computes the fast-slow EMA difference and its own EMA signal line.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return MACDResult{}, false
	}
	ef := EMA(closes, fast)
	es := EMA(closes, slow)
	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, ef[i]-es[i])
	}
	sig := EMA(line, signal)
	l, s := last(line), last(sig)
	if math.IsNaN(l) || math.IsNaN(s) {
		return MACDResult{}, false
	}
	return MACDResult{Line: l, Signal: s, Histogram: l - s}, true
}

type TrendResult struct {
	Fast      float64      `json:"fast"`
	Slow      float64      `json:"slow"`
	SpreadPct float64      `json:"spreadPct"` // (fast-slow)/slow*100
	Direction models.Trend `json:"direction"`
}

// EMATrend compares a fast and slow EMA. A spread under 0.05% is neutral.
func EMATrend(closes []float64, fast, slow int) (TrendResult, bool) {
	if len(closes) < slow {
		return TrendResult{}, false
	}
	f, s := last(EMA(closes, fast)), last(EMA(closes, slow))
	if math.IsNaN(f) || math.IsNaN(s) || s == 0 {
		return TrendResult{}, false
	}
	r := TrendResult{Fast: f, Slow: s, SpreadPct: (f - s) / s * 100}
	switch {
	case r.SpreadPct > 0.05:
		r.Direction = models.TrendBullish
	case r.SpreadPct < -0.05:
		r.Direction = models.TrendBearish
	default:
		r.Direction = models.TrendNeutral
	}
	return r, true
}

// Momentum is the rate of change in percent over period bars.
func Momentum(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) <= period {
		return 0, false
	}
	base := closes[len(closes)-1-period]
	if base == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - base) / base * 100, true
}

// RealizedVol is the annualized sample deviation of the last window log
// returns, in percent. bar is the candle interval.
func RealizedVol(closes []float64, window int, bar time.Duration) (float64, bool) {
	if window < 2 || bar <= 0 || len(closes) <= window {
		return 0, false
	}
	tail := closes[len(closes)-window-1:]
	var mean, m2 float64
	for i := 1; i < len(tail); i++ {
		if tail[i-1] <= 0 || tail[i] <= 0 {
			return 0, false
		}
		r := math.Log(tail[i] / tail[i-1])
		d := r - mean
		mean += d / float64(i)
		m2 += d * (r - mean)
	}
	barsPerYear := float64(365*24*time.Hour) / float64(bar)
	return math.Sqrt(m2/float64(window-1)*barsPerYear) * 100, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
