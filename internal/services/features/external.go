package features

import (
	"math"

	"DeepResearch/internal/domain/models"
)

type SentimentResult struct {
	Score float64      `json:"score"` // -1..1
	Trend models.Trend `json:"trend"`
}

// Sentiment maps a [0,1] reading onto [-1,1]; signed readings pass through.
func Sentiment(r models.SentimentReading) (SentimentResult, bool) {
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return SentimentResult{}, false
	}
	s := r.Score
	if r.Scale == "unit" {
		s = 2*s - 1
	}
	s = clamp(s, -1, 1)
	out := SentimentResult{Score: s, Trend: models.TrendNeutral}
	switch {
	case s >= 0.2:
		out.Trend = models.TrendBullish
	case s <= -0.2:
		out.Trend = models.TrendBearish
	}
	return out, true
}

const (
	fundingThreshold   = 0.0001
	fundingSaturation  = 0.001
	oiChangeThreshold  = 2.0
	oiChangeSaturation = 10.0
	liqSkewThreshold   = 0.2
	derivBiasThreshold = 0.15
)

// Derivatives thresholds funding, open interest change and liquidation skew
// independently and averages their signed scores into one bias.
//
// Positive funding means longs pay shorts (crowded long, read as bullish
// pressure). Rising open interest confirms the current positioning. More
// shorts liquidated than longs is a squeeze, read as bullish.
func Derivatives(d models.DerivativesSnapshot) models.DerivativesSummary {
	out := models.DerivativesSummary{Bias: models.BiasNeutral}

	if d.FundingRate != nil {
		f := *d.FundingRate
		c := models.DerivativeComponent{Available: true, Value: f, Trend: models.TrendNeutral}
		switch {
		case f > fundingThreshold:
			c.Trend = models.TrendBullish
		case f < -fundingThreshold:
			c.Trend = models.TrendBearish
		}
		c.Score = math.Min(math.Abs(f)/fundingSaturation, 1)
		out.Funding = c
	}

	if d.OpenInterestChangePct != nil {
		oi := *d.OpenInterestChangePct
		c := models.DerivativeComponent{Available: true, Value: oi, Trend: models.TrendNeutral}
		switch {
		case oi > oiChangeThreshold:
			c.Trend = models.TrendBullish
		case oi < -oiChangeThreshold:
			c.Trend = models.TrendBearish
		}
		c.Score = math.Min(math.Abs(oi)/oiChangeSaturation, 1)
		out.OpenInterest = c
	}

	if l := d.Liquidations; l != nil && l.LongUSD+l.ShortUSD > 0 {
		skew := (l.ShortUSD - l.LongUSD) / (l.ShortUSD + l.LongUSD)
		c := models.DerivativeComponent{Available: true, Value: skew, Trend: models.TrendNeutral}
		switch {
		case skew > liqSkewThreshold:
			c.Trend = models.TrendBullish
		case skew < -liqSkewThreshold:
			c.Trend = models.TrendBearish
		}
		c.Score = math.Min(math.Abs(skew), 1)
		out.Liquidations = c
	}

	var sum float64
	var n int
	for _, c := range []models.DerivativeComponent{out.Funding, out.OpenInterest, out.Liquidations} {
		if !c.Available {
			continue
		}
		n++
		switch c.Trend {
		case models.TrendBullish:
			sum += c.Score
		case models.TrendBearish:
			sum -= c.Score
		}
	}
	if n == 0 {
		return out
	}
	out.Available = true
	out.NetScore = sum / float64(n)
	switch {
	case out.NetScore >= derivBiasThreshold:
		out.Bias = models.BiasBullish
	case out.NetScore <= -derivBiasThreshold:
		out.Bias = models.BiasBearish
	}
	return out
}
