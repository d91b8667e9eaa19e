package features

import (
	"math"
	"testing"
	"time"

	"DeepResearch/internal/domain/models"
)

func makeCandles(n int, base, step float64) []models.Candle {
	out := make([]models.Candle, n)
	t0 := time.Unix(0, 0).UTC()
	price := base
	for i := 0; i < n; i++ {
		o := price
		c := o + step
		out[i] = models.Candle{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      o,
			High:      math.Max(o, c) * 1.002,
			Low:       math.Min(o, c) * 0.998,
			Close:     c,
			Volume:    1000,
		}
		price = c
	}
	return out
}

func TestEMASeededWithSMA(t *testing.T) {
	e := EMA([]float64{1, 2, 3, 4}, 3)
	if !math.IsNaN(e[1]) {
		t.Fatalf("warmup should be NaN, got %v", e[1])
	}
	if e[2] != 2 {
		t.Fatalf("seed = %v, want 2", e[2])
	}
	if e[3] != 3 {
		t.Fatalf("ema[3] = %v, want 3", e[3])
	}
}

func TestRSIExtremes(t *testing.T) {
	up := models.Closes(makeCandles(60, 100, 1))
	if v, ok := RSI(up, RSIPeriod); !ok || v != 100 {
		t.Fatalf("rsi of monotonic rise = %v (%v), want 100", v, ok)
	}
	down := models.Closes(makeCandles(60, 200, -1))
	if v, ok := RSI(down, RSIPeriod); !ok || v != 0 {
		t.Fatalf("rsi of monotonic fall = %v (%v), want 0", v, ok)
	}
	flat := models.Closes(makeCandles(60, 100, 0))
	if v, _ := RSI(flat, RSIPeriod); v != 50 {
		t.Fatalf("rsi of flat series = %v, want 50", v)
	}
	if _, ok := RSI(up[:10], RSIPeriod); ok {
		t.Fatalf("rsi should need more than %d closes", RSIPeriod)
	}
}

func TestMACDSignOnTrends(t *testing.T) {
	// accelerating rise keeps the histogram positive
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i*i)*0.01
	}
	m, ok := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	if !ok || m.Line <= 0 || m.Histogram <= 0 {
		t.Fatalf("macd on accelerating rise = %+v (%v)", m, ok)
	}
	if _, ok := MACD(closes[:20], MACDFast, MACDSlow, MACDSignal); ok {
		t.Fatalf("macd should need slow+signal-1 closes")
	}
}

func TestEMATrendDirection(t *testing.T) {
	tr, ok := EMATrend(models.Closes(makeCandles(80, 100, 1)), TrendFast, TrendSlow)
	if !ok || tr.Direction != models.TrendBullish {
		t.Fatalf("trend = %+v", tr)
	}
	tr, _ = EMATrend(models.Closes(makeCandles(80, 200, -1)), TrendFast, TrendSlow)
	if tr.Direction != models.TrendBearish {
		t.Fatalf("trend = %+v", tr)
	}
}

func TestATRPositive(t *testing.T) {
	a, ok := ATR(makeCandles(30, 100, 1), ATRPeriod)
	if !ok || a.ATR <= 0 || a.ATRPct <= 0 {
		t.Fatalf("atr = %+v (%v)", a, ok)
	}
}

func TestVolumeTrend(t *testing.T) {
	cs := makeCandles(30, 100, 1)
	for i := len(cs) - 5; i < len(cs); i++ {
		cs[i].Volume = 2000
	}
	v, ok := VolumeTrend(cs)
	if !ok || v.Signal != models.TrendBullish {
		t.Fatalf("rising price with rising volume = %+v", v)
	}

	cs = makeCandles(30, 200, -1)
	for i := len(cs) - 5; i < len(cs); i++ {
		cs[i].Volume = 2000
	}
	if v, _ := VolumeTrend(cs); v.Signal != models.TrendBearish {
		t.Fatalf("falling price with rising volume = %+v", v)
	}

	if v, _ := VolumeTrend(makeCandles(30, 100, 1)); v.Signal != models.TrendStable {
		t.Fatalf("flat volume should be stable, got %s", v.Signal)
	}
}

func TestOrderbookImbalanceUndefinedOnEmptySide(t *testing.T) {
	ob := models.OrderbookSnapshot{
		Bids: []models.PriceLevel{{Price: 99, Quantity: 5}},
	}
	if _, ok := OrderbookImbalance(ob, 20); ok {
		t.Fatalf("empty ask side must be undefined, not zero")
	}
	ob = models.OrderbookSnapshot{
		Bids: []models.PriceLevel{{Price: 99, Quantity: 0}},
		Asks: []models.PriceLevel{{Price: 101, Quantity: 0}},
	}
	if _, ok := OrderbookImbalance(ob, 20); ok {
		t.Fatalf("zero total volume must be undefined")
	}
	ob = models.OrderbookSnapshot{
		Bids: []models.PriceLevel{{Price: 99, Quantity: 3}, {Price: 98, Quantity: 1}},
		Asks: []models.PriceLevel{{Price: 101, Quantity: 1}, {Price: 102, Quantity: 3}},
	}
	v, ok := OrderbookImbalance(ob, 1)
	if !ok || v != 0.5 {
		t.Fatalf("top-1 imbalance = %v (%v), want 0.5", v, ok)
	}
	if v, _ := OrderbookImbalance(ob, 20); v != 0 {
		t.Fatalf("balanced imbalance = %v, want 0", v)
	}
}

func TestLiquidityTiers(t *testing.T) {
	book := func(bid, ask, bidQty, askQty float64) models.OrderbookSnapshot {
		return models.OrderbookSnapshot{
			Bids: []models.PriceLevel{{Price: bid, Quantity: bidQty}},
			Asks: []models.PriceLevel{{Price: ask, Quantity: askQty}},
		}
	}
	l, ok := Liquidity(book(100, 100.01, 10, 10), 20)
	if !ok || l.Tier != models.LiquidityHigh {
		t.Fatalf("tight spread = %+v", l)
	}
	l, _ = Liquidity(book(100, 100.1, 10, 10), 20)
	if l.Tier != models.LiquidityMedium {
		t.Fatalf("0.1%% spread = %+v", l)
	}
	l, _ = Liquidity(book(100, 101, 10, 10), 20)
	if l.Tier != models.LiquidityLow {
		t.Fatalf("1%% spread = %+v", l)
	}
	l, _ = Liquidity(book(100, 100.01, 100, 1), 20)
	if !l.Downgrade || l.Tier != models.LiquidityMedium {
		t.Fatalf("one-sided depth should downgrade: %+v", l)
	}
	if _, ok := Liquidity(models.OrderbookSnapshot{}, 20); ok {
		t.Fatalf("empty book must be undefined")
	}
}

func TestSentimentScales(t *testing.T) {
	s, _ := Sentiment(models.SentimentReading{Score: 0.9, Scale: "unit"})
	if math.Abs(s.Score-0.8) > 1e-9 || s.Trend != models.TrendBullish {
		t.Fatalf("unit 0.9 = %+v", s)
	}
	s, _ = Sentiment(models.SentimentReading{Score: -0.5, Scale: "signed"})
	if s.Score != -0.5 || s.Trend != models.TrendBearish {
		t.Fatalf("signed -0.5 = %+v", s)
	}
	s, _ = Sentiment(models.SentimentReading{Score: 0.5, Scale: "unit"})
	if s.Score != 0 || s.Trend != models.TrendNeutral {
		t.Fatalf("unit 0.5 = %+v", s)
	}
}

func ptr(v float64) *float64 { return &v }

func TestDerivativesBias(t *testing.T) {
	d := Derivatives(models.DerivativesSnapshot{
		FundingRate:           ptr(0.0005),
		OpenInterestChangePct: ptr(5),
		Liquidations:          &models.Liquidations{LongUSD: 100, ShortUSD: 900},
	})
	if !d.Available || d.Bias != models.BiasBullish {
		t.Fatalf("summary = %+v", d)
	}
	if d.Funding.Trend != models.TrendBullish || math.Abs(d.Funding.Score-0.5) > 1e-9 {
		t.Fatalf("funding = %+v", d.Funding)
	}
	if d.OpenInterest.Score != 0.5 {
		t.Fatalf("oi = %+v", d.OpenInterest)
	}
	if math.Abs(d.Liquidations.Value-0.8) > 1e-9 {
		t.Fatalf("liq skew = %+v", d.Liquidations)
	}

	d = Derivatives(models.DerivativesSnapshot{FundingRate: ptr(0.00005)})
	if !d.Available || d.Bias != models.BiasNeutral || d.Funding.Trend != models.TrendNeutral {
		t.Fatalf("small funding = %+v", d)
	}

	if d := Derivatives(models.DerivativesSnapshot{}); d.Available {
		t.Fatalf("empty snapshot should be unavailable")
	}
}

func TestExtractCandlesOnShortSeries(t *testing.T) {
	s := ExtractCandles(makeCandles(10, 100, 1), "1h")
	if s.RSI != nil || s.MACD != nil || s.Trend != nil {
		t.Fatalf("indicators should be missing on 10 candles: %+v", s)
	}
	if s.Close != 110 {
		t.Fatalf("close = %v", s.Close)
	}
}

func TestRealizedVol(t *testing.T) {
	closes := make([]float64, 41)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 110
		}
	}
	got, ok := RealizedVol(closes, 20, time.Hour)
	if !ok {
		t.Fatal("expected realized vol on 41 closes")
	}
	lr := math.Log(1.1)
	want := math.Sqrt(20*lr*lr/19*365*24) * 100
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("realized vol = %v, want %v", got, want)
	}

	flat := []float64{100, 100, 100, 100, 100, 100}
	if v, ok := RealizedVol(flat, 5, time.Hour); !ok || v != 0 {
		t.Fatalf("flat series vol = %v (ok=%v)", v, ok)
	}
	if _, ok := RealizedVol(closes[:20], 20, time.Hour); ok {
		t.Fatal("window needs window+1 closes")
	}
	if _, ok := RealizedVol([]float64{100, 0, 100}, 2, time.Hour); ok {
		t.Fatal("non-positive close must not produce a value")
	}

	daily, _ := RealizedVol(closes, 20, 24*time.Hour)
	if math.Abs(daily*math.Sqrt(24)-got) > 1e-6 {
		t.Fatalf("annualization should scale with bar length: 1h=%v 1d=%v", got, daily)
	}

	s := ExtractCandles(makeCandles(60, 100, 1), "4h")
	if s.RealizedVol == nil || *s.RealizedVol <= 0 {
		t.Fatalf("snapshot realized vol = %v", s.RealizedVol)
	}
	if ExtractCandles(makeCandles(10, 100, 1), "1h").RealizedVol != nil {
		t.Fatal("short series should have no realized vol")
	}
}
