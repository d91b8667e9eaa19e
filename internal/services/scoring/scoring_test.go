package scoring

import (
	"math"
	"testing"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/services/features"
)

type mapMemory map[string]float64

func (m mapMemory) Apply(key string, next func(float64, bool) float64) float64 {
	prev, ok := m[key]
	v := next(prev, ok)
	m[key] = v
	return v
}

func (m mapMemory) Peek(key string) (float64, bool) {
	v, ok := m[key]
	return v, ok
}

func fullState(v float64) models.FeatureScoreState {
	st := models.NewFeatureScoreState()
	for _, k := range models.AllFeatures {
		st.Set(k, v)
	}
	return st
}

func TestNormalize(t *testing.T) {
	if got := Normalize(75, NormalizeOptions{Center: 50, Scale: 20}); got != 1.25 {
		t.Fatalf("scale normalize = %v, want 1.25", got)
	}
	if got := Normalize(75, NormalizeOptions{Min: 0, Max: 100}); got != 0.5 {
		t.Fatalf("min/max normalize = %v, want 0.5", got)
	}
	if got := Normalize(1000, NormalizeOptions{Scale: 1}); got != DefaultClamp {
		t.Fatalf("clamp = %v, want %v", got, DefaultClamp)
	}
	if got := Normalize(-1000, NormalizeOptions{Scale: 1, Clamp: 1.5}); got != -1.5 {
		t.Fatalf("custom clamp = %v, want -1.5", got)
	}
}

func TestFuseBoundsAndAvailability(t *testing.T) {
	for _, v := range []float64{-50, -2, 0, 1.3, 50} {
		f := Fuse(fullState(v))
		if f < -DefaultClamp || f > DefaultClamp {
			t.Fatalf("fuse(%v) = %v out of bounds", v, f)
		}
	}

	st := fullState(0.5)
	st.Scores[models.FeatureOrderbook] = -2
	with := Fuse(st)
	st.Unset(models.FeatureOrderbook)
	without := Fuse(st)
	if with == without {
		t.Fatalf("removing a weighted feature should change the fused score")
	}
	if math.Abs(without-0.5) > 1e-9 {
		t.Fatalf("fuse without orderbook = %v, want 0.5", without)
	}

	// a stale score behind a false availability flag must be ignored
	st.Scores[models.FeatureOrderbook] = -2
	if got := Fuse(st); math.Abs(got-without) > 1e-9 {
		t.Fatalf("unavailable score leaked into fuse: %v vs %v", got, without)
	}

	if got := Fuse(models.NewFeatureScoreState()); got != 0 {
		t.Fatalf("empty fuse = %v, want 0", got)
	}
}

func TestConfidenceBounds(t *testing.T) {
	for _, f := range []float64{-10, -1, 0, 1, 10} {
		if c := Calibrate(f, DefaultShaping); c < MinConfidence || c > MaxConfidence {
			t.Fatalf("confidence for %v = %v out of [35,95]", f, c)
		}
	}
	if got := Calibrate(10, DefaultShaping); got != MaxConfidence {
		t.Fatalf("calibrate(10) = %v", got)
	}
	if got := Calibrate(-10, DefaultShaping); got != MinConfidence {
		t.Fatalf("calibrate(-10) = %v", got)
	}
	if got := Calibrate(0, DefaultShaping); got != NeutralConfidence {
		t.Fatalf("calibrate(0) = %v, want 50", got)
	}
}

func TestEngineCalibratesSignedScore(t *testing.T) {
	e := NewEngine(nil, DefaultShaping)

	sell := e.Score("BTCUSDT", "1h", -1)
	if sell.Raw != MinConfidence {
		t.Fatalf("score(-1).Raw = %v, want %v", sell.Raw, MinConfidence)
	}
	buy := e.Score("BTCUSDT", "1h", 1)
	if want := round2(Calibrate(1, DefaultShaping)); buy.Raw != want || buy.Raw <= NeutralConfidence {
		t.Fatalf("score(1).Raw = %v, want %v", buy.Raw, want)
	}
	if got := e.Score("BTCUSDT", "1h", 10).Raw; got != MaxConfidence {
		t.Fatalf("score(10).Raw = %v", got)
	}
	if got := e.Score("BTCUSDT", "1h", -10).Raw; got != MinConfidence {
		t.Fatalf("score(-10).Raw = %v", got)
	}
	if got := e.Score("BTCUSDT", "1h", -0.2).Raw; got >= NeutralConfidence {
		t.Fatalf("bearish fused score should calibrate below 50, got %v", got)
	}
}

func TestSmoothingAgainstMemory(t *testing.T) {
	if got := Smooth(90, 60); math.Abs(got-81) > 1e-9 {
		t.Fatalf("smooth(90,60) = %v, want 81", got)
	}

	mem := mapMemory{"BTCUSDT:1h": 60}
	e := NewEngine(mem, DefaultShaping)
	c := e.Score("BTCUSDT", "1h", 0)
	if !c.HadPrev || c.Previous != 60 {
		t.Fatalf("expected previous 60, got %+v", c)
	}
	want := round2(0.7*50 + 0.3*60)
	if c.Smoothed != want {
		t.Fatalf("smoothed = %v, want %v", c.Smoothed, want)
	}
	if mem["BTCUSDT:1h"] != 60 {
		t.Fatalf("score must not write memory, stored = %v", mem["BTCUSDT:1h"])
	}
	if got := e.Commit(c); got != want || mem["BTCUSDT:1h"] != want {
		t.Fatalf("commit = %v, stored = %v, want %v", got, mem["BTCUSDT:1h"], want)
	}

	first := e.Score("ETHUSDT", "1h", 0)
	if first.HadPrev || first.Smoothed != first.Raw {
		t.Fatalf("first reading should not be smoothed: %+v", first)
	}
	if _, ok := mem["ETHUSDT:1h"]; ok {
		t.Fatal("uncommitted reading leaked into memory")
	}
	if got := e.Commit(first); got != first.Raw {
		t.Fatalf("first commit stored %v, want raw %v", got, first.Raw)
	}
}

func TestSignalThresholds(t *testing.T) {
	cases := map[float64]models.Signal{
		0.25: models.SignalBuy, 0.9: models.SignalBuy,
		-0.25: models.SignalSell, -1: models.SignalSell,
		0.24: models.SignalHold, -0.1: models.SignalHold,
	}
	for f, want := range cases {
		if got := SignalFor(f); got != want {
			t.Fatalf("SignalFor(%v) = %s, want %s", f, got, want)
		}
	}
}

func TestOverboughtWithSellingPressureIsSell(t *testing.T) {
	rsi := 75.0
	imb := -0.5
	snap := features.Snapshot{
		Close:     100,
		RSI:       &rsi,
		MACD:      &features.MACDResult{Line: -0.2, Signal: -0.1, Histogram: -0.1},
		Imbalance: &imb,
	}
	st := Score(snap)
	fused := Fuse(st)
	if fused >= 0 {
		t.Fatalf("fused = %v, want negative", fused)
	}
	if got := SignalFor(fused); got != models.SignalSell {
		t.Fatalf("signal = %s, want SELL (fused %v)", got, fused)
	}
}

func TestBreakdownSkipsUnavailable(t *testing.T) {
	st := models.NewFeatureScoreState()
	st.Set(models.FeatureRSI, 1)
	st.Set(models.FeatureMACD, -0.5)
	b := Breakdown(st)
	if b.Technicals == nil || *b.Technicals != 0.25 {
		t.Fatalf("technicals = %v, want 0.25", b.Technicals)
	}
	if b.Sentiment != nil || b.Microstructure != nil {
		t.Fatalf("categories without data should be nil")
	}
}

func TestAccuracyRangeClamped(t *testing.T) {
	if got := AccuracyRange(93); got != "88-95%" {
		t.Fatalf("range = %q", got)
	}
	if got := AccuracyRange(36); got != "35-41%" {
		t.Fatalf("range = %q", got)
	}
}

func TestExplainRanksStrongestFirst(t *testing.T) {
	st := models.NewFeatureScoreState()
	st.Set(models.FeatureOrderbook, -2)
	st.Set(models.FeatureRSI, 0.1)
	lines := Explain(st, 1)
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[0][:9] != "orderbook" {
		t.Fatalf("strongest contribution should be first: %v", lines)
	}
}

func TestFuseSumsInFeatureOrder(t *testing.T) {
	st := models.NewFeatureScoreState()
	vals := []float64{0.1, -0.7, 1.3, 0.01, -1.9, 0.33, 0.77, -0.05, 1.1, -0.4}
	for i, k := range models.AllFeatures {
		st.Set(k, vals[i])
	}

	var num, den float64
	for i, k := range models.AllFeatures {
		num += Weights[k] * vals[i]
		den += Weights[k]
	}
	want := num / den

	for i := 0; i < 200; i++ {
		if got := Fuse(st); got != want {
			t.Fatalf("run %d: fuse = %v, want exactly %v", i, got, want)
		}
	}
}
