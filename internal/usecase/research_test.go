package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	"DeepResearch/internal/service/confmem"
	"DeepResearch/internal/service/timedcall"
	"DeepResearch/internal/services/mtf"
	"DeepResearch/internal/services/scoring"
	"DeepResearch/pkg/cache"
)

func series(n int, base, step float64) []models.Candle {
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

// spotAdapter provides candles, book and ticker but no derivatives.
type spotAdapter struct {
	candles []models.Candle
	book    models.OrderbookSnapshot
	err     error
	block   bool

	mu    sync.Mutex
	calls int
}

func (a *spotAdapter) Name() string { return "fake-spot" }

func (a *spotAdapter) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.candles, nil
}

func (a *spotAdapter) FetchOrderbook(ctx context.Context, symbol string, depth int) (models.OrderbookSnapshot, error) {
	if a.err != nil {
		return models.OrderbookSnapshot{}, a.err
	}
	return a.book, nil
}

func (a *spotAdapter) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	if a.err != nil {
		return models.Ticker{}, a.err
	}
	last := 0.0
	if n := len(a.candles); n > 0 {
		last = a.candles[n-1].Close
	}
	return models.Ticker{LastPrice: last, Volume24h: 1e6}, nil
}

type futuresAdapter struct {
	spotAdapter
}

func (a *futuresAdapter) Name() string { return "fake-futures" }

func (a *futuresAdapter) FetchDerivativesSnapshot(ctx context.Context, symbol string) (models.DerivativesSnapshot, error) {
	if a.err != nil {
		return models.DerivativesSnapshot{}, a.err
	}
	return models.DerivativesSnapshot{}, nil
}

type failingSentiment struct{}

func (failingSentiment) FetchSentiment(ctx context.Context, symbol string) (models.SentimentReading, error) {
	return models.SentimentReading{}, errors.New("sentiment provider down")
}

func balancedBook(mid float64) models.OrderbookSnapshot {
	return models.OrderbookSnapshot{
		Bids: []models.PriceLevel{{Price: mid - 0.1, Quantity: 5}},
		Asks: []models.PriceLevel{{Price: mid + 0.1, Quantity: 5}},
	}
}

func sellHeavyBook(mid float64) models.OrderbookSnapshot {
	return models.OrderbookSnapshot{
		Bids: []models.PriceLevel{{Price: mid - 0.1, Quantity: 1}},
		Asks: []models.PriceLevel{{Price: mid + 0.1, Quantity: 10}},
	}
}

func resolverFor(a domrepo.Adapter) domrepo.AdapterResolver {
	return domrepo.AdapterResolverFunc(func(ctx context.Context, user models.UserContext) (domrepo.Adapter, bool) {
		return a, a != nil
	})
}

func newUseCase(a domrepo.Adapter, cfg ResearchSettings, opts ...ResearchOption) (*ResearchUseCase, *confmem.Memory) {
	mem := confmem.New(confmem.WithMaxEntries(100))
	engine := scoring.NewEngine(mem, scoring.DefaultShaping)
	synth := mtf.NewSynthesizer(engine, cfg.MinSecondary)
	return NewResearchUseCase(resolverFor(a), engine, synth, timedcall.NewExecutor(nil, nil), cfg, opts...), mem
}

func statusOf(entries []models.APICallReportEntry, name string) (models.CallStatus, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e.Status, true
		}
	}
	return "", false
}

func TestInsufficientCandlesIsError(t *testing.T) {
	a := &spotAdapter{candles: series(30, 100, 0.1), book: balancedBook(103)}
	uc, _ := newUseCase(a, DefaultResearchSettings())

	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "btcusdt", Timeframe: "1h"})
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	rerr, ok := models.AsResearchError(err)
	if !ok {
		t.Fatalf("expected research error, got %v", err)
	}
	if rerr.Code != models.CodeInsufficientData || rerr.CorrelationID == "" || rerr.Symbol != "BTCUSDT" {
		t.Fatalf("error = %+v", rerr)
	}
}

func TestAllProvidersFailingGivesNeutralResult(t *testing.T) {
	a := &futuresAdapter{spotAdapter{err: errors.New("exchange unreachable")}}
	uc, mem := newUseCase(a, DefaultResearchSettings(), WithSentimentSource(failingSentiment{}))

	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "ETHUSDT", Timeframe: "1h"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Signal != models.SignalHold || res.Confidence != 50 || !res.Degraded {
		t.Fatalf("result = %s %.2f degraded=%v", res.Signal, res.Confidence, res.Degraded)
	}
	if len(res.APICalls) == 0 {
		t.Fatal("expected api call report")
	}
	for _, e := range res.APICalls {
		if e.Status != models.CallFailed || !e.IsFallback {
			t.Fatalf("entry %s status %s fallback=%v", e.Name, e.Status, e.IsFallback)
		}
	}
	if _, ok := mem.Peek(scoring.MemoryKey("ETHUSDT", "1h")); ok {
		t.Fatal("degraded run must not write confidence memory")
	}
	if len(res.Timeframes) != 3 {
		t.Fatalf("timeframes = %d", len(res.Timeframes))
	}
}

func TestNoAdapterSkipsEverything(t *testing.T) {
	uc, _ := newUseCase(nil, DefaultResearchSettings())

	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "SOLUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Signal != models.SignalHold || !res.Degraded {
		t.Fatalf("result = %+v", res)
	}
	for _, e := range res.APICalls {
		if e.Status != models.CallSkipped {
			t.Fatalf("entry %s status %s", e.Name, e.Status)
		}
	}
}

func TestSellSetup(t *testing.T) {
	candles := series(200, 1000, -1)
	last := candles[len(candles)-1].Close
	a := &spotAdapter{candles: candles, book: sellHeavyBook(last)}
	uc, _ := newUseCase(a, DefaultResearchSettings())

	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT", Timeframe: "1h"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Signal != models.SignalSell || res.Side != models.SideShort {
		t.Fatalf("signal = %s side = %s fused = %.3f", res.Signal, res.Side, res.FusedScore)
	}
	if res.Confidence < scoring.MinConfidence || res.Confidence > scoring.MaxConfidence {
		t.Fatalf("confidence %.2f out of bounds", res.Confidence)
	}
	if res.Mode != models.ModeLow && (res.StopLoss <= res.EntryPrice || res.TakeProfit >= res.EntryPrice) {
		t.Fatalf("short levels entry=%v sl=%v tp=%v", res.EntryPrice, res.StopLoss, res.TakeProfit)
	}
	if st, _ := statusOf(res.APICalls, "derivatives"); st != models.CallSkipped {
		t.Fatalf("derivatives status = %s, want SKIPPED", st)
	}
	if st, _ := statusOf(res.APICalls, "candles:1h"); st != models.CallSuccess {
		t.Fatalf("primary candles status = %s", st)
	}
	if len(res.Timeframes) != 3 || res.Degraded || res.TimedOut {
		t.Fatalf("timeframes=%d degraded=%v timedOut=%v", len(res.Timeframes), res.Degraded, res.TimedOut)
	}
	if len(res.Explanations) == 0 {
		t.Fatal("expected explanations")
	}
}

func TestRepeatedRunKeepsSignal(t *testing.T) {
	candles := series(200, 500, 0)
	a := &spotAdapter{candles: candles, book: balancedBook(500)}
	uc, _ := newUseCase(a, DefaultResearchSettings())

	first, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT", Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT", Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Signal != second.Signal || first.Signal != models.SignalHold {
		t.Fatalf("signals %s then %s", first.Signal, second.Signal)
	}
	if first.ID == second.ID {
		t.Fatal("each run should get its own id")
	}
}

func TestDeadlineReturnsNeutral(t *testing.T) {
	cfg := DefaultResearchSettings()
	cfg.Deadline = 50 * time.Millisecond
	cfg.Timeouts.Candles = time.Second
	a := &spotAdapter{block: true, book: balancedBook(100)}
	uc, _ := newUseCase(a, cfg)

	start := time.Now()
	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("deadline not honoured: %v", time.Since(start))
	}
	if !res.TimedOut || res.Signal != models.SignalHold || res.Confidence != 50 {
		t.Fatalf("result = %s %.0f timedOut=%v", res.Signal, res.Confidence, res.TimedOut)
	}
}

func TestCachedUnlessForced(t *testing.T) {
	a := &spotAdapter{candles: series(200, 500, 0), book: balancedBook(500)}
	results := cache.NewMemoryCache()
	defer results.Close()
	uc, _ := newUseCase(a, DefaultResearchSettings(), WithResultCache(results))

	first, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cached, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "btcusdt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached.ID != first.ID {
		t.Fatalf("expected cached result %s, got %s", first.ID, cached.ID)
	}
	fresh, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT", Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh.ID == first.ID {
		t.Fatal("force should bypass the cache")
	}
}

// stallingAdapter answers nothing until the caller gives up.
type stallingAdapter struct{}

func (stallingAdapter) Name() string { return "fake-stalled" }

func (stallingAdapter) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingAdapter) FetchOrderbook(ctx context.Context, symbol string, depth int) (models.OrderbookSnapshot, error) {
	<-ctx.Done()
	return models.OrderbookSnapshot{}, ctx.Err()
}

func (stallingAdapter) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	<-ctx.Done()
	return models.Ticker{}, ctx.Err()
}

func (stallingAdapter) FetchDerivativesSnapshot(ctx context.Context, symbol string) (models.DerivativesSnapshot, error) {
	<-ctx.Done()
	return models.DerivativesSnapshot{}, ctx.Err()
}

type stallingSentiment struct{}

func (stallingSentiment) FetchSentiment(ctx context.Context, symbol string) (models.SentimentReading, error) {
	<-ctx.Done()
	return models.SentimentReading{}, ctx.Err()
}

type stallingML struct{}

func (stallingML) Predict(ctx context.Context, symbol string, features map[string]float64) (models.MLInsight, error) {
	<-ctx.Done()
	return models.MLInsight{}, ctx.Err()
}

func TestStalledProvidersFallBackWithinDeadline(t *testing.T) {
	cfg := DefaultResearchSettings()
	cfg.Deadline = 2 * time.Second
	cfg.Timeouts = CallTimeouts{
		Candles:     40 * time.Millisecond,
		Orderbook:   30 * time.Millisecond,
		Ticker:      30 * time.Millisecond,
		Derivatives: 30 * time.Millisecond,
		Sentiment:   30 * time.Millisecond,
		ML:          30 * time.Millisecond,
	}
	uc, mem := newUseCase(stallingAdapter{}, cfg, WithSentimentSource(stallingSentiment{}))

	start := time.Now()
	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("per-call timeouts not honoured: %v", time.Since(start))
	}
	if res.TimedOut || !res.Degraded || res.Signal != models.SignalHold || res.Confidence != 50 {
		t.Fatalf("result = %s %.0f timedOut=%v degraded=%v", res.Signal, res.Confidence, res.TimedOut, res.Degraded)
	}
	for _, name := range []string{"candles:1h", "candles:5m", "candles:4h", "orderbook", "ticker", "derivatives", "sentiment"} {
		if _, ok := statusOf(res.APICalls, name); !ok {
			t.Fatalf("missing report entry %s", name)
		}
	}
	for _, e := range res.APICalls {
		if e.Status != models.CallFailed || !e.IsFallback {
			t.Fatalf("entry %s status %s fallback=%v", e.Name, e.Status, e.IsFallback)
		}
	}
	if _, ok := mem.Peek(scoring.MemoryKey("BTCUSDT", "1h")); ok {
		t.Fatal("fallback run must not write confidence memory")
	}
}

func TestTimedOutRunLeavesMemoryUntouched(t *testing.T) {
	cfg := DefaultResearchSettings()
	cfg.Deadline = 150 * time.Millisecond
	cfg.Timeouts.ML = time.Second
	a := &spotAdapter{candles: series(200, 100, 0.5), book: balancedBook(200)}
	uc, mem := newUseCase(a, cfg, WithMLPredictor(stallingML{}))

	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut || res.Signal != models.SignalHold {
		t.Fatalf("result = %s timedOut=%v", res.Signal, res.TimedOut)
	}
	for _, tf := range []string{"1h", "5m", "4h"} {
		if v, ok := mem.Peek(scoring.MemoryKey("BTCUSDT", tf)); ok {
			t.Fatalf("timed out run wrote memory for %s: %v", tf, v)
		}
	}
}

func TestCompletedRunCommitsMemory(t *testing.T) {
	a := &spotAdapter{candles: series(200, 100, 0.5), book: balancedBook(200)}
	uc, mem := newUseCase(a, DefaultResearchSettings())

	res, err := uc.RunResearch(context.Background(), ResearchRequest{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TimedOut {
		t.Fatal("run should finish inside the deadline")
	}
	v, ok := mem.Peek(scoring.MemoryKey("BTCUSDT", "1h"))
	if !ok || v != res.SmoothedConfidence {
		t.Fatalf("stored %v (ok=%v), want %v", v, ok, res.SmoothedConfidence)
	}
	for _, tf := range []string{"5m", "4h"} {
		if _, ok := mem.Peek(scoring.MemoryKey("BTCUSDT", tf)); !ok {
			t.Fatalf("secondary timeframe %s not remembered", tf)
		}
	}
}
