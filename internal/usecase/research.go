package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	domsvc "DeepResearch/internal/domain/service"
	"DeepResearch/internal/service/timedcall"
	"DeepResearch/internal/services/decision"
	"DeepResearch/internal/services/features"
	"DeepResearch/internal/services/mtf"
	"DeepResearch/internal/services/scoring"
	"DeepResearch/pkg/cache"
	"DeepResearch/pkg/logger"
)

// CallTimeouts are the per-call budgets inside one research run.
type CallTimeouts struct {
	Candles     time.Duration
	Orderbook   time.Duration
	Ticker      time.Duration
	Derivatives time.Duration
	Sentiment   time.Duration
	ML          time.Duration
}

type ResearchSettings struct {
	Deadline       time.Duration
	Primary        domrepo.Timeframe
	Short          domrepo.Timeframe
	Medium         domrepo.Timeframe
	Long           domrepo.Timeframe
	CandleLimit    int
	MinCandles     int
	MinSecondary   int
	OrderbookDepth int
	Timeouts       CallTimeouts
	ResultTTL      time.Duration
}

func DefaultResearchSettings() ResearchSettings {
	return ResearchSettings{
		Deadline:       10 * time.Second,
		Primary:        domrepo.TF1h,
		Short:          domrepo.TF5m,
		Medium:         domrepo.TF1h,
		Long:           domrepo.TF4h,
		CandleLimit:    200,
		MinCandles:     60,
		MinSecondary:   mtf.DefaultMinCandles,
		OrderbookDepth: features.DefaultBookLevels,
		Timeouts: CallTimeouts{
			Candles:     2500 * time.Millisecond,
			Orderbook:   1500 * time.Millisecond,
			Ticker:      1200 * time.Millisecond,
			Derivatives: 2 * time.Second,
			Sentiment:   1500 * time.Millisecond,
			ML:          2 * time.Second,
		},
		ResultTTL: 15 * time.Second,
	}
}

// errAbandoned marks a run whose deadline passed while fetching.
var errAbandoned = errors.New("research run abandoned")

// ResultSink receives finished results for asynchronous delivery.
type ResultSink interface {
	Submit(r *models.ResearchResult) bool
}

type ResearchRequest struct {
	Symbol    string
	User      models.UserContext
	Timeframe string
	Force     bool
}

// ResearchUseCase runs the full fetch, score, synthesize and decide pipeline
// under one deadline.
type ResearchUseCase struct {
	resolver  domrepo.AdapterResolver
	engine    *scoring.Engine
	synth     *mtf.Synthesizer
	exec      *timedcall.Executor
	cfg       ResearchSettings
	sentiment domrepo.SentimentSource
	ml        domsvc.MLPredictor
	results   cache.Service
	sink      ResultSink
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

type ResearchOption func(*ResearchUseCase)

func WithSentimentSource(s domrepo.SentimentSource) ResearchOption {
	return func(uc *ResearchUseCase) { uc.sentiment = s }
}

func WithMLPredictor(p domsvc.MLPredictor) ResearchOption {
	return func(uc *ResearchUseCase) { uc.ml = p }
}

// WithResultCache serves recent results for non-forced requests.
func WithResultCache(c cache.Service) ResearchOption {
	return func(uc *ResearchUseCase) { uc.results = c }
}

func WithResultSink(s ResultSink) ResearchOption {
	return func(uc *ResearchUseCase) { uc.sink = s }
}

func WithResearchMetrics(m domrepo.Metrics) ResearchOption {
	return func(uc *ResearchUseCase) { uc.metrics = m }
}

func WithResearchLogger(l *logger.Logger) ResearchOption {
	return func(uc *ResearchUseCase) { uc.log = l }
}

func NewResearchUseCase(resolver domrepo.AdapterResolver, engine *scoring.Engine, synth *mtf.Synthesizer, exec *timedcall.Executor, cfg ResearchSettings, opts ...ResearchOption) *ResearchUseCase {
	uc := &ResearchUseCase{
		resolver: resolver,
		engine:   engine,
		synth:    synth,
		exec:     exec,
		cfg:      cfg,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RunResearch always returns a complete result within the deadline. The only
// error is *models.ResearchError for a primary series that is too short.
func (uc *ResearchUseCase) RunResearch(ctx context.Context, req ResearchRequest) (*models.ResearchResult, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	tf := uc.cfg.Primary
	if req.Timeframe != "" {
		tf = domrepo.NormalizeTimeframe(req.Timeframe)
	}
	start := uc.now()
	key := cache.GenerateKey("research", req.Symbol, string(tf))

	if !req.Force && uc.results != nil {
		var cached models.ResearchResult
		if err := uc.results.Get(ctx, key, &cached); err == nil {
			uc.observe(req.Symbol, "cached", start)
			return &cached, nil
		}
	}

	dctx, cancel := context.WithTimeout(ctx, uc.cfg.Deadline)
	defer cancel()

	report := timedcall.NewReport()
	type outcome struct {
		res      *models.ResearchResult
		readings []scoring.Confidence
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				uc.log.Error("research run panicked",
					logger.String("symbol", req.Symbol), logger.Any("panic", p))
				res := uc.neutral(req.Symbol, tf, report, "internal error while scoring, neutral result returned")
				done <- outcome{res: res}
			}
		}()
		res, readings, err := uc.run(dctx, req.Symbol, tf, req.User, report)
		done <- outcome{res: res, readings: readings, err: err}
	}()

	select {
	case o := <-done:
		if errors.Is(o.err, errAbandoned) || (o.err == nil && dctx.Err() != nil) {
			return uc.timedOut(req.Symbol, tf, report, start), nil
		}
		if o.err != nil {
			uc.observe(req.Symbol, "insufficient_data", start)
			return nil, o.err
		}
		for _, r := range o.readings {
			uc.engine.Commit(r)
		}
		o.res.DurationMs = uc.now().Sub(start).Milliseconds()
		uc.finish(ctx, key, o.res)
		uc.observe(req.Symbol, outcomeLabel(o.res), start)
		return o.res, nil
	case <-dctx.Done():
		return uc.timedOut(req.Symbol, tf, report, start), nil
	}
}

func (uc *ResearchUseCase) timedOut(symbol string, tf domrepo.Timeframe, report *timedcall.Report, start time.Time) *models.ResearchResult {
	res := uc.neutral(symbol, tf, report, fmt.Sprintf("research deadline of %s exceeded", uc.cfg.Deadline))
	res.TimedOut = true
	res.DurationMs = uc.now().Sub(start).Milliseconds()
	uc.log.Warn("research timed out", logger.String("symbol", symbol), logger.String("tf", string(tf)))
	uc.observe(symbol, "timeout", start)
	return res
}

func outcomeLabel(r *models.ResearchResult) string {
	if r.Degraded {
		return "degraded"
	}
	return "ok"
}

func (uc *ResearchUseCase) observe(symbol, outcome string, start time.Time) {
	if uc.metrics != nil {
		uc.metrics.RecordResearch(symbol, outcome, uc.now().Sub(start).Seconds())
	}
}

// finish caches and publishes complete results. Degraded ones are not cached
// so the next request retries the sources.
func (uc *ResearchUseCase) finish(ctx context.Context, key string, r *models.ResearchResult) {
	if r.Degraded {
		return
	}
	if uc.results != nil {
		if err := uc.results.Set(ctx, key, r, uc.cfg.ResultTTL); err != nil {
			uc.log.Warn("cache research result", logger.String("key", key), logger.Error(err))
		}
	}
	if uc.sink != nil && !uc.sink.Submit(r) {
		uc.log.Debug("result sink dropped result", logger.String("symbol", r.Symbol))
	}
	if uc.metrics != nil {
		uc.metrics.RecordConfidence(r.Symbol, r.Timeframe, r.Confidence)
	}
}

// fetched holds the fan-in of one run. Every field came through the executor.
type fetched struct {
	primary     timedcall.Result[[]models.Candle]
	secondary   map[domrepo.Timeframe]timedcall.Result[[]models.Candle]
	orderbook   timedcall.Result[models.OrderbookSnapshot]
	ticker      timedcall.Result[models.Ticker]
	derivatives timedcall.Result[models.DerivativesSnapshot]
	sentiment   timedcall.Result[models.SentimentReading]
	hasCandles  bool
}

type frameSpec struct {
	role string
	tf   domrepo.Timeframe
}

func (uc *ResearchUseCase) frames() []frameSpec {
	return []frameSpec{
		{mtf.RoleShort, uc.cfg.Short},
		{mtf.RoleMedium, uc.cfg.Medium},
		{mtf.RoleLong, uc.cfg.Long},
	}
}

func (uc *ResearchUseCase) fetchAll(ctx context.Context, adapter domrepo.Adapter, symbol string, tf domrepo.Timeframe, report *timedcall.Report) fetched {
	var (
		f    = fetched{secondary: make(map[domrepo.Timeframe]timedcall.Result[[]models.Candle])}
		wg   sync.WaitGroup
		mu   sync.Mutex
		name = adapter.Name()
		t    = uc.cfg.Timeouts
	)

	candles, hasCandles := adapter.(domrepo.CandleSource)
	f.hasCandles = hasCandles
	if hasCandles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.primary = timedcall.Execute(ctx, uc.exec, report,
				timedcall.Call{Name: "candles:" + string(tf), Provider: name, Timeout: t.Candles}, nil,
				func(ctx context.Context) ([]models.Candle, error) {
					return candles.FetchCandles(ctx, symbol, tf, uc.cfg.CandleLimit)
				})
		}()

		seen := map[domrepo.Timeframe]bool{tf: true}
		for _, fr := range uc.frames() {
			if seen[fr.tf] {
				continue
			}
			seen[fr.tf] = true
			stf := fr.tf
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := timedcall.Execute(ctx, uc.exec, report,
					timedcall.Call{Name: "candles:" + string(stf), Provider: name, Timeout: t.Candles}, nil,
					func(ctx context.Context) ([]models.Candle, error) {
						return candles.FetchCandles(ctx, symbol, stf, uc.cfg.CandleLimit)
					})
				mu.Lock()
				f.secondary[stf] = r
				mu.Unlock()
			}()
		}
	} else {
		timedcall.Skip(uc.exec, report, timedcall.Call{Name: "candles:" + string(tf), Provider: name}, "adapter does not provide candles")
	}

	if ob, ok := adapter.(domrepo.OrderbookSource); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.orderbook = timedcall.Execute(ctx, uc.exec, report,
				timedcall.Call{Name: "orderbook", Provider: name, Timeout: t.Orderbook}, models.OrderbookSnapshot{},
				func(ctx context.Context) (models.OrderbookSnapshot, error) {
					return ob.FetchOrderbook(ctx, symbol, uc.cfg.OrderbookDepth)
				})
		}()
	} else {
		f.orderbook.IsFallback = true
		timedcall.Skip(uc.exec, report, timedcall.Call{Name: "orderbook", Provider: name}, "adapter does not provide an orderbook")
	}

	if tk, ok := adapter.(domrepo.TickerSource); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.ticker = timedcall.Execute(ctx, uc.exec, report,
				timedcall.Call{Name: "ticker", Provider: name, Timeout: t.Ticker}, models.Ticker{},
				func(ctx context.Context) (models.Ticker, error) {
					return tk.FetchTicker(ctx, symbol)
				})
		}()
	} else {
		f.ticker.IsFallback = true
		timedcall.Skip(uc.exec, report, timedcall.Call{Name: "ticker", Provider: name}, "adapter does not provide a ticker")
	}

	if dv, ok := adapter.(domrepo.DerivativesCapable); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.derivatives = timedcall.Execute(ctx, uc.exec, report,
				timedcall.Call{Name: "derivatives", Provider: name, Timeout: t.Derivatives}, models.DerivativesSnapshot{},
				func(ctx context.Context) (models.DerivativesSnapshot, error) {
					return dv.FetchDerivativesSnapshot(ctx, symbol)
				})
		}()
	} else {
		f.derivatives.IsFallback = true
		timedcall.Skip(uc.exec, report, timedcall.Call{Name: "derivatives", Provider: name}, "adapter has no derivatives data")
	}

	sent, sentName := uc.sentimentFor(adapter)
	if sent != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.sentiment = timedcall.Execute(ctx, uc.exec, report,
				timedcall.Call{Name: "sentiment", Provider: sentName, Timeout: t.Sentiment}, models.SentimentReading{},
				func(ctx context.Context) (models.SentimentReading, error) {
					return sent.FetchSentiment(ctx, symbol)
				})
		}()
	} else {
		f.sentiment.IsFallback = true
		timedcall.Skip(uc.exec, report, timedcall.Call{Name: "sentiment", Provider: "none"}, "no sentiment source configured")
	}

	wg.Wait()
	return f
}

// sentimentFor prefers the adapter's own sentiment feed over the shared one.
func (uc *ResearchUseCase) sentimentFor(adapter domrepo.Adapter) (domrepo.SentimentSource, string) {
	if s, ok := adapter.(domrepo.SentimentSource); ok {
		return s, adapter.Name()
	}
	if uc.sentiment != nil {
		return uc.sentiment, "sentiment"
	}
	return nil, ""
}

// run scores one request. The confidence readings it returns are committed
// to memory only if the run beats the deadline.
func (uc *ResearchUseCase) run(ctx context.Context, symbol string, tf domrepo.Timeframe, user models.UserContext, report *timedcall.Report) (*models.ResearchResult, []scoring.Confidence, error) {
	adapter, ok := uc.resolver.Resolve(ctx, user)
	if !ok || adapter == nil {
		for _, name := range []string{"candles:" + string(tf), "orderbook", "ticker", "derivatives", "sentiment"} {
			timedcall.Skip(uc.exec, report, timedcall.Call{Name: name, Provider: "none"}, "no data source available")
		}
		return uc.neutral(symbol, tf, report, "no market data source is available for this user"), nil, nil
	}

	f := uc.fetchAll(ctx, adapter, symbol, tf, report)
	if ctx.Err() != nil {
		return nil, nil, errAbandoned
	}

	if !f.hasCandles || f.primary.IsFallback {
		res := uc.neutral(symbol, tf, report, "primary candle data unavailable, neutral result returned")
		res.Adapter = adapter.Name()
		if !f.ticker.IsFallback {
			res.EntryPrice = f.ticker.Value.LastPrice
			res.Microstructure.Volume24h = f.ticker.Value.Volume24h
			res.Microstructure.Change24hPct = f.ticker.Value.PriceChangePercent24h
		}
		return res, nil, nil
	}

	if n := len(f.primary.Value); n < uc.cfg.MinCandles {
		cid := uuid.NewString()
		uc.log.Warn("insufficient candles for research",
			logger.String("symbol", symbol), logger.String("tf", string(tf)),
			logger.Int("candles", n), logger.String("correlation_id", cid))
		return nil, nil, models.NewInsufficientDataError(cid, symbol, string(tf), n, uc.cfg.MinCandles)
	}

	in := features.Inputs{Timeframe: string(tf), Candles: f.primary.Value, BookLevels: uc.cfg.OrderbookDepth}
	if !f.orderbook.IsFallback {
		in.Orderbook = &f.orderbook.Value
	}
	if !f.ticker.IsFallback {
		in.Ticker = &f.ticker.Value
	}
	if !f.derivatives.IsFallback {
		in.Derivatives = &f.derivatives.Value
	}
	if !f.sentiment.IsFallback {
		in.Sentiment = &f.sentiment.Value
	}
	snap := features.Extract(in)
	state := scoring.Score(snap)
	fused := scoring.Fuse(state)
	signal := scoring.SignalFor(fused)
	conf := uc.engine.Score(symbol, string(tf), fused)

	frames := make([]mtf.Frame, 0, 3)
	for _, fr := range uc.frames() {
		frame := mtf.Frame{Role: fr.role, Timeframe: string(fr.tf)}
		if r, ok := f.secondary[fr.tf]; ok {
			frame.Candles, frame.Fetched = r.Value, !r.IsFallback
		}
		frames = append(frames, frame)
	}
	analysis := uc.synth.Analyze(symbol, frames, &mtf.Primary{
		Timeframe:  string(tf),
		Candles:    f.primary.Value,
		Snapshot:   snap,
		State:      state,
		Fused:      fused,
		Confidence: conf.Smoothed,
	})
	final, adjustments := mtf.Adjust(conf.Smoothed, analysis.Timeframes)

	var ml *models.MLInsight
	if uc.ml != nil {
		vec := mlFeatures(state, fused)
		r := timedcall.Execute(ctx, uc.exec, report,
			timedcall.Call{Name: "ml_predict", Provider: "ml-service", Timeout: uc.cfg.Timeouts.ML}, models.MLInsight{},
			func(ctx context.Context) (models.MLInsight, error) {
				return uc.ml.Predict(ctx, symbol, vec)
			})
		if !r.IsFallback {
			ml = &r.Value
		}
	}

	dec := decision.Assemble(decision.Input{
		Signal:      signal,
		Confidence:  final,
		Close:       snap.Close,
		Timeframes:  analysis.Timeframes,
		Derivatives: snap.Derivatives,
		Liquidity:   snap.Liquidity,
	})

	res := &models.ResearchResult{
		ID:                 uuid.NewString(),
		Symbol:             symbol,
		Timeframe:          string(tf),
		Signal:             signal,
		Side:               dec.Side,
		Confidence:         final,
		RawConfidence:      conf.Raw,
		SmoothedConfidence: conf.Smoothed,
		AccuracyRange:      scoring.AccuracyRange(final),
		FusedScore:         round2(fused),
		Mode:               dec.Mode,
		Blurred:            dec.Blurred,
		EntryPrice:         dec.Entry,
		StopLoss:           dec.StopLoss,
		TakeProfit:         dec.TakeProfit,
		Exits:              dec.Exits,
		Microstructure:     microstructure(snap, in.Ticker),
		Features:           state.Clone(),
		Breakdown:          scoring.Breakdown(state),
		Timeframes:         analysis.Timeframes,
		Confluence:         analysis.Confluence,
		Adjustments:        adjustments,
		AutoTrade:          dec.AutoTrade,
		Derivatives:        snap.Derivatives,
		Explanations:       explanations(state, adjustments, snap.Derivatives, ml),
		ML:                 ml,
		APICalls:           report.Entries(),
		Adapter:            adapter.Name(),
		GeneratedAt:        uc.now().UTC(),
	}
	return res, append([]scoring.Confidence{conf}, analysis.Readings...), nil
}

func mlFeatures(st models.FeatureScoreState, fused float64) map[string]float64 {
	out := map[string]float64{"fused": fused}
	for k, ok := range st.Available {
		if ok {
			out[string(k)] = st.Scores[k]
		}
	}
	return out
}

func microstructure(snap features.Snapshot, tk *models.Ticker) models.Microstructure {
	m := models.Microstructure{Imbalance: snap.Imbalance, Momentum: snap.Momentum}
	if snap.Liquidity != nil {
		sp := snap.Liquidity.SpreadPct
		m.SpreadPercent = &sp
		m.BidDepth = snap.Liquidity.BidDepth
		m.AskDepth = snap.Liquidity.AskDepth
		m.LiquidityTier = snap.Liquidity.Tier
	}
	if tk != nil {
		m.Volume24h = tk.Volume24h
		m.Change24hPct = tk.PriceChangePercent24h
	}
	return m
}

func explanations(st models.FeatureScoreState, adj []models.ConfidenceAdjustment, d models.DerivativesSummary, ml *models.MLInsight) []string {
	out := scoring.Explain(st, 5)
	for _, a := range adj {
		out = append(out, fmt.Sprintf("timeframes: %s (%+.0f)", a.Detail, a.Delta))
	}
	if d.Available {
		out = append(out, fmt.Sprintf("derivatives bias %s (net %+.2f)", d.Bias, d.NetScore))
	}
	if ml != nil {
		out = append(out, fmt.Sprintf("ml model: %s at %d%%", ml.Signal, ml.Confidence))
		for _, e := range ml.Explanations {
			out = append(out, "ml: "+e)
		}
	}
	return out
}

// neutral builds the complete HOLD result used whenever no real score can be
// produced. It never touches the confidence memory.
func (uc *ResearchUseCase) neutral(symbol string, tf domrepo.Timeframe, report *timedcall.Report, reason string) *models.ResearchResult {
	tfs := make([]models.TimeframeBreakdown, 0, 3)
	for _, fr := range uc.frames() {
		tfs = append(tfs, models.TimeframeBreakdown{
			Timeframe:    string(fr.tf),
			Role:         fr.role,
			Bias:         models.BiasNeutral,
			ScorePercent: scoring.NeutralConfidence,
		})
	}
	return &models.ResearchResult{
		ID:                 uuid.NewString(),
		Symbol:             symbol,
		Timeframe:          string(tf),
		Signal:             models.SignalHold,
		Side:               models.SideNeutral,
		Confidence:         scoring.NeutralConfidence,
		RawConfidence:      scoring.NeutralConfidence,
		SmoothedConfidence: scoring.NeutralConfidence,
		AccuracyRange:      scoring.AccuracyRange(scoring.NeutralConfidence),
		Mode:               decision.ModeFor(scoring.NeutralConfidence),
		Blurred:            true,
		Exits:              []float64{},
		Features:           models.NewFeatureScoreState(),
		Timeframes:         tfs,
		Confluence:         mtf.Confluence(tfs),
		AutoTrade:          models.AutoTradeDecision{Reasons: []string{reason}},
		Derivatives:        models.DerivativesSummary{Bias: models.BiasNeutral},
		Explanations:       []string{reason},
		APICalls:           report.Entries(),
		Degraded:           true,
		GeneratedAt:        uc.now().UTC(),
	}
}

func round2(v float64) float64 {
	if v >= 0 {
		return float64(int64(v*100+0.5)) / 100
	}
	return -float64(int64(-v*100+0.5)) / 100
}
