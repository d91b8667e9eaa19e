package binance

import (
	"context"
	"errors"
	"fmt"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	"DeepResearch/pkg/logger"
)

// Config selects credentials and pacing for the USDⓈ-M futures REST API.
type Config struct {
	APIKey         string
	SecretKey      string
	Testnet        bool
	RequestsPerSec int
	Retries        int
}

// Adapter serves candles, book, ticker and derivatives from Binance futures.
type Adapter struct {
	name    string
	client  *futures.Client
	limiter *rate.Limiter
	retries int
	liq     *LiquidationMonitor
	log     *logger.Logger
}

var (
	_ domrepo.CandleSource       = (*Adapter)(nil)
	_ domrepo.OrderbookSource    = (*Adapter)(nil)
	_ domrepo.TickerSource       = (*Adapter)(nil)
	_ domrepo.DerivativesCapable = (*Adapter)(nil)
)

type Option func(*Adapter)

// WithLiquidations attaches a monitor whose window feeds derivatives snapshots.
func WithLiquidations(m *LiquidationMonitor) Option {
	return func(a *Adapter) { a.liq = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// WithLimiter shares one limiter between adapters on the same IP.
func WithLimiter(l *rate.Limiter) Option {
	return func(a *Adapter) {
		if l != nil {
			a.limiter = l
		}
	}
}

func NewAdapter(cfg Config, opts ...Option) *Adapter {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	name := "binance-futures"
	if cfg.APIKey == "" {
		name = "binance-futures:public"
	}
	a := &Adapter{
		name:    name,
		client:  binance.NewFuturesClient(cfg.APIKey, cfg.SecretKey),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		retries: cfg.Retries,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(logger.String("adapter", a.name))
	return a
}

func (a *Adapter) Name() string { return a.name }

// do paces fn through the limiter and retries transient failures. API
// errors (bad symbol, auth) are returned at once.
func (a *Adapter) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if werr := a.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("%s: %w", op, werr)
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if common.IsAPIError(err) || ctx.Err() != nil {
			break
		}
		a.log.Debug("binance call failed, retrying", logger.String("op", op), logger.Int("attempt", attempt+1), logger.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (a *Adapter) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	var klines []*futures.Kline
	err := a.do(ctx, "klines", func(ctx context.Context) error {
		var err error
		klines, err = a.client.NewKlinesService().
			Symbol(symbol).
			Interval(string(tf)).
			Limit(limit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return klinesToCandles(klines), nil
}

func (a *Adapter) FetchOrderbook(ctx context.Context, symbol string, depth int) (models.OrderbookSnapshot, error) {
	var res *futures.DepthResponse
	err := a.do(ctx, "depth", func(ctx context.Context) error {
		var err error
		res, err = a.client.NewDepthService().Symbol(symbol).Limit(depthLimit(depth)).Do(ctx)
		return err
	})
	if err != nil {
		return models.OrderbookSnapshot{}, err
	}
	return depthToSnapshot(res), nil
}

func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (models.Ticker, error) {
	var stats []*futures.PriceChangeStats
	err := a.do(ctx, "ticker_24hr", func(ctx context.Context) error {
		var err error
		stats, err = a.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return models.Ticker{}, err
	}
	if len(stats) == 0 {
		return models.Ticker{}, fmt.Errorf("ticker_24hr: no data for %s", symbol)
	}
	return statsToTicker(stats[0]), nil
}

// FetchDerivativesSnapshot combines funding, open interest history and the
// liquidation window. Parts that fail are left nil; only a fully empty
// snapshot is an error.
func (a *Adapter) FetchDerivativesSnapshot(ctx context.Context, symbol string) (models.DerivativesSnapshot, error) {
	var snap models.DerivativesSnapshot
	var errs []error

	var premium []*futures.PremiumIndex
	if err := a.do(ctx, "premium_index", func(ctx context.Context) error {
		var err error
		premium, err = a.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		return err
	}); err != nil {
		errs = append(errs, err)
	} else if len(premium) > 0 {
		snap.FundingRate = parsePtr(premium[0].LastFundingRate)
	}

	var oi []*futures.OpenInterestStatistic
	if err := a.do(ctx, "open_interest_hist", func(ctx context.Context) error {
		var err error
		oi, err = a.client.NewOpenInterestStatisticsService().Symbol(symbol).Period("1h").Limit(2).Do(ctx)
		return err
	}); err != nil {
		errs = append(errs, err)
	} else {
		snap.OpenInterest, snap.OpenInterestChangePct = openInterestChange(oi)
	}

	if a.liq != nil {
		if l, ok := a.liq.Window(symbol, time.Now()); ok {
			snap.Liquidations = &l
		}
	}

	if snap.Empty() && len(errs) > 0 {
		return snap, fmt.Errorf("derivatives %s: %w", symbol, errors.Join(errs...))
	}
	return snap, nil
}

// depthLimit rounds up to a depth Binance accepts.
func depthLimit(n int) int {
	for _, l := range []int{5, 10, 20, 50, 100, 500, 1000} {
		if n <= l {
			return l
		}
	}
	return 1000
}
