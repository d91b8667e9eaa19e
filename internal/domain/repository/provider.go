package repository

import (
	"context"

	"DeepResearch/internal/domain/models"
)

// Adapter is a market data source. What it can do is expressed by which of
// the capability interfaces below it also implements.
type Adapter interface {
	Name() string
}

type CandleSource interface {
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Candle, error)
}

type OrderbookSource interface {
	FetchOrderbook(ctx context.Context, symbol string, depth int) (models.OrderbookSnapshot, error)
}

type TickerSource interface {
	FetchTicker(ctx context.Context, symbol string) (models.Ticker, error)
}

// DerivativesCapable is implemented by venues with perpetual futures data.
type DerivativesCapable interface {
	FetchDerivativesSnapshot(ctx context.Context, symbol string) (models.DerivativesSnapshot, error)
}

// SentimentSource supplies an external sentiment score.
type SentimentSource interface {
	FetchSentiment(ctx context.Context, symbol string) (models.SentimentReading, error)
}

// AdapterResolver picks the adapter to use for a user. ok=false means no
// source is available, which callers treat as a normal state.
type AdapterResolver interface {
	Resolve(ctx context.Context, user models.UserContext) (adapter Adapter, ok bool)
}

// AdapterResolverFunc adapts a function to AdapterResolver.
type AdapterResolverFunc func(ctx context.Context, user models.UserContext) (Adapter, bool)

func (f AdapterResolverFunc) Resolve(ctx context.Context, user models.UserContext) (Adapter, bool) {
	return f(ctx, user)
}
