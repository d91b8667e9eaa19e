package repository

import (
	"context"
	"time"

	"DeepResearch/internal/domain/models"
)

// LiquidationStream delivers forced orders from an exchange websocket.
type LiquidationStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.LiquidationEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ResultPublisher ships finished research results to a downstream bus.
type ResultPublisher interface {
	Publish(ctx context.Context, r *models.ResearchResult) error
	PublishBatch(ctx context.Context, rs []*models.ResearchResult) error
	Close() error
}

// ResultStorage persists research results for later querying.
type ResultStorage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, r *models.ResearchResult) error
	StoreBatch(ctx context.Context, rs []*models.ResearchResult) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.ResearchResult, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordResearch(symbol string, outcome string, seconds float64)
	RecordProviderCall(provider, call string, status models.CallStatus, seconds float64)
	RecordConfidence(symbol, tf string, confidence float64)
	RecordError(kind string)
	RecordPublished(backend, symbol string)
}
