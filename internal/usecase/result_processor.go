package usecase

import (
	"context"
	"fmt"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
)

// ResultProcessor routes finished results to the configured backend.
type ResultProcessor struct {
	pub     domrepo.ResultPublisher
	store   domrepo.ResultStorage
	metrics domrepo.Metrics
	backend string
}

func NewResultProcessor(pub domrepo.ResultPublisher, store domrepo.ResultStorage, metrics domrepo.Metrics, backend string) *ResultProcessor {
	return &ResultProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Backend names the sink results are routed to.
func (p *ResultProcessor) Backend() string { return p.backend }

// Process delivers one result.
func (p *ResultProcessor) Process(ctx context.Context, r *models.ResearchResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}

	var err error
	switch p.backend {
	case "kafka":
		if p.pub == nil {
			return fmt.Errorf("kafka backend selected without a publisher")
		}
		err = p.pub.Publish(ctx, r)
	case "clickhouse":
		if p.store == nil {
			return fmt.Errorf("clickhouse backend selected without storage")
		}
		err = p.store.Store(ctx, r)
	case "none", "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.recordError("result_process")
		return fmt.Errorf("process result: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordPublished(p.backend, r.Symbol)
	}
	return nil
}

// ProcessBatch delivers several results in one write.
func (p *ResultProcessor) ProcessBatch(ctx context.Context, rs []*models.ResearchResult) error {
	if len(rs) == 0 {
		return nil
	}
	var err error
	switch p.backend {
	case "kafka":
		if p.pub == nil {
			return fmt.Errorf("kafka backend selected without a publisher")
		}
		err = p.pub.PublishBatch(ctx, rs)
	case "clickhouse":
		if p.store == nil {
			return fmt.Errorf("clickhouse backend selected without storage")
		}
		err = p.store.StoreBatch(ctx, rs)
	case "none", "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.recordError("result_process_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	if p.metrics != nil {
		for _, r := range rs {
			p.metrics.RecordPublished(p.backend, r.Symbol)
		}
	}
	return nil
}

// Recent reads stored results back when the clickhouse backend is active.
func (p *ResultProcessor) Recent(ctx context.Context, symbol string, window time.Duration, limit int) ([]*models.ResearchResult, error) {
	if p.store == nil {
		return nil, fmt.Errorf("result storage not configured")
	}
	to := time.Now()
	return p.store.Query(ctx, symbol, to.Add(-window), to, limit)
}

func (p *ResultProcessor) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
