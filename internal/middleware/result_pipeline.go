package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	"DeepResearch/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	ProcessBatch(ctx context.Context, rs []*models.ResearchResult) error
}

// ResultPipeline sits between the research engine and the result sink.
// It validates, throttles per symbol and timeframe, and buffers results so
// a slow or unavailable backend never blocks a research request.
type ResultPipeline struct {
	proc        Proc
	metrics     domrepo.Metrics
	log         *logger.Logger
	minInterval time.Duration
	bufSize     int
	batchSize   int
	linger      time.Duration
	bufCh       chan *models.ResearchResult
	stopCh      chan struct{}
	doneCh      chan struct{}
	started     bool
	mu          sync.Mutex
	lastSeen    map[string]time.Time // per symbol:tf last accepted time
	now         func() time.Time
}

type PipelineOption func(*ResultPipeline)

// WithMinInterval drops results for a symbol and timeframe that arrive
// sooner than d after the last accepted one.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if d >= 0 {
			p.minInterval = d
		}
	}
}

// WithBufferSize sets how many results may wait for the backend.
func WithBufferSize(n int) PipelineOption {
	return func(p *ResultPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch sets the flush size and how long a partial batch may wait.
func WithBatch(size int, linger time.Duration) PipelineOption {
	return func(p *ResultPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if linger > 0 {
			p.linger = linger
		}
	}
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *ResultPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewResultPipeline creates a new pipeline.
func NewResultPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *ResultPipeline {
	p := &ResultPipeline{
		proc:        proc,
		metrics:     metrics,
		log:         logger.Nop(),
		minInterval: 5 * time.Second,
		bufSize:     256,
		batchSize:   50,
		linger:      200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		lastSeen:    make(map[string]time.Time),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.ResearchResult, p.bufSize)
	p.log = p.log.With(logger.String("component", "result_pipeline"))
	return p
}

// Start launches background flushing of buffered results.
func (p *ResultPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop stops accepting results and flushes what is buffered until ctx ends.
func (p *ResultPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)

	select {
	case <-p.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("result pipeline stop: %w", ctx.Err())
	}
}

// Submit enqueues r without blocking. It reports false when r was rejected,
// throttled or the buffer was full.
func (p *ResultPipeline) Submit(r *models.ResearchResult) bool {
	if err := validateResult(r); err != nil {
		p.recordError("pipeline_validate")
		p.log.Debug("result rejected", logger.Error(err))
		return false
	}
	if !p.allow(r.Symbol+":"+r.Timeframe, p.now()) {
		p.recordError("pipeline_throttle")
		return false
	}
	select {
	case p.bufCh <- r:
		return true
	default:
		p.recordError("pipeline_buffer_full")
		return false
	}
}

// Pending reports how many results wait in the buffer.
func (p *ResultPipeline) Pending() int { return len(p.bufCh) }

func (p *ResultPipeline) run(ctx context.Context) {
	defer close(p.doneCh)
	backoff := 50 * time.Millisecond
	batch := make([]*models.ResearchResult, 0, p.batchSize)
	timer := time.NewTimer(p.linger)
	defer timer.Stop()

	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := p.proc.ProcessBatch(fctx, batch); err != nil {
			p.recordError("pipeline_flush")
			p.log.Warn("result batch failed", logger.Int("size", len(batch)), logger.Error(err))
			// keep the batch for the next tick, with exponential backoff
			if over := len(batch) - p.bufSize; over > 0 {
				p.recordError("pipeline_buffer_drop")
				batch = append(batch[:0], batch[over:]...)
			}
			if backoff < 2*time.Second {
				backoff *= 2
			}
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
			}
			return
		}
		backoff = 50 * time.Millisecond
		batch = batch[:0]
	}

	for {
		select {
		case <-p.stopCh:
			p.drain(ctx, &batch)
			return
		case r := <-p.bufCh:
			batch = append(batch, r)
			if len(batch) >= p.batchSize {
				flush(ctx)
			}
		case <-timer.C:
			flush(ctx)
			timer.Reset(p.linger)
		}
	}
}

// drain flushes everything still buffered with one final attempt.
func (p *ResultPipeline) drain(ctx context.Context, batch *[]*models.ResearchResult) {
	for len(p.bufCh) > 0 {
		*batch = append(*batch, <-p.bufCh)
	}
	if len(*batch) == 0 {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.proc.ProcessBatch(fctx, *batch); err != nil {
		p.recordError("pipeline_buffer_drop")
		p.log.Error("dropping buffered results on shutdown", logger.Int("size", len(*batch)), logger.Error(err))
	}
}

func validateResult(r *models.ResearchResult) error {
	if r == nil {
		return fmt.Errorf("result nil")
	}
	if r.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if r.ID == "" {
		return fmt.Errorf("id empty")
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("confidence %v out of range", r.Confidence)
	}
	return nil
}

func (p *ResultPipeline) allow(key string, now time.Time) bool {
	if p.minInterval <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[key]
	if ok && now.Sub(last) < p.minInterval {
		return false
	}
	p.lastSeen[key] = now
	return true
}

func (p *ResultPipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
