package usecase

import (
	"context"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	"DeepResearch/pkg/logger"
)

// LiquidationSink accumulates forced orders for derivatives snapshots.
type LiquidationSink interface {
	Record(ev models.LiquidationEvent)
}

// LiquidationCollector pumps a liquidation stream into a sink and
// reconnects when the stream reports an error.
type LiquidationCollector struct {
	stream  domrepo.LiquidationStream
	sink    LiquidationSink
	metrics domrepo.Metrics
	log     *logger.Logger
	backoff time.Duration
}

func NewLiquidationCollector(stream domrepo.LiquidationStream, sink LiquidationSink, metrics domrepo.Metrics, log *logger.Logger, backoff time.Duration) *LiquidationCollector {
	if log == nil {
		log = logger.Nop()
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &LiquidationCollector{stream: stream, sink: sink, metrics: metrics, log: log, backoff: backoff}
}

func (c *LiquidationCollector) IsConnected() bool { return c.stream.IsConnected() }

func (c *LiquidationCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *LiquidationCollector) consume(ctx context.Context, evCh <-chan models.LiquidationEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			if c.metrics != nil {
				c.metrics.RecordError("liquidation_stream")
			}
			c.log.Warn("liquidation stream error, reconnecting", logger.Error(err))
			for ctx.Err() == nil {
				rerr := c.stream.Reconnect(ctx)
				if rerr == nil {
					break
				}
				c.log.Warn("liquidation reconnect failed", logger.Error(rerr))
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.backoff):
				}
			}
		case ev, ok := <-evCh:
			if !ok {
				return
			}
			c.sink.Record(ev)
		}
	}
}

func (c *LiquidationCollector) Shutdown(ctx context.Context) error { return c.stream.Close() }
