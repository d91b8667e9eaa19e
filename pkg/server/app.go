package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "DeepResearch/internal/middleware"
	"DeepResearch/internal/usecase"
	"DeepResearch/pkg/config"
	xhttp "DeepResearch/pkg/http"
	pkgkafka "DeepResearch/pkg/kafka"
	applogger "DeepResearch/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	consumer   *pkgkafka.Consumer
	collector  *usecase.LiquidationCollector
	pipeline   *mid.ResultPipeline
}

type Option func(*App)

func WithHTTPServer(s *xhttp.Server) Option { return func(a *App) { a.httpServer = s } }

// WithConsumer enables research requests over Kafka.
func WithConsumer(c *pkgkafka.Consumer) Option { return func(a *App) { a.consumer = c } }

func WithLiquidationCollector(c *usecase.LiquidationCollector) Option {
	return func(a *App) { a.collector = c }
}

// WithResultPipeline enables asynchronous result delivery.
func WithResultPipeline(p *mid.ResultPipeline) Option { return func(a *App) { a.pipeline = p } }

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, opts ...Option) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and shuts down once ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.pipeline != nil {
		a.pipeline.Start(bg)
		a.log.Info("result pipeline started", applogger.String("backend", a.cfg.Sink.Backend))
	}

	if a.collector != nil {
		if err := a.collector.Start(bg); err != nil {
			// derivatives fall back to exchange data without liquidations
			a.log.Warn("liquidation stream unavailable", applogger.Error(err))
		} else {
			a.log.Info("liquidation stream started")
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start", applogger.Error(err))
			a.shutdown()
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.RequestTopic))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start", applogger.Error(err))
			a.shutdown()
			return err
		}
		a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

// shutdown stops intake first, then flushes queued results.
func (a *App) shutdown() {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop", applogger.Error(err))
		}
	}
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("liquidation stream stop", applogger.Error(err))
		}
	}
	if a.pipeline != nil {
		if err := a.pipeline.Stop(ctx); err != nil {
			a.log.Warn("result pipeline flush", applogger.Error(err), applogger.Int("pending", a.pipeline.Pending()))
		}
	}
	a.log.DetachDigest()
	a.log.Info("shutdown complete")
}
