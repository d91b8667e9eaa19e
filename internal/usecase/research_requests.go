package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	pkgkafka "DeepResearch/pkg/kafka"
	"DeepResearch/pkg/logger"
)

// Researcher is the single entry point of the engine.
type Researcher interface {
	RunResearch(ctx context.Context, req ResearchRequest) (*models.ResearchResult, error)
}

var _ Researcher = (*ResearchUseCase)(nil)

var requestValidator = validator.New()

// ResearchRequestHandler runs research for requests consumed from Kafka.
// Results leave through the research use case's sink.
type ResearchRequestHandler struct {
	topic    string
	research Researcher
	metrics  domrepo.Metrics
	log      *logger.Logger
}

func NewResearchRequestHandler(topic string, research Researcher, metrics domrepo.Metrics, log *logger.Logger) *ResearchRequestHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ResearchRequestHandler{topic: topic, research: research, metrics: metrics, log: log}
}

func (h *ResearchRequestHandler) Topic() string { return h.topic }

// Handle decodes one request. Malformed payloads and insufficient data are
// not retried; anything else is returned for the consumer's retry path.
func (h *ResearchRequestHandler) Handle(ctx context.Context, b []byte) error {
	var m models.ResearchRequestMessage
	if err := defaults.Set(&m); err != nil {
		return fmt.Errorf("request defaults: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.recordError("request_unmarshal")
		h.log.Warn("dropping malformed research request", logger.Error(err))
		return nil
	}
	if err := requestValidator.Struct(&m); err != nil {
		h.recordError("request_invalid")
		h.log.Warn("dropping invalid research request", logger.String("symbol", m.Symbol), logger.Error(err))
		return nil
	}
	reqID := m.RequestID
	if reqID == "" {
		reqID = pkgkafka.TraceIDFrom(ctx)
	}

	res, err := h.research.RunResearch(ctx, ResearchRequest{
		Symbol:    m.Symbol,
		Timeframe: m.Timeframe,
		Force:     m.Force,
		User:      models.UserContext{UserID: m.UserID, PublicOnly: true},
	})
	if rerr, ok := models.AsResearchError(err); ok {
		h.log.Warn("research request rejected",
			logger.String("request_id", reqID), logger.String("symbol", m.Symbol),
			logger.String("code", rerr.Code), logger.String("correlation_id", rerr.CorrelationID))
		return nil
	}
	if err != nil {
		h.recordError("request_research")
		return err
	}
	h.log.Info("research request served",
		logger.String("request_id", reqID), logger.String("symbol", res.Symbol),
		logger.String("signal", string(res.Signal)), logger.Float64("confidence", res.Confidence))
	return nil
}

func (h *ResearchRequestHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

var _ pkgkafka.MessageHandler = (*ResearchRequestHandler)(nil)
