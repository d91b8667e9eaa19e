package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	"DeepResearch/internal/service/ratelimit"
	"DeepResearch/internal/usecase"
	xhttp "DeepResearch/pkg/http"
	xlogger "DeepResearch/pkg/logger"
)

// HistoryReader reads stored research results.
type HistoryReader interface {
	Recent(ctx context.Context, symbol string, window time.Duration, limit int) ([]*models.ResearchResult, error)
}

// HealthProbe reports one dependency. A failing required probe turns the
// health endpoint into a 503.
type HealthProbe struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) (interface{}, error)
}

// ResearchEchoHandler serves the research API.
type ResearchEchoHandler struct {
	logger   *xlogger.Logger
	research usecase.Researcher
	candles  *usecase.CandlesUseCase
	history  HistoryReader
	rl       *ratelimit.Limiter
	probes   []HealthProbe
	started  time.Time
}

type HandlerOption func(*ResearchEchoHandler)

func WithHistory(h HistoryReader) HandlerOption {
	return func(r *ResearchEchoHandler) { r.history = h }
}

func WithRateLimiter(l *ratelimit.Limiter) HandlerOption {
	return func(r *ResearchEchoHandler) { r.rl = l }
}

func WithHealthProbes(p ...HealthProbe) HandlerOption {
	return func(r *ResearchEchoHandler) { r.probes = append(r.probes, p...) }
}

func NewResearchEchoHandler(logger *xlogger.Logger, research usecase.Researcher, candles *usecase.CandlesUseCase, opts ...HandlerOption) *ResearchEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &ResearchEchoHandler{logger: logger, research: research, candles: candles, started: time.Now()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ResearchEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/research", h.Research, h.rateLimit)
	g.GET("/research/history", h.History)
	g.GET("/candles", h.Candles, h.rateLimit)
	g.GET("/health", h.Health)
}

// Research runs (or serves from cache) one research request.
func (h *ResearchEchoHandler) Research(c echo.Context) error {
	req := &models.ResearchQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.research.RunResearch(c.Request().Context(), usecase.ResearchRequest{
		Symbol:    req.Symbol,
		Timeframe: req.TF,
		Force:     req.Force,
		User:      userFrom(c),
	})
	if err != nil {
		if re, ok := models.AsResearchError(err); ok {
			h.logger.Warn("research rejected",
				xlogger.String("symbol", re.Symbol),
				xlogger.String("code", re.Code),
				xlogger.String("correlation_id", re.CorrelationID))
			return xhttp.AppErrorResponse(c, researchAppError(re))
		}
		h.logger.Error("research usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("research failed").WithError(err))
	}
	if !res.Degraded && !res.TimedOut {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	}
	return xhttp.SuccessResponse(c, res)
}

// History lists stored results for a symbol.
func (h *ResearchEchoHandler) History(c echo.Context) error {
	if h.history == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("result history is not configured"))
	}
	req := &models.HistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.history.Recent(c.Request().Context(), strings.ToUpper(req.Symbol), time.Duration(req.Hours)*time.Hour, req.Limit)
	if err != nil {
		h.logger.Error("history query failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("history query failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Candles returns raw candles from the resolved source.
func (h *ResearchEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Limit:     req.Limit,
		User:      userFrom(c),
	})
	if err != nil {
		if errors.Is(err, usecase.ErrNoCandleSource) {
			return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError(err.Error()))
		}
		h.logger.Warn("candles usecase error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadGatewayError("candle source failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

type healthResponse struct {
	Status    string                 `json:"status"`
	UptimeSec int64                  `json:"uptimeSec"`
	Checks    map[string]healthCheck `json:"checks,omitempty"`
}

type healthCheck struct {
	OK     bool        `json:"ok"`
	Detail interface{} `json:"detail,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Health runs every probe with a short deadline.
func (h *ResearchEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", UptimeSec: int64(time.Since(h.started).Seconds())}
	if len(h.probes) > 0 {
		resp.Checks = make(map[string]healthCheck, len(h.probes))
	}
	failed := false
	for _, p := range h.probes {
		detail, err := p.Check(ctx)
		hc := healthCheck{OK: err == nil, Detail: detail}
		if err != nil {
			hc.Error = err.Error()
			if p.Required {
				failed = true
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
		resp.Checks[p.Name] = hc
	}
	if failed {
		resp.Status = "unavailable"
		return xhttp.ServiceUnavailableResponse(c, resp)
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *ResearchEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl == nil {
			return next(c)
		}
		key := xhttp.ClientKey(c)
		if !h.rl.Allow(key) {
			wait := h.rl.RetryAfter(key)
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limit exceeded").
				WithParam("retryAfterSec", int(wait.Seconds())+1))
		}
		return next(c)
	}
}

func researchAppError(re *models.ResearchError) *xhttp.AppError {
	status := re.Status
	if status == 0 {
		status = http.StatusUnprocessableEntity
	}
	return xhttp.NewAppError(re.Code, "symbol", re.Message, status).
		WithParam("symbol", re.Symbol).
		WithParam("timeframe", re.Timeframe).
		WithParam("correlationId", re.CorrelationID).
		WithError(re)
}

func userFrom(c echo.Context) models.UserContext {
	hdr := c.Request().Header
	return models.UserContext{
		UserID:    hdr.Get(xhttp.HeaderUserID),
		APIKey:    hdr.Get(xhttp.HeaderAPIKey),
		SecretKey: hdr.Get(xhttp.HeaderAPISecret),
	}
}
