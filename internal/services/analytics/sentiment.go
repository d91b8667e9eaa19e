package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
)

// HTTPSentimentSource reads a per-symbol score from GET /sentiment?symbol=.
type HTTPSentimentSource struct{ base *HTTPServiceBase }

func NewHTTPSentimentSource(baseURL string, timeout time.Duration) *HTTPSentimentSource {
	return &HTTPSentimentSource{base: NewHTTPServiceBase(baseURL, timeout)}
}

type sentimentResp struct {
	Score  *float64 `json:"score"`
	Scale  string   `json:"scale"`
	Source string   `json:"source"`
}

func (s *HTTPSentimentSource) FetchSentiment(ctx context.Context, symbol string) (models.SentimentReading, error) {
	var r sentimentResp
	err := s.base.GetJSON(ctx, "/sentiment", map[string][]string{"symbol": {symbol}}, &r)
	if err != nil {
		return models.SentimentReading{}, fmt.Errorf("sentiment %s: %w", symbol, err)
	}
	if r.Score == nil {
		return models.SentimentReading{}, fmt.Errorf("sentiment %s: no score", symbol)
	}
	scale := strings.ToLower(r.Scale)
	switch scale {
	case "signed", "unit":
	case "":
		// without a scale only a negative score is unambiguous
		scale = "unit"
		if *r.Score < 0 {
			scale = "signed"
		}
	default:
		return models.SentimentReading{}, fmt.Errorf("sentiment %s: unknown scale %q", symbol, r.Scale)
	}
	src := r.Source
	if src == "" {
		src = "sentiment-service"
	}
	return models.SentimentReading{Score: *r.Score, Scale: scale, Source: src}, nil
}

var _ domrepo.SentimentSource = (*HTTPSentimentSource)(nil)
