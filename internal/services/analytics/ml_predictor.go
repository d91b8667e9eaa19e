package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"DeepResearch/internal/domain/models"
	domsvc "DeepResearch/internal/domain/service"
)

// HTTPMLPredictor calls the model sidecar. It only reports an opinion; the
// fused score is never changed by it.
type HTTPMLPredictor struct{ base *HTTPServiceBase }

func NewHTTPMLPredictor(baseURL string, timeout time.Duration) *HTTPMLPredictor {
	return &HTTPMLPredictor{base: NewHTTPServiceBase(baseURL, timeout)}
}

type predictReq struct {
	Features     []float64 `json:"features"`
	FeatureNames []string  `json:"featureNames"`
}

type predictResp struct {
	Signal        string              `json:"signal"`
	Probability   float64             `json:"probability"`
	Confidence    int                 `json:"confidence"`
	AccuracyRange *string             `json:"accuracyRange"`
	Explanations  []string            `json:"explanations"`
	Probabilities map[string]*float64 `json:"probabilities"`
	Error         string              `json:"error"`
}

// Predict sends the feature vector with names sorted so the sidecar can reorder it.
func (p *HTTPMLPredictor) Predict(ctx context.Context, symbol string, features map[string]float64) (models.MLInsight, error) {
	var out models.MLInsight
	if len(features) == 0 {
		return out, fmt.Errorf("predict %s: empty feature vector", symbol)
	}
	req := predictReq{
		FeatureNames: make([]string, 0, len(features)),
		Features:     make([]float64, 0, len(features)),
	}
	for name := range features {
		req.FeatureNames = append(req.FeatureNames, name)
	}
	sort.Strings(req.FeatureNames)
	for _, name := range req.FeatureNames {
		v := features[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		req.Features = append(req.Features, v)
	}

	var resp predictResp
	if err := p.base.PostJSON(ctx, "/predict", req, &resp); err != nil {
		return out, fmt.Errorf("predict %s: %w", symbol, err)
	}
	if resp.Error != "" {
		return out, fmt.Errorf("predict %s: %s", symbol, resp.Error)
	}

	sig, err := parseSignal(resp.Signal)
	if err != nil {
		return out, fmt.Errorf("predict %s: %w", symbol, err)
	}
	out.Signal = sig
	out.Probability = resp.Probability
	out.Confidence = resp.Confidence
	if out.Confidence == 0 && resp.Probability > 0 {
		out.Confidence = int(resp.Probability * 100)
	}
	if resp.AccuracyRange != nil {
		out.AccuracyRange = *resp.AccuracyRange
	}
	out.Explanations = resp.Explanations
	for k, v := range resp.Probabilities {
		if v == nil {
			continue
		}
		if out.Probabilities == nil {
			out.Probabilities = make(map[string]float64, len(resp.Probabilities))
		}
		out.Probabilities[k] = *v
	}
	return out, nil
}

// MLHealth is the sidecar's own readiness report.
type MLHealth struct {
	Status       string `json:"status"`
	ModelsLoaded int    `json:"models_loaded"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

// Health queries GET /health.
func (p *HTTPMLPredictor) Health(ctx context.Context) (MLHealth, error) {
	var h MLHealth
	if err := p.base.GetJSON(ctx, "/health", nil, &h); err != nil {
		return h, err
	}
	return h, nil
}

func parseSignal(s string) (models.Signal, error) {
	switch models.Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case models.SignalBuy:
		return models.SignalBuy, nil
	case models.SignalSell:
		return models.SignalSell, nil
	case models.SignalHold:
		return models.SignalHold, nil
	}
	return "", fmt.Errorf("unknown signal %q", s)
}

var _ domsvc.MLPredictor = (*HTTPMLPredictor)(nil)
