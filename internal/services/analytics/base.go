package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"DeepResearch/internal/service/metrics"
	xhttp "DeepResearch/pkg/http"
)

const defaultTimeout = 3 * time.Second

// HTTPServiceBase is the shared plumbing of the analytics sidecar clients.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPServiceBase builds a client for baseURL. A zero timeout falls back to 3s.
func NewHTTPServiceBase(baseURL string, timeout time.Duration) *HTTPServiceBase {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	metrics.Register()
	return &HTTPServiceBase{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// Configured reports whether a base URL was given.
func (b *HTTPServiceBase) Configured() bool { return b != nil && b.baseURL != "" }

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) (err error) {
	if !b.Configured() {
		return fmt.Errorf("analytics http client not initialized")
	}
	defer func(start time.Time) { metrics.ObserveAnalytics(path, start, err) }(time.Now())
	err = b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    b.baseURL + path,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// GetJSON issues a GET with optional query parameters and decodes JSON into dest.
func (b *HTTPServiceBase) GetJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) (err error) {
	if !b.Configured() {
		return fmt.Errorf("analytics http client not initialized")
	}
	defer func(start time.Time) { metrics.ObserveAnalytics(path, start, err) }(time.Now())
	err = b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return nil
}
