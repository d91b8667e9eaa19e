package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"DeepResearch/internal/domain/models"
)

type recordedRequest struct {
	req ResearchRequest
}

type stubResearcher struct {
	mu    sync.Mutex
	calls []recordedRequest
	err   error
}

func (s *stubResearcher) RunResearch(_ context.Context, req ResearchRequest) (*models.ResearchResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, recordedRequest{req: req})
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &models.ResearchResult{Symbol: req.Symbol, Signal: models.SignalHold, Confidence: 50}, nil
}

type countingMetrics struct {
	mu        sync.Mutex
	errors    map[string]int
	published int
}

func newCountingMetrics() *countingMetrics { return &countingMetrics{errors: map[string]int{}} }

func (m *countingMetrics) RecordResearch(string, string, float64) {}
func (m *countingMetrics) RecordProviderCall(string, string, models.CallStatus, float64) {
}
func (m *countingMetrics) RecordConfidence(string, string, float64) {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *countingMetrics) RecordPublished(string, string) {
	m.mu.Lock()
	m.published++
	m.mu.Unlock()
}

func TestResearchRequestHandlerRunsPublicResearch(t *testing.T) {
	r := &stubResearcher{}
	h := NewResearchRequestHandler("research.requests", r, newCountingMetrics(), nil)

	if h.Topic() != "research.requests" {
		t.Fatalf("unexpected topic %q", h.Topic())
	}
	err := h.Handle(context.Background(), []byte(`{"requestId":"q1","symbol":"ethusdt","force":true,"userId":"u7"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("expected one research call, got %d", len(r.calls))
	}
	got := r.calls[0].req
	if got.Symbol != "ethusdt" || got.Timeframe != "1h" || !got.Force {
		t.Fatalf("request not forwarded as sent: %+v", got)
	}
	if !got.User.PublicOnly || got.User.UserID != "u7" {
		t.Fatalf("kafka requests must run on public data: %+v", got.User)
	}
}

func TestResearchRequestHandlerDropsBadPayloads(t *testing.T) {
	r := &stubResearcher{}
	m := newCountingMetrics()
	h := NewResearchRequestHandler("t", r, m, nil)

	if err := h.Handle(context.Background(), []byte(`{not json`)); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
	if err := h.Handle(context.Background(), []byte(`{"symbol":"BTCUSDT","timeframe":"2h"}`)); err != nil {
		t.Fatalf("invalid payload should be dropped, got %v", err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("research must not run for bad payloads")
	}
	if m.errors["request_unmarshal"] != 1 || m.errors["request_invalid"] != 1 {
		t.Fatalf("unexpected error counters %v", m.errors)
	}
}

func TestResearchRequestHandlerRetryPaths(t *testing.T) {
	insufficient := &models.ResearchError{Code: "ERR_INSUFFICIENT_DATA", Status: http.StatusUnprocessableEntity}
	h := NewResearchRequestHandler("t", &stubResearcher{err: insufficient}, nil, nil)
	if err := h.Handle(context.Background(), []byte(`{"symbol":"BTCUSDT"}`)); err != nil {
		t.Fatalf("insufficient data is final, got %v", err)
	}

	boom := errors.New("boom")
	h = NewResearchRequestHandler("t", &stubResearcher{err: boom}, nil, nil)
	if err := h.Handle(context.Background(), []byte(`{"symbol":"BTCUSDT"}`)); !errors.Is(err, boom) {
		t.Fatalf("unexpected failures go back to the consumer, got %v", err)
	}
}

type memStore struct {
	stored []*models.ResearchResult
	err    error
}

func (s *memStore) Init(context.Context) error { return nil }
func (s *memStore) Store(_ context.Context, r *models.ResearchResult) error {
	return s.StoreBatch(context.Background(), []*models.ResearchResult{r})
}
func (s *memStore) StoreBatch(_ context.Context, rs []*models.ResearchResult) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, rs...)
	return nil
}
func (s *memStore) Query(_ context.Context, symbol string, _, _ time.Time, limit int) ([]*models.ResearchResult, error) {
	var out []*models.ResearchResult
	for _, r := range s.stored {
		if r.Symbol == symbol && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func TestResultProcessorRoutesToStorage(t *testing.T) {
	store := &memStore{}
	m := newCountingMetrics()
	p := NewResultProcessor(nil, store, m, "clickhouse")

	batch := []*models.ResearchResult{{Symbol: "BTCUSDT"}, {Symbol: "ETHUSDT"}, {Symbol: "BTCUSDT"}}
	if err := p.ProcessBatch(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.published != 3 {
		t.Fatalf("expected 3 published, got %d", m.published)
	}
	rows, err := p.Recent(context.Background(), "BTCUSDT", time.Hour, 10)
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected 2 BTC rows, got %d (%v)", len(rows), err)
	}
}

func TestResultProcessorMisconfiguredBackend(t *testing.T) {
	m := newCountingMetrics()
	p := NewResultProcessor(nil, nil, m, "kafka")
	if err := p.ProcessBatch(context.Background(), []*models.ResearchResult{{Symbol: "X"}}); err == nil {
		t.Fatalf("expected error without a publisher")
	}
	if err := p.Process(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil result")
	}
	if _, err := p.Recent(context.Background(), "X", time.Hour, 1); err == nil {
		t.Fatalf("expected error without storage")
	}

	failing := NewResultProcessor(nil, &memStore{err: errors.New("down")}, m, "clickhouse")
	if err := failing.Process(context.Background(), &models.ResearchResult{Symbol: "X"}); err == nil {
		t.Fatalf("expected storage error")
	}
	if m.errors["result_process"] != 1 {
		t.Fatalf("expected one process error, got %v", m.errors)
	}
	if err := NewResultProcessor(nil, nil, m, "none").Process(context.Background(), &models.ResearchResult{}); err != nil {
		t.Fatalf("none backend must be a no-op, got %v", err)
	}
}
