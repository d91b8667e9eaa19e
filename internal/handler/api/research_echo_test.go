package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/service/ratelimit"
	"DeepResearch/internal/usecase"
	xhttp "DeepResearch/pkg/http"
)

type fakeResearcher struct {
	last usecase.ResearchRequest
	res  *models.ResearchResult
	err  error
}

func (f *fakeResearcher) RunResearch(_ context.Context, req usecase.ResearchRequest) (*models.ResearchResult, error) {
	f.last = req
	return f.res, f.err
}

func serve(h *ResearchEchoHandler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestResearchPassesQueryAndUser(t *testing.T) {
	f := &fakeResearcher{res: &models.ResearchResult{ID: "r1", Symbol: "BTCUSDT", Signal: models.SignalHold}}
	h := NewResearchEchoHandler(nil, f, nil)

	rec := serve(h, "/api/research?symbol=btcusdt&tf=4h&force=true", map[string]string{
		xhttp.HeaderUserID: "u1", xhttp.HeaderAPIKey: "k", xhttp.HeaderAPISecret: "s",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if f.last.Symbol != "btcusdt" || f.last.Timeframe != "4h" || !f.last.Force {
		t.Fatalf("unexpected request %+v", f.last)
	}
	if f.last.User.UserID != "u1" || f.last.User.APIKey != "k" {
		t.Fatalf("user context not forwarded: %+v", f.last.User)
	}
	var body xhttp.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusOK {
		t.Fatalf("envelope status = %d", body.Status)
	}
}

func TestResearchValidation(t *testing.T) {
	h := NewResearchEchoHandler(nil, &fakeResearcher{}, nil)
	for _, target := range []string{"/api/research", "/api/research?symbol=BTCUSDT&tf=2h", "/api/research?symbol=BTC-USDT"} {
		if rec := serve(h, target, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestInsufficientDataIs422(t *testing.T) {
	f := &fakeResearcher{err: models.NewInsufficientDataError("c1", "BTCUSDT", "1h", 10, 50)}
	rec := serve(NewResearchEchoHandler(nil, f, nil), "/api/research?symbol=BTCUSDT", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUnexpectedErrorIs500(t *testing.T) {
	f := &fakeResearcher{err: errors.New("boom")}
	rec := serve(NewResearchEchoHandler(nil, f, nil), "/api/research?symbol=BTCUSDT", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	f := &fakeResearcher{res: &models.ResearchResult{ID: "r1"}}
	h := NewResearchEchoHandler(nil, f, nil, WithRateLimiter(ratelimit.New(1, 1, 16)))
	e := echo.New()
	h.RegisterRoutes(e)

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/research?symbol=BTCUSDT", nil)
		req.Header.Set(xhttp.HeaderUserID, user)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}
	if do("a") != http.StatusOK {
		t.Fatalf("first request should pass")
	}
	if code := do("a"); code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", code)
	}
	if do("b") != http.StatusOK {
		t.Fatalf("other client should not be limited")
	}
}

func TestHealthProbes(t *testing.T) {
	ok := HealthProbe{Name: "resolver", Required: true, Check: func(context.Context) (interface{}, error) { return []string{"binance"}, nil }}
	optional := HealthProbe{Name: "ml", Check: func(context.Context) (interface{}, error) { return nil, errors.New("down") }}

	rec := serve(NewResearchEchoHandler(nil, &fakeResearcher{}, nil, WithHealthProbes(ok, optional)), "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("optional failure should not fail health: %d", rec.Code)
	}
	var body struct {
		Data healthResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Status != "degraded" || body.Data.Checks["ml"].OK {
		t.Fatalf("unexpected health %+v", body.Data)
	}

	required := HealthProbe{Name: "store", Required: true, Check: func(context.Context) (interface{}, error) { return nil, errors.New("down") }}
	rec = serve(NewResearchEchoHandler(nil, &fakeResearcher{}, nil, WithHealthProbes(required)), "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("required failure status = %d", rec.Code)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	rec := serve(NewResearchEchoHandler(nil, &fakeResearcher{}, nil), "/api/research/history?symbol=BTCUSDT", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
