package repository

import (
	"strings"
	"testing"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
)

func TestCandleTableNames(t *testing.T) {
	s := &CHCandleSource{database: "finpull", prefix: "rt_candles"}
	got, err := s.tableFor(domrepo.TF4h)
	if err != nil || got != "finpull.rt_candles_4h" {
		t.Fatalf("table = %q err = %v", got, err)
	}
	if _, err := s.tableFor(domrepo.Timeframe("2h; DROP TABLE x")); err == nil {
		t.Fatal("unknown timeframe must be rejected")
	}
}

func TestReverse(t *testing.T) {
	cs := []models.Candle{{Close: 1}, {Close: 2}, {Close: 3}}
	reverse(cs)
	if cs[0].Close != 3 || cs[2].Close != 1 {
		t.Fatalf("reversed = %+v", cs)
	}
}

func TestResultRow(t *testing.T) {
	r := &models.ResearchResult{
		ID:          "abc",
		Symbol:      "BTCUSDT",
		Timeframe:   "1h",
		Signal:      models.SignalBuy,
		Confidence:  72,
		Mode:        models.ModeNormal,
		GeneratedAt: time.Unix(1700000000, 0).UTC(),
	}
	row, err := resultRow(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(row) != len(strings.Split(resultColumns, ",")) {
		t.Fatalf("row has %d values for %d columns", len(row), len(strings.Split(resultColumns, ",")))
	}
	if row[4] != "BUY" || !strings.Contains(row[9].(string), `"symbol":"BTCUSDT"`) {
		t.Fatalf("row = %v", row)
	}
}
