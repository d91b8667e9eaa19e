package binance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"DeepResearch/internal/domain/models"
)

func TestKlinesToCandlesSkipsBadRows(t *testing.T) {
	ks := []*futures.Kline{
		{OpenTime: 1700000000000, Open: "100", High: "101", Low: "99", Close: "100.5", Volume: "12"},
		{OpenTime: 1700003600000, Open: "x", High: "101", Low: "99", Close: "100.5", Volume: "12"},
		nil,
	}
	cs := klinesToCandles(ks)
	if len(cs) != 1 {
		t.Fatalf("candles = %d, want 1", len(cs))
	}
	if cs[0].Close != 100.5 || cs[0].Volume != 12 || !cs[0].Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("candle = %+v", cs[0])
	}
}

func TestOpenInterestChange(t *testing.T) {
	cur, chg := openInterestChange([]*futures.OpenInterestStatistic{
		{SumOpenInterest: "1000"},
		{SumOpenInterest: "1100"},
	})
	if cur == nil || *cur != 1100 {
		t.Fatalf("current = %v", cur)
	}
	if chg == nil || *chg < 9.99 || *chg > 10.01 {
		t.Fatalf("change = %v", chg)
	}

	cur, chg = openInterestChange([]*futures.OpenInterestStatistic{{SumOpenInterest: "5"}})
	if cur == nil || chg != nil {
		t.Fatalf("single point: cur=%v chg=%v", cur, chg)
	}
}

func TestDepthLimit(t *testing.T) {
	cases := map[int]int{1: 5, 20: 20, 21: 50, 2000: 1000}
	for in, want := range cases {
		if got := depthLimit(in); got != want {
			t.Fatalf("depthLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestParseForceOrder(t *testing.T) {
	raw := []byte(`{"e":"forceOrder","E":1700000000100,"o":{"s":"BTCUSDT","S":"SELL","o":"LIMIT","q":"0.5","p":"35000","ap":"35010","X":"FILLED","T":1700000000000}}`)
	ev, ok := parseForceOrder(raw)
	if !ok {
		t.Fatal("expected event")
	}
	if ev.Symbol != "BTCUSDT" || ev.Side != "SELL" || ev.Price != 35010 || ev.Quantity != 0.5 {
		t.Fatalf("event = %+v", ev)
	}
	if _, ok := parseForceOrder([]byte(`{"result":null}`)); ok {
		t.Fatal("non order frame should be ignored")
	}
}

func TestLiquidationWindow(t *testing.T) {
	m := NewLiquidationMonitor(time.Hour)
	now := time.Unix(1700000000, 0)

	if _, ok := m.Window("BTCUSDT", now); ok {
		t.Fatal("idle monitor should report no data")
	}

	m.Record(models.LiquidationEvent{Symbol: "btcusdt", Side: "SELL", Price: 100, Quantity: 2, Time: now.Add(-2 * time.Hour)})
	m.Record(models.LiquidationEvent{Symbol: "BTCUSDT", Side: "SELL", Price: 100, Quantity: 3, Time: now.Add(-10 * time.Minute)})
	m.Record(models.LiquidationEvent{Symbol: "BTCUSDT", Side: "BUY", Price: 100, Quantity: 1, Time: now.Add(-5 * time.Minute)})

	l, ok := m.Window("BTCUSDT", now)
	if !ok {
		t.Fatal("expected data")
	}
	if l.LongUSD != 300 || l.ShortUSD != 100 {
		t.Fatalf("window = %+v", l)
	}

	l, ok = m.Window("ETHUSDT", now)
	if !ok || l.LongUSD != 0 || l.ShortUSD != 0 {
		t.Fatalf("quiet symbol = %+v ok=%v", l, ok)
	}
}

func TestDerivativesErrorKeepsCauses(t *testing.T) {
	a := NewAdapter(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, err := a.FetchDerivativesSnapshot(ctx, "BTCUSDT")
	if err == nil {
		t.Fatalf("expected error, got snapshot %+v", snap)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cause lost in %v", err)
	}
}
