package binance

import (
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"DeepResearch/internal/domain/models"
)

func parse(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func parsePtr(s string) *float64 {
	if v, ok := parse(s); ok {
		return &v
	}
	return nil
}

// klinesToCandles drops rows with unparsable prices.
func klinesToCandles(ks []*futures.Kline) []models.Candle {
	out := make([]models.Candle, 0, len(ks))
	for _, k := range ks {
		if k == nil {
			continue
		}
		o, ok1 := parse(k.Open)
		h, ok2 := parse(k.High)
		l, ok3 := parse(k.Low)
		c, ok4 := parse(k.Close)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		v, _ := parse(k.Volume)
		out = append(out, models.Candle{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      o,
			High:      h,
			Low:       l,
			Close:     c,
			Volume:    v,
		})
	}
	return out
}

func depthToSnapshot(res *futures.DepthResponse) models.OrderbookSnapshot {
	var snap models.OrderbookSnapshot
	if res == nil {
		return snap
	}
	for _, b := range res.Bids {
		if p, ok := parse(b.Price); ok {
			q, _ := parse(b.Quantity)
			snap.Bids = append(snap.Bids, models.PriceLevel{Price: p, Quantity: q})
		}
	}
	for _, a := range res.Asks {
		if p, ok := parse(a.Price); ok {
			q, _ := parse(a.Quantity)
			snap.Asks = append(snap.Asks, models.PriceLevel{Price: p, Quantity: q})
		}
	}
	return snap
}

func statsToTicker(s *futures.PriceChangeStats) models.Ticker {
	last, _ := parse(s.LastPrice)
	vol, _ := parse(s.QuoteVolume)
	chg, _ := parse(s.PriceChangePercent)
	return models.Ticker{LastPrice: last, Volume24h: vol, PriceChangePercent24h: chg}
}

// openInterestChange takes the newest statistic as current open interest and
// compares it with the one before.
func openInterestChange(stats []*futures.OpenInterestStatistic) (*float64, *float64) {
	var vals []float64
	for _, s := range stats {
		if s == nil {
			continue
		}
		if v, ok := parse(s.SumOpenInterest); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil, nil
	}
	cur := vals[len(vals)-1]
	if len(vals) < 2 || vals[len(vals)-2] == 0 {
		return &cur, nil
	}
	prev := vals[len(vals)-2]
	chg := (cur - prev) / prev * 100
	return &cur, &chg
}
