package models

import "time"

// Candle is one OHLCV bar. Series are ordered ascending by Timestamp.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderbookSnapshot holds bids sorted descending and asks sorted ascending by price.
type OrderbookSnapshot struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// BestBidAsk returns the top of book; ok is false when either side is empty.
func (o OrderbookSnapshot) BestBidAsk() (bid, ask float64, ok bool) {
	if len(o.Bids) == 0 || len(o.Asks) == 0 {
		return 0, 0, false
	}
	return o.Bids[0].Price, o.Asks[0].Price, true
}

type Ticker struct {
	LastPrice             float64 `json:"lastPrice"`
	Volume24h             float64 `json:"volume24h"`
	PriceChangePercent24h float64 `json:"priceChangePercent24h"`
}

type Liquidations struct {
	LongUSD  float64 `json:"longUsd"`
	ShortUSD float64 `json:"shortUsd"`
}

// DerivativesSnapshot fields are nil when the venue did not report them.
type DerivativesSnapshot struct {
	FundingRate           *float64      `json:"fundingRate,omitempty"`
	OpenInterest          *float64      `json:"openInterest,omitempty"`
	OpenInterestChangePct *float64      `json:"openInterestChangePct,omitempty"`
	Liquidations          *Liquidations `json:"liquidations,omitempty"`
}

// Empty reports whether no field is populated.
func (d DerivativesSnapshot) Empty() bool {
	return d.FundingRate == nil && d.OpenInterest == nil &&
		d.OpenInterestChangePct == nil && d.Liquidations == nil
}

// LiquidationEvent is one forced order from the exchange stream.
type LiquidationEvent struct {
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"` // SELL closes a long, BUY closes a short
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Time     time.Time `json:"time"`
}

// SentimentReading is an external sentiment score on either a [-1,1] or [0,1] scale.
type SentimentReading struct {
	Score  float64 `json:"score"`
	Scale  string  `json:"scale"` // "signed" or "unit"
	Source string  `json:"source,omitempty"`
}

// UserContext identifies the caller for adapter resolution.
type UserContext struct {
	UserID     string `json:"userId,omitempty"`
	Exchange   string `json:"exchange,omitempty"`
	APIKey     string `json:"-"`
	SecretKey  string `json:"-"`
	PublicOnly bool   `json:"publicOnly,omitempty"`
}
