package features

import (
	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
)

const (
	RSIPeriod      = 14
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	TrendFast      = 20
	TrendSlow      = 50
	ATRPeriod      = 14
	MomentumPeriod = 10
	RealizedWindow = 20
)

// Inputs is everything fetched for one symbol. Nil pointers mean the fetch
// failed or the source was not available.
type Inputs struct {
	Timeframe   string
	Candles     []models.Candle
	Orderbook   *models.OrderbookSnapshot
	Ticker      *models.Ticker
	Derivatives *models.DerivativesSnapshot
	Sentiment   *models.SentimentReading
	BookLevels  int
}

// Snapshot holds raw extractor outputs. A nil field was not computable.
type Snapshot struct {
	Close       float64
	RSI         *float64
	MACD        *MACDResult
	Trend       *TrendResult
	ATR         *ATRResult
	Volume      *VolumeResult
	Momentum    *float64
	RealizedVol *float64
	Imbalance   *float64
	Liquidity   *LiquidityResult
	Sentiment   *SentimentResult
	Derivatives models.DerivativesSummary
}

// Extract runs every extractor whose input is present.
func Extract(in Inputs) Snapshot {
	s := ExtractCandles(in.Candles, in.Timeframe)
	if in.Orderbook != nil {
		if v, ok := OrderbookImbalance(*in.Orderbook, in.BookLevels); ok {
			s.Imbalance = &v
		}
		if v, ok := Liquidity(*in.Orderbook, in.BookLevels); ok {
			s.Liquidity = &v
		}
	}
	if in.Sentiment != nil {
		if v, ok := Sentiment(*in.Sentiment); ok {
			s.Sentiment = &v
		}
	}
	s.Derivatives = models.DerivativesSummary{Bias: models.BiasNeutral}
	if in.Derivatives != nil {
		s.Derivatives = Derivatives(*in.Derivatives)
	}
	return s
}

// ExtractCandles runs only the candle based extractors.
func ExtractCandles(candles []models.Candle, tf string) Snapshot {
	var s Snapshot
	s.Derivatives = models.DerivativesSummary{Bias: models.BiasNeutral}
	if len(candles) == 0 {
		return s
	}
	closes := models.Closes(candles)
	s.Close = closes[len(closes)-1]

	if v, ok := RSI(closes, RSIPeriod); ok {
		s.RSI = &v
	}
	if v, ok := MACD(closes, MACDFast, MACDSlow, MACDSignal); ok {
		s.MACD = &v
	}
	if v, ok := EMATrend(closes, TrendFast, TrendSlow); ok {
		s.Trend = &v
	}
	if v, ok := ATR(candles, ATRPeriod); ok {
		s.ATR = &v
	}
	if v, ok := VolumeTrend(candles); ok {
		s.Volume = &v
	}
	if v, ok := Momentum(closes, MomentumPeriod); ok {
		s.Momentum = &v
	}
	if v, ok := RealizedVol(closes, RealizedWindow, domrepo.NormalizeTimeframe(tf).Duration()); ok {
		s.RealizedVol = &v
	}
	return s
}
