package models

import "time"

type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

type Side string

const (
	SideLong    Side = "LONG"
	SideShort   Side = "SHORT"
	SideNeutral Side = "NEUTRAL"
)

type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
	BiasNeutral Bias = "NEUTRAL"
)

// Trend is the direction label produced by individual feature extractors.
type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
	TrendNeutral Trend = "Neutral"
	TrendStable  Trend = "Stable"
)

type Mode string

const (
	ModeTradeSetup Mode = "TRADE_SETUP"
	ModeNormal     Mode = "NORMAL"
	ModeLow        Mode = "LOW"
)

type LiquidityTier string

const (
	LiquidityHigh   LiquidityTier = "HIGH"
	LiquidityMedium LiquidityTier = "MEDIUM"
	LiquidityLow    LiquidityTier = "LOW"
)

type ConfluenceStatus string

const (
	ConfluenceAligned ConfluenceStatus = "ALIGNED"
	ConfluenceOpposed ConfluenceStatus = "OPPOSED"
	ConfluenceMixed   ConfluenceStatus = "MIXED"
	ConfluenceMissing ConfluenceStatus = "MISSING"
)

type CallStatus string

const (
	CallSuccess CallStatus = "SUCCESS"
	CallFailed  CallStatus = "FAILED"
	CallSkipped CallStatus = "SKIPPED"
)

// ConfidenceBreakdown holds per-category averages of available feature scores.
// A nil pointer means no feature in that category was available.
type ConfidenceBreakdown struct {
	Technicals     *float64 `json:"technicals"`
	OrderFlow      *float64 `json:"orderFlow"`
	Sentiment      *float64 `json:"sentiment"`
	Derivatives    *float64 `json:"derivatives"`
	Volatility     *float64 `json:"volatility"`
	Momentum       *float64 `json:"momentum"`
	Liquidity      *float64 `json:"liquidity"`
	Microstructure *float64 `json:"microstructure"`
}

type TimeframeMetadata struct {
	RSI           *float64 `json:"rsi,omitempty"`
	MACDHistogram *float64 `json:"macdHistogram,omitempty"`
	VolumeSignal  Trend    `json:"volumeSignal,omitempty"`
	ATR           *float64 `json:"atr,omitempty"`
	Momentum      *float64 `json:"momentum,omitempty"`
	RealizedVol   *float64 `json:"realizedVol,omitempty"` // annualized, percent
	Trend         Trend    `json:"trend,omitempty"`
	Candles       int      `json:"candles"`
}

type TimeframeBreakdown struct {
	Timeframe     string                 `json:"timeframe"`
	Role          string                 `json:"role"` // short, medium, long
	Available     bool                   `json:"available"`
	Bias          Bias                   `json:"bias"`
	FusedScore    float64                `json:"fusedScore"`
	ScorePercent  float64                `json:"scorePercent"`
	FeatureScores map[FeatureKey]float64 `json:"featureScores,omitempty"`
	Metadata      TimeframeMetadata      `json:"metadata"`
}

type ConfluenceEntry struct {
	Pair   string           `json:"pair"` // e.g. "5m/1h"
	Status ConfluenceStatus `json:"status"`
	Weight float64          `json:"weight"`
}

// ConfidenceAdjustment records one multi-timeframe rule that changed the confidence.
type ConfidenceAdjustment struct {
	Rule   string  `json:"rule"`
	Delta  float64 `json:"delta"`
	Detail string  `json:"detail"`
}

type Microstructure struct {
	SpreadPercent *float64      `json:"spreadPercent,omitempty"`
	Imbalance     *float64      `json:"imbalance,omitempty"`
	BidDepth      float64       `json:"bidDepth"`
	AskDepth      float64       `json:"askDepth"`
	Volume24h     float64       `json:"volume24h"`
	Change24hPct  float64       `json:"change24hPct"`
	Momentum      *float64      `json:"momentum,omitempty"`
	LiquidityTier LiquidityTier `json:"liquidityTier,omitempty"`
}

// DerivativeComponent is one independently thresholded derivatives input.
type DerivativeComponent struct {
	Available bool    `json:"available"`
	Value     float64 `json:"value"`
	Trend     Trend   `json:"trend"`
	Score     float64 `json:"score"` // 0..1
}

type DerivativesSummary struct {
	Available    bool                `json:"available"`
	Bias         Bias                `json:"bias"`
	NetScore     float64             `json:"netScore"` // signed, -1..1
	Funding      DerivativeComponent `json:"funding"`
	OpenInterest DerivativeComponent `json:"openInterest"`
	Liquidations DerivativeComponent `json:"liquidations"`
}

type AutoTradeDecision struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons"`
}

type APICallReportEntry struct {
	Seq        int        `json:"seq"`
	Name       string     `json:"name"`
	Status     CallStatus `json:"status"`
	DurationMs int64      `json:"durationMs"`
	Provider   string     `json:"provider,omitempty"`
	Message    string     `json:"message,omitempty"`
	IsFallback bool       `json:"isFallback"`
}

// MLInsight is the optional second opinion from the model service.
type MLInsight struct {
	Signal        Signal             `json:"signal"`
	Probability   float64            `json:"probability"`
	Confidence    int                `json:"confidence"`
	AccuracyRange string             `json:"accuracyRange,omitempty"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	Explanations  []string           `json:"explanations,omitempty"`
}

// ResearchResult is the single output of a research run. Treat it as read-only.
type ResearchResult struct {
	ID                 string                 `json:"id"`
	Symbol             string                 `json:"symbol"`
	Timeframe          string                 `json:"timeframe"`
	Signal             Signal                 `json:"signal"`
	Side               Side                   `json:"side"`
	Confidence         float64                `json:"confidence"`
	RawConfidence      float64                `json:"rawConfidence"`
	SmoothedConfidence float64                `json:"smoothedConfidence"`
	AccuracyRange      string                 `json:"accuracyRange"`
	FusedScore         float64                `json:"fusedScore"`
	Mode               Mode                   `json:"mode"`
	Blurred            bool                   `json:"blurred"`
	EntryPrice         float64                `json:"entryPrice"`
	StopLoss           float64                `json:"stopLoss"`
	TakeProfit         float64                `json:"takeProfit"`
	Exits              []float64              `json:"exits"`
	Microstructure     Microstructure         `json:"microstructure"`
	Features           FeatureScoreState      `json:"features"`
	Breakdown          ConfidenceBreakdown    `json:"confidenceBreakdown"`
	Timeframes         []TimeframeBreakdown   `json:"timeframes"`
	Confluence         []ConfluenceEntry      `json:"confluence"`
	Adjustments        []ConfidenceAdjustment `json:"adjustments,omitempty"`
	AutoTrade          AutoTradeDecision      `json:"autoTrade"`
	Derivatives        DerivativesSummary     `json:"derivatives"`
	Explanations       []string               `json:"explanations"`
	ML                 *MLInsight             `json:"ml,omitempty"`
	APICalls           []APICallReportEntry   `json:"apiCalls"`
	Adapter            string                 `json:"adapter,omitempty"`
	TimedOut           bool                   `json:"timedOut"`
	Degraded           bool                   `json:"degraded"`
	GeneratedAt        time.Time              `json:"generatedAt"`
	DurationMs         int64                  `json:"durationMs"`
}
