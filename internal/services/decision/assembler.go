package decision

import (
	"fmt"
	"math"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/services/features"
	"DeepResearch/internal/services/mtf"
)

const (
	stopPct       = 0.02
	targetPct     = 0.03
	tradeSetupMin = 75.0
	normalMin     = 60.0

	autoTradeMinConfidence = 75.0
	autoTradeMinAligned    = 2
	autoTradeMaxSpreadPct  = 0.6
)

type Input struct {
	Signal      models.Signal
	Confidence  float64
	Close       float64
	Timeframes  []models.TimeframeBreakdown
	Derivatives models.DerivativesSummary
	Liquidity   *features.LiquidityResult
}

type Decision struct {
	Side       models.Side
	Mode       models.Mode
	Blurred    bool
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Exits      []float64
	AutoTrade  models.AutoTradeDecision
}

// SideFor maps a signal to a position side.
func SideFor(s models.Signal) models.Side {
	switch s {
	case models.SignalBuy:
		return models.SideLong
	case models.SignalSell:
		return models.SideShort
	default:
		return models.SideNeutral
	}
}

func biasFor(s models.Signal) models.Bias {
	switch s {
	case models.SignalBuy:
		return models.BiasBullish
	case models.SignalSell:
		return models.BiasBearish
	default:
		return models.BiasNeutral
	}
}

// ModeFor grades a confidence into a presentation mode.
func ModeFor(confidence float64) models.Mode {
	switch {
	case confidence >= tradeSetupMin:
		return models.ModeTradeSetup
	case confidence >= normalMin:
		return models.ModeNormal
	default:
		return models.ModeLow
	}
}

// Assemble derives price levels, mode and the auto-trade verdict.
func Assemble(in Input) Decision {
	d := Decision{
		Side:  SideFor(in.Signal),
		Mode:  ModeFor(in.Confidence),
		Entry: roundPrice(in.Close),
		Exits: []float64{},
	}

	if in.Close > 0 {
		switch d.Side {
		case models.SideLong:
			d.StopLoss = roundPrice(in.Close * (1 - stopPct))
			d.TakeProfit = roundPrice(in.Close * (1 + targetPct))
		case models.SideShort:
			d.StopLoss = roundPrice(in.Close * (1 + stopPct))
			d.TakeProfit = roundPrice(in.Close * (1 - targetPct))
		}
		if d.Side != models.SideNeutral {
			d.Exits = []float64{roundPrice((d.Entry + d.TakeProfit) / 2), d.TakeProfit}
		}
	}

	if d.Mode == models.ModeLow {
		d.Blurred = true
		d.StopLoss, d.TakeProfit = 0, 0
		d.Exits = []float64{}
	}

	d.AutoTrade = autoTrade(in)
	return d
}

func autoTrade(in Input) models.AutoTradeDecision {
	var reasons []string
	bias := biasFor(in.Signal)

	if bias == models.BiasNeutral {
		reasons = append(reasons, "signal is HOLD, there is no direction to trade")
	}
	if in.Confidence < autoTradeMinConfidence {
		reasons = append(reasons, fmt.Sprintf("confidence %.0f is below %.0f", in.Confidence, autoTradeMinConfidence))
	}
	if bias != models.BiasNeutral {
		if n := mtf.AlignedCount(in.Timeframes, bias); n < autoTradeMinAligned {
			reasons = append(reasons, fmt.Sprintf("%d timeframe(s) aligned with %s, need %d", n, bias, autoTradeMinAligned))
		}
	}
	switch {
	case !in.Derivatives.Available:
		reasons = append(reasons, "derivatives data unavailable")
	case bias != models.BiasNeutral && in.Derivatives.Bias != bias:
		reasons = append(reasons, fmt.Sprintf("derivatives bias %s does not confirm %s", in.Derivatives.Bias, bias))
	}
	switch {
	case in.Liquidity == nil:
		reasons = append(reasons, "orderbook liquidity unavailable")
	default:
		if in.Liquidity.Tier == models.LiquidityLow {
			reasons = append(reasons, "liquidity tier is LOW")
		}
		if in.Liquidity.SpreadPct > autoTradeMaxSpreadPct {
			reasons = append(reasons, fmt.Sprintf("spread %.2f%% exceeds %.1f%%", in.Liquidity.SpreadPct, autoTradeMaxSpreadPct))
		}
	}

	if reasons == nil {
		return models.AutoTradeDecision{Eligible: true, Reasons: []string{"all auto-trade conditions met"}}
	}
	return models.AutoTradeDecision{Eligible: false, Reasons: reasons}
}

// roundPrice keeps eight decimals, enough for any quoted crypto price.
func roundPrice(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
