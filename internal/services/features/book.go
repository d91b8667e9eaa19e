package features

import "DeepResearch/internal/domain/models"

// DefaultBookLevels is the number of levels per side used for depth measures.
const DefaultBookLevels = 20

func sideVolume(levels []models.PriceLevel, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	var v float64
	for _, l := range levels[:n] {
		v += l.Quantity
	}
	return v
}

// OrderbookImbalance returns (bidVol-askVol)/(bidVol+askVol) over the top
// levels. ok is false when a side is empty or there is no volume at all,
// which is different from a balanced book.
func OrderbookImbalance(ob models.OrderbookSnapshot, levels int) (float64, bool) {
	if levels <= 0 {
		levels = DefaultBookLevels
	}
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0, false
	}
	bid, ask := sideVolume(ob.Bids, levels), sideVolume(ob.Asks, levels)
	total := bid + ask
	if total <= 0 {
		return 0, false
	}
	return (bid - ask) / total, true
}

type LiquidityResult struct {
	SpreadPct float64              `json:"spreadPct"`
	BidDepth  float64              `json:"bidDepth"`
	AskDepth  float64              `json:"askDepth"`
	DepthSkew float64              `json:"depthSkew"` // (bid-ask)/(bid+ask) in quote terms
	Tier      models.LiquidityTier `json:"tier"`
	Downgrade bool                 `json:"downgrade"`
}

const (
	tierHighMaxSpread   = 0.05
	tierMediumMaxSpread = 0.2
	oneSidedDepthShare  = 0.9
)

// Liquidity measures spread in percent of mid and grades it into a tier.
// When more than 90% of visible depth sits on one side the tier drops a step.
func Liquidity(ob models.OrderbookSnapshot, levels int) (LiquidityResult, bool) {
	if levels <= 0 {
		levels = DefaultBookLevels
	}
	bid, ask, ok := ob.BestBidAsk()
	if !ok || bid <= 0 || ask <= bid {
		return LiquidityResult{}, false
	}
	mid := (bid + ask) / 2
	r := LiquidityResult{SpreadPct: (ask - bid) / mid * 100}
	r.BidDepth = quoteDepth(ob.Bids, levels)
	r.AskDepth = quoteDepth(ob.Asks, levels)
	total := r.BidDepth + r.AskDepth
	if total > 0 {
		r.DepthSkew = (r.BidDepth - r.AskDepth) / total
	}

	switch {
	case r.SpreadPct <= tierHighMaxSpread:
		r.Tier = models.LiquidityHigh
	case r.SpreadPct <= tierMediumMaxSpread:
		r.Tier = models.LiquidityMedium
	default:
		r.Tier = models.LiquidityLow
	}
	if total > 0 && (r.BidDepth/total > oneSidedDepthShare || r.AskDepth/total > oneSidedDepthShare) {
		r.Downgrade = true
		r.Tier = downgradeTier(r.Tier)
	}
	return r, true
}

func quoteDepth(levels []models.PriceLevel, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	var v float64
	for _, l := range levels[:n] {
		v += l.Price * l.Quantity
	}
	return v
}

func downgradeTier(t models.LiquidityTier) models.LiquidityTier {
	switch t {
	case models.LiquidityHigh:
		return models.LiquidityMedium
	default:
		return models.LiquidityLow
	}
}
