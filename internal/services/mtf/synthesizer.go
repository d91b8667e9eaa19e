package mtf

import (
	"fmt"
	"math"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/services/features"
	"DeepResearch/internal/services/scoring"
)

const (
	RoleShort  = "short"
	RoleMedium = "medium"
	RoleLong   = "long"

	DefaultMinCandles = 40

	alignBonus        = 10.0
	contradictPenalty = 8.0
	dominanceScore    = 0.6
	nearZeroScore     = 0.1
	dominanceCap      = 55.0
)

// Frame is the candle series fetched for one configured timeframe.
// Fetched is false when the call fell back.
type Frame struct {
	Role      string
	Timeframe string
	Candles   []models.Candle
	Fetched   bool
}

// Primary is the already scored primary timeframe. Frames on the same
// timeframe reuse it instead of scoring (and smoothing) a second time.
type Primary struct {
	Timeframe  string
	Candles    []models.Candle
	Snapshot   features.Snapshot
	State      models.FeatureScoreState
	Fused      float64
	Confidence float64
}

// Analysis is the per-frame outcome. Readings are the secondary frame
// confidences still to be committed to memory.
type Analysis struct {
	Timeframes []models.TimeframeBreakdown
	Confluence []models.ConfluenceEntry
	Readings   []scoring.Confidence
}

// Synthesizer scores each timeframe from candles alone.
type Synthesizer struct {
	engine     *scoring.Engine
	minCandles int
}

func NewSynthesizer(engine *scoring.Engine, minCandles int) *Synthesizer {
	if minCandles <= 0 {
		minCandles = DefaultMinCandles
	}
	return &Synthesizer{engine: engine, minCandles: minCandles}
}

// Analyze builds a breakdown per frame and the pairwise confluence matrix.
func (s *Synthesizer) Analyze(symbol string, frames []Frame, primary *Primary) Analysis {
	out := Analysis{Timeframes: make([]models.TimeframeBreakdown, 0, len(frames))}
	for _, f := range frames {
		tb, reading := s.breakdown(symbol, f, primary)
		out.Timeframes = append(out.Timeframes, tb)
		if reading != nil {
			out.Readings = append(out.Readings, *reading)
		}
	}
	out.Confluence = Confluence(out.Timeframes)
	return out
}

func (s *Synthesizer) breakdown(symbol string, f Frame, primary *Primary) (models.TimeframeBreakdown, *scoring.Confidence) {
	tb := models.TimeframeBreakdown{
		Timeframe:    f.Timeframe,
		Role:         f.Role,
		Bias:         models.BiasNeutral,
		ScorePercent: scoring.NeutralConfidence,
	}

	if primary != nil && f.Timeframe == primary.Timeframe {
		tb.Available = len(primary.Candles) >= s.minCandles
		if !tb.Available {
			return tb, nil
		}
		tb.FusedScore = round2(primary.Fused)
		tb.Bias = scoring.BiasFor(primary.Fused)
		tb.ScorePercent = primary.Confidence
		tb.FeatureScores = availableScores(primary.State)
		tb.Metadata = metadata(primary.Snapshot, len(primary.Candles))
		return tb, nil
	}

	tb.Metadata.Candles = len(f.Candles)
	if !f.Fetched || len(f.Candles) < s.minCandles {
		return tb, nil
	}

	snap := features.ExtractCandles(f.Candles, f.Timeframe)
	st := scoring.Score(snap)
	fused := scoring.Fuse(st)

	tb.Available = true
	tb.FusedScore = round2(fused)
	tb.Bias = scoring.BiasFor(fused)
	reading := s.engine.Score(symbol, f.Timeframe, fused)
	tb.ScorePercent = reading.Smoothed
	tb.FeatureScores = availableScores(st)
	tb.Metadata = metadata(snap, len(f.Candles))
	return tb, &reading
}

func availableScores(st models.FeatureScoreState) map[models.FeatureKey]float64 {
	out := make(map[models.FeatureKey]float64)
	for k, ok := range st.Available {
		if ok {
			out[k] = round2(st.Scores[k])
		}
	}
	return out
}

func metadata(snap features.Snapshot, n int) models.TimeframeMetadata {
	md := models.TimeframeMetadata{Candles: n, VolumeSignal: models.TrendStable, Trend: models.TrendNeutral}
	if snap.RSI != nil {
		md.RSI = f64(round2(*snap.RSI))
	}
	if snap.MACD != nil {
		md.MACDHistogram = f64(snap.MACD.Histogram)
	}
	if snap.Volume != nil {
		md.VolumeSignal = snap.Volume.Signal
	}
	if snap.ATR != nil {
		md.ATR = f64(snap.ATR.ATR)
	}
	if snap.Momentum != nil {
		md.Momentum = f64(round2(*snap.Momentum))
	}
	if snap.RealizedVol != nil {
		md.RealizedVol = f64(round2(*snap.RealizedVol))
	}
	if snap.Trend != nil {
		md.Trend = snap.Trend.Direction
	}
	return md
}

// Confluence compares every pair of timeframes in order.
func Confluence(tfs []models.TimeframeBreakdown) []models.ConfluenceEntry {
	var out []models.ConfluenceEntry
	for i := 0; i < len(tfs); i++ {
		for j := i + 1; j < len(tfs); j++ {
			a, b := tfs[i], tfs[j]
			e := models.ConfluenceEntry{Pair: a.Timeframe + "/" + b.Timeframe}
			switch {
			case !a.Available || !b.Available:
				e.Status = models.ConfluenceMissing
			case a.Bias == models.BiasNeutral || b.Bias == models.BiasNeutral:
				e.Status = models.ConfluenceMixed
			case a.Bias == b.Bias:
				e.Status = models.ConfluenceAligned
			default:
				e.Status = models.ConfluenceOpposed
			}
			if e.Status != models.ConfluenceMissing {
				e.Weight = round2(math.Abs(a.FusedScore) * math.Abs(b.FusedScore))
			}
			out = append(out, e)
		}
	}
	return out
}

func byRole(tfs []models.TimeframeBreakdown, role string) (models.TimeframeBreakdown, bool) {
	for _, t := range tfs {
		if t.Role == role {
			return t, true
		}
	}
	return models.TimeframeBreakdown{}, false
}

func opposite(a, b models.Bias) bool {
	return (a == models.BiasBullish && b == models.BiasBearish) ||
		(a == models.BiasBearish && b == models.BiasBullish)
}

// Adjust applies the cross-timeframe rules to a confidence and clamps the
// result to [35,95].
func Adjust(confidence float64, tfs []models.TimeframeBreakdown) (float64, []models.ConfidenceAdjustment) {
	var adj []models.ConfidenceAdjustment
	short, okS := byRole(tfs, RoleShort)
	medium, okM := byRole(tfs, RoleMedium)
	long, okL := byRole(tfs, RoleLong)
	okS = okS && short.Available
	okM = okM && medium.Available
	okL = okL && long.Available

	if okS && okM && okL && short.Bias != models.BiasNeutral &&
		short.Bias == medium.Bias && medium.Bias == long.Bias {
		confidence += alignBonus
		adj = append(adj, models.ConfidenceAdjustment{
			Rule: "all_aligned", Delta: alignBonus,
			Detail: fmt.Sprintf("%s, %s and %s all %s", short.Timeframe, medium.Timeframe, long.Timeframe, long.Bias),
		})
	}

	if okL && long.Bias != models.BiasNeutral {
		var against []string
		if okS && opposite(short.Bias, long.Bias) {
			against = append(against, short.Timeframe)
		}
		if okM && opposite(medium.Bias, long.Bias) {
			against = append(against, medium.Timeframe)
		}
		if len(against) > 0 {
			confidence -= contradictPenalty
			adj = append(adj, models.ConfidenceAdjustment{
				Rule: "long_contradicted", Delta: -contradictPenalty,
				Detail: fmt.Sprintf("%s %s contradicted by %v", long.Timeframe, long.Bias, against),
			})
		}
	}

	if okS && okM && okL && math.Abs(short.FusedScore) >= dominanceScore &&
		math.Abs(medium.FusedScore) < nearZeroScore && math.Abs(long.FusedScore) < nearZeroScore &&
		confidence > dominanceCap {
		adj = append(adj, models.ConfidenceAdjustment{
			Rule: "short_dominance", Delta: round2(dominanceCap - confidence),
			Detail: fmt.Sprintf("%s move not confirmed by higher timeframes", short.Timeframe),
		})
		confidence = dominanceCap
	}

	return round2(scoring.ClampConfidence(confidence)), adj
}

// AlignedCount counts available timeframes whose bias equals b.
func AlignedCount(tfs []models.TimeframeBreakdown, b models.Bias) int {
	n := 0
	for _, t := range tfs {
		if t.Available && t.Bias == b && b != models.BiasNeutral {
			n++
		}
	}
	return n
}

func f64(v float64) *float64 { return &v }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
