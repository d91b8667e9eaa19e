package scoring

import "math"

// DefaultClamp bounds normalized scores when no clamp is given.
const DefaultClamp = 2.0

// NormalizeOptions selects between centre/scale and min/max normalization.
// Scale wins when both are set.
type NormalizeOptions struct {
	Center float64
	Scale  float64
	Min    float64
	Max    float64
	Clamp  float64
}

// Normalize maps a raw feature value onto a symmetric bounded scale:
// (v-center)/scale when Scale is set, otherwise a linear rescale of
// [Min,Max] onto [-1,1]. The result is clamped to ±Clamp.
func Normalize(v float64, o NormalizeOptions) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	c := o.Clamp
	if c <= 0 {
		c = DefaultClamp
	}
	var out float64
	switch {
	case o.Scale != 0:
		out = (v - o.Center) / o.Scale
	case o.Max > o.Min:
		out = 2*(v-o.Min)/(o.Max-o.Min) - 1
	default:
		out = v - o.Center
	}
	return clamp(out, -c, c)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
