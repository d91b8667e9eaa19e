package scoring

import (
	"fmt"
	"math"
	"sort"

	"DeepResearch/internal/domain/models"
)

// Contribution is a feature's share of the fused score.
type Contribution struct {
	Feature models.FeatureKey
	Score   float64
	Value   float64 // weight*score / total weight
}

// Contributions ranks available features by absolute share of the fused score.
func Contributions(s models.FeatureScoreState) []Contribution {
	var den float64
	for _, k := range models.AllFeatures {
		if s.Available[k] {
			den += Weights[k]
		}
	}
	if den == 0 {
		return nil
	}
	out := make([]Contribution, 0, len(s.Available))
	for _, k := range models.AllFeatures {
		if !s.Available[k] {
			continue
		}
		sc := clamp(s.Scores[k], -DefaultClamp, DefaultClamp)
		out = append(out, Contribution{Feature: k, Score: sc, Value: Weights[k] * sc / den})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Value), math.Abs(out[j].Value)
		if ai != aj {
			return ai > aj
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// Explain renders the strongest contributions as readable lines.
func Explain(s models.FeatureScoreState, limit int) []string {
	cs := Contributions(s)
	if limit > 0 && len(cs) > limit {
		cs = cs[:limit]
	}
	lines := make([]string, 0, len(cs)+1)
	for _, c := range cs {
		dir := "neutral"
		switch {
		case c.Value > 0.01:
			dir = "supports LONG"
		case c.Value < -0.01:
			dir = "supports SHORT"
		}
		lines = append(lines, fmt.Sprintf("%s %+.2f (%s)", c.Feature, c.Value, dir))
	}
	if missing := len(models.AllFeatures) - s.AvailableCount(); missing > 0 {
		lines = append(lines, fmt.Sprintf("%d of %d features unavailable", missing, len(models.AllFeatures)))
	}
	return lines
}
