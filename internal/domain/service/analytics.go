package service

import (
	"context"

	"DeepResearch/internal/domain/models"
)

// MLPredictor asks a model service for a second opinion on a feature vector.
type MLPredictor interface {
	Predict(ctx context.Context, symbol string, features map[string]float64) (models.MLInsight, error)
}
