package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
)

var ErrNoCandleSource = errors.New("no candle source available")

// CandlesUseCase serves raw candles from whichever adapter the user resolves to.
type CandlesUseCase struct {
	resolver domrepo.AdapterResolver
}

func NewCandlesUseCase(resolver domrepo.AdapterResolver) *CandlesUseCase {
	return &CandlesUseCase{resolver: resolver}
}

type GetCandlesParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Limit     int
	User      models.UserContext
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Source    string          `json:"source"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		p.Timeframe = domrepo.DefaultTimeframe()
	}
	if p.Limit <= 0 {
		p.Limit = 200
	}
	if p.Limit > 1500 {
		p.Limit = 1500
	}

	adapter, ok := uc.resolver.Resolve(ctx, p.User)
	if !ok {
		return nil, ErrNoCandleSource
	}
	src, ok := adapter.(domrepo.CandleSource)
	if !ok {
		return nil, ErrNoCandleSource
	}
	candles, err := src.FetchCandles(ctx, p.Symbol, p.Timeframe, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Source:    adapter.Name(),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
