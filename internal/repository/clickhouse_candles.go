package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	pkgch "DeepResearch/pkg/clickhouse"
	applogger "DeepResearch/pkg/logger"
)

// CHCandleSource serves candles from the warehouse's rolled-up candle tables
// (<database>.<prefix>_<tf>). It is the fallback source when no exchange is
// reachable, so it offers candles only.
type CHCandleSource struct {
	db       *sql.DB
	database string
	prefix   string
	l        *applogger.Logger
}

var _ domrepo.CandleSource = (*CHCandleSource)(nil)

func NewCHCandleSource(ch *pkgch.Client, database, prefix string) *CHCandleSource {
	if prefix == "" {
		prefix = "rt_candles"
	}
	return &CHCandleSource{db: ch.DB(), database: database, prefix: prefix, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHCandleSource) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHCandleSource) Name() string { return "clickhouse-warehouse" }

// FetchCandles returns the latest limit candles in ascending time order.
func (s *CHCandleSource) FetchCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	start := time.Now()
	table, err := s.tableFor(tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, limit)
	if err != nil {
		s.l.Error("clickhouse candles query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, limit)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)

	s.l.Debug("clickhouse candles ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHCandleSource) tableFor(tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	if s.database == "" {
		return fmt.Sprintf("%s_%s", s.prefix, tf), nil
	}
	return fmt.Sprintf("%s.%s_%s", s.database, s.prefix, tf), nil
}

func reverse(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
