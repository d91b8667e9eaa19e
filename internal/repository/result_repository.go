package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/domain/repository"
	pkgkafka "DeepResearch/pkg/kafka"
)

// ResultSchema creates the result table. %s is the table name.
const ResultSchema = `
CREATE TABLE IF NOT EXISTS %s (
    ts          DateTime64(3, 'UTC'),
    id          String,
    symbol      LowCardinality(String),
    timeframe   LowCardinality(String),
    signal      LowCardinality(String),
    confidence  Float64,
    fused_score Float64,
    mode        LowCardinality(String),
    adapter     LowCardinality(String),
    payload     String
) ENGINE = MergeTree
ORDER BY (symbol, ts)
TTL toDateTime(ts) + INTERVAL 30 DAY`

const resultColumns = "ts, id, symbol, timeframe, signal, confidence, fused_score, mode, adapter, payload"

// ClickHouseResultStorage keeps research results with the full JSON payload
// next to a few indexed columns.
type ClickHouseResultStorage struct {
	db    *sql.DB
	table string
}

func NewClickHouseResultStorage(db *sql.DB, table string) repository.ResultStorage {
	return &ClickHouseResultStorage{db: db, table: table}
}

func (s *ClickHouseResultStorage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(ResultSchema, s.table)); err != nil {
		return fmt.Errorf("init result table: %w", err)
	}
	return nil
}

func resultRow(r *models.ResearchResult) ([]interface{}, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result %s: %w", r.ID, err)
	}
	return []interface{}{
		r.GeneratedAt,
		r.ID,
		r.Symbol,
		r.Timeframe,
		string(r.Signal),
		r.Confidence,
		r.FusedScore,
		string(r.Mode),
		r.Adapter,
		string(payload),
	}, nil
}

func (s *ClickHouseResultStorage) Store(ctx context.Context, r *models.ResearchResult) error {
	return s.StoreBatch(ctx, []*models.ResearchResult{r})
}

// StoreBatch inserts multi-row VALUES in chunks to limit round trips.
func (s *ClickHouseResultStorage) StoreBatch(ctx context.Context, rs []*models.ResearchResult) error {
	const chunkSize = 500
	for start := 0; start < len(rs); start += chunkSize {
		end := start + chunkSize
		if end > len(rs) {
			end = len(rs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, r := range rs[start:end] {
			if r == nil || r.Symbol == "" {
				continue
			}
			row, err := resultRow(r)
			if err != nil {
				return err
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, row...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, resultColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
	}
	return nil
}

// Query returns results newest first.
func (s *ClickHouseResultStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.ResearchResult, error) {
	q := fmt.Sprintf("SELECT payload FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ResearchResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r models.ResearchResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode stored result: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *ClickHouseResultStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.
func (s *ClickHouseResultStorage) Close() error { return nil }

// KafkaResultPublisher publishes results keyed by symbol.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) repository.ResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) Publish(ctx context.Context, r *models.ResearchResult) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{resultMessage(r)})
}

func (p *KafkaResultPublisher) PublishBatch(ctx context.Context, rs []*models.ResearchResult) error {
	if len(rs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			msgs = append(msgs, resultMessage(r))
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func resultMessage(r *models.ResearchResult) pkgkafka.Message {
	return pkgkafka.Message{Key: []byte(r.Symbol), Value: r, TraceID: r.ID}
}

// Close is a no-op; the producer is shared with the error digest.
func (p *KafkaResultPublisher) Close() error { return nil }
