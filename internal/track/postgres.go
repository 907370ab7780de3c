package track

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog persists routing records as insert-only rows. One row per
// record; readers fold rows per event_id in insertion order. Nothing is
// ever updated or deleted.
type PostgresLog struct {
	pool *pgxpool.Pool
}

func NewPostgresLog(ctx context.Context, databaseURL string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	l := &PostgresLog{pool: pool}
	if err := l.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return l, nil
}

func (l *PostgresLog) ensureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cascade_records (
			id          BIGSERIAL PRIMARY KEY,
			event_id    UUID NOT NULL,
			record_type TEXT NOT NULL,
			payload     JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS cascade_records_event_idx ON cascade_records (event_id, id);
		CREATE INDEX IF NOT EXISTS cascade_records_created_idx ON cascade_records (created_at)`)
	return err
}

func (l *PostgresLog) Close() error {
	l.pool.Close()
	return nil
}

func (l *PostgresLog) Append(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return l.pool.QueryRow(ctx, `
		INSERT INTO cascade_records (event_id, record_type, payload)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		rec.EventID, string(rec.Type), payload,
	).Scan(&rec.CreatedAt)
}

func (l *PostgresLog) Records(ctx context.Context, eventID uuid.UUID) ([]*Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT payload, created_at
		FROM cascade_records WHERE event_id = $1
		ORDER BY id ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (l *PostgresLog) RecordsBetween(ctx context.Context, from, until time.Time) ([]*Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT payload, created_at
		FROM cascade_records
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY id ASC`, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var payload []byte
		var createdAt time.Time
		if err := rows.Scan(&payload, &createdAt); err != nil {
			return nil, err
		}
		rec := &Record{}
		if err := json.Unmarshal(payload, rec); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		rec.CreatedAt = createdAt
		out = append(out, rec)
	}
	return out, rows.Err()
}
