package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createTriggersSQL = `CREATE TABLE IF NOT EXISTS triggers (
        id              BIGSERIAL PRIMARY KEY,
        side            TEXT        NOT NULL,
        threshold_price NUMERIC     NOT NULL,
        observed_price  NUMERIC     NOT NULL,
        reset_minutes   INTEGER     NOT NULL,
        channels        TEXT[]      NOT NULL DEFAULT '{}',
        fired_at        TIMESTAMPTZ NOT NULL,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS idx_triggers_fired_at ON triggers (fired_at DESC);`

	insertTriggerSQL = `INSERT INTO triggers (
        side,
        threshold_price,
        observed_price,
        reset_minutes,
        channels,
        fired_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, side, threshold_price, observed_price, reset_minutes, channels, fired_at, created_at;`

	listRecentTriggersSQL = `SELECT
        id,
        side,
        threshold_price,
        observed_price,
        reset_minutes,
        channels,
        fired_at,
        created_at
    FROM triggers
    ORDER BY fired_at DESC
    LIMIT $1;`

	deleteTriggersBeforeSQL = `DELETE FROM triggers WHERE fired_at < $1;`
)

// TriggerStore defines operations for the trigger audit trail.
type TriggerStore interface {
	InsertTrigger(ctx context.Context, record TriggerRecord) (TriggerRecord, error)
	ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error)
	DeleteTriggersBefore(ctx context.Context, olderThan time.Time) error
}

// Store provides pgx-backed access to the audit trail.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the audit table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createTriggersSQL); err != nil {
		return fmt.Errorf("ensure triggers schema: %w", err)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertTrigger persists one fired threshold.
func (s *Store) InsertTrigger(ctx context.Context, record TriggerRecord) (TriggerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return TriggerRecord{}, err
	}

	row := pool.QueryRow(ctx, insertTriggerSQL,
		record.Side,
		record.ThresholdPrice.String(),
		record.ObservedPrice.String(),
		record.ResetMinutes,
		record.Channels,
		record.FiredAt,
	)

	inserted, err := scanTrigger(row)
	if err != nil {
		return TriggerRecord{}, fmt.Errorf("insert trigger: %w", err)
	}
	return inserted, nil
}

// ListRecentTriggers lists the most recently fired triggers.
func (s *Store) ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentTriggersSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent triggers: %w", queryErr)
	}
	defer rows.Close()

	records := make([]TriggerRecord, 0)
	for rows.Next() {
		record, scanErr := scanTrigger(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteTriggersBefore prunes audit entries older than the cutoff.
func (s *Store) DeleteTriggersBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, deleteTriggersBeforeSQL, olderThan); err != nil {
		return fmt.Errorf("delete triggers before: %w", err)
	}
	return nil
}

func scanTrigger(row pgx.Row) (TriggerRecord, error) {
	var (
		record    TriggerRecord
		threshold string
		observed  string
	)
	if err := row.Scan(
		&record.ID,
		&record.Side,
		&threshold,
		&observed,
		&record.ResetMinutes,
		&record.Channels,
		&record.FiredAt,
		&record.CreatedAt,
	); err != nil {
		return TriggerRecord{}, fmt.Errorf("scan trigger: %w", err)
	}

	var err error
	if record.ThresholdPrice, err = decimal.NewFromString(threshold); err != nil {
		return TriggerRecord{}, fmt.Errorf("parse threshold price: %w", err)
	}
	if record.ObservedPrice, err = decimal.NewFromString(observed); err != nil {
		return TriggerRecord{}, fmt.Errorf("parse observed price: %w", err)
	}
	return record, nil
}

var _ TriggerStore = (*Store)(nil)
