package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createDeliveryState = `
INSERT INTO delivery_states (event_id, version, state, updated_at)
VALUES ($1, 1, $2, $3)
ON CONFLICT (event_id) DO NOTHING
`

const selectDeliveryState = `
SELECT version, state
FROM delivery_states
WHERE event_id = $1
`

const updateDeliveryState = `
UPDATE delivery_states
SET state = $3, version = version + 1, updated_at = $4
WHERE event_id = $1 AND version = $2
RETURNING version
`

// PostgresStore persists delivery state as a jsonb document next to an
// integer version column. Updates are compare-and-swap on the version; a
// stale writer gets ErrConflict instead of silently clobbering a
// concurrent pass.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, eventID string) (DeliveryState, bool, error) {
	var (
		version int64
		raw     []byte
	)
	err := s.pool.QueryRow(ctx, selectDeliveryState, eventID).Scan(&version, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeliveryState{}, false, nil
	}
	if err != nil {
		return DeliveryState{}, false, fmt.Errorf("get delivery state: %w", err)
	}

	var st DeliveryState
	if err := json.Unmarshal(raw, &st); err != nil {
		return DeliveryState{}, false, fmt.Errorf("decode delivery state: %w", err)
	}
	st.Version = version
	return st, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, eventID string, st DeliveryState) (int64, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, createDeliveryState, eventID, raw, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("create delivery state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrConflict
	}
	return 1, nil
}

func (s *PostgresStore) Update(ctx context.Context, eventID string, version int64, st DeliveryState) (int64, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return 0, err
	}
	var newVersion int64
	err = s.pool.QueryRow(ctx, updateDeliveryState, eventID, version, raw, time.Now().UTC()).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("update delivery state: %w", err)
	}
	return newVersion, nil
}
