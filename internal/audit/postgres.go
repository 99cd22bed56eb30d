package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertEntry = `
INSERT INTO delivery_log (id, event_id, channel, recipient, status_code, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// PostgresRecorder appends attempts to the delivery_log table. Rows are
// never updated or deleted.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

func (r *PostgresRecorder) Append(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, insertEntry,
		uuid.NewString(),
		entry.EventID,
		entry.Channel,
		entry.Recipient,
		entry.StatusCode,
		entry.Message,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append delivery log entry: %w", err)
	}
	return nil
}
