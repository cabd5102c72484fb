package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fishit-backend/internal/ledger"
	"github.com/fishit-backend/internal/types"
)

// EventArchive persists processed events to Postgres. It satisfies
// ledger.ArchiveSink; inserts are keyed like the ledger so redeliveries
// are absorbed by ON CONFLICT.
type EventArchive struct {
	db *PostgresDB
}

var _ ledger.ArchiveSink = (*EventArchive)(nil)

// NewEventArchive creates a new event archive repository
func NewEventArchive(db *PostgresDB) *EventArchive {
	return &EventArchive{db: db}
}

// Insert stores one processed event. Duplicate keys are silently ignored.
func (r *EventArchive) Insert(ctx context.Context, rec types.ProcessedEvent) error {
	query := `
		INSERT INTO processed_events (
			event_key, user_address, amount, bait_type,
			event_timestamp, block_number, transaction_hash, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_key) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		ledger.Key(rec.User, rec.Timestamp, rec.TransactionHash),
		strings.ToLower(rec.User),
		rec.Amount,
		int16(rec.BaitType),
		rec.Timestamp,
		rec.BlockNumber,
		rec.TransactionHash,
		time.UnixMilli(rec.ProcessedAt).UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert processed event: %w", err)
	}

	return nil
}

// CountByUser returns the number of archived events for one user.
func (r *EventArchive) CountByUser(ctx context.Context, user string) (int, error) {
	var count int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_events WHERE user_address = $1`,
		strings.ToLower(user),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count archived events: %w", err)
	}
	return count, nil
}
