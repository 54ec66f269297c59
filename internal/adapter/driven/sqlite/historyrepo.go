package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HistoryStore = (*HistoryRepo)(nil)

// HistoryRepo reads the credential ledger. Rows are inserted only through
// insertHistory inside PlatformRepo.Mutate; the schema rejects updates and
// deletes.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new HistoryRepo backed by the given DB.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// ListByPlatform returns ledger entries for a platform, newest first.
func (r *HistoryRepo) ListByPlatform(ctx context.Context, platformID int64) ([]model.CredentialHistoryEntry, error) {
	const query = `
		SELECT id, platform_id, field_name, old_value, new_value, changed_by, changed_at
		FROM credential_history
		WHERE platform_id = ?
		ORDER BY changed_at DESC, id DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, platformID)
	if err != nil {
		return nil, fmt.Errorf("list history for platform %d: %w", platformID, err)
	}
	defer rows.Close()

	entries := []model.CredentialHistoryEntry{}
	for rows.Next() {
		var e model.CredentialHistoryEntry
		var field, changedAt string
		var oldValue, newValue sql.NullString
		var changedBy sql.NullInt64

		if err := rows.Scan(&e.ID, &e.PlatformID, &field, &oldValue, &newValue, &changedBy, &changedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}

		e.Field = model.CredentialField(field)
		e.OldValue = stringPtr(oldValue)
		e.NewValue = stringPtr(newValue)
		if changedBy.Valid {
			id := changedBy.Int64
			e.ChangedBy = &id
		}
		e.ChangedAt, err = parseTime(changedAt)
		if err != nil {
			return nil, fmt.Errorf("parse changed_at: %w", err)
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}

// insertHistory appends one ledger row using the caller's transaction.
func insertHistory(ctx context.Context, ex execer, e model.CredentialHistoryEntry) error {
	const query = `
		INSERT INTO credential_history (platform_id, field_name, old_value, new_value, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	changedAt := e.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now()
	}

	_, err := ex.ExecContext(ctx, query,
		e.PlatformID, string(e.Field), nullableString(e.OldValue), nullableString(e.NewValue),
		nullableID(e.ChangedBy), formatTime(changedAt),
	)
	if err != nil {
		return fmt.Errorf("insert %s history for platform %d: %w", e.Field, e.PlatformID, err)
	}
	return nil
}
