package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepo_ListByPlatform_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")
	other := seedPlatform(t, db, ecoID, "YouTube", "video")

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, insertHistory(ctx, db.Writer, model.CredentialHistoryEntry{
		PlatformID: p.ID, Field: model.FieldUsername, OldValue: strPtr("a"), NewValue: strPtr("b"), ChangedAt: base,
	}))
	require.NoError(t, insertHistory(ctx, db.Writer, model.CredentialHistoryEntry{
		PlatformID: p.ID, Field: model.FieldPassword, NewValue: strPtr("c"), ChangedAt: base.Add(time.Minute),
	}))
	require.NoError(t, insertHistory(ctx, db.Writer, model.CredentialHistoryEntry{
		PlatformID: other.ID, Field: model.FieldPassword, NewValue: strPtr("x"), ChangedAt: base,
	}))

	entries, err := repo.ListByPlatform(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, model.FieldPassword, entries[0].Field)
	assert.Nil(t, entries[0].OldValue, "absent old value stays absent")
	assert.Nil(t, entries[0].ChangedBy)
	assert.Equal(t, model.FieldUsername, entries[1].Field)
	assert.Equal(t, "a", *entries[1].OldValue)
	assert.True(t, base.Equal(entries[1].ChangedAt))
}

func TestHistoryRepo_ListByPlatform_SubSecondOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	// The newer row gets the lower id so only changed_at decides the order.
	require.NoError(t, insertHistory(ctx, db.Writer, model.CredentialHistoryEntry{
		PlatformID: p.ID, Field: model.FieldPassword, ChangedAt: base.Add(500 * time.Millisecond),
	}))
	require.NoError(t, insertHistory(ctx, db.Writer, model.CredentialHistoryEntry{
		PlatformID: p.ID, Field: model.FieldUsername, ChangedAt: base,
	}))

	entries, err := NewHistoryRepo(db).ListByPlatform(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.FieldPassword, entries[0].Field)
	assert.True(t, base.Add(500*time.Millisecond).Equal(entries[0].ChangedAt))
	assert.Equal(t, model.FieldUsername, entries[1].Field)
}

func TestFormatTime_FixedWidth(t *testing.T) {
	whole := formatTime(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	half := formatTime(time.Date(2026, 2, 1, 9, 0, 0, 500_000_000, time.FixedZone("CET", 3600)))

	assert.Equal(t, "2026-02-01T09:00:00.000000000Z", whole)
	assert.Equal(t, "2026-02-01T08:00:00.500000000Z", half)
	assert.Len(t, half, len(whole))

	parsed, err := parseTime(whole)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)))
}

func TestHistoryRepo_ListByPlatform_Empty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)

	entries, err := repo.ListByPlatform(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestHistoryRepo_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	require.NoError(t, insertHistory(ctx, db.Writer, model.CredentialHistoryEntry{
		PlatformID: p.ID, Field: model.FieldPassword, NewValue: strPtr("c"),
	}))

	_, err := db.Writer.ExecContext(ctx, `UPDATE credential_history SET new_value = 'tampered'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = db.Writer.ExecContext(ctx, `DELETE FROM credential_history`)
	require.Error(t, err)

	entries, err := NewHistoryRepo(db).ListByPlatform(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", *entries[0].NewValue)
}

func TestHistoryRepo_RejectsUnknownField(t *testing.T) {
	db := setupTestDB(t)

	err := insertHistory(context.Background(), db.Writer, model.CredentialHistoryEntry{
		PlatformID: 1, Field: model.CredentialField("profile_url"), NewValue: strPtr("x"),
	})
	require.Error(t, err)
}
