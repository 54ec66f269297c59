package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlatformRepo_Create(t *testing.T) {
	db := setupTestDB(t)
	ecoID := seedEcosystem(t, db, "Alpha")

	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	assert.NotZero(t, p.ID)
	assert.Equal(t, ecoID, p.EcosystemID)
	assert.Equal(t, "Instagram", p.Name)
	assert.Equal(t, "social", p.Type)
	require.NotNil(t, p.Username)
	assert.Equal(t, "enc-user", *p.Username)
	assert.Nil(t, p.TOTPSecret)
	assert.False(t, p.TOTPEnabled)
	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, time.UTC, p.CreatedAt.Location())
}

func TestPlatformRepo_Create_UsesGivenTimestamp(t *testing.T) {
	db := setupTestDB(t)
	ecoID := seedEcosystem(t, db, "Alpha")
	at := time.Date(2026, 3, 5, 14, 30, 0, 250_000_000, time.UTC)

	p, err := NewPlatformRepo(db).Create(context.Background(), model.NewPlatform{
		EcosystemID: ecoID, Name: "Instagram", Type: "social", CreatedAt: at,
	})

	require.NoError(t, err)
	assert.True(t, at.Equal(p.CreatedAt))
	assert.True(t, at.Equal(p.UpdatedAt))
}

func TestPlatformRepo_Create_DuplicateKeyIgnoresCase(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ecoID := seedEcosystem(t, db, "Alpha")
	seedPlatform(t, db, ecoID, "Instagram", "social")

	_, err := repo.Create(context.Background(), model.NewPlatform{EcosystemID: ecoID, Name: "instagram", Type: "SOCIAL"})
	require.ErrorIs(t, err, driven.ErrDuplicate)
}

func TestPlatformRepo_Create_UnknownEcosystem(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)

	_, err := repo.Create(context.Background(), model.NewPlatform{EcosystemID: 42, Name: "X", Type: "social"})
	require.ErrorIs(t, err, driven.ErrEcosystemNotFound)
}

func TestPlatformRepo_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)

	_, err := repo.Get(context.Background(), 404)
	require.ErrorIs(t, err, driven.ErrPlatformNotFound)
}

func TestPlatformRepo_FindByKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	want := seedPlatform(t, db, ecoID, "YouTube", "video")

	got, err := repo.FindByKey(ctx, ecoID, "youtube", "Video")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)

	missing, err := repo.FindByKey(ctx, ecoID, "YouTube", "social")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPlatformRepo_List_Filters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	otherID := seedEcosystem(t, db, "Beta")

	seedPlatform(t, db, ecoID, "Instagram", "social")
	seedPlatform(t, db, ecoID, "Facebook", "social")
	yt := seedPlatform(t, db, ecoID, "YouTube", "video")
	seedPlatform(t, db, ecoID, "100%_Club", "forum")
	seedPlatform(t, db, otherID, "Instagram", "social")

	enabled := true
	_, err := repo.Mutate(ctx, yt.ID, func(model.PlatformCredential) (model.CredentialChangeSet, error) {
		return model.CredentialChangeSet{TOTPEnabled: &enabled}, nil
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter model.PlatformFilter
		want   []string
	}{
		{name: "all ordered by name", filter: model.PlatformFilter{}, want: []string{"100%_Club", "Facebook", "Instagram", "YouTube"}},
		{name: "search ignores case", filter: model.PlatformFilter{Search: "GRAM"}, want: []string{"Instagram"}},
		{name: "search matches type", filter: model.PlatformFilter{Search: "vid"}, want: []string{"YouTube"}},
		{name: "search escapes wildcards", filter: model.PlatformFilter{Search: "%_"}, want: []string{"100%_Club"}},
		{name: "type", filter: model.PlatformFilter{Type: "social"}, want: []string{"Facebook", "Instagram"}},
		{name: "totp enabled", filter: model.PlatformFilter{TOTP: &enabled}, want: []string{"YouTube"}},
		{name: "second page", filter: model.PlatformFilter{Page: 2, Limit: 3}, want: []string{"YouTube"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, ecoID, tt.filter)
			require.NoError(t, err)

			var names []string
			for _, p := range page.Items {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestPlatformRepo_List_Pagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ecoID := seedEcosystem(t, db, "Alpha")
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		seedPlatform(t, db, ecoID, name, "social")
	}

	page, err := repo.List(context.Background(), ecoID, model.PlatformFilter{Limit: 2, Page: 3})
	require.NoError(t, err)

	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 3, page.TotalPages())
	require.Len(t, page.Items, 1)
	assert.Equal(t, "E", page.Items[0].Name)

	defaults, err := repo.List(context.Background(), ecoID, model.PlatformFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Page)
	assert.Equal(t, maxPageLimit, defaults.Limit)
}

func TestPlatformRepo_Mutate_AppliesChangesAndHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	history := NewHistoryRepo(db)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	actor := int64(7)
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	profile := "prof-2"

	updated, err := repo.Mutate(ctx, p.ID, func(current model.PlatformCredential) (model.CredentialChangeSet, error) {
		assert.Equal(t, p.Version, current.Version)
		return model.CredentialChangeSet{
			Password:  &model.ColumnWrite{Value: strPtr("enc-pass-2")},
			ProfileID: &profile,
			UpdatedAt: stamp,
			History: []model.CredentialHistoryEntry{
				{Field: model.FieldPassword, OldValue: current.Password, NewValue: strPtr("enc-pass-2"), ChangedBy: &actor, ChangedAt: stamp},
				{Field: model.FieldProfileID, OldValue: strPtr("prof-1"), NewValue: &profile, ChangedBy: &actor, ChangedAt: stamp},
			},
		}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, p.Version+1, updated.Version)
	assert.Equal(t, "enc-pass-2", *updated.Password)
	assert.Equal(t, "enc-user", *updated.Username, "untouched column kept")
	assert.Equal(t, "prof-2", updated.ProfileID)
	assert.True(t, stamp.Equal(updated.UpdatedAt))

	entries, err := history.ListByPlatform(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, p.ID, e.PlatformID)
		require.NotNil(t, e.ChangedBy)
		assert.Equal(t, actor, *e.ChangedBy)
	}
}

func TestPlatformRepo_Mutate_ClearColumn(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	updated, err := repo.Mutate(context.Background(), p.ID, func(model.PlatformCredential) (model.CredentialChangeSet, error) {
		return model.CredentialChangeSet{Username: &model.ColumnWrite{}}, nil
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Username)
}

func TestPlatformRepo_Mutate_EmptyChangeSetWritesNothing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	got, err := repo.Mutate(ctx, p.ID, func(model.PlatformCredential) (model.CredentialChangeSet, error) {
		return model.CredentialChangeSet{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, p.Version, got.Version)
	assert.True(t, p.UpdatedAt.Equal(got.UpdatedAt))

	entries, err := NewHistoryRepo(db).ListByPlatform(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlatformRepo_Mutate_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)

	called := false
	_, err := repo.Mutate(context.Background(), 404, func(model.PlatformCredential) (model.CredentialChangeSet, error) {
		called = true
		return model.CredentialChangeSet{}, nil
	})
	require.ErrorIs(t, err, driven.ErrPlatformNotFound)
	assert.False(t, called)
}

func TestPlatformRepo_Mutate_CallbackErrorLeavesRecord(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	errBoom := errors.New("boom")
	_, err := repo.Mutate(ctx, p.ID, func(model.PlatformCredential) (model.CredentialChangeSet, error) {
		return model.CredentialChangeSet{}, errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Version, got.Version)
}

// A failing ledger insert must roll back the field update with it.
func TestPlatformRepo_Mutate_HistoryFailureRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPlatformRepo(db)
	ctx := context.Background()
	ecoID := seedEcosystem(t, db, "Alpha")
	p := seedPlatform(t, db, ecoID, "Instagram", "social")

	_, err := db.Writer.ExecContext(ctx, `
		CREATE TRIGGER reject_history_insert
		BEFORE INSERT ON credential_history
		BEGIN
			SELECT RAISE(ABORT, 'history unavailable');
		END;
	`)
	require.NoError(t, err)

	_, err = repo.Mutate(ctx, p.ID, func(current model.PlatformCredential) (model.CredentialChangeSet, error) {
		return model.CredentialChangeSet{
			Password: &model.ColumnWrite{Value: strPtr("enc-pass-2")},
			History: []model.CredentialHistoryEntry{
				{Field: model.FieldPassword, OldValue: current.Password, NewValue: strPtr("enc-pass-2")},
			},
		}, nil
	})
	require.Error(t, err)

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "enc-pass", *got.Password)
	assert.Equal(t, p.Version, got.Version)
	assert.True(t, p.UpdatedAt.Equal(got.UpdatedAt))
}

// A commit from another connection between the read and the write of a
// Mutate surfaces as ErrConflict and the other writer's change stands.
func TestPlatformRepo_Mutate_ConflictAcrossConnections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ecovault.db")

	server, err := NewDB(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	_, err = RunMigrations(server.Writer)
	require.NoError(t, err)

	importer, err := NewDB(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = importer.Close() })

	ecoID := seedEcosystem(t, server, "Alpha")
	p := seedPlatform(t, server, ecoID, "Instagram", "social")

	_, err = NewPlatformRepo(server).Mutate(ctx, p.ID, func(current model.PlatformCredential) (model.CredentialChangeSet, error) {
		_, err := NewPlatformRepo(importer).Mutate(ctx, p.ID, func(model.PlatformCredential) (model.CredentialChangeSet, error) {
			return model.CredentialChangeSet{ProfileID: strPtr("prof-importer")}, nil
		})
		require.NoError(t, err)

		return model.CredentialChangeSet{
			ProfileID: strPtr("prof-server"),
			History: []model.CredentialHistoryEntry{
				{Field: model.FieldProfileID, OldValue: strPtr(current.ProfileID), NewValue: strPtr("prof-server")},
			},
		}, nil
	})
	require.ErrorIs(t, err, driven.ErrConflict)

	got, err := NewPlatformRepo(server).Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "prof-importer", got.ProfileID)
	assert.Equal(t, p.Version+1, got.Version)

	entries, err := NewHistoryRepo(server).ListByPlatform(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
