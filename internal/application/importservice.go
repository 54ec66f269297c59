package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// RowError is a failure confined to one import row. Row is the row's line
// number in the file, counting the header as line 1.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("Row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ImportResult reports the outcome of one import batch. Errors holds every
// row failure in row order.
type ImportResult struct {
	BatchID  uuid.UUID
	Kind     model.ImportKind
	Imported int
	Errors   []RowError
}

// Display returns at most limit error messages and the number left out. A
// limit of zero or less returns every message.
func (r ImportResult) Display(limit int) ([]string, int) {
	shown := r.Errors
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	msgs := make([]string, 0, len(shown))
	for _, e := range shown {
		msgs = append(msgs, e.Error())
	}
	return msgs, len(r.Errors) - len(shown)
}

// ImportService applies tabular batches to users, ecosystems, platforms and
// assignments. Rows run sequentially; a failing row is recorded and the batch
// moves on. Platform credential changes go through CredentialService so they
// are audited like any other update.
type ImportService struct {
	users       driven.UserStore
	ecosystems  driven.EcosystemStore
	assignments driven.AssignmentStore
	platforms   driven.PlatformStore
	credentials *CredentialService
	clock       clock.Clock
	logger      *slog.Logger
}

// NewImportService creates a new ImportService. A nil clk uses the wall clock
// and a nil logger uses slog.Default().
func NewImportService(
	users driven.UserStore,
	ecosystems driven.EcosystemStore,
	assignments driven.AssignmentStore,
	platforms driven.PlatformStore,
	credentials *CredentialService,
	clk clock.Clock,
	logger *slog.Logger,
) *ImportService {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportService{
		users:       users,
		ecosystems:  ecosystems,
		assignments: assignments,
		platforms:   platforms,
		credentials: credentials,
		clock:       clk,
		logger:      logger,
	}
}

// batch carries the lookup indexes shared by the rows of one import.
type batch struct {
	actor      model.Actor
	users      *NameIndex[model.User]
	ecosystems *NameIndex[model.Ecosystem]
}

// ImportBatch applies table as records of the given kind on behalf of actor.
// Header problems reject the whole batch; row problems are collected in the
// result. Only admins may import.
func (s *ImportService) ImportBatch(ctx context.Context, kind model.ImportKind, table *Table, actor model.Actor) (*ImportResult, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("import %s: %w", kind, ErrForbidden)
	}
	if table == nil || len(table.Rows) == 0 {
		return nil, ErrEmptyTable
	}
	if err := checkHeader(kind, table.Header); err != nil {
		return nil, err
	}

	b, err := s.loadIndexes(ctx, kind, actor)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{BatchID: uuid.New(), Kind: kind}
	started := s.clock.Now()

	for i, record := range table.Rows {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("import %s cancelled after %d rows: %w", kind, i, err)
		}

		r := newRow(i+2, table.Header, record)
		if err := s.applyRow(ctx, kind, b, r); err != nil {
			result.Errors = append(result.Errors, RowError{Row: r.number, Err: rowFailure(err)})
			continue
		}
		result.Imported++
	}

	s.logger.Info("import batch complete",
		"batch_id", result.BatchID,
		"kind", kind,
		"rows", len(table.Rows),
		"imported", result.Imported,
		"errors", len(result.Errors),
		"duration", s.clock.Now().Sub(started),
	)

	return result, nil
}

func (s *ImportService) loadIndexes(ctx context.Context, kind model.ImportKind, actor model.Actor) (*batch, error) {
	b := &batch{actor: actor}

	if kind == model.ImportPlatforms || kind == model.ImportAssignments {
		ecosystems, err := s.ecosystems.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load ecosystems: %w", err)
		}
		b.ecosystems = NewNameIndex(ecosystems, func(e model.Ecosystem) string { return e.Name })
	}

	if kind == model.ImportAssignments {
		users, err := s.users.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
		b.users = NewNameIndex(users, func(u model.User) string { return u.Email })
	}

	return b, nil
}

func (s *ImportService) applyRow(ctx context.Context, kind model.ImportKind, b *batch, r row) error {
	switch kind {
	case model.ImportUsers:
		rec, err := decodeUser(r)
		if err != nil {
			return err
		}
		return s.importUser(ctx, rec)
	case model.ImportEcosystems:
		rec, err := decodeEcosystem(r)
		if err != nil {
			return err
		}
		return s.importEcosystem(ctx, rec)
	case model.ImportPlatforms:
		rec, err := decodePlatform(r)
		if err != nil {
			return err
		}
		return s.importPlatform(ctx, b, rec)
	case model.ImportAssignments:
		rec, err := decodeAssignment(r)
		if err != nil {
			return err
		}
		return s.importAssignment(ctx, b, rec)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownImportKind, kind)
	}
}

func (s *ImportService) importUser(ctx context.Context, rec userRecord) error {
	_, err := s.users.Upsert(ctx, model.User{
		Email:      rec.email,
		Name:       rec.name,
		EcitizenID: rec.ecitizenID,
		Role:       rec.role,
	})
	if err != nil {
		return fmt.Errorf("save user %q: %w", rec.email, err)
	}
	return nil
}

func (s *ImportService) importEcosystem(ctx context.Context, rec ecosystemRecord) error {
	_, err := s.ecosystems.Upsert(ctx, model.Ecosystem{
		Name:         rec.name,
		Theme:        rec.theme,
		Description:  rec.description,
		ActiveStatus: rec.active,
	})
	if err != nil {
		return fmt.Errorf("save ecosystem %q: %w", rec.name, err)
	}
	return nil
}

// importPlatform upserts a platform by its (ecosystem, name, type) key.
// Supplied credential fields are applied with diff-and-write; empty cells
// leave the stored value untouched. A seed in the file enrolls without a live
// code check. Each row is written in one transaction, so a failed row leaves
// nothing behind.
func (s *ImportService) importPlatform(ctx context.Context, b *batch, rec platformRecord) error {
	eco, ok := b.ecosystems.Lookup(rec.ecosystemName)
	if !ok {
		return fmt.Errorf("%w: ecosystem %q not found", ErrValidation, rec.ecosystemName)
	}

	existing, err := s.platforms.FindByKey(ctx, eco.ID, rec.name, rec.platformType)
	if err != nil {
		return fmt.Errorf("find platform %q: %w", rec.name, err)
	}

	wantTOTP := rec.totpEnabled != nil && *rec.totpEnabled
	hasSecret := rec.totpSecret != nil || (existing != nil && existing.HasTOTPSecret())
	if wantTOTP && !hasSecret {
		return fmt.Errorf("%w: totp_enabled requires totp_secret", ErrValidation)
	}

	actorID := b.actor.UserID

	if existing == nil {
		enabled := rec.totpSecret != nil
		if rec.totpEnabled != nil {
			enabled = *rec.totpEnabled
		}
		_, err := s.credentials.RegisterPlatform(ctx, PlatformRegistration{
			EcosystemID: eco.ID,
			Name:        rec.name,
			Type:        rec.platformType,
			Username:    rec.username,
			Password:    rec.password,
			ProfileID:   deref(rec.profileID),
			ProfileURL:  deref(rec.profileURL),
			TOTPSecret:  rec.totpSecret,
			TOTPEnabled: enabled,
		}, actorID)
		if err != nil {
			return fmt.Errorf("create platform %q: %w", rec.name, err)
		}
		return nil
	}

	update := model.CredentialUpdate{
		Username:   rec.username,
		Password:   rec.password,
		ProfileID:  rec.profileID,
		ProfileURL: rec.profileURL,
	}
	if err := s.credentials.applyImported(ctx, existing.ID, update, rec.totpSecret, rec.totpEnabled, actorID); err != nil {
		return fmt.Errorf("update platform %q: %w", rec.name, err)
	}

	return nil
}

func (s *ImportService) importAssignment(ctx context.Context, b *batch, rec assignmentRecord) error {
	user, ok := b.users.Lookup(rec.userEmail)
	if !ok {
		return fmt.Errorf("%w: user %q not found", ErrValidation, rec.userEmail)
	}
	eco, ok := b.ecosystems.Lookup(rec.ecosystemName)
	if !ok {
		return fmt.Errorf("%w: ecosystem %q not found", ErrValidation, rec.ecosystemName)
	}

	assignedBy := b.actor.UserID
	if rec.assignedByEmail != "" {
		assigner, ok := b.users.Lookup(rec.assignedByEmail)
		if !ok {
			return fmt.Errorf("%w: assigning user %q not found", ErrValidation, rec.assignedByEmail)
		}
		assignedBy = assigner.ID
	}

	exists, err := s.assignments.Exists(ctx, user.ID, eco.ID)
	if err != nil {
		return fmt.Errorf("check assignment: %w", err)
	}
	if exists {
		return fmt.Errorf("user %q is already assigned to %q: %w", user.Email, eco.Name, driven.ErrDuplicate)
	}

	err = s.assignments.Create(ctx, model.UserEcosystem{
		UserID:      user.ID,
		EcosystemID: eco.ID,
		AssignedBy:  &assignedBy,
		AssignedAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("assign user %q to %q: %w", user.Email, eco.Name, err)
	}
	return nil
}

// rowFailure classifies a row error. Domain failures keep their sentinel;
// anything else is a store failure and is marked ErrPersistence.
func rowFailure(err error) error {
	for _, known := range []error{
		ErrValidation, ErrEmptySeed, ErrInvalidCode,
		driven.ErrDuplicate, driven.ErrConflict, driven.ErrDecryption, driven.ErrInvalidSeed,
		driven.ErrPlatformNotFound, driven.ErrEcosystemNotFound, driven.ErrUserNotFound,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
