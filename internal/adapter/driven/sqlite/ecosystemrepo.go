package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EcosystemStore = (*EcosystemRepo)(nil)

const ecosystemColumns = `id, name, theme, description, active_status, created_at, updated_at`

// EcosystemRepo is the SQLite implementation of the EcosystemStore port interface.
type EcosystemRepo struct {
	db *DB
}

// NewEcosystemRepo creates a new EcosystemRepo backed by the given DB.
func NewEcosystemRepo(db *DB) *EcosystemRepo {
	return &EcosystemRepo{db: db}
}

// Get retrieves an ecosystem by id. Returns ErrEcosystemNotFound if absent.
func (r *EcosystemRepo) Get(ctx context.Context, id int64) (*model.Ecosystem, error) {
	eco, err := scanEcosystem(r.db.Reader.QueryRowContext(ctx, `SELECT `+ecosystemColumns+` FROM ecosystems WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get ecosystem %d: %w", id, driven.ErrEcosystemNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ecosystem %d: %w", id, err)
	}
	return eco, nil
}

// GetByName retrieves an ecosystem by name, ignoring case. Returns nil, nil
// if the ecosystem does not exist.
func (r *EcosystemRepo) GetByName(ctx context.Context, name string) (*model.Ecosystem, error) {
	eco, err := scanEcosystem(r.db.Reader.QueryRowContext(ctx, `SELECT `+ecosystemColumns+` FROM ecosystems WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ecosystem %q: %w", name, err)
	}
	return eco, nil
}

// ListAll returns all ecosystems ordered by name.
func (r *EcosystemRepo) ListAll(ctx context.Context) ([]model.Ecosystem, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT `+ecosystemColumns+` FROM ecosystems ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list ecosystems: %w", err)
	}
	defer rows.Close()

	var ecosystems []model.Ecosystem
	for rows.Next() {
		eco, err := scanEcosystem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ecosystem: %w", err)
		}
		ecosystems = append(ecosystems, *eco)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ecosystems: %w", err)
	}

	return ecosystems, nil
}

// Create inserts a new ecosystem. Returns ErrDuplicate if an ecosystem with
// the same name (ignoring case) already exists.
func (r *EcosystemRepo) Create(ctx context.Context, eco model.Ecosystem) (*model.Ecosystem, error) {
	const query = `
		INSERT INTO ecosystems (name, theme, description, active_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	now := formatTime(time.Now())
	res, err := r.db.Writer.ExecContext(ctx, query, eco.Name, eco.Theme, eco.Description, boolInt(eco.ActiveStatus), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create ecosystem %q: %w", eco.Name, driven.ErrDuplicate)
		}
		return nil, fmt.Errorf("create ecosystem %q: %w", eco.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read ecosystem id: %w", err)
	}
	return r.reload(ctx, id)
}

// Upsert updates the ecosystem with the same name or inserts a new one. The
// stored name keeps the casing it was first created with.
func (r *EcosystemRepo) Upsert(ctx context.Context, eco model.Ecosystem) (*model.Ecosystem, error) {
	const query = `
		INSERT INTO ecosystems (name, theme, description, active_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			theme = excluded.theme,
			description = excluded.description,
			active_status = excluded.active_status,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())
	if _, err := r.db.Writer.ExecContext(ctx, query, eco.Name, eco.Theme, eco.Description, boolInt(eco.ActiveStatus), now, now); err != nil {
		return nil, fmt.Errorf("upsert ecosystem %q: %w", eco.Name, err)
	}

	stored, err := scanEcosystem(r.db.Writer.QueryRowContext(ctx, `SELECT `+ecosystemColumns+` FROM ecosystems WHERE name = ?`, eco.Name))
	if err != nil {
		return nil, fmt.Errorf("reload ecosystem %q: %w", eco.Name, err)
	}
	return stored, nil
}

// SetActive soft-activates or deactivates an ecosystem.
func (r *EcosystemRepo) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `UPDATE ecosystems SET active_status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, boolInt(active), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set ecosystem %d active=%t: %w", id, active, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set ecosystem %d active=%t: %w", id, active, driven.ErrEcosystemNotFound)
	}

	return nil
}

func (r *EcosystemRepo) reload(ctx context.Context, id int64) (*model.Ecosystem, error) {
	eco, err := scanEcosystem(r.db.Writer.QueryRowContext(ctx, `SELECT `+ecosystemColumns+` FROM ecosystems WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("reload ecosystem %d: %w", id, err)
	}
	return eco, nil
}

func scanEcosystem(s scanner) (*model.Ecosystem, error) {
	var eco model.Ecosystem
	var active int
	var createdAt, updatedAt string

	err := s.Scan(&eco.ID, &eco.Name, &eco.Theme, &eco.Description, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	eco.ActiveStatus = active != 0
	eco.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	eco.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &eco, nil
}
