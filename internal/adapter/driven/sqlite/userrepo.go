package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.UserStore       = (*UserRepo)(nil)
	_ driven.AssignmentStore = (*AssignmentRepo)(nil)
)

const userColumns = `id, email, name, ecitizen_id, role, created_at, updated_at`

// UserRepo is the SQLite implementation of the UserStore port interface.
// Emails are stored lower-cased.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetByEmail retrieves a user by email, ignoring case. Returns nil, nil if absent.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.Reader.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", email, err)
	}
	return u, nil
}

// ListAll returns all users ordered by email.
func (r *UserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// Upsert updates the user with the same email or inserts a new one.
func (r *UserRepo) Upsert(ctx context.Context, user model.User) (*model.User, error) {
	const query = `
		INSERT INTO users (email, name, ecitizen_id, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			ecitizen_id = excluded.ecitizen_id,
			role = excluded.role,
			updated_at = excluded.updated_at
	`

	email := strings.ToLower(user.Email)
	role := user.Role
	if role == "" {
		role = model.RoleUser
	}

	now := formatTime(time.Now())
	if _, err := r.db.Writer.ExecContext(ctx, query, email, user.Name, user.EcitizenID, string(role), now, now); err != nil {
		return nil, fmt.Errorf("upsert user %q: %w", email, err)
	}

	stored, err := scanUser(r.db.Writer.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return nil, fmt.Errorf("reload user %q: %w", email, err)
	}
	return stored, nil
}

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	var role, createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Email, &u.Name, &u.EcitizenID, &role, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	u.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &u, nil
}

// AssignmentRepo is the SQLite implementation of the AssignmentStore port interface.
type AssignmentRepo struct {
	db *DB
}

// NewAssignmentRepo creates a new AssignmentRepo backed by the given DB.
func NewAssignmentRepo(db *DB) *AssignmentRepo {
	return &AssignmentRepo{db: db}
}

// Exists reports whether the user is assigned to the ecosystem.
func (r *AssignmentRepo) Exists(ctx context.Context, userID, ecosystemID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM user_ecosystems WHERE user_id = ? AND ecosystem_id = ?)`

	var exists int
	if err := r.db.Reader.QueryRowContext(ctx, query, userID, ecosystemID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check assignment user %d ecosystem %d: %w", userID, ecosystemID, err)
	}
	return exists == 1, nil
}

// EcosystemIDsForUser returns the ids of the user's assigned ecosystems.
func (r *AssignmentRepo) EcosystemIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `SELECT ecosystem_id FROM user_ecosystems WHERE user_id = ? ORDER BY ecosystem_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for user %d: %w", userID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}

	return ids, nil
}

// Create inserts an assignment. Returns ErrDuplicate if it already exists.
func (r *AssignmentRepo) Create(ctx context.Context, a model.UserEcosystem) error {
	const query = `
		INSERT INTO user_ecosystems (user_id, ecosystem_id, assigned_by, assigned_at)
		VALUES (?, ?, ?, ?)
	`

	assignedAt := a.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}

	_, err := r.db.Writer.ExecContext(ctx, query, a.UserID, a.EcosystemID, nullableID(a.AssignedBy), formatTime(assignedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("assign user %d to ecosystem %d: %w", a.UserID, a.EcosystemID, driven.ErrDuplicate)
		}
		return fmt.Errorf("assign user %d to ecosystem %d: %w", a.UserID, a.EcosystemID, err)
	}
	return nil
}
