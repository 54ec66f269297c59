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

// Compile-time interface satisfaction check.
var _ driven.PlatformStore = (*PlatformRepo)(nil)

const (
	defaultPageLimit = 12
	maxPageLimit     = 100
)

const platformColumns = `id, ecosystem_id, platform_name, platform_type, username, password,
	profile_id, profile_url, totp_secret, totp_enabled, version, created_at, updated_at`

// PlatformRepo is the SQLite implementation of the PlatformStore port.
// Secret columns hold ciphertext produced by the application's codec; this
// repo never sees plaintext.
type PlatformRepo struct {
	db *DB
}

// NewPlatformRepo creates a new PlatformRepo backed by the given DB.
func NewPlatformRepo(db *DB) *PlatformRepo {
	return &PlatformRepo{db: db}
}

// Get retrieves a platform by id.
func (r *PlatformRepo) Get(ctx context.Context, id int64) (*model.PlatformCredential, error) {
	query := `SELECT ` + platformColumns + ` FROM platforms WHERE id = ?`

	p, err := scanPlatform(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get platform %d: %w", id, driven.ErrPlatformNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get platform %d: %w", id, err)
	}
	return p, nil
}

// FindByKey retrieves a platform by its natural key. Name and type compare
// case-insensitively through the columns' NOCASE collation.
func (r *PlatformRepo) FindByKey(ctx context.Context, ecosystemID int64, name, platformType string) (*model.PlatformCredential, error) {
	query := `SELECT ` + platformColumns + `
		FROM platforms
		WHERE ecosystem_id = ? AND platform_name = ? AND platform_type = ?`

	p, err := scanPlatform(r.db.Reader.QueryRowContext(ctx, query, ecosystemID, name, platformType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find platform %q/%q in ecosystem %d: %w", name, platformType, ecosystemID, err)
	}
	return p, nil
}

// List returns one page of an ecosystem's platforms ordered by name. Search
// matches name, type or profile URL as a case-insensitive substring.
func (r *PlatformRepo) List(ctx context.Context, ecosystemID int64, filter model.PlatformFilter) (model.PlatformPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	where := []string{"ecosystem_id = ?"}
	args := []any{ecosystemID}

	if filter.Search != "" {
		pattern := likePattern(filter.Search)
		where = append(where, `(platform_name LIKE ? ESCAPE '\' OR platform_type LIKE ? ESCAPE '\' OR profile_url LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Type != "" {
		where = append(where, `platform_type LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(filter.Type))
	}
	if filter.TOTP != nil {
		where = append(where, "totp_enabled = ?")
		args = append(args, boolInt(*filter.TOTP))
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM platforms WHERE `+clause, args...).Scan(&total); err != nil {
		return model.PlatformPage{}, fmt.Errorf("count platforms for ecosystem %d: %w", ecosystemID, err)
	}

	query := `SELECT ` + platformColumns + ` FROM platforms WHERE ` + clause + `
		ORDER BY platform_name, platform_type
		LIMIT ? OFFSET ?`
	rows, err := r.db.Reader.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return model.PlatformPage{}, fmt.Errorf("list platforms for ecosystem %d: %w", ecosystemID, err)
	}
	defer rows.Close()

	items := []model.PlatformCredential{}
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return model.PlatformPage{}, fmt.Errorf("scan platform: %w", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return model.PlatformPage{}, fmt.Errorf("iterate platforms: %w", err)
	}

	return model.PlatformPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Create inserts a new platform. No history is written for creation.
func (r *PlatformRepo) Create(ctx context.Context, p model.NewPlatform) (*model.PlatformCredential, error) {
	const query = `
		INSERT INTO platforms (
			ecosystem_id, platform_name, platform_type, username, password,
			profile_id, profile_url, totp_secret, totp_enabled, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	stamp := p.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	now := formatTime(stamp)
	res, err := r.db.Writer.ExecContext(ctx, query,
		p.EcosystemID, p.Name, p.Type, nullableString(p.Username), nullableString(p.Password),
		p.ProfileID, p.ProfileURL, nullableString(p.TOTPSecret), boolInt(p.TOTPEnabled), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create platform %q/%q: %w", p.Name, p.Type, driven.ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create platform %q/%q: %w", p.Name, p.Type, driven.ErrEcosystemNotFound)
		}
		return nil, fmt.Errorf("create platform %q/%q: %w", p.Name, p.Type, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read platform id: %w", err)
	}

	created, err := scanPlatform(r.db.Writer.QueryRowContext(ctx, `SELECT `+platformColumns+` FROM platforms WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("reload platform %d: %w", id, err)
	}
	return created, nil
}

// Mutate runs the read-diff-write cycle for one platform inside a single
// writer transaction. The field update is guarded by the version read at the
// start of the transaction and every staged history entry is inserted before
// commit, so the record and its ledger rows land together or not at all.
func (r *PlatformRepo) Mutate(ctx context.Context, id int64, fn driven.MutateFunc) (*model.PlatformCredential, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	selectQuery := `SELECT ` + platformColumns + ` FROM platforms WHERE id = ?`

	current, err := scanPlatform(tx.QueryRowContext(ctx, selectQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mutate platform %d: %w", id, driven.ErrPlatformNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load platform %d: %w", id, err)
	}

	changes, err := fn(*current)
	if err != nil {
		return nil, err
	}
	if changes.IsEmpty() {
		return current, nil
	}

	if err := applyChanges(ctx, tx, *current, changes); err != nil {
		return nil, err
	}

	for _, entry := range changes.History {
		entry.PlatformID = id
		if err := insertHistory(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	updated, err := scanPlatform(tx.QueryRowContext(ctx, selectQuery, id))
	if err != nil {
		return nil, fmt.Errorf("reload platform %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit platform %d: %w", id, err)
	}

	return updated, nil
}

func applyChanges(ctx context.Context, tx *sql.Tx, current model.PlatformCredential, c model.CredentialChangeSet) error {
	var sets []string
	var args []any

	if c.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, nullableString(c.Username.Value))
	}
	if c.Password != nil {
		sets = append(sets, "password = ?")
		args = append(args, nullableString(c.Password.Value))
	}
	if c.TOTPSecret != nil {
		sets = append(sets, "totp_secret = ?")
		args = append(args, nullableString(c.TOTPSecret.Value))
	}
	if c.ProfileID != nil {
		sets = append(sets, "profile_id = ?")
		args = append(args, *c.ProfileID)
	}
	if c.ProfileURL != nil {
		sets = append(sets, "profile_url = ?")
		args = append(args, *c.ProfileURL)
	}
	if c.TOTPEnabled != nil {
		sets = append(sets, "totp_enabled = ?")
		args = append(args, boolInt(*c.TOTPEnabled))
	}

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	sets = append(sets, "version = version + 1", "updated_at = ?")
	args = append(args, formatTime(updatedAt), current.ID, current.Version)

	query := `UPDATE platforms SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, query, args...)
	if isStaleSnapshot(err) {
		return fmt.Errorf("update platform %d at version %d: %w", current.ID, current.Version, driven.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update platform %d: %w", current.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update platform %d at version %d: %w", current.ID, current.Version, driven.ErrConflict)
	}

	return nil
}

func scanPlatform(s scanner) (*model.PlatformCredential, error) {
	var p model.PlatformCredential
	var username, password, totpSecret sql.NullString
	var totpEnabled int
	var createdAt, updatedAt string

	err := s.Scan(
		&p.ID, &p.EcosystemID, &p.Name, &p.Type, &username, &password,
		&p.ProfileID, &p.ProfileURL, &totpSecret, &totpEnabled, &p.Version,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Username = stringPtr(username)
	p.Password = stringPtr(password)
	p.TOTPSecret = stringPtr(totpSecret)
	p.TOTPEnabled = totpEnabled != 0

	p.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &p, nil
}

// likePattern wraps s for a substring LIKE match, escaping LIKE wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
