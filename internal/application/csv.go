package application

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// Table is a parsed import file: a lower-cased header and its data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// ParseCSV reads a comma-separated import file. The first record is the
// header; its names are trimmed and lower-cased. Quoted fields may contain
// commas and doubled quotes. Rows may be shorter or longer than the header.
func ParseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrValidation, err)
	}

	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	table := &Table{Header: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		table.Rows = append(table.Rows, record)
	}

	if len(table.Rows) == 0 {
		return nil, ErrEmptyTable
	}

	return table, nil
}

// columnSchema is the closed set of columns one import kind accepts.
type columnSchema struct {
	required []string
	optional []string
}

var importSchemas = map[model.ImportKind]columnSchema{
	model.ImportUsers: {
		required: []string{"email", "name"},
		optional: []string{"ecitizen_id", "role"},
	},
	model.ImportEcosystems: {
		required: []string{"name", "theme"},
		optional: []string{"description", "active_status"},
	},
	model.ImportPlatforms: {
		required: []string{"ecosystem_name", "platform_name", "platform_type"},
		optional: []string{"username", "password", "profile_id", "profile_url", "totp_enabled", "totp_secret"},
	},
	model.ImportAssignments: {
		required: []string{"user_email", "ecosystem_name"},
		optional: []string{"assigned_by_email"},
	},
}

// checkHeader rejects headers that miss a required column or carry a column
// the kind does not accept.
func checkHeader(kind model.ImportKind, header []string) error {
	schema, ok := importSchemas[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownImportKind, kind)
	}

	var missing []string
	for _, col := range schema.required {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var unknown []string
	for _, col := range header {
		if !slices.Contains(schema.required, col) && !slices.Contains(schema.optional, col) {
			unknown = append(unknown, col)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownColumns, strings.Join(unknown, ", "))
	}

	return nil
}

// row is one data record keyed by header column.
type row struct {
	number int
	cells  map[string]string
}

func newRow(number int, header, record []string) row {
	cells := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(record) {
			cells[col] = strings.TrimSpace(record[i])
		}
	}
	return row{number: number, cells: cells}
}

// get returns the trimmed cell for col, or "" when absent.
func (r row) get(col string) string {
	return r.cells[col]
}

// optional returns nil for an absent or empty cell.
func (r row) optional(col string) *string {
	v, ok := r.cells[col]
	if !ok || v == "" {
		return nil
	}
	return &v
}

func (r row) require(cols ...string) error {
	var missing []string
	for _, col := range cols {
		if r.get(col) == "" {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// parseFlag reads a boolean cell. Empty cells yield nil.
func parseFlag(r row, col string) (*bool, error) {
	v := strings.ToLower(r.get(col))
	var b bool
	switch v {
	case "":
		return nil, nil
	case "true", "1", "yes":
		b = true
	case "false", "0", "no":
		b = false
	default:
		return nil, fmt.Errorf("%w: %s must be true or false, got %q", ErrValidation, col, v)
	}
	return &b, nil
}

// Typed records, one per import kind.

type userRecord struct {
	email      string
	name       string
	ecitizenID string
	role       model.Role
}

func decodeUser(r row) (userRecord, error) {
	if err := r.require("email", "name"); err != nil {
		return userRecord{}, err
	}
	email := strings.ToLower(r.get("email"))
	if !strings.Contains(email, "@") {
		return userRecord{}, fmt.Errorf("%w: invalid email %q", ErrValidation, email)
	}

	role := model.RoleUser
	if v := r.get("role"); v != "" {
		role = model.Role(strings.ToLower(v))
		if !role.Valid() {
			return userRecord{}, fmt.Errorf("%w: role must be admin or user, got %q", ErrValidation, v)
		}
	}

	return userRecord{email: email, name: r.get("name"), ecitizenID: r.get("ecitizen_id"), role: role}, nil
}

type ecosystemRecord struct {
	name        string
	theme       string
	description string
	active      bool
}

func decodeEcosystem(r row) (ecosystemRecord, error) {
	if err := r.require("name", "theme"); err != nil {
		return ecosystemRecord{}, err
	}
	active, err := parseFlag(r, "active_status")
	if err != nil {
		return ecosystemRecord{}, err
	}

	rec := ecosystemRecord{name: r.get("name"), theme: r.get("theme"), description: r.get("description"), active: true}
	if active != nil {
		rec.active = *active
	}
	return rec, nil
}

type platformRecord struct {
	ecosystemName string
	name          string
	platformType  string
	username      *string
	password      *string
	profileID     *string
	profileURL    *string
	totpSecret    *string
	totpEnabled   *bool
}

func decodePlatform(r row) (platformRecord, error) {
	if err := r.require("ecosystem_name", "platform_name", "platform_type"); err != nil {
		return platformRecord{}, err
	}
	enabled, err := parseFlag(r, "totp_enabled")
	if err != nil {
		return platformRecord{}, err
	}

	return platformRecord{
		ecosystemName: r.get("ecosystem_name"),
		name:          r.get("platform_name"),
		platformType:  r.get("platform_type"),
		username:      r.optional("username"),
		password:      r.optional("password"),
		profileID:     r.optional("profile_id"),
		profileURL:    r.optional("profile_url"),
		totpSecret:    r.optional("totp_secret"),
		totpEnabled:   enabled,
	}, nil
}

type assignmentRecord struct {
	userEmail       string
	ecosystemName   string
	assignedByEmail string
}

func decodeAssignment(r row) (assignmentRecord, error) {
	if err := r.require("user_email", "ecosystem_name"); err != nil {
		return assignmentRecord{}, err
	}
	return assignmentRecord{
		userEmail:       r.get("user_email"),
		ecosystemName:   r.get("ecosystem_name"),
		assignedByEmail: r.get("assigned_by_email"),
	}, nil
}
