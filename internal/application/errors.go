package application

import "errors"

// Sentinel errors returned by application services.
var (
	// ErrEmptySeed is returned when a TOTP enrollment supplies a blank seed.
	ErrEmptySeed = errors.New("TOTP seed is empty")

	// ErrInvalidCode is returned when a test code does not verify against the
	// seed being enrolled.
	ErrInvalidCode = errors.New("TOTP code is invalid")

	// ErrValidation marks input that fails a field-level rule, such as a
	// missing required value.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence marks a store failure while saving one import row.
	ErrPersistence = errors.New("could not save record")

	// ErrForbidden is returned when the actor may not act on the target.
	ErrForbidden = errors.New("forbidden")

	// ErrEmptyTable is returned for an import file with no data rows.
	ErrEmptyTable = errors.New("import file has no data rows")

	// ErrMissingColumns is returned when the header lacks a required column.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrUnknownColumns is returned when the header carries a column the
	// import kind does not accept.
	ErrUnknownColumns = errors.New("unknown columns")

	// ErrUnknownImportKind is returned for an unsupported import kind.
	ErrUnknownImportKind = errors.New("unknown import kind")
)
