package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// Sentinel errors returned by PlatformStore implementations.
var (
	// ErrPlatformNotFound indicates no platform matches the requested id or key.
	ErrPlatformNotFound = errors.New("platform not found")

	// ErrConflict indicates the platform was modified concurrently; the caller
	// should reload and retry.
	ErrConflict = errors.New("platform was modified concurrently")

	// ErrDuplicate indicates a record with the same natural key already exists.
	ErrDuplicate = errors.New("record already exists")
)

// MutateFunc computes the change set for a platform from its current stored
// state. It runs inside the store transaction; returning an error aborts the
// transaction with no state change.
type MutateFunc func(current model.PlatformCredential) (model.CredentialChangeSet, error)

// PlatformStore defines the driven port for platform credential persistence.
// Secret columns are stored and returned as ciphertext; encryption is the
// caller's concern.
type PlatformStore interface {
	// Get returns the platform with the given id or ErrPlatformNotFound.
	Get(ctx context.Context, id int64) (*model.PlatformCredential, error)

	// FindByKey returns the platform matching the (ecosystem, name, type)
	// natural key case-insensitively. Returns nil, nil when absent.
	FindByKey(ctx context.Context, ecosystemID int64, name, platformType string) (*model.PlatformCredential, error)

	// List returns one page of an ecosystem's platforms ordered by name.
	List(ctx context.Context, ecosystemID int64, filter model.PlatformFilter) (model.PlatformPage, error)

	// Create inserts a new platform. Returns ErrDuplicate on natural key
	// collision and ErrEcosystemNotFound when the ecosystem does not exist.
	Create(ctx context.Context, p model.NewPlatform) (*model.PlatformCredential, error)

	// Mutate loads the platform, calls fn with its current state and applies
	// the resulting field writes and history entries in a single transaction.
	// An empty change set commits nothing and returns the record unchanged.
	// Returns ErrPlatformNotFound, ErrConflict, or the error returned by fn.
	Mutate(ctx context.Context, id int64, fn MutateFunc) (*model.PlatformCredential, error)
}

// HistoryStore defines the read side of the append-only credential ledger.
// Entries are only ever written by PlatformStore.Mutate.
type HistoryStore interface {
	// ListByPlatform returns ledger entries for a platform, newest first.
	ListByPlatform(ctx context.Context, platformID int64) ([]model.CredentialHistoryEntry, error)
}
