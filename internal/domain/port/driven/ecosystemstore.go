package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// ErrEcosystemNotFound indicates the requested ecosystem does not exist.
var ErrEcosystemNotFound = errors.New("ecosystem not found")

// EcosystemStore defines the driven port for ecosystem persistence.
type EcosystemStore interface {
	Get(ctx context.Context, id int64) (*model.Ecosystem, error)
	// GetByName matches case-insensitively. Returns nil, nil when absent.
	GetByName(ctx context.Context, name string) (*model.Ecosystem, error)
	ListAll(ctx context.Context) ([]model.Ecosystem, error)
	Create(ctx context.Context, eco model.Ecosystem) (*model.Ecosystem, error)
	// Upsert updates theme, description and active status of the ecosystem
	// with the same name, or creates it.
	Upsert(ctx context.Context, eco model.Ecosystem) (*model.Ecosystem, error)
	SetActive(ctx context.Context, id int64, active bool) error
}
