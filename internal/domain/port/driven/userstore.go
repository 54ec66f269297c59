package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserStore defines the driven port for user persistence.
type UserStore interface {
	// GetByEmail matches case-insensitively. Returns nil, nil when absent.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListAll(ctx context.Context) ([]model.User, error)
	// Upsert updates name, ecitizen id and role of the user with the same
	// email, or creates it.
	Upsert(ctx context.Context, user model.User) (*model.User, error)
}

// AssignmentStore defines the driven port for user-ecosystem assignments.
type AssignmentStore interface {
	Exists(ctx context.Context, userID, ecosystemID int64) (bool, error)
	// EcosystemIDsForUser returns the ids of every ecosystem the user is
	// assigned to.
	EcosystemIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	// Create returns ErrDuplicate if the assignment already exists.
	Create(ctx context.Context, a model.UserEcosystem) error
}
