package driven

import (
	"context"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
)

// ProfileSource is the read-only view of the external posting system's
// named profiles.
type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]model.ExternalProfile, error)
}
