package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// EcosystemService manages ecosystems and decides which ones an actor may
// reach. Admins reach every ecosystem; other users only those they are
// assigned to.
type EcosystemService struct {
	ecosystems  driven.EcosystemStore
	assignments driven.AssignmentStore
	platforms   driven.PlatformStore
	logger      *slog.Logger
}

// NewEcosystemService creates a new EcosystemService. A nil logger uses
// slog.Default().
func NewEcosystemService(
	ecosystems driven.EcosystemStore,
	assignments driven.AssignmentStore,
	platforms driven.PlatformStore,
	logger *slog.Logger,
) *EcosystemService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EcosystemService{
		ecosystems:  ecosystems,
		assignments: assignments,
		platforms:   platforms,
		logger:      logger,
	}
}

// RequireAdmin fails with ErrForbidden unless actor is an admin.
func RequireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// AuthorizeEcosystem fails with ErrForbidden unless actor may act on the
// ecosystem.
func (s *EcosystemService) AuthorizeEcosystem(ctx context.Context, actor model.Actor, ecosystemID int64) error {
	if actor.IsAdmin() {
		return nil
	}
	ok, err := s.assignments.Exists(ctx, actor.UserID, ecosystemID)
	if err != nil {
		return fmt.Errorf("check access to ecosystem %d: %w", ecosystemID, err)
	}
	if !ok {
		return fmt.Errorf("ecosystem %d: %w", ecosystemID, ErrForbidden)
	}
	return nil
}

// AuthorizePlatform fails with ErrForbidden unless actor may act on the
// ecosystem owning the platform. Returns ErrPlatformNotFound for an unknown
// platform.
func (s *EcosystemService) AuthorizePlatform(ctx context.Context, actor model.Actor, platformID int64) error {
	p, err := s.platforms.Get(ctx, platformID)
	if err != nil {
		return err
	}
	return s.AuthorizeEcosystem(ctx, actor, p.EcosystemID)
}

// List returns the ecosystems visible to actor, ordered by name.
func (s *EcosystemService) List(ctx context.Context, actor model.Actor) ([]model.Ecosystem, error) {
	all, err := s.ecosystems.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return all, nil
	}

	ids, err := s.assignments.EcosystemIDsForUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	allowed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}

	visible := []model.Ecosystem{}
	for _, eco := range all {
		if allowed[eco.ID] {
			visible = append(visible, eco)
		}
	}
	return visible, nil
}

// Create registers a new ecosystem. Admin only.
func (s *EcosystemService) Create(ctx context.Context, actor model.Actor, eco model.Ecosystem) (*model.Ecosystem, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}

	eco.Name = strings.TrimSpace(eco.Name)
	eco.Theme = strings.TrimSpace(eco.Theme)
	if eco.Name == "" || eco.Theme == "" {
		return nil, fmt.Errorf("%w: ecosystem name and theme are required", ErrValidation)
	}

	created, err := s.ecosystems.Create(ctx, eco)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ecosystem created", "ecosystem_id", created.ID, "name", created.Name, "actor_id", actor.UserID)
	return created, nil
}

// SetActive soft-activates or deactivates an ecosystem. Admin only.
func (s *EcosystemService) SetActive(ctx context.Context, actor model.Actor, ecosystemID int64, active bool) error {
	if err := RequireAdmin(actor); err != nil {
		return err
	}
	if err := s.ecosystems.SetActive(ctx, ecosystemID, active); err != nil {
		return err
	}

	s.logger.Info("ecosystem status changed", "ecosystem_id", ecosystemID, "active", active, "actor_id", actor.UserID)
	return nil
}
