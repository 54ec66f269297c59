package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// PlatformRegistration is the input for registering a platform. Username and
// Password are plaintext; nil or empty means absent.
type PlatformRegistration struct {
	EcosystemID int64
	Name        string
	Type        string
	Username    *string
	Password    *string
	ProfileID   string
	ProfileURL  string
	// TOTPSecret is a plaintext base32 seed stored with the platform.
	TOTPSecret  *string
	TOTPEnabled bool
}

// PlatformListing is one page of platforms with username and password
// decrypted.
type PlatformListing struct {
	Items []model.RevealedCredential
	Total int
	Page  int
	Limit int
}

// TotalPages returns the number of pages needed for Total items.
func (l PlatformListing) TotalPages() int {
	return model.PlatformPage{Total: l.Total, Limit: l.Limit}.TotalPages()
}

// CredentialService owns the credential lifecycle: registration, the
// diff-and-write update protocol, TOTP enrollment and the history ledger.
// Every mutation runs through PlatformStore.Mutate so field writes and their
// history entries commit together.
type CredentialService struct {
	platforms driven.PlatformStore
	history   driven.HistoryStore
	codec     driven.Codec
	verifier  driven.TOTPVerifier
	clock     clock.Clock
	logger    *slog.Logger
}

// NewCredentialService creates a new CredentialService. A nil clk uses the
// wall clock and a nil logger uses slog.Default().
func NewCredentialService(
	platforms driven.PlatformStore,
	history driven.HistoryStore,
	codec driven.Codec,
	verifier driven.TOTPVerifier,
	clk clock.Clock,
	logger *slog.Logger,
) *CredentialService {
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		platforms: platforms,
		history:   history,
		codec:     codec,
		verifier:  verifier,
		clock:     clk,
		logger:    logger,
	}
}

// RegisterPlatform creates a platform under an ecosystem in one insert. A
// TOTP seed is validated before anything is written. No history entry is
// written for creation.
func (s *CredentialService) RegisterPlatform(ctx context.Context, reg PlatformRegistration, actorID int64) (*model.RevealedCredential, error) {
	name := strings.TrimSpace(reg.Name)
	platformType := strings.TrimSpace(reg.Type)
	if name == "" || platformType == "" {
		return nil, fmt.Errorf("%w: platform name and type are required", ErrValidation)
	}
	if reg.TOTPEnabled && reg.TOTPSecret == nil {
		return nil, fmt.Errorf("%w: TOTP cannot be enabled without a secret", ErrValidation)
	}

	var totpSecret *string
	if reg.TOTPSecret != nil {
		seed, err := s.checkSeed(*reg.TOTPSecret)
		if err != nil {
			return nil, err
		}
		ciphertext, err := s.codec.Encrypt(seed)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", model.FieldTOTPSecret, err)
		}
		totpSecret = &ciphertext
	}

	username, err := s.encryptOptional(reg.Username)
	if err != nil {
		return nil, err
	}
	password, err := s.encryptOptional(reg.Password)
	if err != nil {
		return nil, err
	}

	created, err := s.platforms.Create(ctx, model.NewPlatform{
		EcosystemID: reg.EcosystemID,
		Name:        name,
		Type:        platformType,
		Username:    username,
		Password:    password,
		ProfileID:   strings.TrimSpace(reg.ProfileID),
		ProfileURL:  strings.TrimSpace(reg.ProfileURL),
		TOTPSecret:  totpSecret,
		TOTPEnabled: reg.TOTPEnabled,
		CreatedAt:   s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("platform registered",
		"platform_id", created.ID,
		"ecosystem_id", created.EcosystemID,
		"platform", created.Name,
		"actor_id", actorID,
	)

	return s.reveal(*created)
}

// UpdateCredential applies the proposed fields with diff-and-write semantics.
// Each audited field is compared against its current decrypted value; only
// fields that differ are written, each with one history entry. A proposal
// identical to the stored state writes nothing and leaves updated_at as is.
// An empty proposed username or password clears the stored secret.
func (s *CredentialService) UpdateCredential(ctx context.Context, platformID int64, update model.CredentialUpdate, actorID int64) (*model.RevealedCredential, error) {
	now := s.clock.Now().UTC()

	stored, err := s.platforms.Mutate(ctx, platformID, func(current model.PlatformCredential) (model.CredentialChangeSet, error) {
		if update.ExpectedVersion != nil && *update.ExpectedVersion != current.Version {
			return model.CredentialChangeSet{}, fmt.Errorf("platform %d is at version %d, expected %d: %w",
				platformID, current.Version, *update.ExpectedVersion, driven.ErrConflict)
		}
		return s.diff(current, update, actorID, now)
	})
	if err != nil {
		return nil, err
	}

	return s.reveal(*stored)
}

func (s *CredentialService) diff(current model.PlatformCredential, update model.CredentialUpdate, actorID int64, now time.Time) (model.CredentialChangeSet, error) {
	changes := model.CredentialChangeSet{UpdatedAt: now}
	stamp := func(e model.CredentialHistoryEntry) model.CredentialHistoryEntry {
		e.PlatformID = current.ID
		e.ChangedBy = &actorID
		e.ChangedAt = now
		return e
	}

	if update.Username != nil {
		write, entry, err := s.diffSecret(model.FieldUsername, current.Username, *update.Username)
		if err != nil {
			return model.CredentialChangeSet{}, err
		}
		if write != nil {
			changes.Username = write
			changes.History = append(changes.History, stamp(*entry))
		}
	}

	if update.Password != nil {
		write, entry, err := s.diffSecret(model.FieldPassword, current.Password, *update.Password)
		if err != nil {
			return model.CredentialChangeSet{}, err
		}
		if write != nil {
			changes.Password = write
			changes.History = append(changes.History, stamp(*entry))
		}
	}

	if update.ProfileID != nil {
		proposed := strings.TrimSpace(*update.ProfileID)
		if proposed != current.ProfileID {
			changes.ProfileID = &proposed
			changes.History = append(changes.History, stamp(model.CredentialHistoryEntry{
				Field:    model.FieldProfileID,
				OldValue: emptyAsNil(current.ProfileID),
				NewValue: emptyAsNil(proposed),
			}))
		}
	}

	// profile_url is plaintext metadata and is not audited.
	if update.ProfileURL != nil {
		proposed := strings.TrimSpace(*update.ProfileURL)
		if proposed != current.ProfileURL {
			changes.ProfileURL = &proposed
		}
	}

	return changes, nil
}

// diffSecret compares a proposed plaintext with the decrypted stored value.
// It returns nil when they match. An absent stored value compares as "".
func (s *CredentialService) diffSecret(field model.CredentialField, stored *string, proposed string) (*model.ColumnWrite, *model.CredentialHistoryEntry, error) {
	current := ""
	if stored != nil && *stored != "" {
		plain, err := s.codec.Decrypt(*stored)
		if err != nil {
			return nil, nil, fmt.Errorf("decrypt current %s: %w", field, err)
		}
		current = plain
	}
	if current == proposed {
		return nil, nil, nil
	}

	newValue, err := s.encryptOptional(&proposed)
	if err != nil {
		return nil, nil, err
	}

	return &model.ColumnWrite{Value: newValue},
		&model.CredentialHistoryEntry{Field: field, OldValue: stored, NewValue: newValue},
		nil
}

// EnrollTOTP stores seed for the platform and enables TOTP. When testCode is
// non-empty it must verify against seed or the call fails with ErrInvalidCode
// and nothing is written. Enrolling the seed that is already enabled is a
// no-op. A seed change is recorded in the history ledger.
func (s *CredentialService) EnrollTOTP(ctx context.Context, platformID int64, seed, testCode string, actorID int64) error {
	seed = model.NormalizeTOTPSeed(seed)
	if seed == "" {
		return ErrEmptySeed
	}
	testCode = strings.TrimSpace(testCode)

	// Verify runs even without a test code so malformed seeds are rejected.
	ok, err := s.verifier.Verify(testCode, seed)
	if err != nil {
		return err
	}
	if testCode != "" && !ok {
		return ErrInvalidCode
	}

	now := s.clock.Now().UTC()

	_, err = s.platforms.Mutate(ctx, platformID, func(current model.PlatformCredential) (model.CredentialChangeSet, error) {
		changes := model.CredentialChangeSet{UpdatedAt: now}
		if err := s.stageSeed(current, seed, actorID, now, &changes); err != nil {
			return model.CredentialChangeSet{}, err
		}
		if !current.TOTPEnabled {
			enabled := true
			changes.TOTPEnabled = &enabled
		}
		return changes, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("totp enrolled", "platform_id", platformID, "actor_id", actorID, "live_checked", testCode != "")
	return nil
}

// checkSeed normalizes seed and rejects one that is blank or not base32.
func (s *CredentialService) checkSeed(seed string) (string, error) {
	seed = model.NormalizeTOTPSeed(seed)
	if seed == "" {
		return "", ErrEmptySeed
	}
	if _, err := s.verifier.Verify("", seed); err != nil {
		return "", err
	}
	return seed, nil
}

// stageSeed adds an audited totp_secret write to changes unless seed equals
// the stored seed. seed must already be normalized.
func (s *CredentialService) stageSeed(current model.PlatformCredential, seed string, actorID int64, now time.Time, changes *model.CredentialChangeSet) error {
	if current.HasTOTPSecret() {
		plain, err := s.codec.Decrypt(*current.TOTPSecret)
		if err != nil {
			return fmt.Errorf("decrypt current %s: %w", model.FieldTOTPSecret, err)
		}
		if plain == seed {
			return nil
		}
	}

	ciphertext, err := s.codec.Encrypt(seed)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", model.FieldTOTPSecret, err)
	}
	changes.TOTPSecret = &model.ColumnWrite{Value: &ciphertext}
	changes.History = append(changes.History, model.CredentialHistoryEntry{
		PlatformID: current.ID,
		Field:      model.FieldTOTPSecret,
		OldValue:   current.TOTPSecret,
		NewValue:   &ciphertext,
		ChangedBy:  &actorID,
		ChangedAt:  now,
	})
	return nil
}

// applyImported writes one imported row to an existing platform in a single
// transaction: the credential diff, an optional seed (which enables TOTP
// unless enabled says otherwise) and an optional totp_enabled value. Any
// failure leaves the platform untouched.
func (s *CredentialService) applyImported(ctx context.Context, platformID int64, update model.CredentialUpdate, seed *string, enabled *bool, actorID int64) error {
	var normalized string
	if seed != nil {
		var err error
		if normalized, err = s.checkSeed(*seed); err != nil {
			return err
		}
		if enabled == nil {
			on := true
			enabled = &on
		}
	}

	now := s.clock.Now().UTC()
	_, err := s.platforms.Mutate(ctx, platformID, func(current model.PlatformCredential) (model.CredentialChangeSet, error) {
		changes, err := s.diff(current, update, actorID, now)
		if err != nil {
			return model.CredentialChangeSet{}, err
		}

		hasSecret := current.HasTOTPSecret()
		if seed != nil {
			if err := s.stageSeed(current, normalized, actorID, now, &changes); err != nil {
				return model.CredentialChangeSet{}, err
			}
			hasSecret = true
		}

		if enabled != nil && *enabled != current.TOTPEnabled {
			if *enabled && !hasSecret {
				return model.CredentialChangeSet{}, fmt.Errorf("%w: TOTP cannot be enabled without a secret", ErrValidation)
			}
			value := *enabled
			changes.TOTPEnabled = &value
		}
		return changes, nil
	})
	return err
}

// DisableTOTP turns TOTP off for the platform. The stored seed is kept.
func (s *CredentialService) DisableTOTP(ctx context.Context, platformID int64, actorID int64) error {
	now := s.clock.Now().UTC()
	_, err := s.platforms.Mutate(ctx, platformID, func(current model.PlatformCredential) (model.CredentialChangeSet, error) {
		if !current.TOTPEnabled {
			return model.CredentialChangeSet{}, nil
		}
		disabled := false
		return model.CredentialChangeSet{TOTPEnabled: &disabled, UpdatedAt: now}, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("totp disabled", "platform_id", platformID, "actor_id", actorID)
	return nil
}

// VerifyTOTP reports whether code is valid for seed at the current or the
// preceding time step.
func (s *CredentialService) VerifyTOTP(code, seed string) (bool, error) {
	return s.verifier.Verify(strings.TrimSpace(code), seed)
}

// GetPlatform returns a platform with username and password decrypted.
func (s *CredentialService) GetPlatform(ctx context.Context, platformID int64) (*model.RevealedCredential, error) {
	p, err := s.platforms.Get(ctx, platformID)
	if err != nil {
		return nil, err
	}
	return s.reveal(*p)
}

// ListPlatforms returns one page of an ecosystem's platforms with username
// and password decrypted.
func (s *CredentialService) ListPlatforms(ctx context.Context, ecosystemID int64, filter model.PlatformFilter) (*PlatformListing, error) {
	page, err := s.platforms.List(ctx, ecosystemID, filter)
	if err != nil {
		return nil, err
	}

	listing := &PlatformListing{
		Items: make([]model.RevealedCredential, 0, len(page.Items)),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for _, p := range page.Items {
		revealed, err := s.reveal(p)
		if err != nil {
			return nil, err
		}
		listing.Items = append(listing.Items, *revealed)
	}

	return listing, nil
}

// History returns the platform's ledger entries, newest first. Values are
// returned as stored.
func (s *CredentialService) History(ctx context.Context, platformID int64) ([]model.CredentialHistoryEntry, error) {
	if _, err := s.platforms.Get(ctx, platformID); err != nil {
		return nil, err
	}
	return s.history.ListByPlatform(ctx, platformID)
}

// encryptOptional encrypts a plaintext secret. Nil and empty input both map
// to an absent secret.
func (s *CredentialService) encryptOptional(plain *string) (*string, error) {
	if plain == nil || *plain == "" {
		return nil, nil
	}
	ciphertext, err := s.codec.Encrypt(*plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt secret: %w", err)
	}
	return &ciphertext, nil
}

func (s *CredentialService) reveal(p model.PlatformCredential) (*model.RevealedCredential, error) {
	out := &model.RevealedCredential{
		ID:          p.ID,
		EcosystemID: p.EcosystemID,
		Name:        p.Name,
		Type:        p.Type,
		ProfileID:   p.ProfileID,
		ProfileURL:  p.ProfileURL,
		TOTPEnabled: p.TOTPEnabled,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	if p.Username != nil && *p.Username != "" {
		plain, err := s.codec.Decrypt(*p.Username)
		if err != nil {
			return nil, fmt.Errorf("decrypt username of platform %d: %w", p.ID, err)
		}
		out.Username = plain
	}
	if p.Password != nil && *p.Password != "" {
		plain, err := s.codec.Decrypt(*p.Password)
		if err != nil {
			return nil, fmt.Errorf("decrypt password of platform %d: %w", p.ID, err)
		}
		out.Password = plain
	}

	return out, nil
}

func emptyAsNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
