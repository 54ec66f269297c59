package application_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

var baseTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

// --- Codec ---

// fakeCodec produces a fresh ciphertext on every call so tests catch
// ciphertext-to-ciphertext comparisons.
type fakeCodec struct {
	n int
}

func (c *fakeCodec) Encrypt(plaintext string) (string, error) {
	c.n++
	return fmt.Sprintf("enc:%d:%s", c.n, base64.StdEncoding.EncodeToString([]byte(plaintext))), nil
}

func (c *fakeCodec) Decrypt(ciphertext string) (string, error) {
	parts := strings.SplitN(ciphertext, ":", 3)
	if len(parts) != 3 || parts[0] != "enc" {
		return "", fmt.Errorf("%w: malformed", driven.ErrDecryption)
	}
	raw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: not base64", driven.ErrDecryption)
	}
	return string(raw), nil
}

// --- TOTP verifier ---

const (
	goodSeed = "JBSWY3DPEHPK3PXP"
	goodCode = "123456"
)

type fakeVerifier struct {
	calls int
}

func (v *fakeVerifier) Verify(code, seed string) (bool, error) {
	v.calls++
	if strings.ContainsAny(seed, "018!") {
		return false, fmt.Errorf("%w: not base32", driven.ErrInvalidSeed)
	}
	return code == goodCode && seed == goodSeed, nil
}

// --- Platform store ---

type fakePlatformStore struct {
	platforms   map[int64]*model.PlatformCredential
	history     []model.CredentialHistoryEntry
	nextID      int64
	failHistory bool
}

func newFakePlatformStore() *fakePlatformStore {
	return &fakePlatformStore{platforms: map[int64]*model.PlatformCredential{}}
}

func (s *fakePlatformStore) Get(_ context.Context, id int64) (*model.PlatformCredential, error) {
	p, ok := s.platforms[id]
	if !ok {
		return nil, fmt.Errorf("get platform %d: %w", id, driven.ErrPlatformNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *fakePlatformStore) FindByKey(_ context.Context, ecosystemID int64, name, platformType string) (*model.PlatformCredential, error) {
	for _, p := range s.platforms {
		if p.EcosystemID == ecosystemID && strings.EqualFold(p.Name, name) && strings.EqualFold(p.Type, platformType) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakePlatformStore) List(_ context.Context, ecosystemID int64, filter model.PlatformFilter) (model.PlatformPage, error) {
	items := []model.PlatformCredential{}
	for _, p := range s.platforms {
		if p.EcosystemID == ecosystemID {
			items = append(items, *p)
		}
	}
	slices.SortFunc(items, func(a, b model.PlatformCredential) int { return strings.Compare(a.Name, b.Name) })
	return model.PlatformPage{Items: items, Total: len(items), Page: 1, Limit: 12}, nil
}

func (s *fakePlatformStore) Create(_ context.Context, np model.NewPlatform) (*model.PlatformCredential, error) {
	if existing, _ := s.FindByKey(context.Background(), np.EcosystemID, np.Name, np.Type); existing != nil {
		return nil, driven.ErrDuplicate
	}
	s.nextID++
	p := &model.PlatformCredential{
		ID:          s.nextID,
		EcosystemID: np.EcosystemID,
		Name:        np.Name,
		Type:        np.Type,
		Username:    np.Username,
		Password:    np.Password,
		ProfileID:   np.ProfileID,
		ProfileURL:  np.ProfileURL,
		TOTPSecret:  np.TOTPSecret,
		TOTPEnabled: np.TOTPEnabled,
		Version:     1,
		CreatedAt:   np.CreatedAt,
		UpdatedAt:   np.CreatedAt,
	}
	s.platforms[p.ID] = p
	cp := *p
	return &cp, nil
}

// Mutate applies the change set and its history together, or neither.
func (s *fakePlatformStore) Mutate(_ context.Context, id int64, fn driven.MutateFunc) (*model.PlatformCredential, error) {
	current, ok := s.platforms[id]
	if !ok {
		return nil, fmt.Errorf("mutate platform %d: %w", id, driven.ErrPlatformNotFound)
	}

	changes, err := fn(*current)
	if err != nil {
		return nil, err
	}
	if changes.IsEmpty() {
		cp := *current
		return &cp, nil
	}
	if s.failHistory && len(changes.History) > 0 {
		return nil, errors.New("insert history: disk full")
	}

	next := *current
	if changes.Username != nil {
		next.Username = changes.Username.Value
	}
	if changes.Password != nil {
		next.Password = changes.Password.Value
	}
	if changes.TOTPSecret != nil {
		next.TOTPSecret = changes.TOTPSecret.Value
	}
	if changes.ProfileID != nil {
		next.ProfileID = *changes.ProfileID
	}
	if changes.ProfileURL != nil {
		next.ProfileURL = *changes.ProfileURL
	}
	if changes.TOTPEnabled != nil {
		next.TOTPEnabled = *changes.TOTPEnabled
	}
	next.Version++
	next.UpdatedAt = changes.UpdatedAt

	for _, e := range changes.History {
		e.PlatformID = id
		s.history = append(s.history, e)
	}
	s.platforms[id] = &next

	cp := next
	return &cp, nil
}

// ListByPlatform satisfies driven.HistoryStore, newest first.
func (s *fakePlatformStore) ListByPlatform(_ context.Context, platformID int64) ([]model.CredentialHistoryEntry, error) {
	out := []model.CredentialHistoryEntry{}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].PlatformID == platformID {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}

func (s *fakePlatformStore) historyFor(platformID int64) []model.CredentialHistoryEntry {
	out, _ := s.ListByPlatform(context.Background(), platformID)
	return out
}

// --- Ecosystem store ---

type fakeEcosystemStore struct {
	items   []model.Ecosystem
	listErr error
}

func (s *fakeEcosystemStore) find(name string) int {
	for i, e := range s.items {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}

func (s *fakeEcosystemStore) Get(_ context.Context, id int64) (*model.Ecosystem, error) {
	for _, e := range s.items {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, driven.ErrEcosystemNotFound
}

func (s *fakeEcosystemStore) GetByName(_ context.Context, name string) (*model.Ecosystem, error) {
	if i := s.find(name); i >= 0 {
		cp := s.items[i]
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeEcosystemStore) ListAll(_ context.Context) ([]model.Ecosystem, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return slices.Clone(s.items), nil
}

func (s *fakeEcosystemStore) Create(_ context.Context, eco model.Ecosystem) (*model.Ecosystem, error) {
	if s.find(eco.Name) >= 0 {
		return nil, driven.ErrDuplicate
	}
	eco.ID = int64(len(s.items) + 1)
	s.items = append(s.items, eco)
	return &eco, nil
}

func (s *fakeEcosystemStore) Upsert(ctx context.Context, eco model.Ecosystem) (*model.Ecosystem, error) {
	if i := s.find(eco.Name); i >= 0 {
		s.items[i].Theme = eco.Theme
		s.items[i].Description = eco.Description
		s.items[i].ActiveStatus = eco.ActiveStatus
		cp := s.items[i]
		return &cp, nil
	}
	return s.Create(ctx, eco)
}

func (s *fakeEcosystemStore) SetActive(_ context.Context, id int64, active bool) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].ActiveStatus = active
			return nil
		}
	}
	return driven.ErrEcosystemNotFound
}

// --- User and assignment stores ---

type fakeUserStore struct {
	items     []model.User
	upsertErr error
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range s.items {
		if strings.EqualFold(u.Email, email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) ListAll(_ context.Context) ([]model.User, error) {
	return slices.Clone(s.items), nil
}

func (s *fakeUserStore) Upsert(_ context.Context, user model.User) (*model.User, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	for i, u := range s.items {
		if strings.EqualFold(u.Email, user.Email) {
			user.ID = u.ID
			s.items[i] = user
			return &user, nil
		}
	}
	user.ID = int64(len(s.items) + 1)
	s.items = append(s.items, user)
	return &user, nil
}

type fakeAssignmentStore struct {
	items []model.UserEcosystem
}

func (s *fakeAssignmentStore) Exists(_ context.Context, userID, ecosystemID int64) (bool, error) {
	for _, a := range s.items {
		if a.UserID == userID && a.EcosystemID == ecosystemID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeAssignmentStore) EcosystemIDsForUser(_ context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for _, a := range s.items {
		if a.UserID == userID {
			ids = append(ids, a.EcosystemID)
		}
	}
	return ids, nil
}

func (s *fakeAssignmentStore) Create(ctx context.Context, a model.UserEcosystem) error {
	if ok, _ := s.Exists(ctx, a.UserID, a.EcosystemID); ok {
		return driven.ErrDuplicate
	}
	s.items = append(s.items, a)
	return nil
}

// --- Profile source ---

type fakeProfileSource struct {
	profiles []model.ExternalProfile
	err      error
}

func (s *fakeProfileSource) ListProfiles(_ context.Context) ([]model.ExternalProfile, error) {
	return s.profiles, s.err
}

func strPtr(s string) *string { return &s }
