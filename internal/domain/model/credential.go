package model

import (
	"strings"
	"time"
)

// PlatformCredential holds the stored secrets and metadata for one external
// account owned by an ecosystem. Username, Password and TOTPSecret carry
// ciphertext exactly as persisted; nil means the secret is absent.
type PlatformCredential struct {
	ID          int64
	EcosystemID int64
	Name        string
	Type        string
	Username    *string
	Password    *string
	ProfileID   string
	ProfileURL  string
	TOTPSecret  *string
	TOTPEnabled bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasTOTPSecret reports whether a TOTP seed is stored for the platform.
func (p PlatformCredential) HasTOTPSecret() bool {
	return p.TOTPSecret != nil && *p.TOTPSecret != ""
}

// RevealedCredential is a PlatformCredential with username and password
// decrypted for the immediate caller. It is never persisted.
type RevealedCredential struct {
	ID          int64
	EcosystemID int64
	Name        string
	Type        string
	Username    string
	Password    string
	ProfileID   string
	ProfileURL  string
	TOTPEnabled bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CredentialUpdate is the closed set of fields a caller may propose for a
// platform. Nil pointers leave the field untouched.
type CredentialUpdate struct {
	Username   *string
	Password   *string
	ProfileID  *string
	ProfileURL *string

	// ExpectedVersion, when set, must match the stored version or the
	// update fails with a conflict.
	ExpectedVersion *int64
}

// IsEmpty reports whether the update proposes no field at all.
func (u CredentialUpdate) IsEmpty() bool {
	return u.Username == nil && u.Password == nil && u.ProfileID == nil && u.ProfileURL == nil
}

// ColumnWrite replaces one nullable stored column. A nil Value clears it.
type ColumnWrite struct {
	Value *string
}

// CredentialChangeSet is the staged result of diffing a proposal against the
// current record. Stores apply it, together with History, in one transaction.
type CredentialChangeSet struct {
	Username    *ColumnWrite
	Password    *ColumnWrite
	TOTPSecret  *ColumnWrite
	ProfileID   *string
	ProfileURL  *string
	TOTPEnabled *bool
	History     []CredentialHistoryEntry

	// UpdatedAt stamps the record when the set is applied.
	UpdatedAt time.Time
}

// IsEmpty reports whether applying the change set would modify nothing.
func (c CredentialChangeSet) IsEmpty() bool {
	return c.Username == nil && c.Password == nil && c.TOTPSecret == nil &&
		c.ProfileID == nil && c.ProfileURL == nil && c.TOTPEnabled == nil
}

// NewPlatform is the input for registering a platform. Secret fields carry
// ciphertext; nil means absent.
type NewPlatform struct {
	EcosystemID int64
	Name        string
	Type        string
	Username    *string
	Password    *string
	ProfileID   string
	ProfileURL  string
	TOTPSecret  *string
	TOTPEnabled bool
	// CreatedAt stamps created_at and updated_at. Zero means now.
	CreatedAt time.Time
}

// PlatformFilter narrows a platform listing. Zero values disable a filter.
type PlatformFilter struct {
	Search string
	Type   string
	TOTP   *bool
	Page   int
	Limit  int
}

// PlatformPage is one page of a platform listing.
type PlatformPage struct {
	Items []PlatformCredential
	Total int
	Page  int
	Limit int
}

// TotalPages returns the number of pages needed for Total items.
func (p PlatformPage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// NormalizeTOTPSeed strips whitespace and upper-cases a base32 seed the way
// authenticator apps display it ("jbsw y3dp ..." becomes "JBSWY3DP...").
func NormalizeTOTPSeed(seed string) string {
	return strings.ToUpper(strings.Join(strings.Fields(seed), ""))
}
