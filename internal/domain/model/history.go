package model

import "time"

// CredentialHistoryEntry is one immutable row of the credential ledger. Old
// and new values follow the storage mode of the field: ciphertext for secret
// fields, plaintext for profile_id. ChangedBy is nil for unattributed writes.
type CredentialHistoryEntry struct {
	ID         int64
	PlatformID int64
	Field      CredentialField
	OldValue   *string
	NewValue   *string
	ChangedBy  *int64
	ChangedAt  time.Time
}
