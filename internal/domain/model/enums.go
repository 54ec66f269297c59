package model

// CredentialField names an audited platform field.
type CredentialField string

const (
	FieldUsername   CredentialField = "username"
	FieldPassword   CredentialField = "password"
	FieldProfileID  CredentialField = "profile_id"
	FieldTOTPSecret CredentialField = "totp_secret"
)

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ImportKind selects the entity kind an import batch targets.
type ImportKind string

const (
	ImportUsers       ImportKind = "users"
	ImportEcosystems  ImportKind = "ecosystems"
	ImportPlatforms   ImportKind = "platforms"
	ImportAssignments ImportKind = "user-assignments"
)
