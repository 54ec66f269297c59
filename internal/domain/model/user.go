package model

import "time"

// User is an operator of the system. Email is the case-insensitive natural key.
type User struct {
	ID         int64
	Email      string
	Name       string
	EcitizenID string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserEcosystem assigns a user to an ecosystem.
type UserEcosystem struct {
	ID          int64
	UserID      int64
	EcosystemID int64
	AssignedBy  *int64
	AssignedAt  time.Time
}

// Actor is the authenticated identity performing an operation, resolved by
// the surrounding session layer.
type Actor struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
