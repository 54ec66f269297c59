package model

import "time"

// Ecosystem is an organizational unit owning a set of platform credentials.
// Name is the case-insensitive natural key.
type Ecosystem struct {
	ID           int64
	Name         string
	Theme        string
	Description  string
	ActiveStatus bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
