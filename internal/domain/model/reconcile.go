package model

// ExternalProfile is a named profile held by the external posting system.
type ExternalProfile struct {
	ID   string
	Name string
}

// ReconcileMatch pairs a local ecosystem with the external profile of the
// same name.
type ReconcileMatch struct {
	EcosystemID   int64
	EcosystemName string
	ProfileID     string
	ProfileName   string
}

// ReconciliationOutcome is the transient result of matching local ecosystems
// against external profiles. The three sets are disjoint.
type ReconciliationOutcome struct {
	Matched           []ReconcileMatch
	UnmatchedLocal    []Ecosystem
	UnmatchedExternal []ExternalProfile
}
