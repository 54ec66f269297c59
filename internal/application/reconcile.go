package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/ecovault/internal/domain/model"
	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// NamePair is a local name matched to an external name.
type NamePair struct {
	Local    string
	External string
}

// NameMatch is the outcome of reconciling two plain name lists.
type NameMatch struct {
	Matched           []NamePair
	UnmatchedLocal    []string
	UnmatchedExternal []string
}

// ReconcileNames matches local names against external names by
// case-insensitive equality in a single greedy pass.
func ReconcileNames(local, external []string) NameMatch {
	identity := func(s string) string { return s }
	matched, unmatchedLocal, unmatchedExternal := reconcile(local, identity, external, identity)

	out := NameMatch{UnmatchedLocal: unmatchedLocal, UnmatchedExternal: unmatchedExternal}
	for _, m := range matched {
		out.Matched = append(out.Matched, NamePair{Local: m.local, External: m.external})
	}
	return out
}

// Reconcile matches ecosystems against external profiles by name. Every
// ecosystem lands in exactly one of Matched or UnmatchedLocal and every
// profile in exactly one of Matched or UnmatchedExternal.
func Reconcile(ecosystems []model.Ecosystem, profiles []model.ExternalProfile) model.ReconciliationOutcome {
	matched, unmatchedLocal, unmatchedExternal := reconcile(
		ecosystems, func(e model.Ecosystem) string { return e.Name },
		profiles, func(p model.ExternalProfile) string { return p.Name },
	)

	out := model.ReconciliationOutcome{
		Matched:           make([]model.ReconcileMatch, 0, len(matched)),
		UnmatchedLocal:    unmatchedLocal,
		UnmatchedExternal: unmatchedExternal,
	}
	for _, m := range matched {
		out.Matched = append(out.Matched, model.ReconcileMatch{
			EcosystemID:   m.local.ID,
			EcosystemName: m.local.Name,
			ProfileID:     m.external.ID,
			ProfileName:   m.external.Name,
		})
	}
	return out
}

type pair[L, E any] struct {
	local    L
	external E
}

// reconcile indexes the external side, then walks the local side once,
// removing each matched external entry. External entries sharing a name with
// an earlier one never match and are reported as unmatched.
func reconcile[L, E any](local []L, localName func(L) string, external []E, externalName func(E) string) ([]pair[L, E], []L, []E) {
	index := &NameIndex[E]{values: make(map[string]E, len(external))}
	var duplicates []E
	for _, e := range external {
		if !index.Add(externalName(e), e) {
			duplicates = append(duplicates, e)
		}
	}

	matched := []pair[L, E]{}
	unmatchedLocal := []L{}
	for _, l := range local {
		if e, ok := index.Remove(localName(l)); ok {
			matched = append(matched, pair[L, E]{local: l, external: e})
			continue
		}
		unmatchedLocal = append(unmatchedLocal, l)
	}

	return matched, unmatchedLocal, append(index.Values(), duplicates...)
}

// SyncSummary counts the entries in each reconciliation set.
type SyncSummary struct {
	Matched           int
	UnmatchedLocal    int
	UnmatchedExternal int
}

// SyncReport is the result of one external profile sync.
type SyncReport struct {
	Outcome model.ReconciliationOutcome
	Summary SyncSummary
}

// SyncService reconciles local ecosystems against the external posting
// system's profiles. The match is recomputed on every call and never stored.
type SyncService struct {
	ecosystems driven.EcosystemStore
	profiles   driven.ProfileSource
	logger     *slog.Logger
}

// NewSyncService creates a new SyncService. A nil logger uses slog.Default().
func NewSyncService(ecosystems driven.EcosystemStore, profiles driven.ProfileSource, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{ecosystems: ecosystems, profiles: profiles, logger: logger}
}

// Sync loads both sides and reconciles them.
func (s *SyncService) Sync(ctx context.Context) (*SyncReport, error) {
	ecosystems, err := s.ecosystems.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ecosystems: %w", err)
	}

	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load external profiles: %w", err)
	}

	outcome := Reconcile(ecosystems, profiles)
	summary := SyncSummary{
		Matched:           len(outcome.Matched),
		UnmatchedLocal:    len(outcome.UnmatchedLocal),
		UnmatchedExternal: len(outcome.UnmatchedExternal),
	}

	s.logger.Info("profile sync complete",
		"matched", summary.Matched,
		"unmatched_local", summary.UnmatchedLocal,
		"unmatched_external", summary.UnmatchedExternal,
	)

	return &SyncReport{Outcome: outcome, Summary: summary}, nil
}
