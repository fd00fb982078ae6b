// Package partners applies a rule's preferred and avoided referee pairings
package partners

import (
	"sort"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

const (
	// PreferredBonus is the score added per preferred partner, scaled by the partner weight
	PreferredBonus = 0.25
	// MinPreferredBonus keeps preferred pairs effective when the rule weights leave
	// the partner factor at 0
	MinPreferredBonus = 0.05
)

type pairKey struct {
	a, b string
}

func keyFor(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Set is an immutable lookup of a rule's partner preferences
type Set struct {
	pairs map[pairKey]models.PreferenceType
}

// NewSet indexes preferences by unordered pair; later duplicates win
func NewSet(prefs []models.PartnerPreference) *Set {
	s := &Set{pairs: make(map[pairKey]models.PreferenceType, len(prefs))}
	for _, p := range prefs {
		if p.RefereeA == "" || p.RefereeB == "" || p.RefereeA == p.RefereeB {
			continue
		}
		s.pairs[keyFor(p.RefereeA, p.RefereeB)] = p.Type
	}
	return s
}

// Len returns the number of indexed pairs
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.pairs)
}

// Lookup returns the preference between two referees, if any
func (s *Set) Lookup(a, b string) (models.PreferenceType, bool) {
	if s == nil {
		return "", false
	}
	t, ok := s.pairs[keyFor(a, b)]
	return t, ok
}

// Avoids reports whether two referees must not share a game
func (s *Set) Avoids(a, b string) bool {
	t, ok := s.Lookup(a, b)
	return ok && t == models.PreferenceAvoid
}

// Prefers reports whether two referees should be paired when possible
func (s *Set) Prefers(a, b string) bool {
	t, ok := s.Lookup(a, b)
	return ok && t == models.PreferencePreferred
}

// Bias scores a referee against the officials already on a game: 1 next to a preferred
// partner, 0 next to an avoided one, 0.5 otherwise
func (s *Set) Bias(refereeID string, onGame []string) float64 {
	bias := 0.5
	for _, other := range onGame {
		if s.Avoids(refereeID, other) {
			return 0
		}
		if s.Prefers(refereeID, other) {
			bias = 1
		}
	}
	return bias
}

// Resolver reorders a game's candidates as officials get picked
type Resolver struct {
	set   *Set
	bonus float64
}

// NewResolver creates a resolver; partnerWeight is the normalized partner weight of the rule
func NewResolver(set *Set, partnerWeight float64) *Resolver {
	return &Resolver{set: set, bonus: max(partnerWeight*PreferredBonus, MinPreferredBonus)}
}

// Adjust drops candidates who avoid anyone already selected and lifts those preferred by
// them. The input slice is left untouched
func (r *Resolver) Adjust(candidates []models.Candidate, selected []string) []models.Candidate {
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		keep := true
		for _, s := range selected {
			if c.RefereeID == s || r.set.Avoids(c.RefereeID, s) {
				keep = false
				break
			}
			if r.set.Prefers(c.RefereeID, s) {
				c.Score += r.bonus
			}
		}
		if keep {
			out = append(out, c)
		}
	}
	SortCandidates(out)
	return out
}

// SortCandidates orders by score descending, then referee id ascending
func SortCandidates(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].RefereeID < candidates[j].RefereeID
	})
}
