package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/arnavshah/referee-assigner-go/pkg/constraints"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/partners"
)

// snapshot is the read-only view a run is scored against. Only the assigner mutates
// load, and only after scoring has finished
type snapshot struct {
	games    []*models.Game
	referees []*models.Referee
	byID     map[string]*models.Referee
	partners *partners.Set
	load     *constraints.LoadTracker
}

// snapshot reads everything the run needs once. Any failure here is fatal to the run
func (e *Engine) snapshot(ctx context.Context, rule *models.AssignmentRule) (*snapshot, error) {
	from := e.now()
	var to time.Time
	if rule.MaxDaysAhead > 0 {
		to = from.AddDate(0, 0, rule.MaxDaysAhead)
	}

	games, err := e.repo.ListEligibleGames(ctx, models.GameCriteria{
		GameTypes: rule.GameTypes,
		AgeGroups: rule.AgeGroups,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, fmt.Errorf("list eligible games: %w", err)
	}
	referees, err := e.repo.ListEligibleReferees(ctx, models.RefereeCriteria{
		MinLevel: rule.MinRefereeLevel,
		From:     from,
		To:       to,
	})
	if err != nil {
		return nil, fmt.Errorf("list eligible referees: %w", err)
	}
	prefs, err := e.repo.ListPartnerPreferences(ctx, rule.ID)
	if err != nil {
		return nil, fmt.Errorf("list partner preferences: %w", err)
	}

	snap := &snapshot{
		byID:     make(map[string]*models.Referee, len(referees)),
		partners: partners.NewSet(prefs),
	}
	for i := range games {
		if games[i].OpenSlots() > 0 {
			snap.games = append(snap.games, &games[i])
		}
	}
	sortChronologically(snap.games)
	for i := range referees {
		ref := &referees[i]
		if _, dup := snap.byID[ref.ID]; dup {
			continue
		}
		snap.byID[ref.ID] = ref
		snap.referees = append(snap.referees, ref)
	}
	sort.Slice(snap.referees, func(i, j int) bool { return snap.referees[i].ID < snap.referees[j].ID })

	// seeded after the dedupe so a repeated row does not count its commitments twice
	snap.load = constraints.NewLoadTracker(e.cfg.Location(), nil)
	for _, ref := range snap.referees {
		for _, c := range ref.Commitments {
			snap.load.Commit(ref.ID, c)
		}
	}
	return snap, nil
}

// sortChronologically orders games by start, then creation, then id
func sortChronologically(games []*models.Game) {
	sort.SliceStable(games, func(i, j int) bool {
		a, b := games[i], games[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
