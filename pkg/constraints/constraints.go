// Package constraints evaluates the hard constraints that decide whether a referee may
// officiate a game at all
package constraints

import (
	"fmt"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// Kind names the hard constraint a referee failed
type Kind string

const (
	KindLevel        Kind = "level"
	KindDistance     Kind = "distance"
	KindAvailability Kind = "availability"
	KindDailyLoad    Kind = "daily_load"
	KindWeeklyLoad   Kind = "weekly_load"
	KindOverlap      Kind = "overlap"
	KindRestGap      Kind = "rest_gap"
)

// Violation records the first hard constraint a pairing failed
type Violation struct {
	Kind      Kind
	RefereeID string
	GameID    string
	Detail    string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("referee %s cannot take game %s: %s (%s)", v.RefereeID, v.GameID, v.Kind, v.Detail)
}

// Evaluator checks hard constraints against the global limits
type Evaluator struct {
	Limits config.Constraints
}

// NewEvaluator creates an evaluator for the given limits
func NewEvaluator(limits config.Constraints) Evaluator {
	return Evaluator{Limits: limits}
}

// MaxDistance returns the distance ceiling in km that applies to a rule
func (e Evaluator) MaxDistance(rule *models.AssignmentRule) float64 {
	if rule != nil && rule.MaxDistance > 0 {
		return rule.MaxDistance
	}
	return e.Limits.MaxDistance
}

// AvoidBackToBack reports whether the rest gap applies to a rule
func (e Evaluator) AvoidBackToBack(rule *models.AssignmentRule) bool {
	return e.Limits.AvoidBackToBack || (rule != nil && rule.AvoidBackToBack)
}

// RequiredLevel returns the minimum referee level for a game under a rule
func RequiredLevel(rule *models.AssignmentRule, game *models.Game) string {
	if rule != nil && rule.MinRefereeLevel != "" {
		return rule.MinRefereeLevel
	}
	return game.Level
}

// Eligible runs the hard constraints in order and stops at the first failure
func (e Evaluator) Eligible(ref *models.Referee, game *models.Game, rule *models.AssignmentRule, load *LoadTracker) (bool, *Violation) {
	violate := func(kind Kind, format string, args ...any) (bool, *Violation) {
		return false, &Violation{
			Kind:      kind,
			RefereeID: ref.ID,
			GameID:    game.ID,
			Detail:    fmt.Sprintf(format, args...),
		}
	}

	// 1. level
	if required := RequiredLevel(rule, game); required != "" {
		need := models.LevelRank(required)
		have := models.LevelRank(ref.Level)
		if have < 0 || have < need {
			return violate(KindLevel, "level %q below required %q", ref.Level, required)
		}
	}

	// 2. distance
	maxDistance := e.MaxDistance(rule)
	dist, ok := DistanceKm(ref, game)
	if !ok {
		return violate(KindDistance, "missing coordinates")
	}
	if dist > maxDistance {
		return violate(KindDistance, "%.1f km exceeds %.1f km", dist, maxDistance)
	}

	// 3. declared unavailability
	window := game.Window()
	for _, off := range ref.Unavailable {
		if off.Overlaps(window) {
			return violate(KindAvailability, "unavailable %s - %s", off.Start.Format("2006-01-02 15:04"), off.End.Format("15:04"))
		}
	}

	// 4. daily/weekly load
	if e.Limits.MaxGamesPerDay > 0 {
		if n := load.DayCount(ref.ID, game.Start); n+1 > e.Limits.MaxGamesPerDay {
			return violate(KindDailyLoad, "%d games already on this day (max %d)", n, e.Limits.MaxGamesPerDay)
		}
	}
	if e.Limits.MaxGamesPerWeek > 0 {
		if n := load.WeekCount(ref.ID, game.Start); n+1 > e.Limits.MaxGamesPerWeek {
			return violate(KindWeeklyLoad, "%d games already this week (max %d)", n, e.Limits.MaxGamesPerWeek)
		}
	}

	// 5. overlap and rest gap
	if game.HasReferee(ref.ID) {
		return violate(KindOverlap, "already assigned to this game")
	}
	minRest := e.Limits.MinRest()
	checkRest := e.AvoidBackToBack(rule) && minRest > 0
	for _, c := range load.Commitments(ref.ID) {
		if c.GameID == game.ID || c.Overlaps(window) {
			return violate(KindOverlap, "overlaps game %s", c.GameID)
		}
		if !checkRest || !load.SameDay(c.Start, game.Start) {
			continue
		}
		gap := game.Start.Sub(c.End)
		if c.Start.After(game.Start) {
			gap = c.Start.Sub(game.End)
		}
		if gap < minRest {
			return violate(KindRestGap, "%s rest after game %s (min %s)", gap, c.GameID, minRest)
		}
	}

	return true, nil
}
