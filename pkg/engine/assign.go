package engine

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/arnavshah/referee-assigner-go/pkg/constraints"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/partners"
	"github.com/arnavshah/referee-assigner-go/pkg/scoring"
)

// conflict phrases in reporting order
var violationPhrases = []struct {
	kind   constraints.Kind
	phrase string
}{
	{constraints.KindLevel, "%d referees were below the required level"},
	{constraints.KindDistance, "%d referees were too far away"},
	{constraints.KindAvailability, "%d referees were unavailable"},
	{constraints.KindDailyLoad, "%d referees were at the daily game limit"},
	{constraints.KindWeeklyLoad, "%d referees were at the weekly game limit"},
	{constraints.KindOverlap, "%d referees had overlapping games"},
	{constraints.KindRestGap, "%d referees lacked the minimum rest between games"},
}

// assign commits the top eligible candidates game by game in chronological order.
// Every candidate is re-validated against the load committed so far in this run.
// A repository write failure stops the run; earlier assignments stay written
func (e *Engine) assign(runCtx, ctx context.Context, rule *models.AssignmentRule, snap *snapshot, p *plan, weights scoring.Weights, result *models.RuleRunResult) error {
	resolver := partners.NewResolver(snap.partners, weights.Partner)
	details := &result.Details

	for i, game := range snap.games {
		gp := p.games[game.ID]
		if runCtx.Err() != nil {
			for _, rest := range snap.games[i:] {
				details.AbandonedGames = append(details.AbandonedGames, rest.ID)
			}
			log.Printf("[Engine] Rule %s hit the run deadline, %d games left unprocessed", rule.ID, len(snap.games)-i)
			break
		}
		if gp == nil || gp.abandoned {
			details.AbandonedGames = append(details.AbandonedGames, game.ID)
			continue
		}

		open := game.OpenSlots()
		counts := make(map[constraints.Kind]int, len(gp.violations))
		for k, n := range gp.violations {
			counts[k] = n
		}
		rejected := make(map[string]bool)
		filled := 0
		for filled < open {
			pool := resolver.Adjust(remaining(gp.candidates, rejected), game.AssignedReferees)
			if len(pool) == 0 {
				break
			}
			best := pool[0]
			ref := snap.byID[best.RefereeID]
			if ref == nil {
				rejected[best.RefereeID] = true
				continue
			}
			if ok, v := e.evaluator.Eligible(ref, game, rule, snap.load); !ok {
				counts[v.Kind]++
				rejected[ref.ID] = true
				continue
			}

			a := models.Assignment{
				GameID:         game.ID,
				RefereeID:      ref.ID,
				Position:       models.Position(len(game.AssignedReferees)),
				CalculatedWage: wage(game, ref),
				Status:         models.AssignmentStatusPending,
				RuleRunID:      result.RunID,
			}
			if err := e.repo.CreateAssignment(ctx, &a); err != nil {
				return fmt.Errorf("create assignment of %s to game %s: %w", ref.ID, game.ID, err)
			}
			snap.load.Commit(ref.ID, models.Commitment{GameID: game.ID, Window: game.Window()})
			game.AssignedReferees = append(game.AssignedReferees, ref.ID)
			result.Assignments = append(result.Assignments, a)
			result.AssignmentsCreated++
			filled++
		}

		if filled < open {
			result.ConflictsFound++
			details.Conflicts = append(details.Conflicts, models.ConflictReason{
				GameID:  game.ID,
				Open:    open - filled,
				Reasons: conflictReasons(game, gp, counts, rejected, snap.partners),
			})
		}
	}
	return nil
}

func remaining(candidates []models.Candidate, rejected map[string]bool) []models.Candidate {
	if len(rejected) == 0 {
		return candidates
	}
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !rejected[c.RefereeID] {
			out = append(out, c)
		}
	}
	return out
}

func conflictReasons(game *models.Game, gp *gamePlan, counts map[constraints.Kind]int, rejected map[string]bool, set *partners.Set) []string {
	var reasons []string
	for _, vp := range violationPhrases {
		if n := counts[vp.kind]; n > 0 {
			reasons = append(reasons, fmt.Sprintf(vp.phrase, n))
		}
	}

	avoided := 0
	for _, c := range gp.candidates {
		if rejected[c.RefereeID] || game.HasReferee(c.RefereeID) {
			continue
		}
		for _, other := range game.AssignedReferees {
			if set.Avoids(c.RefereeID, other) {
				avoided++
				break
			}
		}
	}
	if avoided > 0 {
		reasons = append(reasons, fmt.Sprintf("%d referees were excluded by avoid preferences", avoided))
	}
	if unranked := gp.eligible - len(gp.candidates); unranked > 0 {
		reasons = append(reasons, fmt.Sprintf("%d eligible referees were not ranked by the scorer", unranked))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no eligible referees found")
	}
	return reasons
}

// wage is the game's base wage scaled by the referee's multiplier; 0 counts as 1
func wage(game *models.Game, ref *models.Referee) float64 {
	multiplier := ref.WageMultiplier
	if multiplier == 0 {
		multiplier = 1
	}
	return game.BaseWage * multiplier
}

// fairness returns a percentage (0-100) of how evenly this run's assignments are spread
// over the referee pool. 100 means every referee got the same number of games
func fairness(referees []*models.Referee, assignments []models.Assignment) float64 {
	if len(referees) == 0 || len(assignments) == 0 {
		return 100.0
	}
	counts := make(map[string]float64, len(referees))
	for _, a := range assignments {
		counts[a.RefereeID]++
	}

	mean := float64(len(assignments)) / float64(len(referees))
	var varianceSum float64
	for _, ref := range referees {
		diff := counts[ref.ID] - mean
		varianceSum += diff * diff
	}
	stdDev := math.Sqrt(varianceSum / float64(len(referees)))

	score := (1.0 - stdDev/mean) * 100.0
	if score < 0 {
		return 0.0
	}
	return score
}
