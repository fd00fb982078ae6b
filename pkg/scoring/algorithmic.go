package scoring

import (
	"fmt"
	"math"

	"github.com/arnavshah/referee-assigner-go/pkg/constraints"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/partners"
)

const (
	overQualifiedPenalty = 0.15
	levelFitFloor        = 0.4
	fullExperienceYears  = 10
	fullExperienceGames  = 200
	maxPerformance       = 5
)

// Algorithmic is the weighted linear scorer. It only reads the load snapshot, so one
// instance can be shared by concurrent scoring tasks as long as nobody commits meanwhile
type Algorithmic struct {
	Weights     Weights
	MaxDistance float64
	MaxPerWeek  int
	Rule        *models.AssignmentRule
	Partners    *partners.Set
	Load        *constraints.LoadTracker
}

// Score rates one referee for one game in [0,1]
func (a *Algorithmic) Score(ref *models.Referee, game *models.Game) models.Candidate {
	dist, hasDist := constraints.DistanceKm(ref, game)
	proximity := 0.0
	if hasDist && a.MaxDistance > 0 {
		proximity = clip(1 - dist/a.MaxDistance)
	}
	skill := a.skill(ref, game)
	experience := Experience(ref)
	partner := a.Partners.Bias(ref.ID, game.AssignedReferees)
	availability := 1.0
	if a.MaxPerWeek > 0 && a.Load != nil {
		availability = clip(1 - float64(a.Load.WeekCount(ref.ID, game.Start))/float64(a.MaxPerWeek))
	}

	w := a.Weights
	score := w.Distance*proximity + w.Skill*skill + w.Experience*experience +
		w.Partner*partner + w.Availability*availability
	return models.Candidate{
		RefereeID:  ref.ID,
		Score:      clip(score),
		DistanceKm: dist,
		Reason: fmt.Sprintf("proximity %.2f, skill %.2f, experience %.2f, partner %.2f, availability %.2f",
			proximity, skill, experience, partner, availability),
	}
}

// Rank scores every referee and orders the result by score, then referee id
func (a *Algorithmic) Rank(game *models.Game, referees []*models.Referee) []models.Candidate {
	out := make([]models.Candidate, 0, len(referees))
	for _, ref := range referees {
		out = append(out, a.Score(ref, game))
	}
	partners.SortCandidates(out)
	return out
}

func (a *Algorithmic) skill(ref *models.Referee, game *models.Game) float64 {
	performance := clip(ref.PerformanceRating / maxPerformance)
	return (performance + LevelFit(ref.Level, constraints.RequiredLevel(a.Rule, game))) / 2
}

// LevelFit is 1 for an exact level match and loses 0.15 per rank of over-qualification,
// never dropping below 0.4
func LevelFit(have, required string) float64 {
	need := models.LevelRank(required)
	got := models.LevelRank(have)
	if need < 0 {
		return 1
	}
	if got < 0 {
		return levelFitFloor
	}
	over := got - need
	switch {
	case over < 0:
		return levelFitFloor
	case over == 0:
		return 1
	}
	return math.Max(levelFitFloor, 1-overQualifiedPenalty*float64(over))
}

// Experience blends years active and games officiated
func Experience(ref *models.Referee) float64 {
	years := math.Min(float64(ref.YearsExperience)/fullExperienceYears, 1)
	games := math.Min(float64(ref.GamesOfficiated)/fullExperienceGames, 1)
	return clip(years*0.5 + games*0.5)
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
