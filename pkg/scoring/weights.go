// Package scoring ranks eligible referees for a game, either with the weighted
// algorithmic scorer or through an LLM with algorithmic fallback
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// ErrUnusableWeights means no positive weight is left to score with
var ErrUnusableWeights = errors.New("scoring weights are unusable")

// normalization tolerance around a sum of 1
const weightTolerance = 0.01

// Weights are the soft-score weights, normalized to sum to 1 before use
type Weights struct {
	Distance     float64 `json:"distance"`
	Skill        float64 `json:"skill"`
	Experience   float64 `json:"experience"`
	Partner      float64 `json:"partner"`
	Availability float64 `json:"availability"`
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.Distance + w.Skill + w.Experience + w.Partner + w.Availability
}

// Scale multiplies every weight by k
func (w Weights) Scale(k float64) Weights {
	return Weights{
		Distance:     w.Distance * k,
		Skill:        w.Skill * k,
		Experience:   w.Experience * k,
		Partner:      w.Partner * k,
		Availability: w.Availability * k,
	}
}

// ResolveWeights picks the rule's weights, or the configured defaults when the rule
// leaves all four at zero, then normalizes them. The bool reports whether a rescale
// was needed
func ResolveWeights(rule *models.AssignmentRule, cfg config.Config) (Weights, bool, error) {
	w := Weights{
		Distance:   rule.DistanceWeight,
		Skill:      rule.SkillWeight,
		Experience: rule.ExperienceWeight,
		Partner:    rule.PartnerPreferenceWeight,
	}
	if w.Sum() == 0 {
		w = Weights{
			Distance:     cfg.Weights.Proximity,
			Skill:        cfg.Weights.Performance,
			Experience:   cfg.Weights.Experience,
			Availability: cfg.Weights.Availability,
		}
	}
	if rule.PrioritizeExperience || cfg.Constraints.PrioritizeExperience {
		w.Experience *= 2
	}
	return Normalize(w)
}

// Normalize rescales weights to sum to 1 when they are off by more than the tolerance
func Normalize(w Weights) (Weights, bool, error) {
	for _, v := range []float64{w.Distance, w.Skill, w.Experience, w.Partner, w.Availability} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, false, fmt.Errorf("%w: negative or non-finite weight in %+v", ErrUnusableWeights, w)
		}
	}
	sum := w.Sum()
	if sum <= 0 {
		return Weights{}, false, fmt.Errorf("%w: all weights are zero", ErrUnusableWeights)
	}
	if math.Abs(sum-1) <= weightTolerance {
		return w, false, nil
	}
	return w.Scale(1 / sum), true, nil
}
