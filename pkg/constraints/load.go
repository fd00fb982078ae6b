package constraints

import (
	"sort"
	"time"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// LoadTracker holds every referee's committed game windows for one run.
//
// It is seeded from the repository snapshot and mutated only through Commit, which the
// assigner calls after an assignment is written. It is not safe for concurrent mutation;
// readers may share it while no commit is in progress
type LoadTracker struct {
	loc         *time.Location
	commitments map[string][]models.Commitment
}

// NewLoadTracker seeds a tracker from the referees' existing commitments
func NewLoadTracker(loc *time.Location, referees []models.Referee) *LoadTracker {
	if loc == nil {
		loc = time.UTC
	}
	t := &LoadTracker{
		loc:         loc,
		commitments: make(map[string][]models.Commitment, len(referees)),
	}
	for _, ref := range referees {
		for _, c := range ref.Commitments {
			t.Commit(ref.ID, c)
		}
	}
	return t
}

// Commit records a new commitment for a referee
func (t *LoadTracker) Commit(refereeID string, c models.Commitment) {
	list := append(t.commitments[refereeID], c)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Start.Before(list[j].Start)
	})
	t.commitments[refereeID] = list
}

// Commitments returns the referee's commitments ordered by start time
func (t *LoadTracker) Commitments(refereeID string) []models.Commitment {
	return t.commitments[refereeID]
}

// DayCount counts the referee's commitments on the local day of at
func (t *LoadTracker) DayCount(refereeID string, at time.Time) int {
	day := t.dayKey(at)
	n := 0
	for _, c := range t.commitments[refereeID] {
		if t.dayKey(c.Start) == day {
			n++
		}
	}
	return n
}

// WeekCount counts the referee's commitments in the ISO week of at
func (t *LoadTracker) WeekCount(refereeID string, at time.Time) int {
	year, week := at.In(t.loc).ISOWeek()
	n := 0
	for _, c := range t.commitments[refereeID] {
		y, w := c.Start.In(t.loc).ISOWeek()
		if y == year && w == week {
			n++
		}
	}
	return n
}

// SameDay reports whether two instants fall on the same local day
func (t *LoadTracker) SameDay(a, b time.Time) bool {
	return t.dayKey(a) == t.dayKey(b)
}

func (t *LoadTracker) dayKey(at time.Time) string {
	return at.In(t.loc).Format("2006-01-02")
}
