package models

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist
var ErrNotFound = errors.New("record not found")

// Coordinates is a latitude/longitude pair in decimal degrees
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Window is a closed-open time range [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two windows share any instant
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Game represents a fixture that needs officials
type Game struct {
	ID               string       `json:"id"`
	CreatedAt        time.Time    `json:"created_at"`
	Start            time.Time    `json:"start"`
	End              time.Time    `json:"end"`
	Location         string       `json:"location"`
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
	Level            string       `json:"level"`
	GameType         string       `json:"game_type"`
	AgeGroup         string       `json:"age_group"`
	RequiredReferees int          `json:"required_referees"`
	AssignedReferees []string     `json:"assigned_referees"`
	Status           string       `json:"status"`
	BaseWage         float64      `json:"base_wage"`
}

// Window returns the game's time window
func (g *Game) Window() Window {
	return Window{Start: g.Start, End: g.End}
}

// OpenSlots returns how many officials are still needed
func (g *Game) OpenSlots() int {
	open := g.RequiredReferees - len(g.AssignedReferees)
	if open < 0 {
		return 0
	}
	return open
}

// HasReferee reports whether the referee already officiates this game
func (g *Game) HasReferee(refereeID string) bool {
	for _, id := range g.AssignedReferees {
		if id == refereeID {
			return true
		}
	}
	return false
}

// Commitment is a game a referee already holds
type Commitment struct {
	GameID string `json:"game_id"`
	Window
}

// Referee represents an official who can be assigned to games
type Referee struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	Level             string       `json:"level"`
	Home              *Coordinates `json:"home,omitempty"`
	Unavailable       []Window     `json:"unavailable,omitempty"`
	Commitments       []Commitment `json:"commitments,omitempty"`
	YearsExperience   int          `json:"years_experience"`
	GamesOfficiated   int          `json:"games_officiated"`
	PerformanceRating float64      `json:"performance_rating"`
	WageMultiplier    float64      `json:"wage_multiplier"`
}

// Assignment represents a referee-game pairing written by a run
type Assignment struct {
	GameID         string  `json:"game_id"`
	RefereeID      string  `json:"referee_id"`
	Position       string  `json:"position"`
	CalculatedWage float64 `json:"calculated_wage"`
	Status         string  `json:"status"`
	RuleRunID      string  `json:"rule_run_id,omitempty"`
}

// AssignmentStatusPending is the status of engine-created assignments
const AssignmentStatusPending = "pending"

// Position returns the position name for the n-th official (0-based) on a game
func Position(n int) string {
	if n <= 0 {
		return "referee"
	}
	return "assistant_referee_" + strconv.Itoa(n)
}

// referee levels in ascending order
var levelOrder = []string{"recreational", "local", "regional", "national", "elite"}

// LevelRank returns the ordinal of a referee level, or -1 when unknown
func LevelRank(level string) int {
	level = strings.ToLower(strings.TrimSpace(level))
	for i, l := range levelOrder {
		if l == level {
			return i
		}
	}
	return -1
}

// Levels returns the known referee levels in ascending order
func Levels() []string {
	return append([]string(nil), levelOrder...)
}

// GameCriteria selects games a rule targets
type GameCriteria struct {
	GameTypes []string
	AgeGroups []string
	From      time.Time
	To        time.Time
}

// RefereeCriteria selects referees a rule may consider
type RefereeCriteria struct {
	MinLevel string
	From     time.Time
	To       time.Time
}

// ConflictReason represents why a game could not be fully staffed
type ConflictReason struct {
	GameID  string   `json:"game_id"`
	Open    int      `json:"open_slots"`
	Reasons []string `json:"reasons"`
}

// Candidate is a referee ranked for one game
type Candidate struct {
	RefereeID  string  `json:"referee_id"`
	Score      float64 `json:"score"`
	DistanceKm float64 `json:"distance_km"`
	Reason     string  `json:"reason,omitempty"`
}
