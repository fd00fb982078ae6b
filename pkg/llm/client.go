// Package llm talks to the language-model service that can rank referees for a game
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout means the provider did not answer within the request budget
	ErrTimeout = errors.New("llm request timed out")
	// ErrRateLimited means the provider asked us to slow down
	ErrRateLimited = errors.New("llm rate limited")
	// ErrUnavailable covers 5xx responses and transport failures
	ErrUnavailable = errors.New("llm service unavailable")
	// ErrMalformed means the provider answered but the ranking could not be parsed
	ErrMalformed = errors.New("llm response malformed")
)

// IsTransient reports whether a failed call is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// GameContext describes the game being staffed
type GameContext struct {
	ID       string    `json:"id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
	Level    string    `json:"level,omitempty"`
	GameType string    `json:"game_type,omitempty"`
	AgeGroup string    `json:"age_group,omitempty"`
	Slots    int       `json:"open_slots"`
}

// CandidateInfo is what the model sees about one eligible referee
type CandidateInfo struct {
	RefereeID         string  `json:"referee_id"`
	Level             string  `json:"level"`
	DistanceKm        float64 `json:"distance_km"`
	YearsExperience   int     `json:"years_experience"`
	GamesOfficiated   int     `json:"games_officiated"`
	PerformanceRating float64 `json:"performance_rating"`
	GamesThisWeek     int     `json:"games_this_week"`
}

// RankRequest is a single scoring call for one game and one candidate sub-batch
type RankRequest struct {
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Game        GameContext     `json:"game"`
	Candidates  []CandidateInfo `json:"candidates"`
	RulePrompt  string          `json:"rule_prompt,omitempty"`
	Comments    []string        `json:"comments,omitempty"`
}

// Ranking is the model's verdict on one referee
type Ranking struct {
	RefereeID string  `json:"referee_id"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason,omitempty"`
}

// RankResponse is the parsed answer of the model
type RankResponse struct {
	Rankings  []Ranking `json:"rankings"`
	Rationale string    `json:"rationale,omitempty"`
	Model     string    `json:"model,omitempty"`
	Cached    bool      `json:"-"`
}

// Client ranks candidates for a game. Implementations classify failures with the
// package errors so callers can tell transient failures from malformed output
type Client interface {
	Rank(ctx context.Context, req RankRequest) (RankResponse, error)
}
