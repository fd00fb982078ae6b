package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/llm"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/partners"
)

// Observer is told about every LLM attempt
type Observer interface {
	ObserveLLMCall(latency time.Duration, err error, cached bool)
}

// LLMScorer ranks candidates through an llm.Client, retrying transient failures
type LLMScorer struct {
	client        llm.Client
	cfg           config.LLM
	minConfidence float64
	observer      Observer
}

// NewLLMScorer creates a scorer; observer may be nil
func NewLLMScorer(client llm.Client, cfg config.LLM, minConfidence float64, observer Observer) *LLMScorer {
	return &LLMScorer{client: client, cfg: cfg, minConfidence: minConfidence, observer: observer}
}

// Ranked is the LLM's ordering of a candidate sub-batch
type Ranked struct {
	Candidates []models.Candidate
	Rationale  string
	Cached     bool
}

// Describe turns an eligible referee into what the model sees
func Describe(ref *models.Referee, distanceKm float64, gamesThisWeek int) llm.CandidateInfo {
	return llm.CandidateInfo{
		RefereeID:         ref.ID,
		Level:             ref.Level,
		DistanceKm:        distanceKm,
		YearsExperience:   ref.YearsExperience,
		GamesOfficiated:   ref.GamesOfficiated,
		PerformanceRating: ref.PerformanceRating,
		GamesThisWeek:     gamesThisWeek,
	}
}

// Request builds the rank request for one game
func (s *LLMScorer) Request(rule *models.AssignmentRule, game *models.Game, candidates []llm.CandidateInfo, comments []string) llm.RankRequest {
	req := llm.RankRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Game: llm.GameContext{
			ID:       game.ID,
			Start:    game.Start,
			End:      game.End,
			Location: game.Location,
			Level:    game.Level,
			GameType: game.GameType,
			AgeGroup: game.AgeGroup,
			Slots:    game.OpenSlots(),
		},
		Candidates: candidates,
		RulePrompt: rule.ContextPrompt,
	}
	if rule.LLMModel != "" {
		req.Model = rule.LLMModel
	}
	if rule.LLMTemperature > 0 {
		req.Temperature = rule.LLMTemperature
	}
	if rule.IncludeComments && len(comments) > 0 {
		req.Comments = comments
	}
	return req
}

// Rank asks the model to order the candidates. Any returned error means the caller
// should fall back to algorithmic ranking for this game
func (s *LLMScorer) Rank(ctx context.Context, rule *models.AssignmentRule, game *models.Game, candidates []llm.CandidateInfo, comments []string) (Ranked, error) {
	if len(candidates) == 0 {
		return Ranked{}, nil
	}
	req := s.Request(rule, game, candidates, comments)

	operation := func() (llm.RankResponse, error) {
		start := time.Now()
		resp, err := s.client.Rank(ctx, req)
		if s.observer != nil {
			s.observer.ObserveLLMCall(time.Since(start), err, resp.Cached)
		}
		if err != nil && !llm.IsTransient(err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}

	policy := backoff.NewExponentialBackOff()
	if d := s.cfg.RetryBaseDelay.Std(); d > 0 {
		policy.InitialInterval = d
	}
	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.cfg.MaxRetries+1)),
	)
	if err != nil {
		return Ranked{}, fmt.Errorf("llm ranking for game %s: %w", game.ID, err)
	}

	distances := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		distances[c.RefereeID] = c.DistanceKm
	}
	out := Ranked{Rationale: resp.Rationale, Cached: resp.Cached}
	seen := make(map[string]bool, len(resp.Rankings))
	for _, r := range resp.Rankings {
		if _, known := distances[r.RefereeID]; !known || seen[r.RefereeID] {
			continue
		}
		seen[r.RefereeID] = true
		score := clip(r.Score)
		if score < s.minConfidence {
			continue
		}
		out.Candidates = append(out.Candidates, models.Candidate{
			RefereeID:  r.RefereeID,
			Score:      score,
			DistanceKm: distances[r.RefereeID],
			Reason:     r.Reason,
		})
	}
	partners.SortCandidates(out.Candidates)
	return out, nil
}
