// Package engine runs assignment rules: it snapshots games and referees, scores
// candidates in concurrent batches, commits assignments in chronological order and
// records one RuleRun per invocation
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/constraints"
	"github.com/arnavshah/referee-assigner-go/pkg/llm"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/scoring"
	"github.com/arnavshah/referee-assigner-go/pkg/telemetry"
)

var (
	// ErrRuleNotFound is reported when the triggered rule does not exist
	ErrRuleNotFound = errors.New("assignment rule not found")
	// ErrRuleDisabled is reported when the triggered rule is disabled
	ErrRuleDisabled = errors.New("assignment rule is disabled")
)

// Repository is the storage the engine reads its snapshot from and writes results to
type Repository interface {
	GetRule(ctx context.Context, id string) (*models.AssignmentRule, error)
	ListEligibleGames(ctx context.Context, criteria models.GameCriteria) ([]models.Game, error)
	ListEligibleReferees(ctx context.Context, criteria models.RefereeCriteria) ([]models.Referee, error)
	ListPartnerPreferences(ctx context.Context, ruleID string) ([]models.PartnerPreference, error)
	CreateAssignment(ctx context.Context, a *models.Assignment) error
	CreateRuleRun(ctx context.Context, run *models.RuleRun) error
}

// Monitor receives run and LLM call outcomes
type Monitor interface {
	scoring.Observer
	ObserveRun(result models.RuleRunResult)
}

// Engine executes assignment rules
type Engine struct {
	cfg       config.Config
	repo      Repository
	evaluator constraints.Evaluator
	llm       llm.Client
	monitor   Monitor
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLLM sets the client used by llm rules
func WithLLM(client llm.Client) Option {
	return func(e *Engine) { e.llm = client }
}

// WithMonitor sets the run and LLM call observer
func WithMonitor(m Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine around an immutable configuration
func New(cfg config.Config, repo Repository, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		repo:      repo,
		evaluator: constraints.NewEvaluator(cfg.Constraints),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TriggerRule runs a rule once. It never returns a bare error: every outcome,
// including a failed run, is summarised in the result
func (e *Engine) TriggerRule(ctx context.Context, ruleID string, comments []string) models.RuleRunResult {
	started := e.now()
	ctx, span := telemetry.StartSpan(ctx, "engine.trigger_rule", attribute.String("rule.id", ruleID))
	defer span.End()

	result := models.RuleRunResult{RunID: uuid.NewString(), RuleID: ruleID}

	rule, err := e.repo.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// nothing to attach a run record to
			err = fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
			result.Status = models.RunError
			result.Error = err.Error()
			telemetry.Fail(span, err)
			return result
		}
		err = fmt.Errorf("load rule %s: %w", ruleID, err)
		rule = &models.AssignmentRule{ID: ruleID}
	} else if !rule.Enabled {
		err = fmt.Errorf("%w: %s", ErrRuleDisabled, ruleID)
	} else if rule.AISystemType == models.AISystemLLM && e.llm == nil {
		err = fmt.Errorf("rule %s: %w", ruleID, config.ErrLLMNotConfigured)
	}
	result.AISystemUsed = rule.AISystemType

	if err == nil {
		runCtx, cancel := context.WithTimeout(ctx, e.cfg.Engine.RunTimeout.Std())
		err = e.execute(runCtx, ctx, rule, comments, &result)
		cancel()
	}
	if err != nil {
		result.Status = models.RunError
		result.Error = err.Error()
		log.Printf("[Engine] Rule %s run %s failed: %v", ruleID, result.RunID, err)
		telemetry.Fail(span, err)
	}
	result.Duration = e.now().Sub(started)

	e.record(ctx, rule, started, comments, &result)

	span.SetAttributes(
		attribute.String("run.status", string(result.Status)),
		attribute.Int("run.games", result.GamesProcessed),
		attribute.Int("run.assignments", result.AssignmentsCreated),
		attribute.Int("run.conflicts", result.ConflictsFound),
	)
	if e.monitor != nil {
		e.monitor.ObserveRun(result)
	}
	log.Printf("[Engine] Rule %s run %s: %s, %d games, %d assignments, %d conflicts in %s",
		ruleID, result.RunID, result.Status, result.GamesProcessed, result.AssignmentsCreated, result.ConflictsFound, result.Duration)
	return result
}

// execute runs the rule against a fresh snapshot. runCtx carries the run deadline;
// ctx is used for writes so a commit is never cut in half by the deadline.
// A returned error ends the run as error
func (e *Engine) execute(runCtx, ctx context.Context, rule *models.AssignmentRule, comments []string, result *models.RuleRunResult) error {
	details := &result.Details

	weights, normalized, weightErr := scoring.ResolveWeights(rule, e.cfg)
	if normalized {
		details.WeightsNormalized = true
		log.Printf("[Engine] Rule %s weights do not sum to 1, normalized to %+v", rule.ID, weights)
	}

	snap, err := e.snapshot(runCtx, rule)
	if err != nil {
		return err
	}
	result.GamesProcessed = len(snap.games)
	if len(snap.games) == 0 {
		result.Status = models.RunSuccess
		return nil
	}

	if weightErr != nil {
		// the rule cannot rank anybody; every game stays open
		details.Warnings = append(details.Warnings, weightErr.Error())
		for _, g := range snap.games {
			details.UnscoredGames = append(details.UnscoredGames, g.ID)
			details.Conflicts = append(details.Conflicts, models.ConflictReason{
				GameID:  g.ID,
				Open:    g.OpenSlots(),
				Reasons: []string{"scoring weights are unusable"},
			})
		}
		result.ConflictsFound = len(snap.games)
		result.Status = models.RunPartial
		return nil
	}

	algo := &scoring.Algorithmic{
		Weights:     weights,
		MaxDistance: e.evaluator.MaxDistance(rule),
		MaxPerWeek:  e.cfg.Constraints.MaxGamesPerWeek,
		Rule:        rule,
		Partners:    snap.partners,
		Load:        snap.load,
	}
	var llmScorer *scoring.LLMScorer
	if rule.AISystemType == models.AISystemLLM {
		llmScorer = scoring.NewLLMScorer(e.llm, e.cfg.LLM, e.cfg.Constraints.MinConfidence, e.monitor)
	}

	scored := e.scoreBatches(runCtx, rule, snap, algo, llmScorer, comments)
	details.Batches = scored.batches
	details.DegradedBatches = scored.degraded
	details.FallbackGames = scored.fallbackGames()
	if len(scored.rationale) > 0 {
		details.Rationale = scored.rationale
	}
	if rule.AISystemType == models.AISystemLLM && !scored.usedLLM {
		result.AISystemUsed = models.AISystemAlgorithmic
	}

	commitErr := e.assign(runCtx, ctx, rule, snap, scored, weights, result)

	details.FairnessScore = fairness(snap.referees, result.Assignments)
	if commitErr != nil {
		return commitErr
	}

	result.Status = models.RunSuccess
	if details.DegradedBatches > 0 || len(details.FallbackGames) > 0 || len(details.AbandonedGames) > 0 {
		result.Status = models.RunPartial
	}
	return nil
}
