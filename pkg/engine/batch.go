package engine

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/arnavshah/referee-assigner-go/pkg/constraints"
	"github.com/arnavshah/referee-assigner-go/pkg/llm"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/partners"
	"github.com/arnavshah/referee-assigner-go/pkg/scoring"
	"github.com/arnavshah/referee-assigner-go/pkg/telemetry"
)

var errBatchDegraded = errors.New("batch degraded to algorithmic scoring")

// task is one (game chunk, referee chunk) pair
type task struct {
	index    int
	games    []*models.Game
	referees []*models.Referee
}

type taskGame struct {
	gameID      string
	candidates  []models.Candidate
	algorithmic []models.Candidate
	violations  map[constraints.Kind]int
	eligible    int
	fallback    bool
	llm         bool
	rationale   string
}

type taskResult struct {
	games     []taskGame
	degraded  bool
	abandoned bool
}

// gamePlan is the merged ranking of a game across referee chunks
type gamePlan struct {
	candidates  []models.Candidate
	algorithmic []models.Candidate
	violations  map[constraints.Kind]int
	eligible    int
	fallback    bool
	abandoned   bool
}

type plan struct {
	games     map[string]*gamePlan
	batches   int
	degraded  int
	usedLLM   bool
	rationale map[string]string
}

func (p *plan) game(id string) *gamePlan {
	gp, ok := p.games[id]
	if !ok {
		gp = &gamePlan{violations: make(map[constraints.Kind]int)}
		p.games[id] = gp
	}
	return gp
}

func (p *plan) fallbackGames() []string {
	var ids []string
	for id, gp := range p.games {
		if gp.fallback && !gp.abandoned {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// scoreBatches ranks candidates for every game on a bounded worker pool. It returns
// only after every task has finished, so the assigner never races a scorer
func (e *Engine) scoreBatches(ctx context.Context, rule *models.AssignmentRule, snap *snapshot, algo *scoring.Algorithmic, llmScorer *scoring.LLMScorer, comments []string) *plan {
	gameSize, refSize := 0, 0
	if e.cfg.Batching.Enabled {
		gameSize = e.cfg.Batching.MaxGamesPerBatch
		refSize = e.cfg.Batching.MaxRefereesPerBatch
	}
	refChunks := chunk(snap.referees, refSize)
	if len(refChunks) == 0 {
		refChunks = [][]*models.Referee{nil}
	}
	var tasks []task
	for _, games := range chunk(snap.games, gameSize) {
		for _, refs := range refChunks {
			tasks = append(tasks, task{index: len(tasks), games: games, referees: refs})
		}
	}

	results := make([]taskResult, len(tasks))
	var g errgroup.Group
	g.SetLimit(max(e.cfg.Batching.Workers, 1))
	for _, t := range tasks {
		g.Go(func() error {
			results[t.index] = e.runTask(ctx, t, rule, snap, algo, llmScorer, comments)
			return nil
		})
	}
	_ = g.Wait()

	return mergeResults(tasks, results)
}

func (e *Engine) runTask(ctx context.Context, t task, rule *models.AssignmentRule, snap *snapshot, algo *scoring.Algorithmic, llmScorer *scoring.LLMScorer, comments []string) taskResult {
	ctx, span := telemetry.StartSpan(ctx, "engine.score_batch",
		attribute.Int("batch.index", t.index),
		attribute.Int("batch.games", len(t.games)),
		attribute.Int("batch.referees", len(t.referees)),
	)
	defer span.End()

	var res taskResult
	if ctx.Err() != nil {
		res.abandoned = true
		return res
	}
	batchCtx, cancel := context.WithTimeout(ctx, e.cfg.Batching.BatchTimeout.Std())
	defer cancel()

	for _, game := range t.games {
		tg := taskGame{gameID: game.ID, violations: make(map[constraints.Kind]int)}
		var eligible []*models.Referee
		for _, ref := range t.referees {
			if ok, v := e.evaluator.Eligible(ref, game, rule, snap.load); ok {
				eligible = append(eligible, ref)
			} else {
				tg.violations[v.Kind]++
			}
		}
		tg.eligible = len(eligible)
		tg.algorithmic = algo.Rank(game, eligible)
		tg.candidates = tg.algorithmic

		if llmScorer != nil && len(eligible) > 0 {
			if batchCtx.Err() != nil {
				if ctx.Err() != nil {
					res.abandoned = true
					return res
				}
				res.degraded = true
				tg.fallback = true
			} else {
				infos := make([]llm.CandidateInfo, 0, len(eligible))
				for _, c := range tg.candidates {
					ref := snap.byID[c.RefereeID]
					infos = append(infos, scoring.Describe(ref, c.DistanceKm, snap.load.WeekCount(ref.ID, game.Start)))
				}
				ranked, err := llmScorer.Rank(batchCtx, rule, game, infos, comments)
				switch {
				case err == nil:
					tg.candidates = ranked.Candidates
					tg.rationale = ranked.Rationale
					tg.llm = true
				case ctx.Err() != nil:
					res.abandoned = true
					return res
				default:
					res.degraded = true
					tg.fallback = true
					log.Printf("[Engine] Game %s falls back to algorithmic scoring: %v", game.ID, err)
				}
			}
		}
		res.games = append(res.games, tg)
	}

	if res.degraded {
		telemetry.Fail(span, errBatchDegraded)
	}
	return res
}

// mergeResults combines task results in task order, so the outcome does not depend
// on which worker finished first
func mergeResults(tasks []task, results []taskResult) *plan {
	p := &plan{games: make(map[string]*gamePlan), batches: len(tasks), rationale: make(map[string]string)}
	for i, r := range results {
		if r.abandoned {
			for _, g := range tasks[i].games {
				p.game(g.ID).abandoned = true
			}
			continue
		}
		if r.degraded {
			p.degraded++
		}
		for _, tg := range r.games {
			gp := p.game(tg.gameID)
			gp.candidates = append(gp.candidates, tg.candidates...)
			gp.algorithmic = append(gp.algorithmic, tg.algorithmic...)
			for k, n := range tg.violations {
				gp.violations[k] += n
			}
			gp.eligible += tg.eligible
			gp.fallback = gp.fallback || tg.fallback
			if tg.llm {
				p.usedLLM = true
			}
			if tg.rationale != "" {
				if prev := p.rationale[tg.gameID]; prev != "" {
					p.rationale[tg.gameID] = strings.Join([]string{prev, tg.rationale}, "\n")
				} else {
					p.rationale[tg.gameID] = tg.rationale
				}
			}
		}
	}
	for id, gp := range p.games {
		// LLM and algorithmic scores are not comparable, so one degraded chunk
		// puts the whole game on the algorithmic ranking
		if gp.fallback {
			gp.candidates = gp.algorithmic
			delete(p.rationale, id)
		}
		partners.SortCandidates(gp.candidates)
	}
	return p
}
