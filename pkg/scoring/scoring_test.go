package scoring

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/constraints"
	"github.com/arnavshah/referee-assigner-go/pkg/llm"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

var kickoff = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func testGame() *models.Game {
	return &models.Game{
		ID:               "g1",
		Start:            kickoff,
		End:              kickoff.Add(90 * time.Minute),
		Coordinates:      &models.Coordinates{Lat: 43.65, Lng: -79.38},
		Level:            "local",
		RequiredReferees: 1,
	}
}

func testReferees() []*models.Referee {
	return []*models.Referee{
		{ID: "r3", Level: "local", Home: &models.Coordinates{Lat: 43.66, Lng: -79.39}, YearsExperience: 2, GamesOfficiated: 30, PerformanceRating: 3.5},
		{ID: "r1", Level: "national", Home: &models.Coordinates{Lat: 43.90, Lng: -79.50}, YearsExperience: 12, GamesOfficiated: 400, PerformanceRating: 4.8},
		{ID: "r2", Level: "regional", Home: &models.Coordinates{Lat: 43.70, Lng: -79.40}, YearsExperience: 5, GamesOfficiated: 90, PerformanceRating: 4.1},
	}
}

func scorer(w Weights) *Algorithmic {
	return &Algorithmic{
		Weights:     w,
		MaxDistance: 50,
		MaxPerWeek:  5,
		Rule:        &models.AssignmentRule{},
		Load:        constraints.NewLoadTracker(time.UTC, nil),
	}
}

func ids(cands []models.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.RefereeID
	}
	return out
}

func TestNormalizeRescalesToOne(t *testing.T) {
	w, normalized, err := Normalize(Weights{Distance: 40, Skill: 30, Experience: 20, Partner: 5})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !normalized {
		t.Error("expected a rescale for weights summing to 95")
	}
	if math.Abs(w.Sum()-1) > 1e-9 {
		t.Errorf("sum = %v, want 1", w.Sum())
	}
	if math.Abs(w.Distance-40.0/95) > 1e-9 {
		t.Errorf("distance = %v, want %v", w.Distance, 40.0/95)
	}

	_, normalized, _ = Normalize(Weights{Distance: 0.5, Skill: 0.495})
	if normalized {
		t.Error("weights within tolerance should be left alone")
	}
}

func TestNormalizeRejectsUnusableWeights(t *testing.T) {
	for _, w := range []Weights{{}, {Distance: -1, Skill: 2}, {Skill: math.NaN()}} {
		if _, _, err := Normalize(w); !errors.Is(err, ErrUnusableWeights) {
			t.Errorf("Normalize(%+v) = %v, want ErrUnusableWeights", w, err)
		}
	}
}

func TestRankingInvariantUnderScaling(t *testing.T) {
	base := Weights{Distance: 40, Skill: 30, Experience: 20, Partner: 5}
	var want []models.Candidate
	for _, k := range []float64{1, 0.01, 3.7, 1000} {
		w, _, err := Normalize(base.Scale(k))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		got := scorer(w).Rank(testGame(), testReferees())
		if want == nil {
			want = got
			continue
		}
		for i := range want {
			if got[i].RefereeID != want[i].RefereeID || math.Abs(got[i].Score-want[i].Score) > 1e-9 {
				t.Fatalf("scale %v changed ranking: %v vs %v", k, ids(got), ids(want))
			}
		}
	}
}

func TestAlgorithmicIsDeterministic(t *testing.T) {
	w, _, _ := Normalize(Weights{Distance: 40, Skill: 30, Experience: 20, Partner: 10})
	first := scorer(w).Rank(testGame(), testReferees())
	for i := 0; i < 20; i++ {
		again := scorer(w).Rank(testGame(), testReferees())
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("run %d differs at %d: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestAlgorithmicTieBreaksByID(t *testing.T) {
	refs := []*models.Referee{
		{ID: "b", Level: "local", Home: &models.Coordinates{Lat: 43.65, Lng: -79.38}},
		{ID: "a", Level: "local", Home: &models.Coordinates{Lat: 43.65, Lng: -79.38}},
	}
	w, _, _ := Normalize(Weights{Distance: 1})
	got := ids(scorer(w).Rank(testGame(), refs))
	if got[0] != "a" || got[1] != "b" {
		t.Fatalf("tie order = %v, want [a b]", got)
	}
}

func TestAlgorithmicScoreBounds(t *testing.T) {
	w, _, _ := Normalize(Weights{Distance: 1, Skill: 1, Experience: 1, Partner: 1, Availability: 1})
	s := scorer(w)
	for _, ref := range testReferees() {
		c := s.Score(ref, testGame())
		if c.Score < 0 || c.Score > 1 {
			t.Errorf("%s score %v out of range", ref.ID, c.Score)
		}
	}
	missing := &models.Referee{ID: "x", Level: "local"}
	if c := s.Score(missing, testGame()); c.Score > 0.8 {
		t.Errorf("missing coordinates should score no proximity, got %v", c.Score)
	}
}

func TestLevelFit(t *testing.T) {
	cases := []struct {
		have, need string
		want       float64
	}{
		{"local", "local", 1},
		{"regional", "local", 0.85},
		{"elite", "recreational", 0.4},
		{"local", "", 1},
	}
	for _, tc := range cases {
		if got := LevelFit(tc.have, tc.need); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("LevelFit(%s, %s) = %v, want %v", tc.have, tc.need, got, tc.want)
		}
	}
}

func TestResolveWeightsFallsBackToConfig(t *testing.T) {
	cfg := config.Defaults()
	w, normalized, err := ResolveWeights(&models.AssignmentRule{}, cfg)
	if err != nil {
		t.Fatalf("ResolveWeights: %v", err)
	}
	if !normalized {
		t.Error("config weights sum to 100 and should be normalized")
	}
	if math.Abs(w.Distance-0.4) > 1e-9 || math.Abs(w.Availability-0.3) > 1e-9 || w.Partner != 0 {
		t.Errorf("unexpected weights %+v", w)
	}

	w, _, err = ResolveWeights(&models.AssignmentRule{DistanceWeight: 50, ExperienceWeight: 25, PartnerPreferenceWeight: 25, PrioritizeExperience: true}, cfg)
	if err != nil {
		t.Fatalf("ResolveWeights: %v", err)
	}
	if math.Abs(w.Experience-0.4) > 1e-9 || math.Abs(w.Distance-0.4) > 1e-9 {
		t.Errorf("prioritize_experience should double experience before normalizing, got %+v", w)
	}
}

type scriptedClient struct {
	errs  []error
	resp  llm.RankResponse
	calls int
	last  llm.RankRequest
}

func (c *scriptedClient) Rank(ctx context.Context, req llm.RankRequest) (llm.RankResponse, error) {
	c.calls++
	c.last = req
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return llm.RankResponse{}, err
	}
	return c.resp, nil
}

type recordingObserver struct {
	calls, failures int
}

func (o *recordingObserver) ObserveLLMCall(_ time.Duration, err error, _ bool) {
	o.calls++
	if err != nil {
		o.failures++
	}
}

func testLLMConfig() config.LLM {
	return config.LLM{Model: "gpt-test", MaxRetries: 2, RetryBaseDelay: config.Duration(time.Millisecond), Temperature: 0.3, MaxTokens: 100}
}

func testInfos() []llm.CandidateInfo {
	return []llm.CandidateInfo{{RefereeID: "r1", DistanceKm: 3}, {RefereeID: "r2", DistanceKm: 9}}
}

func TestLLMScorerRetriesTransientFailures(t *testing.T) {
	client := &scriptedClient{
		errs: []error{llm.ErrTimeout, llm.ErrRateLimited},
		resp: llm.RankResponse{Rankings: []llm.Ranking{{RefereeID: "r2", Score: 0.9}, {RefereeID: "r1", Score: 0.7}}, Rationale: "r2 fits"},
	}
	obs := &recordingObserver{}
	s := NewLLMScorer(client, testLLMConfig(), 0, obs)

	ranked, err := s.Rank(context.Background(), &models.AssignmentRule{}, testGame(), testInfos(), nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
	if got := ids(ranked.Candidates); len(got) != 2 || got[0] != "r2" {
		t.Errorf("ranking = %v", got)
	}
	if ranked.Candidates[0].DistanceKm != 9 {
		t.Errorf("distance should be carried over, got %v", ranked.Candidates[0].DistanceKm)
	}
	if obs.calls != 3 || obs.failures != 2 {
		t.Errorf("observer saw %d calls / %d failures", obs.calls, obs.failures)
	}
}

func TestLLMScorerGivesUpAfterMaxRetries(t *testing.T) {
	client := &scriptedClient{errs: []error{llm.ErrTimeout, llm.ErrTimeout, llm.ErrTimeout, llm.ErrTimeout}}
	s := NewLLMScorer(client, testLLMConfig(), 0, nil)
	_, err := s.Rank(context.Background(), &models.AssignmentRule{}, testGame(), testInfos(), nil)
	if !errors.Is(err, llm.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 1 + 2 retries", client.calls)
	}
}

func TestLLMScorerDoesNotRetryMalformed(t *testing.T) {
	client := &scriptedClient{errs: []error{llm.ErrMalformed}}
	s := NewLLMScorer(client, testLLMConfig(), 0, nil)
	_, err := s.Rank(context.Background(), &models.AssignmentRule{}, testGame(), testInfos(), nil)
	if !errors.Is(err, llm.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestLLMScorerMinConfidence(t *testing.T) {
	client := &scriptedClient{resp: llm.RankResponse{Rankings: []llm.Ranking{{RefereeID: "r1", Score: 0.4}, {RefereeID: "r2", Score: 0.8}}}}
	s := NewLLMScorer(client, testLLMConfig(), 0.5, nil)
	ranked, err := s.Rank(context.Background(), &models.AssignmentRule{}, testGame(), testInfos(), nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got := ids(ranked.Candidates); len(got) != 1 || got[0] != "r2" {
		t.Errorf("ranking = %v, want [r2]", got)
	}
}

func TestLLMScorerDropsUnknownRefereesAndClipsScores(t *testing.T) {
	client := &scriptedClient{resp: llm.RankResponse{Rankings: []llm.Ranking{
		{RefereeID: "ghost", Score: 0.99},
		{RefereeID: "r1", Score: 1.7},
		{RefereeID: "r1", Score: 0.2},
		{RefereeID: "r2", Score: -0.4},
	}}}
	s := NewLLMScorer(client, testLLMConfig(), 0, nil)
	ranked, err := s.Rank(context.Background(), &models.AssignmentRule{}, testGame(), testInfos(), nil)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if got := ids(ranked.Candidates); len(got) != 2 || got[0] != "r1" || got[1] != "r2" {
		t.Fatalf("ranking = %v, want [r1 r2]", got)
	}
	if ranked.Candidates[0].Score != 1 || ranked.Candidates[1].Score != 0 {
		t.Errorf("scores should be clipped to [0,1], got %+v", ranked.Candidates)
	}
	if ranked.Candidates[0].DistanceKm != 3 {
		t.Errorf("distance = %v, want 3", ranked.Candidates[0].DistanceKm)
	}
}

func TestLLMScorerRequestUsesRuleSettings(t *testing.T) {
	client := &scriptedClient{resp: llm.RankResponse{Rankings: []llm.Ranking{{RefereeID: "r1", Score: 1}}}}
	s := NewLLMScorer(client, testLLMConfig(), 0, nil)
	comments := []string{"tournament final"}

	rule := &models.AssignmentRule{LLMModel: "gpt-rule", LLMTemperature: 0.9, ContextPrompt: "prefer calm referees"}
	if _, err := s.Rank(context.Background(), rule, testGame(), testInfos(), comments); err != nil {
		t.Fatal(err)
	}
	if client.last.Model != "gpt-rule" || client.last.Temperature != 0.9 || client.last.RulePrompt != "prefer calm referees" {
		t.Errorf("rule settings not applied: %+v", client.last)
	}
	if len(client.last.Comments) != 0 {
		t.Error("comments must be left out unless include_comments is set")
	}

	rule.IncludeComments = true
	if _, err := s.Rank(context.Background(), rule, testGame(), testInfos(), comments); err != nil {
		t.Fatal(err)
	}
	if len(client.last.Comments) != 1 {
		t.Errorf("comments = %v, want the caller comments", client.last.Comments)
	}
}
