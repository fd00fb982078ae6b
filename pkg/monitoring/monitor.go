// Package monitoring keeps in-process counters for runs and LLM calls and logs
// slow requests and threshold alerts
package monitoring

import (
	"log"
	"sync"
	"time"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

const (
	// rates are not alerted on until this many samples exist
	minSamples    = 10
	alertCooldown = time.Minute
)

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Runs               map[models.RunStatus]int64 `json:"runs"`
	GamesProcessed     int64                      `json:"games_processed"`
	AssignmentsCreated int64                      `json:"assignments_created"`
	ConflictsFound     int64                      `json:"conflicts_found"`
	FallbackGames      int64                      `json:"fallback_games"`
	LLMCalls           int64                      `json:"llm_calls"`
	LLMFailures        int64                      `json:"llm_failures"`
	CacheHits          int64                      `json:"cache_hits"`
	SlowRequests       int64                      `json:"slow_requests"`
	AverageLatencyMs   float64                    `json:"average_latency_ms"`
	ErrorRate          float64                    `json:"error_rate"`
	FallbackRate       float64                    `json:"fallback_rate"`
}

// Monitor implements engine.Monitor
type Monitor struct {
	cfg  config.Monitoring
	logf func(format string, args ...any)
	now  func() time.Time

	mu           sync.Mutex
	runs         map[models.RunStatus]int64
	games        int64
	llmGames     int64
	assignments  int64
	conflicts    int64
	fallbacks    int64
	llmCalls     int64
	llmFailures  int64
	cacheHits    int64
	slow         int64
	totalLatency time.Duration
	lastAlert    map[string]time.Time
}

// New creates a monitor. A disabled monitor ignores every observation
func New(cfg config.Monitoring) *Monitor {
	return &Monitor{
		cfg:       cfg,
		logf:      log.Printf,
		now:       time.Now,
		runs:      make(map[models.RunStatus]int64),
		lastAlert: make(map[string]time.Time),
	}
}

// ObserveLLMCall records one LLM attempt
func (m *Monitor) ObserveLLMCall(latency time.Duration, err error, cached bool) {
	if !m.cfg.Enabled {
		return
	}
	threshold := m.cfg.AlertThresholds.ResponseTime.Std()
	if m.cfg.LogSlowRequests && threshold > 0 && latency > threshold {
		m.logf("[Monitor] Slow LLM request: %s (threshold %s)", latency.Round(time.Millisecond), threshold)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if threshold > 0 && latency > threshold {
		m.slow++
	}
	if !m.cfg.TrackMetrics {
		return
	}
	m.llmCalls++
	m.totalLatency += latency
	if cached {
		m.cacheHits++
	}
	if err != nil {
		m.llmFailures++
	}
	if limit := m.cfg.AlertThresholds.ErrorRate; limit > 0 && m.llmCalls >= minSamples {
		if rate := float64(m.llmFailures) / float64(m.llmCalls); rate > limit {
			m.alertLocked("error_rate", "[Monitor] ALERT LLM error rate %.2f exceeds %.2f", rate, limit)
		}
	}
}

// ObserveRun records a finished rule run
func (m *Monitor) ObserveRun(result models.RuleRunResult) {
	if !m.cfg.Enabled || !m.cfg.TrackMetrics {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[result.Status]++
	m.games += int64(result.GamesProcessed)
	m.assignments += int64(result.AssignmentsCreated)
	m.conflicts += int64(result.ConflictsFound)
	m.fallbacks += int64(len(result.Details.FallbackGames))
	if result.AISystemUsed == models.AISystemLLM || len(result.Details.FallbackGames) > 0 {
		m.llmGames += int64(result.GamesProcessed)
	}
	if limit := m.cfg.AlertThresholds.FallbackRate; limit > 0 && m.llmGames >= minSamples {
		if rate := float64(m.fallbacks) / float64(m.llmGames); rate > limit {
			m.alertLocked("fallback_rate", "[Monitor] ALERT fallback rate %.2f exceeds %.2f", rate, limit)
		}
	}
}

func (m *Monitor) alertLocked(key, format string, args ...any) {
	now := m.now()
	if last, ok := m.lastAlert[key]; ok && now.Sub(last) < alertCooldown {
		return
	}
	m.lastAlert[key] = now
	m.logf(format, args...)
}

// Snapshot returns a copy of the counters
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Runs:               make(map[models.RunStatus]int64, len(m.runs)),
		GamesProcessed:     m.games,
		AssignmentsCreated: m.assignments,
		ConflictsFound:     m.conflicts,
		FallbackGames:      m.fallbacks,
		LLMCalls:           m.llmCalls,
		LLMFailures:        m.llmFailures,
		CacheHits:          m.cacheHits,
		SlowRequests:       m.slow,
	}
	for k, v := range m.runs {
		s.Runs[k] = v
	}
	if m.llmCalls > 0 {
		s.AverageLatencyMs = float64(m.totalLatency.Milliseconds()) / float64(m.llmCalls)
		s.ErrorRate = float64(m.llmFailures) / float64(m.llmCalls)
	}
	if m.llmGames > 0 {
		s.FallbackRate = float64(m.fallbacks) / float64(m.llmGames)
	}
	return s
}
