package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

func date(y int, m time.Month, d, hour, minute int) time.Time {
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

func recurring(freq models.Frequency, clock string) *models.AssignmentRule {
	return &models.AssignmentRule{ID: "r", Enabled: true, ScheduleType: models.ScheduleRecurring, Frequency: freq, Time: clock}
}

func TestNextRunDaily(t *testing.T) {
	rule := recurring(models.FrequencyDaily, "06:30")
	if got := NextRun(rule, date(2026, 3, 14, 5, 0), time.UTC); !got.Equal(date(2026, 3, 14, 6, 30)) {
		t.Errorf("before time: got %v", got)
	}
	if got := NextRun(rule, date(2026, 3, 14, 6, 30), time.UTC); !got.Equal(date(2026, 3, 15, 6, 30)) {
		t.Errorf("at time: got %v, want next day", got)
	}
}

func TestNextRunWeekly(t *testing.T) {
	rule := recurring(models.FrequencyWeekly, "18:00")
	rule.DayOfWeek = int(time.Monday)
	// 2026-03-14 is a Saturday
	if got := NextRun(rule, date(2026, 3, 14, 12, 0), time.UTC); !got.Equal(date(2026, 3, 16, 18, 0)) {
		t.Errorf("got %v, want Monday 16th", got)
	}
	if got := NextRun(rule, date(2026, 3, 16, 18, 0), time.UTC); !got.Equal(date(2026, 3, 23, 18, 0)) {
		t.Errorf("got %v, want the following Monday", got)
	}
}

func TestNextRunMonthlyClampsDay(t *testing.T) {
	rule := recurring(models.FrequencyMonthly, "09:00")
	rule.DayOfMonth = 31
	if got := NextRun(rule, date(2026, 3, 31, 10, 0), time.UTC); !got.Equal(date(2026, 4, 30, 9, 0)) {
		t.Errorf("got %v, want April 30th", got)
	}
	if got := NextRun(rule, date(2026, 2, 1, 0, 0), time.UTC); !got.Equal(date(2026, 2, 28, 9, 0)) {
		t.Errorf("got %v, want February 28th", got)
	}
}

func TestNextRunRespectsDateRange(t *testing.T) {
	rule := recurring(models.FrequencyDaily, "08:00")
	start := date(2026, 4, 1, 0, 0)
	end := date(2026, 4, 2, 0, 0)
	rule.StartDate, rule.EndDate = &start, &end

	if got := NextRun(rule, date(2026, 3, 14, 12, 0), time.UTC); !got.Equal(date(2026, 4, 1, 8, 0)) {
		t.Errorf("got %v, want first day of range", got)
	}
	if got := NextRun(rule, date(2026, 4, 1, 9, 0), time.UTC); !got.Equal(date(2026, 4, 2, 8, 0)) {
		t.Errorf("end date should be inclusive, got %v", got)
	}
	if got := NextRun(rule, date(2026, 4, 2, 9, 0), time.UTC); got != nil {
		t.Errorf("past the end date: got %v, want nil", got)
	}
}

func TestNextRunTimezone(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	rule := recurring(models.FrequencyDaily, "07:00")
	got := NextRun(rule, date(2026, 3, 14, 11, 0), loc)
	if !got.Equal(date(2026, 3, 14, 12, 0)) {
		t.Errorf("got %v, want 07:00 local = 12:00 UTC", got)
	}
}

func TestNextRunOneTimeAndManual(t *testing.T) {
	start := date(2026, 5, 2, 0, 0)
	oneTime := &models.AssignmentRule{ScheduleType: models.ScheduleOneTime, StartDate: &start, Time: "10:15"}
	if got := NextRun(oneTime, date(2026, 3, 14, 0, 0), time.UTC); !got.Equal(date(2026, 5, 2, 10, 15)) {
		t.Errorf("one-time: got %v", got)
	}
	if got := NextRun(&models.AssignmentRule{ScheduleType: models.ScheduleManual}, time.Now(), time.UTC); got != nil {
		t.Errorf("manual rules never run, got %v", got)
	}
}

func TestDue(t *testing.T) {
	now := date(2026, 3, 14, 12, 0)
	past := now.Add(-time.Minute)
	rule := recurring(models.FrequencyDaily, "11:59")
	rule.NextRun = &past
	if !Due(rule, now) {
		t.Error("expected due")
	}
	rule.Enabled = false
	if Due(rule, now) {
		t.Error("disabled rules are never due")
	}
}

type fakeStore struct {
	mu      sync.Mutex
	rules   []models.AssignmentRule
	updates map[string]*time.Time
	enabled map[string]bool
}

func newFakeStore(rules ...models.AssignmentRule) *fakeStore {
	return &fakeStore{rules: rules, updates: map[string]*time.Time{}, enabled: map[string]bool{}}
}

func (s *fakeStore) ListSchedulableRules(context.Context) ([]models.AssignmentRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AssignmentRule(nil), s.rules...), nil
}

func (s *fakeStore) UpdateRuleSchedule(_ context.Context, id string, next *time.Time, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates[id] = next
	s.enabled[id] = enabled
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].NextRun = next
			s.rules[i].Enabled = enabled
		}
	}
	return nil
}

type fakeTrigger struct {
	mu     sync.Mutex
	fired  []string
	status models.RunStatus
}

func (f *fakeTrigger) TriggerRule(_ context.Context, id string, _ []string) models.RuleRunResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = append(f.fired, id)
	return models.RuleRunResult{RuleID: id, Status: f.status}
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fired)
}

func TestTickFiresDueRules(t *testing.T) {
	now := date(2026, 3, 14, 12, 0)
	due := now.Add(-2 * time.Hour)
	later := now.Add(time.Hour)
	start := date(2026, 3, 14, 0, 0)

	daily := *recurring(models.FrequencyDaily, "10:00")
	daily.ID, daily.NextRun = "daily", &due
	waiting := *recurring(models.FrequencyDaily, "13:00")
	waiting.ID, waiting.NextRun = "waiting", &later
	once := models.AssignmentRule{ID: "once", Enabled: true, ScheduleType: models.ScheduleOneTime, StartDate: &start, Time: "08:00", NextRun: &due}
	fresh := *recurring(models.FrequencyDaily, "18:00")
	fresh.ID = "fresh"

	store := newFakeStore(daily, waiting, once, fresh)
	trigger := &fakeTrigger{status: models.RunError}
	s := New(store, trigger, config.Defaults())
	s.now = func() time.Time { return now }

	fired, err := s.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if fired != 2 {
		t.Fatalf("fired = %d (%v), want daily and once", fired, trigger.fired)
	}
	// a failed run still moves the schedule forward
	if next := store.updates["daily"]; next == nil || !next.Equal(date(2026, 3, 15, 10, 0)) {
		t.Errorf("daily next run = %v", next)
	}
	if store.enabled["once"] || store.updates["once"] != nil {
		t.Errorf("one-time rule should be disabled, enabled=%v next=%v", store.enabled["once"], store.updates["once"])
	}
	if next := store.updates["fresh"]; next == nil || !next.Equal(date(2026, 3, 14, 18, 0)) {
		t.Errorf("unscheduled rule should get a next run, got %v", next)
	}
	if _, touched := store.updates["waiting"]; touched {
		t.Error("rules that are not due must be left alone")
	}

	// nothing is due any more
	if fired, _ := s.Tick(context.Background()); fired != 0 {
		t.Errorf("second tick fired %d", fired)
	}
}

type failingStore struct{ fakeStore }

func (failingStore) ListSchedulableRules(context.Context) ([]models.AssignmentRule, error) {
	return nil, errors.New("db down")
}

func TestTickReportsStoreFailure(t *testing.T) {
	s := New(&failingStore{}, &fakeTrigger{}, config.Defaults())
	if _, err := s.Tick(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStartRunsTicks(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	rule := *recurring(models.FrequencyDaily, "00:00")
	rule.ID, rule.NextRun = "daily", &past
	store := newFakeStore(rule)
	trigger := &fakeTrigger{status: models.RunSuccess}

	cfg := config.Defaults()
	cfg.Engine.SchedulerInterval = config.Duration(20 * time.Millisecond)
	s := New(store, trigger, cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for trigger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if trigger.count() == 0 {
		t.Fatal("scheduler never fired the due rule")
	}
}
