package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// RuleStore is the part of storage the scheduler needs
type RuleStore interface {
	// ListSchedulableRules returns enabled recurring and one-time rules
	ListSchedulableRules(ctx context.Context) ([]models.AssignmentRule, error)
	UpdateRuleSchedule(ctx context.Context, ruleID string, nextRun *time.Time, enabled bool) error
}

// Trigger runs a rule
type Trigger interface {
	TriggerRule(ctx context.Context, ruleID string, comments []string) models.RuleRunResult
}

// Scheduler fires due rules on a fixed interval
type Scheduler struct {
	store    RuleStore
	trigger  Trigger
	loc      *time.Location
	interval time.Duration
	now      func() time.Time
	sched    gocron.Scheduler
}

// New creates a scheduler using the engine's time zone and tick interval
func New(store RuleStore, trigger Trigger, cfg config.Config) *Scheduler {
	return &Scheduler{
		store:    store,
		trigger:  trigger,
		loc:      cfg.Location(),
		interval: cfg.Engine.SchedulerInterval.Std(),
		now:      time.Now,
	}
}

// Tick fires every due rule once and stores its next run. Recurring rules are
// rescheduled after every execution whatever the outcome; one-time rules are disabled.
// It returns the number of rules fired
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	rules, err := s.store.ListSchedulableRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("list schedulable rules: %w", err)
	}
	now := s.now()
	fired := 0
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled || rule.ScheduleType == models.ScheduleManual {
			continue
		}
		if rule.NextRun == nil {
			if next := NextRun(rule, now, s.loc); next != nil {
				if err := s.store.UpdateRuleSchedule(ctx, rule.ID, next, true); err != nil {
					log.Printf("[Scheduler] Failed to schedule rule %s: %v", rule.ID, err)
				}
			}
			continue
		}
		if !Due(rule, now) {
			continue
		}

		result := s.trigger.TriggerRule(ctx, rule.ID, nil)
		fired++
		log.Printf("[Scheduler] Rule %s (%s) ran: %s, %d assignments, %d conflicts",
			rule.ID, rule.Name, result.Status, result.AssignmentsCreated, result.ConflictsFound)

		var next *time.Time
		enabled := true
		if rule.ScheduleType == models.ScheduleOneTime {
			enabled = false
		} else {
			// from now, not from the missed slot, so a long outage fires once
			next = NextRun(rule, now, s.loc)
		}
		if err := s.store.UpdateRuleSchedule(ctx, rule.ID, next, enabled); err != nil {
			log.Printf("[Scheduler] Failed to update schedule of rule %s: %v", rule.ID, err)
		}
	}
	return fired, nil
}

// Start runs Tick on a background job until Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(s.loc))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Tick(ctx); err != nil {
				log.Printf("[Scheduler] Tick failed: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register rule job: %w", err)
	}
	sched.Start()
	s.sched = sched
	log.Printf("[Scheduler] Checking rules every %s", s.interval)
	return nil
}

// Stop shuts the background job down
func (s *Scheduler) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}
