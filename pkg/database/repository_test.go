package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

var base = time.Date(2026, 4, 4, 9, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewRepository(db)
}

func seedGame(t *testing.T, repo *Repository, id string, start time.Time, gameType, status string) {
	t.Helper()
	err := repo.SaveGame(context.Background(), models.Game{
		ID:               id,
		CreatedAt:        base.Add(-24 * time.Hour),
		Start:            start,
		End:              start.Add(90 * time.Minute),
		Location:         "Field " + id,
		Coordinates:      &models.Coordinates{Lat: 43.65, Lng: -79.38},
		Level:            "local",
		GameType:         gameType,
		AgeGroup:         "U12",
		RequiredReferees: 2,
		Status:           status,
		BaseWage:         40,
	})
	if err != nil {
		t.Fatalf("save game %s: %v", id, err)
	}
}

func seedReferee(t *testing.T, repo *Repository, id, level string, off ...models.Window) {
	t.Helper()
	err := repo.SaveReferee(context.Background(), models.Referee{
		ID:                id,
		Name:              "Ref " + id,
		Level:             level,
		Home:              &models.Coordinates{Lat: 43.70, Lng: -79.40},
		YearsExperience:   4,
		PerformanceRating: 4,
		Unavailable:       off,
	})
	if err != nil {
		t.Fatalf("save referee %s: %v", id, err)
	}
}

func TestRuleLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &models.AssignmentRule{
		Name:         "Saturday U12",
		Enabled:      true,
		ScheduleType: models.ScheduleRecurring,
		Frequency:    models.FrequencyWeekly,
		Time:         "08:00",
		AISystemType: models.AISystemLLM,
		GameTypes:    []string{"league"},
		MaxDaysAhead: 7,
	}
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if rule.ID == "" {
		t.Fatal("CreateRule should assign an id")
	}

	got, err := repo.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.Name != rule.Name || len(got.GameTypes) != 1 || got.GameTypes[0] != "league" {
		t.Errorf("GetRule = %+v", got)
	}

	if n, err := repo.CountEnabledLLMRules(ctx); err != nil || n != 1 {
		t.Errorf("CountEnabledLLMRules = %d, %v; want 1", n, err)
	}

	got.Description = "weekly league pass"
	if err := repo.UpdateRule(ctx, got); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}
	next := base.Add(48 * time.Hour)
	if err := repo.UpdateRuleSchedule(ctx, rule.ID, &next, true); err != nil {
		t.Fatalf("UpdateRuleSchedule: %v", err)
	}
	schedulable, err := repo.ListSchedulableRules(ctx)
	if err != nil || len(schedulable) != 1 {
		t.Fatalf("ListSchedulableRules = %d rules, %v", len(schedulable), err)
	}
	if schedulable[0].NextRun == nil || !schedulable[0].NextRun.Equal(next) {
		t.Errorf("next run = %v, want %v", schedulable[0].NextRun, next)
	}
	if schedulable[0].Description != "weekly league pass" {
		t.Errorf("description = %q", schedulable[0].Description)
	}

	if err := repo.DisableRule(ctx, rule.ID); err != nil {
		t.Fatalf("DisableRule: %v", err)
	}
	if rules, _ := repo.ListRules(ctx, true); len(rules) != 0 {
		t.Errorf("disabled rule still listed as enabled")
	}
	if rules, _ := repo.ListRules(ctx, false); len(rules) != 1 {
		t.Errorf("disabled rule should still exist")
	}

	if _, err := repo.GetRule(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRule(missing) = %v, want ErrNotFound", err)
	}
	if err := repo.DisableRule(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("DisableRule(missing) = %v, want ErrNotFound", err)
	}
}

func TestPartnerPreferencesAreUnordered(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SavePartnerPreference(ctx, &models.PartnerPreference{RuleID: "r", RefereeA: "zoe", RefereeB: "adam", Type: models.PreferencePreferred}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// same pair reversed replaces the type instead of adding a row
	if err := repo.SavePartnerPreference(ctx, &models.PartnerPreference{RuleID: "r", RefereeA: "adam", RefereeB: "zoe", Type: models.PreferenceAvoid}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	prefs, err := repo.ListPartnerPreferences(ctx, "r")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(prefs) != 1 {
		t.Fatalf("got %d preferences, want 1", len(prefs))
	}
	if prefs[0].RefereeA != "adam" || prefs[0].RefereeB != "zoe" || prefs[0].Type != models.PreferenceAvoid {
		t.Errorf("stored pair = %+v", prefs[0])
	}

	if err := repo.DeletePartnerPreference(ctx, "r", "zoe", "adam"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeletePartnerPreference(ctx, "r", "zoe", "adam"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestListEligibleGames(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedGame(t, repo, "g-late", base.Add(30*time.Hour), "league", "scheduled")
	seedGame(t, repo, "g-early", base.Add(2*time.Hour), "league", "partially_assigned")
	seedGame(t, repo, "g-cup", base.Add(3*time.Hour), "cup", "scheduled")
	seedGame(t, repo, "g-done", base.Add(4*time.Hour), "league", "assigned")
	seedGame(t, repo, "g-past", base.Add(-3*time.Hour), "league", "scheduled")
	seedGame(t, repo, "g-far", base.Add(9*24*time.Hour), "league", "scheduled")

	if err := repo.CreateAssignment(ctx, &models.Assignment{GameID: "g-early", RefereeID: "r1", Position: models.Position(0), Status: models.AssignmentStatusPending}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if err := repo.CreateAssignment(ctx, &models.Assignment{GameID: "g-early", RefereeID: "r2", Position: models.Position(1), Status: "declined"}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}

	games, err := repo.ListEligibleGames(ctx, models.GameCriteria{
		GameTypes: []string{"league"},
		From:      base,
		To:        base.Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("ListEligibleGames: %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("got %d games, want 2: %+v", len(games), games)
	}
	if games[0].ID != "g-early" || games[1].ID != "g-late" {
		t.Errorf("order = %s, %s", games[0].ID, games[1].ID)
	}
	if len(games[0].AssignedReferees) != 1 || games[0].AssignedReferees[0] != "r1" {
		t.Errorf("declined assignment should not hold a slot: %v", games[0].AssignedReferees)
	}
	if games[0].Coordinates == nil || games[0].RequiredReferees != 2 {
		t.Errorf("game fields not mapped: %+v", games[0])
	}
}

func TestListEligibleReferees(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedReferee(t, repo, "r-local", "local")
	seedReferee(t, repo, "r-regional", "Regional", models.Window{Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)})
	seedReferee(t, repo, "r-rec", "recreational")
	if err := repo.DB().Model(&RefereeRow{}).Create(&RefereeRow{ID: "r-retired", Name: "Retired", Level: "elite", Active: false}).Error; err != nil {
		t.Fatalf("seed inactive: %v", err)
	}

	// a game from earlier in the week counts toward load
	seedGame(t, repo, "prior", base.Add(-48*time.Hour), "league", "assigned")
	if err := repo.CreateAssignment(ctx, &models.Assignment{GameID: "prior", RefereeID: "r-local", Position: models.Position(0), Status: "accepted"}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}

	refs, err := repo.ListEligibleReferees(ctx, models.RefereeCriteria{MinLevel: "local", From: base, To: base.Add(7 * 24 * time.Hour)})
	if err != nil {
		t.Fatalf("ListEligibleReferees: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d referees, want 2: %+v", len(refs), refs)
	}
	if refs[0].ID != "r-local" || refs[1].ID != "r-regional" {
		t.Errorf("order = %s, %s", refs[0].ID, refs[1].ID)
	}
	if len(refs[0].Commitments) != 1 || refs[0].Commitments[0].GameID != "prior" {
		t.Errorf("commitments = %+v", refs[0].Commitments)
	}
	if len(refs[1].Unavailable) != 1 {
		t.Errorf("unavailability = %+v", refs[1].Unavailable)
	}
	if refs[0].WageMultiplier != 1 {
		t.Errorf("wage multiplier default = %v, want 1", refs[0].WageMultiplier)
	}
}

func TestRunsAndStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	stats, err := repo.RuleStats(ctx, "rule-1")
	if err != nil {
		t.Fatalf("RuleStats on empty history: %v", err)
	}
	if stats.TotalRuns != 0 || stats.LastRunAt != nil {
		t.Errorf("empty stats = %+v", stats)
	}

	runs := []models.RuleRun{
		{RuleID: "rule-1", RunAt: base, Status: models.RunSuccess, AssignmentsCreated: 4, ConflictsFound: 1},
		{RuleID: "rule-1", RunAt: base.Add(time.Hour), Status: models.RunPartial, AssignmentsCreated: 2, ConflictsFound: 3},
		{RuleID: "rule-2", RunAt: base, Status: models.RunError},
	}
	for i := range runs {
		if err := repo.CreateRuleRun(ctx, &runs[i]); err != nil {
			t.Fatalf("CreateRuleRun: %v", err)
		}
	}

	stats, err = repo.RuleStats(ctx, "rule-1")
	if err != nil {
		t.Fatalf("RuleStats: %v", err)
	}
	if stats.TotalRuns != 2 || stats.AssignmentsCreated != 6 || stats.ConflictsFound != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastRunStatus != models.RunPartial {
		t.Errorf("last status = %s, want partial", stats.LastRunStatus)
	}

	list, err := repo.ListRuns(ctx, "rule-1", 1)
	if err != nil || len(list) != 1 || list[0].Status != models.RunPartial {
		t.Fatalf("ListRuns = %+v, %v", list, err)
	}
	got, err := repo.GetRun(ctx, list[0].ID)
	if err != nil || got.AssignmentsCreated != 2 {
		t.Errorf("GetRun = %+v, %v", got, err)
	}
	if _, err := repo.GetRun(ctx, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetRun(nope) = %v, want ErrNotFound", err)
	}
}

func TestCreateAssignmentRejectsDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := &models.Assignment{GameID: "g", RefereeID: "r", Position: models.Position(0), Status: models.AssignmentStatusPending, RuleRunID: "run-1"}
	if err := repo.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.CreateAssignment(ctx, a); err == nil {
		t.Fatal("a referee must not hold two positions on one game")
	}
	list, err := repo.ListAssignments(ctx, "run-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListAssignments = %+v, %v", list, err)
	}
}
