package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// commitments this far before a run window still count toward weekly load
const loadLookback = 7 * 24 * time.Hour

// Repository is the gorm-backed store for rules, runs, games and referees
type Repository struct {
	db *gorm.DB
}

// NewRepository wraps an open database
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying connection
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

// GetRule loads one rule
func (r *Repository) GetRule(ctx context.Context, id string) (*models.AssignmentRule, error) {
	var rule models.AssignmentRule
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error; err != nil {
		return nil, notFound(err)
	}
	return &rule, nil
}

// ListRules returns rules ordered by name
func (r *Repository) ListRules(ctx context.Context, enabledOnly bool) ([]models.AssignmentRule, error) {
	var rules []models.AssignmentRule
	q := r.db.WithContext(ctx).Order("name, id")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if err := q.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// ListSchedulableRules returns enabled rules that run on their own
func (r *Repository) ListSchedulableRules(ctx context.Context) ([]models.AssignmentRule, error) {
	var rules []models.AssignmentRule
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND schedule_type IN ?", true, []models.ScheduleType{models.ScheduleRecurring, models.ScheduleOneTime}).
		Order("id").
		Find(&rules).Error
	return rules, err
}

// CountEnabledLLMRules counts enabled rules that need an LLM provider
func (r *Repository) CountEnabledLLMRules(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.AssignmentRule{}).
		Where("enabled = ? AND ai_system_type = ?", true, models.AISystemLLM).
		Count(&n).Error
	return n, err
}

// CreateRule inserts a rule, assigning an id when missing
func (r *Repository) CreateRule(ctx context.Context, rule *models.AssignmentRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(rule).Error
}

// UpdateRule saves every field of an existing rule
func (r *Repository) UpdateRule(ctx context.Context, rule *models.AssignmentRule) error {
	res := r.db.WithContext(ctx).Model(&models.AssignmentRule{}).Where("id = ?", rule.ID).Select("*").Omit("id", "created_at").Updates(rule)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DisableRule turns a rule off. Rules are never deleted so their runs stay attributable
func (r *Repository) DisableRule(ctx context.Context, id string) error {
	return r.UpdateRuleSchedule(ctx, id, nil, false)
}

// UpdateRuleSchedule stores the next run and enabled flag of a rule
func (r *Repository) UpdateRuleSchedule(ctx context.Context, id string, nextRun *time.Time, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&models.AssignmentRule{}).Where("id = ?", id).
		Updates(map[string]interface{}{"next_run": nextRun, "enabled": enabled})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListPartnerPreferences returns a rule's partner pairs
func (r *Repository) ListPartnerPreferences(ctx context.Context, ruleID string) ([]models.PartnerPreference, error) {
	var prefs []models.PartnerPreference
	err := r.db.WithContext(ctx).Where("rule_id = ?", ruleID).Order("referee_a, referee_b").Find(&prefs).Error
	return prefs, err
}

// SavePartnerPreference inserts a pair or changes the type of an existing one
func (r *Repository) SavePartnerPreference(ctx context.Context, pref *models.PartnerPreference) error {
	pref.Normalize()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_id"}, {Name: "referee_a"}, {Name: "referee_b"}},
		DoUpdates: clause.AssignmentColumns([]string{"type"}),
	}).Create(pref).Error
}

// DeletePartnerPreference removes a pair in either order
func (r *Repository) DeletePartnerPreference(ctx context.Context, ruleID, a, b string) error {
	if b < a {
		a, b = b, a
	}
	res := r.db.WithContext(ctx).Where("rule_id = ? AND referee_a = ? AND referee_b = ?", ruleID, a, b).Delete(&models.PartnerPreference{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CreateRuleRun inserts a run record
func (r *Repository) CreateRuleRun(ctx context.Context, run *models.RuleRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// ListRuns returns a rule's most recent runs first
func (r *Repository) ListRuns(ctx context.Context, ruleID string, limit int) ([]models.RuleRun, error) {
	var runs []models.RuleRun
	q := r.db.WithContext(ctx).Where("rule_id = ?", ruleID).Order("run_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun loads one run
func (r *Repository) GetRun(ctx context.Context, id string) (*models.RuleRun, error) {
	var run models.RuleRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// RuleStats derives a rule's tracking figures from its run history
func (r *Repository) RuleStats(ctx context.Context, ruleID string) (models.RuleStats, error) {
	stats := models.RuleStats{RuleID: ruleID}
	var totals struct {
		Runs        int64
		Assignments int64
		Conflicts   int64
	}
	err := r.db.WithContext(ctx).Model(&models.RuleRun{}).
		Select("COUNT(*) AS runs, COALESCE(SUM(assignments_created), 0) AS assignments, COALESCE(SUM(conflicts_found), 0) AS conflicts").
		Where("rule_id = ?", ruleID).
		Scan(&totals).Error
	if err != nil {
		return stats, err
	}
	stats.TotalRuns = totals.Runs
	stats.AssignmentsCreated = totals.Assignments
	stats.ConflictsFound = totals.Conflicts
	if totals.Runs == 0 {
		return stats, nil
	}

	var last models.RuleRun
	if err := r.db.WithContext(ctx).Where("rule_id = ?", ruleID).Order("run_at DESC").First(&last).Error; err != nil {
		return stats, notFound(err)
	}
	stats.LastRunAt = &last.RunAt
	stats.LastRunStatus = last.Status
	return stats, nil
}

// ListEligibleGames returns open games in the criteria window with their current officials
func (r *Repository) ListEligibleGames(ctx context.Context, criteria models.GameCriteria) ([]models.Game, error) {
	q := r.db.WithContext(ctx).Where("status IN ?", openGameStatuses)
	if !criteria.From.IsZero() {
		q = q.Where("start_time >= ?", criteria.From.UTC())
	}
	if !criteria.To.IsZero() {
		q = q.Where("start_time < ?", criteria.To.UTC())
	}
	if len(criteria.GameTypes) > 0 {
		q = q.Where("game_type IN ?", criteria.GameTypes)
	}
	if len(criteria.AgeGroups) > 0 {
		q = q.Where("age_group IN ?", criteria.AgeGroups)
	}
	var rows []GameRow
	if err := q.Order("start_time, created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	var assigned []AssignmentRow
	err := r.db.WithContext(ctx).
		Where("game_id IN ? AND status <> ?", ids, assignmentDeclined).
		Order("position, referee_id").
		Find(&assigned).Error
	if err != nil {
		return nil, err
	}
	byGame := make(map[string][]string, len(rows))
	for _, a := range assigned {
		byGame[a.GameID] = append(byGame[a.GameID], a.RefereeID)
	}

	games := make([]models.Game, len(rows))
	for i, row := range rows {
		games[i] = row.toModel()
		games[i].AssignedReferees = byGame[row.ID]
	}
	return games, nil
}

type commitmentRow struct {
	RefereeID string
	GameID    string
	StartTime time.Time
	EndTime   time.Time
}

// ListEligibleReferees returns active referees at or above the minimum level, with the
// unavailability and existing assignments that matter for the criteria window
func (r *Repository) ListEligibleReferees(ctx context.Context, criteria models.RefereeCriteria) ([]models.Referee, error) {
	q := r.db.WithContext(ctx).Where("active = ?", true)
	if rank := models.LevelRank(criteria.MinLevel); rank >= 0 {
		q = q.Where("LOWER(level) IN ?", models.Levels()[rank:])
	}
	var rows []RefereeRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	index := make(map[string]int, len(rows))
	refs := make([]models.Referee, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		index[row.ID] = i
		refs[i] = row.toModel()
	}

	var off []UnavailabilityRow
	uq := r.db.WithContext(ctx).Where("referee_id IN ?", ids)
	if !criteria.From.IsZero() {
		uq = uq.Where("end_time > ?", criteria.From.UTC())
	}
	if !criteria.To.IsZero() {
		uq = uq.Where("start_time < ?", criteria.To.UTC())
	}
	if err := uq.Order("start_time").Find(&off).Error; err != nil {
		return nil, err
	}
	for _, u := range off {
		i := index[u.RefereeID]
		refs[i].Unavailable = append(refs[i].Unavailable, models.Window{Start: u.StartTime, End: u.EndTime})
	}

	var held []commitmentRow
	cq := r.db.WithContext(ctx).Table("game_assignments").
		Select("game_assignments.referee_id, games.id AS game_id, games.start_time, games.end_time").
		Joins("JOIN games ON games.id = game_assignments.game_id").
		Where("game_assignments.referee_id IN ? AND game_assignments.status <> ?", ids, assignmentDeclined)
	if !criteria.From.IsZero() {
		cq = cq.Where("games.end_time > ?", criteria.From.Add(-loadLookback).UTC())
	}
	if !criteria.To.IsZero() {
		cq = cq.Where("games.start_time < ?", criteria.To.Add(loadLookback).UTC())
	}
	if err := cq.Order("games.start_time").Scan(&held).Error; err != nil {
		return nil, err
	}
	for _, c := range held {
		i := index[c.RefereeID]
		refs[i].Commitments = append(refs[i].Commitments, models.Commitment{
			GameID: c.GameID,
			Window: models.Window{Start: c.StartTime, End: c.EndTime},
		})
	}
	return refs, nil
}

// CreateAssignment writes one assignment in its own transaction
func (r *Repository) CreateAssignment(ctx context.Context, a *models.Assignment) error {
	row := AssignmentRow{
		ID:             uuid.NewString(),
		GameID:         a.GameID,
		RefereeID:      a.RefereeID,
		Position:       a.Position,
		CalculatedWage: a.CalculatedWage,
		Status:         a.Status,
	}
	if a.RuleRunID != "" {
		runID := a.RuleRunID
		row.RuleRunID = &runID
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// SaveGame inserts or replaces a game
func (r *Repository) SaveGame(ctx context.Context, g models.Game) error {
	lat, lng := latLng(g.Coordinates)
	row := GameRow{
		ID:               g.ID,
		CreatedAt:        g.CreatedAt.UTC(),
		StartTime:        g.Start.UTC(),
		EndTime:          g.End.UTC(),
		Location:         g.Location,
		Latitude:         lat,
		Longitude:        lng,
		Level:            g.Level,
		GameType:         g.GameType,
		AgeGroup:         g.AgeGroup,
		RequiredReferees: g.RequiredReferees,
		Status:           g.Status,
		BaseWage:         g.BaseWage,
	}
	if row.Status == "" {
		row.Status = openGameStatuses[0]
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

// SaveReferee inserts or replaces an active referee and its unavailability windows
func (r *Repository) SaveReferee(ctx context.Context, ref models.Referee) error {
	lat, lng := latLng(ref.Home)
	row := RefereeRow{
		ID:                ref.ID,
		Name:              ref.Name,
		Level:             ref.Level,
		HomeLatitude:      lat,
		HomeLongitude:     lng,
		YearsExperience:   ref.YearsExperience,
		GamesOfficiated:   ref.GamesOfficiated,
		PerformanceRating: ref.PerformanceRating,
		WageMultiplier:    ref.WageMultiplier,
		Active:            true,
	}
	if row.WageMultiplier == 0 {
		row.WageMultiplier = 1
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		if err := tx.Where("referee_id = ?", ref.ID).Delete(&UnavailabilityRow{}).Error; err != nil {
			return err
		}
		for _, w := range ref.Unavailable {
			u := UnavailabilityRow{RefereeID: ref.ID, StartTime: w.Start.UTC(), EndTime: w.End.UTC()}
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListAssignments returns assignments created by a run
func (r *Repository) ListAssignments(ctx context.Context, runID string) ([]models.Assignment, error) {
	var rows []AssignmentRow
	if err := r.db.WithContext(ctx).Where("rule_run_id = ?", runID).Order("created_at, game_id, position").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Assignment, len(rows))
	for i, row := range rows {
		out[i] = models.Assignment{
			GameID:         row.GameID,
			RefereeID:      row.RefereeID,
			Position:       row.Position,
			CalculatedWage: row.CalculatedWage,
			Status:         row.Status,
			RuleRunID:      runID,
		}
	}
	return out, nil
}
