package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScheduleType controls when a rule runs
type ScheduleType string

const (
	ScheduleManual    ScheduleType = "manual"
	ScheduleRecurring ScheduleType = "recurring"
	ScheduleOneTime   ScheduleType = "one-time"
)

// Frequency is the cadence of a recurring rule
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// AISystemType selects the scorer used by a rule
type AISystemType string

const (
	AISystemAlgorithmic AISystemType = "algorithmic"
	AISystemLLM         AISystemType = "llm"
)

// RunStatus is the outcome of a rule run
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// PreferenceType marks a referee pair as preferred or to be kept apart
type PreferenceType string

const (
	PreferencePreferred PreferenceType = "preferred"
	PreferenceAvoid     PreferenceType = "avoid"
)

// AssignmentRule represents the ai_assignment_rules table
type AssignmentRule struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string `gorm:"not null" json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`

	ScheduleType ScheduleType `gorm:"type:varchar(16);not null;default:'manual'" json:"schedule_type" validate:"required,oneof=manual recurring one-time"`
	Frequency    Frequency    `gorm:"type:varchar(16)" json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	DayOfWeek    int          `json:"day_of_week" validate:"min=0,max=6"`
	DayOfMonth   int          `json:"day_of_month" validate:"min=0,max=31"`
	Time         string       `gorm:"type:varchar(5)" json:"time" validate:"omitempty,datetime=15:04"`
	StartDate    *time.Time   `json:"start_date,omitempty"`
	EndDate      *time.Time   `json:"end_date,omitempty"`
	NextRun      *time.Time   `gorm:"index" json:"next_run,omitempty"`

	GameTypes       pq.StringArray `gorm:"type:text[]" json:"game_types"`
	AgeGroups       pq.StringArray `gorm:"type:text[]" json:"age_groups"`
	MaxDaysAhead    int            `gorm:"default:7" json:"max_days_ahead" validate:"min=0,max=365"`
	MinRefereeLevel string         `json:"min_referee_level"`

	AvoidBackToBack      bool    `json:"avoid_back_to_back"`
	PrioritizeExperience bool    `json:"prioritize_experience"`
	MaxDistance          float64 `json:"max_distance" validate:"min=0"`

	AISystemType AISystemType `gorm:"type:varchar(16);not null;default:'algorithmic'" json:"ai_system_type" validate:"required,oneof=algorithmic llm"`

	DistanceWeight          float64 `json:"distance_weight" validate:"min=0,max=100"`
	SkillWeight             float64 `json:"skill_weight" validate:"min=0,max=100"`
	ExperienceWeight        float64 `json:"experience_weight" validate:"min=0,max=100"`
	PartnerPreferenceWeight float64 `json:"partner_preference_weight" validate:"min=0,max=100"`

	LLMModel        string  `gorm:"column:llm_model" json:"llm_model,omitempty"`
	LLMTemperature  float64 `gorm:"column:llm_temperature" json:"llm_temperature" validate:"min=0,max=2"`
	ContextPrompt   string  `gorm:"type:text" json:"context_prompt,omitempty"`
	IncludeComments bool    `json:"include_comments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for AssignmentRule
func (AssignmentRule) TableName() string {
	return "ai_assignment_rules"
}

// PartnerPreference represents the ai_assignment_partner_preferences table
type PartnerPreference struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	RuleID    string         `gorm:"uniqueIndex:idx_rule_pair;not null;type:varchar(36)" json:"rule_id"`
	RefereeA  string         `gorm:"uniqueIndex:idx_rule_pair;not null" json:"referee_a"`
	RefereeB  string         `gorm:"uniqueIndex:idx_rule_pair;not null" json:"referee_b"`
	Type      PreferenceType `gorm:"type:varchar(16);not null" json:"type"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the table name for PartnerPreference
func (PartnerPreference) TableName() string {
	return "ai_assignment_partner_preferences"
}

// Normalize orders the pair so that RefereeA < RefereeB
func (p *PartnerPreference) Normalize() {
	if p.RefereeB < p.RefereeA {
		p.RefereeA, p.RefereeB = p.RefereeB, p.RefereeA
	}
}

// BeforeSave keeps stored pairs unordered-unique
func (p *PartnerPreference) BeforeSave(tx *gorm.DB) error {
	p.Normalize()
	return nil
}

// RuleRun represents the ai_assignment_rule_runs table
type RuleRun struct {
	ID                 string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RuleID             string                      `gorm:"index;not null;type:varchar(36)" json:"rule_id"`
	RunAt              time.Time                   `gorm:"index;not null" json:"run_at"`
	Status             RunStatus                   `gorm:"type:varchar(16);not null" json:"status"`
	AISystemUsed       AISystemType                `gorm:"type:varchar(16)" json:"ai_system_used"`
	GamesProcessed     int                         `json:"games_processed"`
	AssignmentsCreated int                         `json:"assignments_created"`
	ConflictsFound     int                         `json:"conflicts_found"`
	DurationMs         int64                       `json:"duration_ms"`
	RunDetails         datatypes.JSON              `json:"run_details"`
	ErrorMessage       *string                     `gorm:"type:text" json:"error_message,omitempty"`
	ContextComments    datatypes.JSONSlice[string] `json:"context_comments"`
}

// TableName returns the table name for RuleRun
func (RuleRun) TableName() string {
	return "ai_assignment_rule_runs"
}

// RunDetails is the structured detail stored with each run
type RunDetails struct {
	Batches           int               `json:"batches"`
	DegradedBatches   int               `json:"degraded_batches"`
	AbandonedGames    []string          `json:"abandoned_games,omitempty"`
	FallbackGames     []string          `json:"fallback_games,omitempty"`
	UnscoredGames     []string          `json:"unscored_games,omitempty"`
	WeightsNormalized bool              `json:"weights_normalized"`
	FairnessScore     float64           `json:"fairness_score"`
	Conflicts         []ConflictReason  `json:"conflicts,omitempty"`
	Rationale         map[string]string `json:"rationale,omitempty"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// RuleRunResult is what a trigger returns to its caller
type RuleRunResult struct {
	RunID              string        `json:"run_id"`
	RuleID             string        `json:"rule_id"`
	Status             RunStatus     `json:"status"`
	AISystemUsed       AISystemType  `json:"ai_system_used"`
	GamesProcessed     int           `json:"games_processed"`
	AssignmentsCreated int           `json:"assignments_created"`
	ConflictsFound     int           `json:"conflicts_found"`
	Duration           time.Duration `json:"duration"`
	Assignments        []Assignment  `json:"assignments"`
	Details            RunDetails    `json:"details"`
	Error              string        `json:"error,omitempty"`
}

// RuleStats summarises a rule's history, derived from its runs
type RuleStats struct {
	RuleID             string     `json:"rule_id"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus      RunStatus  `json:"last_run_status,omitempty"`
	TotalRuns          int64      `json:"total_runs"`
	AssignmentsCreated int64      `json:"assignments_created"`
	ConflictsFound     int64      `json:"conflicts_found"`
}
