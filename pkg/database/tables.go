package database

import (
	"time"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// Game statuses that still accept officials
var openGameStatuses = []string{"scheduled", "unassigned", "partially_assigned"}

// Assignment statuses that no longer hold a referee
const assignmentDeclined = "declined"

// GameRow represents the games table
type GameRow struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"`
	CreatedAt        time.Time `gorm:"index"`
	StartTime        time.Time `gorm:"index;not null"`
	EndTime          time.Time `gorm:"not null"`
	Location         string
	Latitude         *float64
	Longitude        *float64
	Level            string
	GameType         string `gorm:"index"`
	AgeGroup         string `gorm:"index"`
	RequiredReferees int    `gorm:"default:1"`
	Status           string `gorm:"index;default:'scheduled'"`
	BaseWage         float64
}

// TableName returns the table name for GameRow
func (GameRow) TableName() string {
	return "games"
}

// RefereeRow represents the referees table
type RefereeRow struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	Name              string `gorm:"not null"`
	Level             string `gorm:"index"`
	HomeLatitude      *float64
	HomeLongitude     *float64
	YearsExperience   int
	GamesOfficiated   int
	PerformanceRating float64
	WageMultiplier    float64 `gorm:"default:1"`
	Active            bool    `gorm:"index"`
}

// TableName returns the table name for RefereeRow
func (RefereeRow) TableName() string {
	return "referees"
}

// UnavailabilityRow represents the referee_unavailability table
type UnavailabilityRow struct {
	ID        uint      `gorm:"primaryKey"`
	RefereeID string    `gorm:"index;not null;type:varchar(36)"`
	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null"`
	Reason    string
}

// TableName returns the table name for UnavailabilityRow
func (UnavailabilityRow) TableName() string {
	return "referee_unavailability"
}

// AssignmentRow represents the game_assignments table. A referee holds at most one
// position per game
type AssignmentRow struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	GameID         string `gorm:"uniqueIndex:idx_game_referee;not null;type:varchar(36)"`
	RefereeID      string `gorm:"uniqueIndex:idx_game_referee;not null;type:varchar(36)"`
	Position       string `gorm:"not null"`
	CalculatedWage float64
	Status         string  `gorm:"index;not null"`
	RuleRunID      *string `gorm:"index;type:varchar(36)"`
	CreatedAt      time.Time
}

// TableName returns the table name for AssignmentRow
func (AssignmentRow) TableName() string {
	return "game_assignments"
}

func coordinates(lat, lng *float64) *models.Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &models.Coordinates{Lat: *lat, Lng: *lng}
}

func latLng(c *models.Coordinates) (*float64, *float64) {
	if c == nil {
		return nil, nil
	}
	lat, lng := c.Lat, c.Lng
	return &lat, &lng
}

func (g GameRow) toModel() models.Game {
	return models.Game{
		ID:               g.ID,
		CreatedAt:        g.CreatedAt,
		Start:            g.StartTime,
		End:              g.EndTime,
		Location:         g.Location,
		Coordinates:      coordinates(g.Latitude, g.Longitude),
		Level:            g.Level,
		GameType:         g.GameType,
		AgeGroup:         g.AgeGroup,
		RequiredReferees: g.RequiredReferees,
		Status:           g.Status,
		BaseWage:         g.BaseWage,
	}
}

func (r RefereeRow) toModel() models.Referee {
	return models.Referee{
		ID:                r.ID,
		Name:              r.Name,
		Level:             r.Level,
		Home:              coordinates(r.HomeLatitude, r.HomeLongitude),
		YearsExperience:   r.YearsExperience,
		GamesOfficiated:   r.GamesOfficiated,
		PerformanceRating: r.PerformanceRating,
		WageMultiplier:    r.WageMultiplier,
	}
}
