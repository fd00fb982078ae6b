package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// APIKey represents the api_keys table
type APIKey struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Key       string     `gorm:"unique;not null" json:"key"`
	Name      string     `gorm:"not null" json:"name"`
	RateLimit int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used"`
}

// KeyPreview returns the key with everything but its first characters masked
func (k APIKey) KeyPreview() string {
	if len(k.Key) <= 8 {
		return k.Key
	}
	return k.Key[:8] + "..."
}

// APIUsage represents the api_usage table, one row per key per day
type APIUsage struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	KeyID            uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date             string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount     int    `gorm:"default:0" json:"request_count"`
	TotalGames       int    `gorm:"default:0" json:"total_games"`
	TotalAssignments int    `gorm:"default:0" json:"total_assignments"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// Open connects to postgres when a DSN is configured, otherwise to the sqlite file at DataPath
func Open(cfg config.Server) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	if cfg.DatabaseURL != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DatabaseURL,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	} else {
		dbPath := cfg.DataPath
		if dbPath == "" {
			dbPath = "assigner.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&APIKey{}, &APIUsage{}, &MasterUser{},
		&models.AssignmentRule{}, &models.PartnerPreference{}, &models.RuleRun{},
		&GameRow{}, &RefereeRow{}, &UnavailabilityRow{}, &AssignmentRow{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// InitDB initializes the database connection and migrates the schema
func InitDB(cfg config.Server) *gorm.DB {
	db, err := Open(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return db
}
