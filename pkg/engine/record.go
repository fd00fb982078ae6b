package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

const recordTimeout = 10 * time.Second

// record writes the run's audit row. It runs even when the run deadline or the caller's
// context has expired, since every invocation of an existing rule must leave a record
func (e *Engine) record(ctx context.Context, rule *models.AssignmentRule, started time.Time, comments []string, result *models.RuleRunResult) {
	details, err := json.Marshal(result.Details)
	if err != nil {
		details = []byte("{}")
	}
	run := &models.RuleRun{
		ID:                 result.RunID,
		RuleID:             rule.ID,
		RunAt:              started.UTC(),
		Status:             result.Status,
		AISystemUsed:       result.AISystemUsed,
		GamesProcessed:     result.GamesProcessed,
		AssignmentsCreated: result.AssignmentsCreated,
		ConflictsFound:     result.ConflictsFound,
		DurationMs:         result.Duration.Milliseconds(),
		RunDetails:         datatypes.JSON(details),
		ContextComments:    datatypes.JSONSlice[string](append([]string{}, comments...)),
	}
	if result.Error != "" {
		msg := result.Error
		run.ErrorMessage = &msg
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := e.repo.CreateRuleRun(writeCtx, run); err != nil {
		log.Printf("[Engine] Failed to record run %s for rule %s: %v", run.ID, rule.ID, err)
		result.Status = models.RunError
		recordErr := fmt.Sprintf("record run: %v", err)
		if result.Error == "" {
			result.Error = recordErr
		} else {
			result.Error += "; " + recordErr
		}
	}
}
