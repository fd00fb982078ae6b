package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/schedule"
)

var validate = validator.New()

// validateRule checks field ranges and the cross-field schedule and scorer rules
func (h *Handler) validateRule(rule *models.AssignmentRule) error {
	rule.Name = strings.TrimSpace(rule.Name)
	if err := validate.Struct(rule); err != nil {
		return err
	}

	switch rule.ScheduleType {
	case models.ScheduleRecurring:
		if rule.Frequency == "" {
			return errors.New("recurring rules need a frequency")
		}
		if rule.Frequency == models.FrequencyMonthly && rule.DayOfMonth < 1 {
			return errors.New("monthly rules need day_of_month between 1 and 31")
		}
	case models.ScheduleOneTime:
		if rule.StartDate == nil {
			return errors.New("one-time rules need a start_date")
		}
	}
	if rule.StartDate != nil && rule.EndDate != nil && rule.EndDate.Before(*rule.StartDate) {
		return errors.New("end_date is before start_date")
	}

	if rule.MinRefereeLevel != "" && models.LevelRank(rule.MinRefereeLevel) < 0 {
		return fmt.Errorf("unknown referee level %q (want one of %s)", rule.MinRefereeLevel, strings.Join(models.Levels(), ", "))
	}

	if rule.AISystemType == models.AISystemLLM && !h.LLMReady {
		return config.ErrLLMNotConfigured
	}
	return nil
}

// ValidateRule checks a rule payload without storing it
func (h *Handler) ValidateRule(c *gin.Context) {
	rule := newRule()
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	if err := h.validateRule(&rule); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"next_run": schedule.NextRun(&rule, h.now(), h.Config.Location()),
	})
}
