package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/referee-assigner-go/pkg/config"
	"github.com/arnavshah/referee-assigner-go/pkg/models"
	"github.com/arnavshah/referee-assigner-go/pkg/schedule"
)

const defaultRunLimit = 20

// newRule returns the defaults a rule payload is decoded on top of
func newRule() models.AssignmentRule {
	return models.AssignmentRule{
		Enabled:      true,
		ScheduleType: models.ScheduleManual,
		AISystemType: models.AISystemAlgorithmic,
		MaxDaysAhead: 7,
	}
}

// ruleError maps a rule validation failure to a status code
func ruleError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, config.ErrLLMNotConfigured) {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ListRules returns every rule, or only enabled ones with ?enabled=true
func (h *Handler) ListRules(c *gin.Context) {
	enabledOnly, _ := strconv.ParseBool(c.Query("enabled"))
	rules, err := h.Repo.ListRules(c.Request.Context(), enabledOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// GetRule returns one rule
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.Repo.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule validates and stores a new rule with its first scheduled run
func (h *Handler) CreateRule(c *gin.Context) {
	rule := newRule()
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = ""
	if err := h.validateRule(&rule); err != nil {
		ruleError(c, err)
		return
	}
	rule.NextRun = schedule.NextRun(&rule, h.now(), h.Config.Location())

	if err := h.Repo.CreateRule(c.Request.Context(), &rule); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule applies a payload on top of the stored rule and reschedules it
func (h *Handler) UpdateRule(c *gin.Context) {
	ctx := c.Request.Context()
	rule, err := h.Repo.GetRule(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	id, created := rule.ID, rule.CreatedAt
	if err := c.ShouldBindJSON(rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID, rule.CreatedAt = id, created
	if err := h.validateRule(rule); err != nil {
		ruleError(c, err)
		return
	}
	rule.NextRun = schedule.NextRun(rule, h.now(), h.Config.Location())

	if err := h.Repo.UpdateRule(ctx, rule); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DisableRule turns a rule off; rules are kept so their runs stay attributable
func (h *Handler) DisableRule(c *gin.Context) {
	if err := h.Repo.DisableRule(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule disabled"})
}

// RuleStatus returns the rule's derived run statistics and next run
func (h *Handler) RuleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	rule, err := h.Repo.GetRule(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	stats, err := h.Repo.RuleStats(ctx, rule.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rule_id":  rule.ID,
		"name":     rule.Name,
		"enabled":  rule.Enabled,
		"next_run": rule.NextRun,
		"stats":    stats,
	})
}

// TriggerRule runs a rule now with optional context comments
func (h *Handler) TriggerRule(c *gin.Context) {
	var req struct {
		Comments []string `json:"comments"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	if _, err := h.Repo.GetRule(ctx, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	result := h.Engine.TriggerRule(ctx, c.Param("id"), req.Comments)
	h.RecordUsage(c, result.GamesProcessed, result.AssignmentsCreated)
	c.JSON(http.StatusOK, result)
}

// ListRuns returns a rule's recent runs, newest first
func (h *Handler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunLimit)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	runs, err := h.Repo.ListRuns(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun returns one run with the assignments it created
func (h *Handler) GetRun(c *gin.Context) {
	ctx := c.Request.Context()
	run, err := h.Repo.GetRun(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	assignments, err := h.Repo.ListAssignments(ctx, run.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "assignments": assignments})
}

// ListPartners returns a rule's partner preferences
func (h *Handler) ListPartners(c *gin.Context) {
	prefs, err := h.Repo.ListPartnerPreferences(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"preferences": prefs})
}

// AddPartner stores or replaces a preferred or avoid pair for a rule
func (h *Handler) AddPartner(c *gin.Context) {
	var req struct {
		RefereeA string                `json:"referee_a" validate:"required"`
		RefereeB string                `json:"referee_b" validate:"required,nefield=RefereeA"`
		Type     models.PreferenceType `json:"type" validate:"required,oneof=preferred avoid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	rule, err := h.Repo.GetRule(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	pref := models.PartnerPreference{RuleID: rule.ID, RefereeA: req.RefereeA, RefereeB: req.RefereeB, Type: req.Type}
	if err := h.Repo.SavePartnerPreference(ctx, &pref); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pref)
}

// RemovePartner deletes a pair in either order
func (h *Handler) RemovePartner(c *gin.Context) {
	if err := h.Repo.DeletePartnerPreference(c.Request.Context(), c.Param("id"), c.Param("a"), c.Param("b")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Preference removed"})
}
