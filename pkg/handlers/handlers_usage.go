package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/referee-assigner-go/pkg/database"
)

// GetMyUsage returns usage stats for the authenticated API key
func (h *Handler) GetMyUsage(c *gin.Context) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	var usage []database.APIUsage
	if err := h.DB.Where("key_id = ?", apiKey.ID).Order("date desc").Limit(30).Find(&usage).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}

	var totalRequests, totalGames, totalAssignments int64
	for _, u := range usage {
		totalRequests += int64(u.RequestCount)
		totalGames += int64(u.TotalGames)
		totalAssignments += int64(u.TotalAssignments)
	}

	c.JSON(http.StatusOK, gin.H{
		"key_name":      apiKey.Name,
		"rate_limit":    apiKey.RateLimit,
		"usage_history": usage,
		"totals": gin.H{
			"requests":    totalRequests,
			"games":       totalGames,
			"assignments": totalAssignments,
		},
	})
}

// Metrics returns the monitor counters and LLM cache figures
func (h *Handler) Metrics(c *gin.Context) {
	resp := gin.H{}
	if h.Monitor != nil {
		resp["monitor"] = h.Monitor.Snapshot()
	}
	if h.Cache != nil {
		hits, misses := h.Cache.Stats()
		resp["cache"] = gin.H{
			"entries":      h.Cache.Len(),
			"memory_bytes": h.Cache.Used(),
			"hits":         hits,
			"misses":       misses,
		}
	}
	c.JSON(http.StatusOK, resp)
}
