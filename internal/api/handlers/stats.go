package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"domain-check-gateway/internal/db"
)

const dailyStatsDays = 30

type statsResponse struct {
	*db.GlobalStats
	DailyStats []db.DailyStats `json:"dailyStats"`
}

func (h *Handler) StatsData(c *gin.Context) {
	ctx := c.Request.Context()

	global, err := h.stats.Get(ctx)
	if err != nil {
		h.logger.Error("failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	daily, err := h.stats.Daily(ctx, dailyStatsDays)
	if err != nil {
		h.logger.Error("failed to get daily stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, statsResponse{GlobalStats: global, DailyStats: daily})
}
