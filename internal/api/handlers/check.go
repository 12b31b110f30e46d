package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"domain-check-gateway/internal/db"
	"domain-check-gateway/internal/outbox"
)

type checkRequest struct {
	Domains []string `json:"domains"`
}

// Check admits, checks, accounts and records one batch of domains.
// Stats and outbox failures are logged but never fail the request.
func (h *Handler) Check(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: domains must be an array"})
		return
	}

	if len(req.Domains) > h.maxPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Maximum %d domains per request", h.maxPerRequest),
		})
		return
	}

	clientID := c.ClientIP()
	if clientID == "" {
		clientID = db.PlaceholderClientID
	}

	ctx := c.Request.Context()

	decision := h.limiter.Admit(ctx, clientID, int64(len(req.Domains)))
	if !decision.Allowed {
		h.metrics.RecordDenial()
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     "Rate limit exceeded",
			"remaining": decision.Remaining,
			"resetTime": decision.ResetTime,
		})
		return
	}

	results := h.checker.Check(ctx, req.Domains)
	summary := outbox.Summarize(results)

	h.metrics.RecordRequest()
	h.metrics.RecordDomains(summary.Blocked, summary.NotBlocked, summary.Errors)

	if err := h.stats.Increment(ctx, db.StatsDelta{
		Requests:       1,
		DomainsChecked: int64(summary.Total),
		Blocked:        int64(summary.Blocked),
		NotBlocked:     int64(summary.NotBlocked),
		Errors:         int64(summary.Errors),
	}); err != nil {
		h.logger.Error("failed to record stats", zap.String("client_id", clientID), zap.Error(err))
	}

	if err := h.outbox.Record(ctx, clientID, results); err != nil {
		h.logger.Error("failed to record notification batch",
			zap.String("client_id", clientID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"remaining": decision.Remaining,
		"resetTime": decision.ResetTime,
	})
}
