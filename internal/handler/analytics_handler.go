package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/service"
)

type AnalyticsHandler struct {
	analytics *service.AnalyticsService
	logger    *zap.Logger
}

func NewAnalyticsHandler(analytics *service.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, logger: logger}
}

// serve runs one report and writes it under message.
func serve(c *gin.Context, log *zap.Logger, op, message string, run func() (any, error)) {
	data, err := run()
	if err != nil {
		respondError(c, log, op, err)
		return
	}
	respond(c, http.StatusOK, message, data)
}

func (h *AnalyticsHandler) UserOverview(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	serve(c, h.logger, "user_overview", "User overview retrieved", func() (any, error) {
		return h.analytics.UserOverview(c.Request.Context(), userID)
	})
}

// UserProgress GET /analytics/user/progress-30?days=
func (h *AnalyticsHandler) UserProgress(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	days, err := queryInt(c, "days")
	if err != nil {
		respondError(c, h.logger, "user_progress", err)
		return
	}
	serve(c, h.logger, "user_progress", "User progress data retrieved", func() (any, error) {
		return h.analytics.UserProgress(c.Request.Context(), userID, days)
	})
}

func (h *AnalyticsHandler) UserHeatmap(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	serve(c, h.logger, "user_heatmap", "Activity heatmap retrieved", func() (any, error) {
		return h.analytics.UserHeatmap(c.Request.Context(), userID)
	})
}

func (h *AnalyticsHandler) UserSummary(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	serve(c, h.logger, "user_summary", "User summary retrieved", func() (any, error) {
		return h.analytics.UserSummary(c.Request.Context(), userID)
	})
}

func (h *AnalyticsHandler) UserTimeTracking(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	serve(c, h.logger, "user_time_tracking", "Time tracking data retrieved", func() (any, error) {
		return h.analytics.UserTimeTracking(c.Request.Context(), userID)
	})
}

func (h *AnalyticsHandler) AdminOverview(c *gin.Context) {
	serve(c, h.logger, "admin_overview", "Admin overview retrieved", func() (any, error) {
		return h.analytics.AdminOverview(c.Request.Context())
	})
}

// TeamProgress GET /analytics/admin/team-progress?days=
func (h *AnalyticsHandler) TeamProgress(c *gin.Context) {
	days, err := queryInt(c, "days")
	if err != nil {
		respondError(c, h.logger, "team_progress", err)
		return
	}
	serve(c, h.logger, "team_progress", "Team progress data retrieved", func() (any, error) {
		return h.analytics.TeamProgress(c.Request.Context(), days)
	})
}

func (h *AnalyticsHandler) PriorityDistribution(c *gin.Context) {
	serve(c, h.logger, "priority_distribution", "Priority distribution retrieved", func() (any, error) {
		return h.analytics.PriorityDistribution(c.Request.Context())
	})
}

func (h *AnalyticsHandler) Leaderboard(c *gin.Context) {
	serve(c, h.logger, "leaderboard", "Leaderboard data retrieved", func() (any, error) {
		return h.analytics.Leaderboard(c.Request.Context())
	})
}

func (h *AnalyticsHandler) Bottlenecks(c *gin.Context) {
	serve(c, h.logger, "bottlenecks", "Bottleneck analysis retrieved", func() (any, error) {
		return h.analytics.Bottlenecks(c.Request.Context())
	})
}
