package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taskflow/internal/handler"
	"taskflow/pkg/rbac"
)

// Pinger 是 readiness 检查依赖的最小接口
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnChecker 报告 MQ 连接状态
type ConnChecker interface {
	IsConnected() bool
}

// Handlers groups the route handlers. Admin may be nil when no outbox replay
// is wired.
type Handlers struct {
	Progress  *handler.ProgressHandler
	Tasks     *handler.TaskHandler
	Analytics *handler.AnalyticsHandler
	Admin     *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

// NewRouter 注册所有路由。consumer 为 nil 时 readyz 不检查 MQ
func NewRouter(h Handlers, jwtSecret string, store Pinger, consumer ConnChecker, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), LoggingMiddleware(logger), MetricsMiddleware())

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		if consumer != nil && !consumer.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))

	my := auth.Group("/my-tasks")
	{
		read := RequirePermission(rbac.PermissionReadTask)
		write := RequirePermission(rbac.PermissionUpdateWorkflow)

		my.GET("", read, h.Progress.ListMyTasks)
		my.GET("/:taskId", read, h.Progress.GetMyTask)
		my.GET("/:taskId/workflow", read, h.Progress.GetWorkflow)

		my.PATCH("/:taskId/status", write, h.Progress.UpdateStatus)
		my.PATCH("/:taskId/timer", write, h.Progress.UpdateTimer)
		my.PATCH("/:taskId/workflow", write, h.Progress.UpdateWorkflow)
		my.POST("/:taskId/workflow/add-step", write, h.Progress.AddStep)
		my.PATCH("/:taskId/workflow/toggle-step", write, h.Progress.ToggleStep)
		my.PATCH("/:taskId/workflow/reorder", write, h.Progress.ReorderSteps)
		my.DELETE("/:taskId/workflow/step/:stepId", write, h.Progress.DeleteStep)
	}

	user := auth.Group("/analytics/user", RequirePermission(rbac.PermissionAnalyticsSelf))
	{
		user.GET("/overview", h.Analytics.UserOverview)
		user.GET("/progress-30", h.Analytics.UserProgress)
		user.GET("/heatmap", h.Analytics.UserHeatmap)
		user.GET("/summary", h.Analytics.UserSummary)
		user.GET("/time-tracking", h.Analytics.UserTimeTracking)
	}

	admin := auth.Group("/analytics/admin", RequirePermission(rbac.PermissionAnalyticsAdmin))
	{
		admin.GET("/overview", h.Analytics.AdminOverview)
		admin.GET("/team-progress", h.Analytics.TeamProgress)
		admin.GET("/priority-distribution", h.Analytics.PriorityDistribution)
		admin.GET("/leaderboard", h.Analytics.Leaderboard)
		admin.GET("/bottlenecks", h.Analytics.Bottlenecks)
	}

	tasks := auth.Group("/tasks", RequirePermission(rbac.PermissionManageTask))
	{
		tasks.POST("", h.Tasks.CreateTask)
		tasks.GET("/:taskId", h.Tasks.GetTask)
		tasks.PUT("/:taskId/assignees", h.Tasks.ReplaceAssignees)
		tasks.POST("/:taskId/assignees", h.Tasks.AddAssignee)
		tasks.DELETE("/:taskId/assignees/:userId", h.Tasks.RemoveAssignee)
		tasks.POST("/:taskId/archive", h.Tasks.ArchiveTask)
	}

	if h.Admin != nil {
		outbox := auth.Group("/admin/outbox", RequirePermission(rbac.PermissionManageTask))
		outbox.POST("/replay", h.Admin.ReplayOutboxEvent)
		outbox.POST("/replay-failed", h.Admin.ReplayFailedEvents)
	}

	return &Router{Engine: r}
}

// Server 包装 http.Server，支持优雅退出
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, router *Router, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router.Engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start 在后台监听，返回的 channel 收到监听失败的错误
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
