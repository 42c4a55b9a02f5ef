package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/analytics"
	"taskflow/internal/cache"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/pkg/logger"
	"taskflow/pkg/metrics"
)

const scopeAll = "all"

// AnalyticsService loads the task population, runs the aggregator and caches
// the result. Archived tasks never count.
type AnalyticsService struct {
	store  repository.TaskStore
	cache  cache.AnalyticsCache
	agg    *analytics.Aggregator
	logger *zap.Logger
}

func NewAnalyticsService(store repository.TaskStore, c cache.AnalyticsCache, agg *analytics.Aggregator, logger *zap.Logger) *AnalyticsService {
	if c == nil {
		c = cache.Noop{}
	}
	if agg == nil {
		agg = analytics.New()
	}
	return &AnalyticsService{store: store, cache: c, agg: agg, logger: logger}
}

func userScope(userID int) string {
	return "user:" + strconv.Itoa(userID)
}

// report serves name for scope from the cache, computing and storing it on a
// miss. Cache failures fall through to computation and skip the write.
func report[T any](
	ctx context.Context,
	s *AnalyticsService,
	name, scope string,
	filter repository.TaskFilter,
	compute func([]model.Task) T,
) (T, error) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("report", name), zap.String("scope", scope))

	var out T
	gen, hit, err := s.cache.Get(ctx, name, scope, &out)
	cacheable := err == nil
	switch {
	case err != nil:
		metrics.IncrementAnalyticsCache(name, "error")
		log.Warn("Analytics cache read failed", zap.Error(err))
	case hit:
		metrics.IncrementAnalyticsCache(name, "hit")
		return out, nil
	default:
		metrics.IncrementAnalyticsCache(name, "miss")
	}

	start := time.Now()
	tasks, err := s.store.List(ctx, filter)
	if err != nil {
		var zero T
		return zero, err
	}
	out = compute(tasks)
	metrics.RecordAnalyticsQuery(name, time.Since(start))
	log.Debug("Analytics report computed", zap.Int("tasks", len(tasks)), zap.Duration("duration", time.Since(start)))

	if !cacheable {
		return out, nil
	}
	// 以读取时的 generation 写入，计算期间发生的失效会让这份结果不可见
	if err := s.cache.Set(ctx, gen, name, scope, out); err != nil {
		log.Warn("Analytics cache write failed", zap.Error(err))
	}
	return out, nil
}

func forUser(userID int) repository.TaskFilter {
	return repository.TaskFilter{UserID: &userID}
}

func clampWindow(days int) int {
	if days <= 0 {
		return analytics.DefaultWindowDays
	}
	return min(days, analytics.MaxWindowDays)
}

func (s *AnalyticsService) UserOverview(ctx context.Context, userID int) (analytics.OverviewStats, error) {
	return report(ctx, s, "user_overview", userScope(userID), forUser(userID), func(tasks []model.Task) analytics.OverviewStats {
		return s.agg.Overview(tasks, analytics.ForUser(userID))
	})
}

func (s *AnalyticsService) UserProgress(ctx context.Context, userID, days int) ([]analytics.DailyCount, error) {
	days = clampWindow(days)
	name := fmt.Sprintf("user_progress:%d", days)
	return report(ctx, s, name, userScope(userID), forUser(userID), func(tasks []model.Task) []analytics.DailyCount {
		return s.agg.TeamProgress(tasks, days, analytics.ForUser(userID))
	})
}

func (s *AnalyticsService) UserHeatmap(ctx context.Context, userID int) ([]analytics.DailyCount, error) {
	return report(ctx, s, "user_heatmap", userScope(userID), forUser(userID), func(tasks []model.Task) []analytics.DailyCount {
		return s.agg.Heatmap(tasks, analytics.ForUser(userID))
	})
}

func (s *AnalyticsService) UserSummary(ctx context.Context, userID int) (analytics.UserSummary, error) {
	return report(ctx, s, "user_summary", userScope(userID), forUser(userID), func(tasks []model.Task) analytics.UserSummary {
		return s.agg.Summary(tasks, userID)
	})
}

func (s *AnalyticsService) UserTimeTracking(ctx context.Context, userID int) (analytics.TimeTrackingSummary, error) {
	return report(ctx, s, "user_time_tracking", userScope(userID), forUser(userID), func(tasks []model.Task) analytics.TimeTrackingSummary {
		return s.agg.TimeTracking(tasks, userID)
	})
}

func (s *AnalyticsService) AdminOverview(ctx context.Context) (analytics.OverviewStats, error) {
	return report(ctx, s, "admin_overview", scopeAll, repository.TaskFilter{}, func(tasks []model.Task) analytics.OverviewStats {
		return s.agg.Overview(tasks, analytics.AllUsers)
	})
}

func (s *AnalyticsService) TeamProgress(ctx context.Context, days int) ([]analytics.DailyCount, error) {
	days = clampWindow(days)
	name := fmt.Sprintf("team_progress:%d", days)
	return report(ctx, s, name, scopeAll, repository.TaskFilter{}, func(tasks []model.Task) []analytics.DailyCount {
		return s.agg.TeamProgress(tasks, days, analytics.AllUsers)
	})
}

func (s *AnalyticsService) PriorityDistribution(ctx context.Context) ([]analytics.PriorityCount, error) {
	return report(ctx, s, "priority_distribution", scopeAll, repository.TaskFilter{}, s.agg.PriorityDistribution)
}

func (s *AnalyticsService) Leaderboard(ctx context.Context) ([]analytics.LeaderboardEntry, error) {
	return report(ctx, s, "leaderboard", scopeAll, repository.TaskFilter{}, s.agg.Leaderboard)
}

func (s *AnalyticsService) Bottlenecks(ctx context.Context) (analytics.BottleneckSet, error) {
	return report(ctx, s, "bottlenecks", scopeAll, repository.TaskFilter{}, s.agg.Bottlenecks)
}
