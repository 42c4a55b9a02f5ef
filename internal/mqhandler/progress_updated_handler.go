package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/pkg/logger"
	util "taskflow/pkg/util"
)

const (
	// QueueCacheInvalidate 绑定 assignee.progress.updated，负责清空 analytics 缓存
	QueueCacheInvalidate = "analytics.cache.invalidate.q"

	handlerName = "analytics_cache"
)

type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, messageID string) bool
	Release(ctx context.Context, handler, messageID string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError, source string) error
}

// ProgressUpdatedHandler 消费 assignee.progress.updated，让其他实例上的
// analytics 缓存失效
type ProgressUpdatedHandler struct {
	cache      Invalidator
	deduper    Deduper
	retries    RetryCounter
	dlq        DeadLetterPublisher
	maxRetries int64
	logger     *zap.Logger
}

func NewProgressUpdatedHandler(
	cache Invalidator,
	deduper Deduper,
	retries RetryCounter,
	dlq DeadLetterPublisher,
	maxRetries int64,
	logger *zap.Logger,
) *ProgressUpdatedHandler {
	return &ProgressUpdatedHandler{
		cache:      cache,
		deduper:    deduper,
		retries:    retries,
		dlq:        dlq,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Handle 返回 nil 表示 ack，返回 error 表示 nack 并重新入队
func (h *ProgressUpdatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var event model.ProgressEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		log.Error("Invalid progress event payload, sending to DLQ", zap.Error(err))
		h.deadLetter(ctx, log, raw, "json_decode_error")
		return nil
	}
	if event.EventID == "" {
		log.Error("Progress event without event_id, sending to DLQ", zap.String("task_id", event.TaskID))
		h.deadLetter(ctx, log, raw, "missing_event_id")
		return nil
	}

	log = log.With(
		zap.String("event_id", event.EventID),
		zap.String("task_id", event.TaskID),
		zap.Int("user_id", event.UserID),
		zap.String("action", event.Action),
	)

	// Redis 去重
	if !h.deduper.AcquireOnce(ctx, handlerName, event.EventID) {
		log.Info("Duplicate progress event skipped")
		return nil
	}

	retryKey := util.FormatRetryKey(handlerName, event.EventID)
	err := h.cache.Invalidate(ctx)
	if err == nil {
		if err := h.retries.Reset(ctx, retryKey); err != nil {
			log.Warn("Failed to reset retry counter", zap.Error(err))
		}
		log.Info("Analytics cache invalidated")
		return nil
	}

	isRetryable, errType := util.IsRetryableError(err)
	retryCount, _ := h.retries.IncrementAndGet(ctx, retryKey)
	log.Warn("Cache invalidation failed",
		zap.String("error_type", errType),
		zap.Bool("retryable", isRetryable),
		zap.Int64("retry", retryCount),
		zap.Error(err),
	)

	if !util.ShouldRetry(retryCount, h.maxRetries, isRetryable) {
		h.deadLetter(ctx, log, raw, errType)
		if err := h.retries.Reset(ctx, retryKey); err != nil {
			log.Warn("Failed to reset retry counter", zap.Error(err))
		}
		return nil // ack
	}

	// 放开去重标记，否则重新投递的消息会被当作重复跳过
	h.deduper.Release(ctx, handlerName, event.EventID)
	return err // nack → 重试
}

func (h *ProgressUpdatedHandler) deadLetter(ctx context.Context, log *zap.Logger, raw []byte, reason string) {
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, model.RoutingKeyProgressUpdated, raw, reason, handlerName); err != nil {
		log.Error("Failed to publish to DLQ", zap.String("reason", reason), zap.Error(err))
	}
}
