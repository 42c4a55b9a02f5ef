package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/pkg/outbox"
)

// Replayer re-publishes outbox events.
type Replayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

const defaultReplayLimit = 100

type AdminHandler struct {
	replay Replayer
	logger *zap.Logger
}

func NewAdminHandler(replay Replayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replay: replay, logger: logger}
}

// ReplayOutboxEvent 重放指定的 Outbox 事件
// POST /admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || eventID <= 0 {
		respondError(c, h.logger, "outbox_replay", model.Validationf("invalid id parameter"))
		return
	}

	if err := h.replay.ReplayEvent(c.Request.Context(), eventID); err != nil {
		if errors.Is(err, outbox.ErrEventNotFound) {
			err = model.NotFoundf("outbox event %d not found", eventID)
		} else {
			err = model.StorageError("replay outbox event", err)
		}
		respondError(c, h.logger, "outbox_replay", err)
		return
	}
	respond(c, http.StatusOK, "Event replayed", gin.H{"eventId": eventID})
}

// ReplayFailedEvents 重放所有失败的事件
// POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultReplayLimit)))
	if err != nil || limit <= 0 {
		limit = defaultReplayLimit
	}

	replayed, err := h.replay.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, "outbox_replay_failed", model.StorageError("replay failed events", err))
		return
	}
	respond(c, http.StatusOK, "Failed events replayed", gin.H{
		"replayed": replayed,
		"limit":    limit,
	})
}
