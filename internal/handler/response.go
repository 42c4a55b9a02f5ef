package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/internal/model"
	"taskflow/pkg/logger"
)

// Context keys written by the auth middleware.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// KindUnauthorized is only produced at the transport edge.
const KindUnauthorized model.Kind = "AUTHENTICATION_ERROR"

type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Success   bool       `json:"success"`
	ErrorType model.Kind `json:"errorType"`
	Message   string     `json:"message"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, successBody{Success: true, Message: message, Data: data})
}

// Abort writes a failure envelope and stops the handler chain.
func Abort(c *gin.Context, status int, kind model.Kind, message string) {
	c.AbortWithStatusJSON(status, errorBody{Success: false, ErrorType: kind, Message: message})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindAuthorization:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the matching failure envelope. Storage
// details never reach the client.
func respondError(c *gin.Context, log *zap.Logger, op string, err error) {
	kind := model.KindOf(err)
	status := StatusFor(kind)
	log = logger.WithTrace(c.Request.Context(), log).With(
		zap.String("op", op),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
	)

	message := err.Error()
	var me *model.Error
	if errors.As(err, &me) {
		message = me.Message
	}
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.Error(err))
		if kind == model.KindStorage {
			message = "Database operation failed"
		} else {
			kind = model.KindStorage
			message = "Internal server error"
		}
	} else {
		log.Warn("Request rejected", zap.Error(err))
	}
	Abort(c, status, kind, message)
}

// currentUser reads the authenticated caller. The auth middleware guarantees
// both values on protected routes.
func currentUser(c *gin.Context) (int, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok && id > 0
}

func requireUser(c *gin.Context) (int, bool) {
	id, ok := currentUser(c)
	if !ok {
		Abort(c, http.StatusUnauthorized, KindUnauthorized, "Authentication required")
	}
	return id, ok
}

func pathUserID(c *gin.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, model.Validationf("invalid %s", name)
	}
	return id, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.Validationf("invalid %s", name)
	}
	return n, nil
}

// bindJSON decodes the request body, reporting malformed input as a
// validation error.
func bindJSON(c *gin.Context, dest any) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return model.Validationf("invalid request body")
	}
	return nil
}
