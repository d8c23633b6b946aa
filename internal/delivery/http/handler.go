package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/foodlens/backend/internal/domain"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserIDHeader carries the authenticated user id set by the upstream gateway
const UserIDHeader = "X-User-ID"

// FoodResolver resolves a food name to a single food reference
type FoodResolver interface {
	Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Resolution, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	resolver FoodResolver
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler. A nil resolver makes the resolve
// endpoint answer 501.
func NewHandler(resolver FoodResolver, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{resolver: resolver, logger: logger}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "foodlens-backend",
		"version": "1.0.0",
	})
}

// ResolveFood handles POST /api/v1/foods/resolve
func (h *Handler) ResolveFood(c *gin.Context) {
	if h.resolver == nil {
		c.JSON(http.StatusNotImplemented, errorBody(c, "not_configured", "food resolution is not configured", false))
		return
	}

	userID, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader(UserIDHeader)), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(c, "invalid_user", UserIDHeader+" header must be a positive integer", false))
		return
	}

	var req domain.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(c, "invalid_request", "foodName is required", false))
		return
	}
	req.OwnerUserID = userID

	res, err := h.resolver.Resolve(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.Created() {
		status = http.StatusCreated
	}
	c.JSON(status, NewResolveResponse(res))
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorBody(c, "invalid_request", "foodName must not be blank", false))
	case errors.Is(err, domain.ErrStorageConflict):
		c.JSON(http.StatusServiceUnavailable, errorBody(c, "conflict", "concurrent update, retry the request", true))
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to send
		c.Status(499)
	default:
		h.logger.Error("resolve failed", zap.Error(err), zap.String("request_id", requestid.Get(c)))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody(c, "internal", "failed to resolve food", false))
	}
}

func errorBody(c *gin.Context, code, message string, retryable bool) ErrorResponse {
	return ErrorResponse{
		Error:     code,
		Message:   message,
		Retryable: retryable,
		RequestID: requestid.Get(c),
	}
}
