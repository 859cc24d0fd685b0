package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/llm"
	"github.com/jdships/yodoo-rebuild/internal/multichat"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/response"
)

// writeError maps a service error to its HTTP response. action names the
// failed operation in logs.
func (h *Handler) writeError(c *gin.Context, err error, action string) {
	l := log.Ctx(c.Request.Context())

	var ule *domain.UsageLimitError
	if errors.As(err, &ule) {
		// Limits are expected; they are not server errors.
		l.Info().Str("limit", ule.Kind).Msg(action + ": usage limit reached")
		response.UsageLimit(c, ule.Code, ule.Message)
		return
	}

	var upstream *llm.UpstreamError
	switch {
	case errors.Is(err, service.ErrMissingUserID):
		response.BadRequest(c, service.ErrMissingUserID.Error())
	case errors.Is(err, service.ErrInvalidPlan):
		response.BadRequest(c, service.ErrInvalidPlan.Error())
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnknownModel),
		errors.Is(err, service.ErrFileType):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, service.ErrNotAuthenticated):
		response.Unauthorized(c, fmt.Sprintf("Authentication required. Please sign in to use %s.", h.appName))
	case errors.Is(err, service.ErrUserMismatch):
		response.Forbidden(c, service.ErrUserMismatch.Error())
	case errors.Is(err, service.ErrTooManyModels):
		response.Forbidden(c, err.Error())
	case errors.Is(err, billing.ErrInvalidSignature):
		l.Warn().Err(err).Msg(action + ": rejected webhook")
		response.Forbidden(c, "Invalid webhook signature")
	case errors.Is(err, billing.ErrMalformedEvent):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUnknownProvider):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrChatNotFound),
		errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrKeyNotFound),
		errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrEncryptionOff):
		l.Error().Err(err).Msg(action)
		response.Error(c, http.StatusServiceUnavailable, "UNAVAILABLE", "API key storage is not configured")
	case errors.Is(err, multichat.ErrAllFailed),
		errors.Is(err, llm.ErrNoAPIKey),
		errors.Is(err, llm.ErrEmptyCompletion),
		errors.As(err, &upstream):
		l.Warn().Err(err).Msg(action + ": upstream failure")
		response.BadGateway(c, err.Error())
	default:
		l.Error().Err(err).Msg(action)
		response.InternalError(c, err.Error())
	}
}
