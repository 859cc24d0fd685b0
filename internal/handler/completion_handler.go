package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/multichat"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/response"
)

// ListModels returns the selectable models.
func (h *Handler) ListModels(c *gin.Context) {
	response.Success(c, gin.H{"models": h.svc.Completions.Models()})
}

// GetRateLimits returns the usage summary of the session user.
func (h *Handler) GetRateLimits(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Query("userId")
	if userID == "" {
		response.BadRequest(c, service.ErrMissingUserID.Error())
		return
	}
	isAuthenticated, _ := strconv.ParseBool(c.Query("isAuthenticated"))

	if err := service.ValidateUserIdentity(middleware.GetUserID(c), userID, isAuthenticated); err != nil {
		h.writeError(c, err, "get rate limits")
		return
	}

	summary, err := h.svc.Usage.GetMessageUsage(ctx, userID)
	if err != nil {
		h.writeError(c, err, "get rate limits")
		return
	}
	response.Success(c, summary)
}

// Chat answers one message. With stream=true the reply is sent as
// Server-Sent Events: delta events, then done or error.
func (h *Handler) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid chat request")
		response.BadRequest(c, "Error, missing information")
		return
	}

	if !req.Stream {
		msg, err := h.svc.Completions.Chat(ctx, middleware.GetUserID(c), &req, nil)
		if err != nil {
			h.writeError(c, err, "chat")
			return
		}
		response.Success(c, gin.H{"message": msg})
		return
	}

	started := false
	msg, err := h.svc.Completions.Chat(ctx, middleware.GetUserID(c), &req, func(delta string) error {
		if !started {
			started = true
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
		}
		c.SSEvent("delta", gin.H{"text": delta})
		c.Writer.Flush()
		return ctx.Err()
	})
	if err != nil {
		if !started {
			h.writeError(c, err, "chat")
			return
		}
		l.Warn().Err(err).Str(log.FieldModel, req.Model).Msg("chat stream failed")
		c.SSEvent("error", streamError(err))
		c.Writer.Flush()
		return
	}
	if !started {
		c.Header("Cache-Control", "no-cache")
	}
	c.SSEvent("done", gin.H{"message": msg})
	c.Writer.Flush()
}

func streamError(err error) gin.H {
	var ule *domain.UsageLimitError
	if errors.As(err, &ule) {
		return gin.H{"error": ule.Message, "code": ule.Code, "type": "USAGE_LIMIT_ERROR"}
	}
	return gin.H{"error": err.Error()}
}

// MultiChat runs one prompt against several models.
func (h *Handler) MultiChat(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.MultiChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		l.Warn().Err(err).Msg("invalid multi-chat request")
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.svc.Completions.MultiChat(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		if resp != nil && errors.Is(err, multichat.ErrAllFailed) {
			l.Warn().Err(err).Str(log.FieldMessageGroup, resp.MessageGroupID).Msg("every model failed")
			writeMultiChatFailure(c, resp, err)
			return
		}
		h.writeError(c, err, "multi-chat")
		return
	}
	response.Success(c, resp)
}

// writeMultiChatFailure reports a multi-chat where every model failed
// together with the per-model results, so clients can show each error.
func writeMultiChatFailure(c *gin.Context, resp *domain.MultiChatResponse, err error) {
	fields := gin.H{
		"chatId":           resp.ChatID,
		"message_group_id": resp.MessageGroupID,
		"userMessage":      resp.UserMessage,
		"results":          resp.Results,
	}
	var ule *domain.UsageLimitError
	if errors.As(err, &ule) {
		response.ErrorWith(c, http.StatusTooManyRequests,
			response.ErrorBody{Error: ule.Message, Code: ule.Code, Type: "USAGE_LIMIT_ERROR"}, fields)
		return
	}
	response.ErrorWith(c, http.StatusBadGateway,
		response.ErrorBody{Error: err.Error(), Code: "UPSTREAM_ERROR"}, fields)
}
