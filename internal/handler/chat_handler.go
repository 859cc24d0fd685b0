package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/response"
	"github.com/jdships/yodoo-rebuild/pkg/storage"
)

// CreateChat creates a chat after checking the user's quota.
func (h *Handler) CreateChat(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create chat request")
		response.BadRequest(c, err.Error())
		return
	}

	chat, err := h.svc.Chats.CreateChat(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		h.writeError(c, err, "create chat")
		return
	}
	response.Success(c, gin.H{"chat": chat})
}

// ListChats lists the user's chats, optionally within one project.
func (h *Handler) ListChats(c *gin.Context) {
	var projectID *string
	if p, ok := c.GetQuery("project_id"); ok && p != "" {
		projectID = &p
	}
	chats, err := h.svc.Chats.ListChats(c.Request.Context(), middleware.GetUserID(c), projectID)
	if err != nil {
		h.writeError(c, err, "list chats")
		return
	}
	response.Success(c, gin.H{"chats": chats})
}

// SearchChats searches chat titles.
func (h *Handler) SearchChats(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	chats, err := h.svc.Chats.SearchChats(c.Request.Context(), middleware.GetUserID(c), c.Query("q"), limit)
	if err != nil {
		h.writeError(c, err, "search chats")
		return
	}
	response.Success(c, gin.H{"chats": chats})
}

// GetChat returns one chat.
func (h *Handler) GetChat(c *gin.Context) {
	chat, err := h.svc.Chats.GetChat(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "get chat")
		return
	}
	response.Success(c, gin.H{"chat": chat})
}

// UpdateChat applies a partial update.
func (h *Handler) UpdateChat(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.UpdateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid update chat request")
		response.BadRequest(c, err.Error())
		return
	}

	chat, err := h.svc.Chats.UpdateChat(ctx, middleware.GetUserID(c), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err, "update chat")
		return
	}
	response.Success(c, gin.H{"chat": chat})
}

// DeleteChat removes a chat with its messages and files.
func (h *Handler) DeleteChat(c *gin.Context) {
	if err := h.svc.Chats.DeleteChat(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err, "delete chat")
		return
	}
	response.Success(c, gin.H{"success": true})
}

// ListMessages returns a chat's history; ?model= selects one model's view.
func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.svc.Chats.ListMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), c.Query("model"))
	if err != nil {
		h.writeError(c, err, "list messages")
		return
	}
	response.Success(c, gin.H{"messages": msgs})
}

type addMessagesRequest struct {
	Messages []domain.NewMessage `json:"messages" binding:"required"`
}

// AddMessages inserts messages in bulk.
func (h *Handler) AddMessages(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req addMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid add messages request")
		response.BadRequest(c, err.Error())
		return
	}

	msgs, err := h.svc.Chats.AddMessages(ctx, middleware.GetUserID(c), c.Param("id"), req.Messages)
	if err != nil {
		h.writeError(c, err, "add messages")
		return
	}
	response.Created(c, gin.H{"messages": msgs})
}

// ClearMessages deletes a chat's history.
func (h *Handler) ClearMessages(c *gin.Context) {
	if err := h.svc.Chats.ClearMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err, "clear messages")
		return
	}
	response.Success(c, gin.H{"success": true})
}

// UploadAttachment stores the multipart "file" of a chat.
func (h *Handler) UploadAttachment(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	fh, err := c.FormFile("file")
	if err != nil {
		l.Warn().Err(err).Msg("invalid upload request")
		response.BadRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.writeError(c, err, "open upload")
		return
	}
	defer f.Close()

	att, err := h.svc.Attachments.Upload(ctx, middleware.GetUserID(c), c.Param("id"), service.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		h.writeError(c, err, "upload attachment")
		return
	}
	response.Created(c, att)
}

// GetFile serves a stored attachment to its owner.
func (h *Handler) GetFile(c *gin.Context) {
	ctx := c.Request.Context()
	key := strings.TrimPrefix(c.Param("key"), "/")
	if !strings.HasPrefix(key, "attachments/"+middleware.GetUserID(c)+"/") {
		response.NotFound(c, "file not found")
		return
	}

	rc, err := h.files.Read(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.NotFound(c, "file not found")
			return
		}
		h.writeError(c, err, "read file")
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to stream file")
	}
}
