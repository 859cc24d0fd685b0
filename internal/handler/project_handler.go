package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/response"
)

// ListProjects lists the user's projects.
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.svc.Projects.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "list projects")
		return
	}
	response.Success(c, gin.H{"projects": projects})
}

// CreateProject creates a project.
func (h *Handler) CreateProject(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create project request")
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.svc.Projects.Create(ctx, middleware.GetUserID(c), req.Name)
	if err != nil {
		h.writeError(c, err, "create project")
		return
	}
	response.Created(c, gin.H{"project": project})
}

// GetProject returns one project.
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.svc.Projects.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "get project")
		return
	}
	response.Success(c, gin.H{"project": project})
}

// RenameProject renames a project.
func (h *Handler) RenameProject(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid rename project request")
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.svc.Projects.Rename(ctx, middleware.GetUserID(c), c.Param("id"), req.Name)
	if err != nil {
		h.writeError(c, err, "rename project")
		return
	}
	response.Success(c, gin.H{"project": project})
}

// DeleteProject deletes a project and detaches its chats.
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.svc.Projects.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err, "delete project")
		return
	}
	response.Success(c, gin.H{"success": true})
}

// ListProjectChats lists the chats of a project.
func (h *Handler) ListProjectChats(c *gin.Context) {
	chats, err := h.svc.Projects.ListChats(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "list project chats")
		return
	}
	response.Success(c, gin.H{"chats": chats})
}
