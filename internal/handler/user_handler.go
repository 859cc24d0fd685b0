package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/response"
)

// IssueCSRF sets a fresh CSRF cookie and returns the token.
func (h *Handler) IssueCSRF(c *gin.Context) {
	token, err := h.guards.CSRF.Generate()
	if err != nil {
		h.writeError(c, err, "issue csrf token")
		return
	}
	h.guards.CSRF.IssueCookie(c, token)
	response.Success(c, gin.H{"csrfToken": token})
}

// GetSession reports the session carried by the request, if any.
func (h *Handler) GetSession(c *gin.Context) {
	if !middleware.IsAuthenticated(c) {
		response.Success(c, gin.H{"authenticated": false})
		return
	}
	u := sessionUser(c)
	response.Success(c, gin.H{
		"authenticated": true,
		"user": gin.H{
			"id":            u.ID,
			"email":         u.Email,
			"display_name":  u.DisplayName,
			"profile_image": u.ProfileImage,
			"anonymous":     u.Anonymous,
		},
	})
}

// GetUser returns the profile of the session user.
func (h *Handler) GetUser(c *gin.Context) {
	profile, err := h.svc.Users.GetProfile(c.Request.Context(), sessionUser(c))
	if err != nil {
		h.writeError(c, err, "get user")
		return
	}
	response.Success(c, profile)
}

type preferencesResponse struct {
	Success bool `json:"success"`
	domain.UserPreferences
}

// GetPreferences returns stored preferences or the defaults.
func (h *Handler) GetPreferences(c *gin.Context) {
	prefs, err := h.svc.Preferences.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "get preferences")
		return
	}
	response.Success(c, prefs)
}

// UpdatePreferences applies only the fields present in the body.
func (h *Handler) UpdatePreferences(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		l.Warn().Err(err).Msg("invalid preferences request")
		response.BadRequest(c, "Invalid request body")
		return
	}

	var patch domain.PreferencesPatch
	bools := map[string]**bool{
		"prompt_suggestions":         &patch.PromptSuggestions,
		"show_tool_invocations":      &patch.ShowToolInvocations,
		"show_conversation_previews": &patch.ShowConversationPreviews,
		"multi_model_enabled":        &patch.MultiModelEnabled,
	}
	for name, dst := range bools {
		raw, ok := body[name]
		if !ok {
			continue
		}
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			response.BadRequest(c, name+" must be a boolean")
			return
		}
		*dst = &v
	}
	if raw, ok := body["hidden_models"]; ok {
		var hidden []string
		if err := json.Unmarshal(raw, &hidden); err != nil || hidden == nil {
			response.BadRequest(c, "hidden_models must be an array")
			return
		}
		patch.HiddenModels = &hidden
	}

	prefs, err := h.svc.Preferences.Update(ctx, middleware.GetUserID(c), patch)
	if err != nil {
		h.writeError(c, err, "update preferences")
		return
	}
	response.Success(c, preferencesResponse{Success: true, UserPreferences: prefs})
}

// GetFavoriteModels returns the user's favorite models.
func (h *Handler) GetFavoriteModels(c *gin.Context) {
	models, err := h.svc.Users.GetFavoriteModels(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "get favorite models")
		return
	}
	response.Success(c, gin.H{"favorite_models": models})
}

// UpdateFavoriteModels replaces the user's favorite models.
func (h *Handler) UpdateFavoriteModels(c *gin.Context) {
	ctx := c.Request.Context()
	var body struct {
		FavoriteModels json.RawMessage `json:"favorite_models"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	var items []interface{}
	if err := json.Unmarshal(body.FavoriteModels, &items); err != nil || items == nil {
		response.BadRequest(c, "favorite_models must be an array")
		return
	}
	models := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			response.BadRequest(c, "All favorite_models must be strings")
			return
		}
		models = append(models, s)
	}

	saved, err := h.svc.Users.UpdateFavoriteModels(ctx, sessionUser(c), models)
	if err != nil {
		h.writeError(c, err, "update favorite models")
		return
	}
	response.Success(c, gin.H{"success": true, "favorite_models": saved})
}

// ListKeys lists the providers the user holds keys for.
func (h *Handler) ListKeys(c *gin.Context) {
	keys, err := h.svc.Keys.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err, "list keys")
		return
	}
	response.Success(c, gin.H{"keys": keys})
}

// SaveKey stores a provider key.
func (h *Handler) SaveKey(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	var req domain.SaveKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid save key request")
		response.BadRequest(c, "provider and apiKey are required")
		return
	}

	key, err := h.svc.Keys.Save(ctx, middleware.GetUserID(c), req.Provider, req.APIKey)
	if err != nil {
		h.writeError(c, err, "save key")
		return
	}
	response.Success(c, gin.H{"success": true, "key": key})
}

// DeleteKey removes a provider key.
func (h *Handler) DeleteKey(c *gin.Context) {
	provider := domain.Provider(c.Param("provider"))
	if err := h.svc.Keys.Delete(c.Request.Context(), middleware.GetUserID(c), provider); err != nil {
		h.writeError(c, err, "delete key")
		return
	}
	response.Success(c, gin.H{"success": true})
}
