package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/storage"
)

// PublicPrefixes are served without a session. The auth middleware still
// attaches a session when one is present.
var PublicPrefixes = []string{
	"/api/health",
	"/api/csrf",
	"/api/auth",
	"/api/webhook",
	"/api/models",
	"/api/billing/plans",
}

// CSRFExempt are the paths that skip the CSRF check.
var CSRFExempt = []string{"/api/chat", "/api/webhook"}

// Services are the application services the handler serves.
type Services struct {
	Usage       service.UsageService
	Users       service.UserService
	Chats       service.ChatService
	Completions service.CompletionService
	Preferences service.PreferenceService
	Projects    service.ProjectService
	Keys        service.KeyService
	Attachments service.AttachmentService
	Billing     service.BillingService
}

// Guards are the request guards mounted in front of the API.
type Guards struct {
	Auth        *middleware.AuthMiddleware
	CSRF        *middleware.CSRF
	RateLimiter *middleware.RateLimiter
}

// Handler handles HTTP requests for the chat API.
type Handler struct {
	svc     Services
	guards  Guards
	files   storage.Storage
	appName string

	provisioned *expirable.LRU[string, struct{}]
}

// Provisioned users are remembered for a bounded time and count; an evicted
// user costs one more insert-if-missing.
const (
	provisionedSize = 10000
	provisionedTTL  = time.Hour
)

// NewHandler creates a new HTTP handler.
func NewHandler(svc Services, guards Guards, files storage.Storage, appName string) *Handler {
	return &Handler{
		svc:         svc,
		guards:      guards,
		files:       files,
		appName:     appName,
		provisioned: expirable.NewLRU[string, struct{}](provisionedSize, nil, provisionedTTL),
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(h.guards.Auth.RequireAuth(), h.Provision())
	if h.guards.RateLimiter != nil {
		api.Use(h.guards.RateLimiter.Handler())
	}
	api.Use(h.guards.CSRF.Protect())
	{
		// Public routes
		api.GET("/health", h.Health)
		api.GET("/csrf", h.IssueCSRF)
		api.GET("/auth/session", h.GetSession)
		api.GET("/models", h.ListModels)
		api.GET("/billing/plans", h.ListPlans)
		api.POST("/webhook/:provider", h.Webhook)

		// Usage and completions
		api.GET("/rate-limits", h.GetRateLimits)
		api.POST("/create-chat", h.CreateChat)
		api.POST("/chat", h.Chat)
		api.POST("/multi-chat", h.MultiChat)

		chats := api.Group("/chats")
		{
			chats.GET("", h.ListChats)
			chats.GET("/search", h.SearchChats)
			chats.GET("/:id", h.GetChat)
			chats.PUT("/:id", h.UpdateChat)
			chats.DELETE("/:id", h.DeleteChat)
			chats.GET("/:id/messages", h.ListMessages)
			chats.POST("/:id/messages", h.AddMessages)
			chats.DELETE("/:id/messages", h.ClearMessages)
			chats.POST("/:id/attachments", h.UploadAttachment)
		}
		api.GET("/files/*key", h.GetFile)

		projects := api.Group("/projects")
		{
			projects.GET("", h.ListProjects)
			projects.POST("", h.CreateProject)
			projects.GET("/:id", h.GetProject)
			projects.PUT("/:id", h.RenameProject)
			projects.DELETE("/:id", h.DeleteProject)
			projects.GET("/:id/chats", h.ListProjectChats)
		}

		api.GET("/user", h.GetUser)
		api.GET("/user-preferences", h.GetPreferences)
		api.PUT("/user-preferences", h.UpdatePreferences)
		api.GET("/user-preferences/favorite-models", h.GetFavoriteModels)
		api.POST("/user-preferences/favorite-models", h.UpdateFavoriteModels)

		api.GET("/user-keys", h.ListKeys)
		api.POST("/user-keys", h.SaveKey)
		api.DELETE("/user-keys/:provider", h.DeleteKey)

		api.POST("/create-checkout", h.CreateCheckout)
		api.GET("/checkout", h.RedirectCheckout)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Provision inserts the users row on the first authenticated request of
// each user seen by this process.
func (h *Handler) Provision() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.Next()
			return
		}
		ctx := log.WithUser(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		if !h.provisioned.Contains(userID) {
			if err := h.svc.Users.EnsureUser(ctx, sessionUser(c)); err != nil {
				l := log.Ctx(ctx)
				l.Error().Err(err).Msg("failed to provision user")
			} else {
				h.provisioned.Add(userID, struct{}{})
			}
		}
		c.Next()
	}
}

// sessionUser describes the session's user from the token claims.
func sessionUser(c *gin.Context) domain.NewUser {
	u := domain.NewUser{ID: middleware.GetUserID(c), Email: middleware.GetEmail(c)}
	if claims := middleware.GetClaims(c); claims != nil {
		u.DisplayName = claims.UserMetadata.DisplayName()
		u.ProfileImage = claims.UserMetadata.Avatar()
		u.Anonymous = claims.IsAnonymous
	}
	return u
}
