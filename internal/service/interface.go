package service

import (
	"context"
	"io"
	"net/http"

	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// UsageService enforces and reports plan usage.
type UsageService interface {
	// CheckUsageByModel returns a *domain.UsageLimitError when the user may
	// not send another message to model.
	CheckUsageByModel(ctx context.Context, userID, model string, isAuthenticated bool) error
	IncrementUsageByModel(ctx context.Context, userID, model string, isAuthenticated bool) error
	GetMessageUsage(ctx context.Context, userID string) (*domain.UsageSummary, error)
	MaxModels(ctx context.Context, userID string) (int, error)
	Invalidate(ctx context.Context, userID string)
	ResetMonthly(ctx context.Context) (int64, error)
	ResetDaily(ctx context.Context) (int64, error)
}

// UserService provisions users and serves their profile.
type UserService interface {
	EnsureUser(ctx context.Context, u domain.NewUser) error
	GetProfile(ctx context.Context, session domain.NewUser) (*domain.UserProfile, error)
	GetFavoriteModels(ctx context.Context, userID string) ([]string, error)
	UpdateFavoriteModels(ctx context.Context, session domain.NewUser, models []string) ([]string, error)
}

// ChatService manages chats and their stored messages.
type ChatService interface {
	CreateChat(ctx context.Context, sessionUserID string, req *domain.CreateChatRequest) (*domain.Chat, error)
	ListChats(ctx context.Context, userID string, projectID *string) ([]*domain.Chat, error)
	GetChat(ctx context.Context, userID, chatID string) (*domain.Chat, error)
	UpdateChat(ctx context.Context, userID, chatID string, req *domain.UpdateChatRequest) (*domain.Chat, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
	SearchChats(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error)
	// ListMessages returns the history; a non-empty model selects its per-model view.
	ListMessages(ctx context.Context, userID, chatID, model string) ([]*domain.Message, error)
	AddMessages(ctx context.Context, userID, chatID string, msgs []domain.NewMessage) ([]*domain.Message, error)
	ClearMessages(ctx context.Context, userID, chatID string) error
}

// CompletionService runs model completions for single and multi-model chat.
type CompletionService interface {
	Models() []domain.ModelInfo
	// Chat answers the last user message. onDelta, when set, receives the
	// reply as it streams.
	Chat(ctx context.Context, sessionUserID string, req *domain.ChatRequest, onDelta func(string) error) (*domain.Message, error)
	MultiChat(ctx context.Context, sessionUserID string, req *domain.MultiChatRequest) (*domain.MultiChatResponse, error)
}

// PreferenceService reads and patches user preferences.
type PreferenceService interface {
	Get(ctx context.Context, userID string) (domain.UserPreferences, error)
	Update(ctx context.Context, userID string, patch domain.PreferencesPatch) (domain.UserPreferences, error)
}

// ProjectService manages projects.
type ProjectService interface {
	Create(ctx context.Context, userID, name string) (*domain.Project, error)
	List(ctx context.Context, userID string) ([]*domain.Project, error)
	Get(ctx context.Context, userID, projectID string) (*domain.Project, error)
	Rename(ctx context.Context, userID, projectID, name string) (*domain.Project, error)
	Delete(ctx context.Context, userID, projectID string) error
	ListChats(ctx context.Context, userID, projectID string) ([]*domain.Chat, error)
}

// KeyService stores users' own provider keys.
type KeyService interface {
	List(ctx context.Context, userID string) ([]*domain.UserKey, error)
	Save(ctx context.Context, userID string, provider domain.Provider, apiKey string) (*domain.UserKey, error)
	Delete(ctx context.Context, userID string, provider domain.Provider) error
	// Resolve returns the user's clear-text key or "" when none is stored.
	Resolve(ctx context.Context, userID string, provider domain.Provider) (string, error)
}

// Upload is a file received from a client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentService stores chat file uploads.
type AttachmentService interface {
	Upload(ctx context.Context, userID, chatID string, file Upload) (*domain.Attachment, error)
	DeleteByChat(ctx context.Context, userID, chatID string) error
}

// BillingService opens checkouts and applies provider webhooks.
type BillingService interface {
	Plans() []domain.Plan
	Environment() billing.Environment
	CreateCheckout(ctx context.Context, userID string, plan domain.PlanType) (*domain.CheckoutSession, error)
	// RedirectCheckout opens a checkout for explicit parameters and returns its URL.
	RedirectCheckout(ctx context.Context, params billing.CheckoutParams) (string, error)
	HandleWebhook(ctx context.Context, provider string, header http.Header, body []byte) error
}
