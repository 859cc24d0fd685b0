package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrChatNotFound        = errors.New("chat not found")
	ErrProjectNotFound     = errors.New("project not found")
	ErrPreferencesNotFound = errors.New("preferences not found")
	ErrKeyNotFound         = errors.New("api key not found")
	ErrAttachmentNotFound  = errors.New("attachment not found")
	ErrCustomerTaken       = errors.New("billing customer already linked to another user")
	ErrDuplicate           = errors.New("record already exists")
)

// UserRepository persists users and their usage counters.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByBillingCustomerID(ctx context.Context, customerID string) (*domain.User, error)
	// Ensure inserts the user when missing and reports whether it did.
	Ensure(ctx context.Context, u domain.NewUser, favoriteModels []string) (bool, error)
	UpdateFavoriteModels(ctx context.Context, id string, models []string) error
	SetBillingCustomerID(ctx context.Context, id, customerID string) error
	UpdateSubscription(ctx context.Context, id string, change domain.SubscriptionChange) error

	IncrementMessageCount(ctx context.Context, id string, now time.Time) error
	IncrementProCount(ctx context.Context, id string, now time.Time) error
	ResetProCount(ctx context.Context, id string, now time.Time) error
	ResetMonthlyCounts(ctx context.Context) (int64, error)
	ResetDailyCounts(ctx context.Context, now time.Time) (int64, error)
}

// ChatRepository persists chats.
type ChatRepository interface {
	Create(ctx context.Context, chat *domain.Chat) error
	GetByID(ctx context.Context, id string) (*domain.Chat, error)
	GetByIDs(ctx context.Context, userID string, ids []string) ([]*domain.Chat, error)
	ListByUser(ctx context.Context, userID string, projectID *string) ([]*domain.Chat, error)
	Update(ctx context.Context, chat *domain.Chat) error
	Touch(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
	SearchTitles(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error)
	DetachProject(ctx context.Context, projectID string) error
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	CreateBatch(ctx context.Context, msgs []*domain.Message) error
	ListByChat(ctx context.Context, chatID string) ([]*domain.Message, error)
	DeleteByChat(ctx context.Context, chatID string) error
}

// PreferencesRepository persists user preferences.
type PreferencesRepository interface {
	Get(ctx context.Context, userID string) (domain.UserPreferences, error)
	Upsert(ctx context.Context, userID string, prefs domain.UserPreferences) error
}

// ProjectRepository persists projects.
type ProjectRepository interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Project, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// UserKeyRepository persists encrypted provider keys.
type UserKeyRepository interface {
	Upsert(ctx context.Context, key *domain.UserKey) error
	Get(ctx context.Context, userID string, provider domain.Provider) (*domain.UserKey, error)
	List(ctx context.Context, userID string) ([]*domain.UserKey, error)
	Delete(ctx context.Context, userID string, provider domain.Provider) error
	HasAny(ctx context.Context, userID string) (bool, error)
}

// AttachmentRepository persists uploaded file records.
type AttachmentRepository interface {
	Create(ctx context.Context, a *domain.Attachment) error
	GetByID(ctx context.Context, id string) (*domain.Attachment, error)
	ListByChat(ctx context.Context, chatID string) ([]*domain.Attachment, error)
	CountSince(ctx context.Context, userID string, since time.Time) (int64, error)
	DeleteByChat(ctx context.Context, chatID string) error
}
