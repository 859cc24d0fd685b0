package search

import (
	"context"

	"github.com/jdships/yodoo-rebuild/internal/domain"
)

// ChatSearcher finds a user's chats by title.
type ChatSearcher interface {
	Index(ctx context.Context, chat *domain.Chat) error
	Delete(ctx context.Context, chatID string) error
	Search(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error)
}
