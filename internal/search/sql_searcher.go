package search

import (
	"context"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
)

// SQLSearcher matches titles with LIKE. Titles are always current so
// indexing is a no-op.
type SQLSearcher struct {
	chats repository.ChatRepository
}

// NewSQLSearcher creates a database-backed searcher.
func NewSQLSearcher(chats repository.ChatRepository) *SQLSearcher {
	return &SQLSearcher{chats: chats}
}

func (s *SQLSearcher) Index(ctx context.Context, chat *domain.Chat) error { return nil }

func (s *SQLSearcher) Delete(ctx context.Context, chatID string) error { return nil }

func (s *SQLSearcher) Search(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error) {
	return s.chats.SearchTitles(ctx, userID, query, limit)
}
