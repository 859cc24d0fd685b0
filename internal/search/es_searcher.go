package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
)

const chatIndexMapping = `{
  "mappings": {
    "properties": {
      "user_id":    {"type": "keyword"},
      "title":      {"type": "text"},
      "updated_at": {"type": "date"}
    }
  }
}`

type chatDocument struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ESSearcher indexes chat titles in Elasticsearch. Hits are resolved
// through the chat repository so results never carry stale titles or
// chats of other users.
type ESSearcher struct {
	client *elasticsearch.Client
	index  string
	chats  repository.ChatRepository
}

// NewESSearcher creates an Elasticsearch-backed searcher.
func NewESSearcher(client *elasticsearch.Client, index string, chats repository.ChatRepository) *ESSearcher {
	return &ESSearcher{client: client, index: index, chats: chats}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (s *ESSearcher) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(chatIndexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (s *ESSearcher) Index(ctx context.Context, chat *domain.Chat) error {
	data, err := json.Marshal(chatDocument{UserID: chat.UserID, Title: chat.Title, UpdatedAt: chat.UpdatedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := s.client.Index(s.index, bytes.NewReader(data),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(chat.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index chat: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (s *ESSearcher) Delete(ctx context.Context, chatID string) error {
	res, err := s.client.Delete(s.index, chatID, s.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete chat document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (s *ESSearcher) Search(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error) {
	body := map[string]interface{}{
		"size":    limit,
		"_source": false,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"user_id": userID}},
				},
				"must": []interface{}{
					map[string]interface{}{
						"match": map[string]interface{}{
							"title": map[string]interface{}{"query": query, "fuzziness": "AUTO"},
						},
					},
				},
			},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chats: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	var result esResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	ids := make([]string, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return s.chats.GetByIDs(ctx, userID, ids)
}

type esResponse struct {
	Hits struct {
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}
