package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
)

type fakeChats struct {
	repository.ChatRepository
	byID map[string]*domain.Chat
}

func (f *fakeChats) GetByIDs(ctx context.Context, userID string, ids []string) ([]*domain.Chat, error) {
	out := []*domain.Chat{}
	for _, id := range ids {
		if c, ok := f.byID[id]; ok && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChats) SearchTitles(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error) {
	out := []*domain.Chat{}
	for _, c := range f.byID {
		if c.UserID == userID && strings.Contains(strings.ToLower(c.Title), strings.ToLower(query)) {
			out = append(out, c)
		}
	}
	return out, nil
}

type esStub struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
}

func (s *esStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, r.Method+" "+r.URL.Path)
	s.bodies = append(s.bodies, string(body))
	s.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/_search"):
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"c2"},{"_id":"c9"},{"_id":"c1"}]}}`))
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"result":"not_found"}`))
	default:
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}
}

func newES(t *testing.T, stub *esStub) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestESSearcherResolvesHitsThroughRepository(t *testing.T) {
	stub := &esStub{}
	chats := &fakeChats{byID: map[string]*domain.Chat{
		"c1": {ID: "c1", UserID: "u1", Title: "first"},
		"c2": {ID: "c2", UserID: "u1", Title: "second"},
		"c9": {ID: "c9", UserID: "u2", Title: "foreign"},
	}}
	s := NewESSearcher(newES(t, stub), "chats", chats)

	got, err := s.Search(context.Background(), "u1", "sec", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "c1", got[1].ID)

	var q map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stub.bodies[0]), &q))
	assert.EqualValues(t, 10, q["size"])
	assert.Contains(t, stub.bodies[0], `"user_id":"u1"`)
}

func TestESSearcherIndexAndDelete(t *testing.T) {
	stub := &esStub{}
	s := NewESSearcher(newES(t, stub), "chats", &fakeChats{})

	require.NoError(t, s.Index(context.Background(), &domain.Chat{ID: "c1", UserID: "u1", Title: "hello"}))
	require.NoError(t, s.Delete(context.Background(), "missing"))

	require.Len(t, stub.requests, 2)
	assert.Equal(t, "PUT /chats/_doc/c1", stub.requests[0])
	assert.Contains(t, stub.bodies[0], `"title":"hello"`)
	assert.Equal(t, "DELETE /chats/_doc/missing", stub.requests[1])
}

func TestSQLSearcherDelegates(t *testing.T) {
	s := NewSQLSearcher(&fakeChats{byID: map[string]*domain.Chat{
		"c1": {ID: "c1", UserID: "u1", Title: "Kafka notes"},
	}})
	require.NoError(t, s.Index(context.Background(), &domain.Chat{ID: "c1"}))
	got, err := s.Search(context.Background(), "u1", "kafka", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
