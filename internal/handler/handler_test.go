package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/cache"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/llm"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/internal/search"
	"github.com/jdships/yodoo-rebuild/internal/service"
	"github.com/jdships/yodoo-rebuild/internal/usage"
	"github.com/jdships/yodoo-rebuild/pkg/database"
	"github.com/jdships/yodoo-rebuild/pkg/jwt"
	"github.com/jdships/yodoo-rebuild/pkg/middleware"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
	"github.com/jdships/yodoo-rebuild/pkg/secretbox"
	"github.com/jdships/yodoo-rebuild/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCompleter struct {
	mu   sync.Mutex
	fail error
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	return &llm.Completion{Content: "hello from " + req.Model}, nil
}

func (f *fakeCompleter) Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (*llm.Completion, error) {
	c, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, w := range strings.SplitAfter(c.Content, " ") {
		if err := onDelta(w); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type fakeProvider struct {
	event    *domain.WebhookEvent
	parseErr error
}

func (f *fakeProvider) Name() string { return "polar" }

func (f *fakeProvider) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	return "cus_" + userID, nil
}

func (f *fakeProvider) CreateCheckout(ctx context.Context, p billing.CheckoutParams) (*domain.CheckoutSession, error) {
	return &domain.CheckoutSession{CheckoutURL: "https://pay.test/" + p.ProductID, CheckoutID: "co_1"}, nil
}

func (f *fakeProvider) ParseWebhook(header http.Header, body []byte) (*domain.WebhookEvent, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

const testFreeTotal = 3

type testServer struct {
	t         *testing.T
	router    *gin.Engine
	handler   *Handler
	db        *gorm.DB
	tokens    *jwt.Manager
	csrf      *middleware.CSRF
	users     *repository.GormUserRepository
	usage     service.UsageService
	completer *fakeCompleter
	provider  *fakeProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.AllModels()...))
	t.Cleanup(func() { _ = database.Close(db) })

	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/api/files"})
	require.NoError(t, err)
	key, err := secretbox.GenerateKey()
	require.NoError(t, err)
	box, err := secretbox.New(key)
	require.NoError(t, err)

	limits := usage.DefaultLimits()
	limits.FreeTotal = testFreeTotal
	policy := usage.NewPolicy(limits, llm.DefaultFreeModels, "Yodoo")
	registry := llm.NewRegistry(llm.DefaultModels, llm.DefaultFreeModels)
	bus := pubsub.NewNoop()

	users := repository.NewGormUserRepository(db)
	chats := repository.NewGormChatRepository(db)
	messages := repository.NewGormMessageRepository(db)
	projectRepo := repository.NewGormProjectRepository(db)
	keyRepo := repository.NewGormUserKeyRepository(db)
	searcher := search.NewSQLSearcher(chats)

	usageSvc := service.NewUsageService(users, keyRepo, policy, cache.NoopUsageCache{}, time.Minute, bus)
	prefs := service.NewPreferenceService(repository.NewGormPreferencesRepository(db))
	projects := service.NewProjectService(projectRepo, chats)
	keys := service.NewKeyService(keyRepo, box, usageSvc, bus)
	attachments := service.NewAttachmentService(repository.NewGormAttachmentRepository(db), chats, store, policy, service.DefaultAttachmentConfig())
	completer := &fakeCompleter{}
	provider := &fakeProvider{}
	billingSvc, err := service.NewBillingService([]billing.Provider{provider}, "polar", billing.Sandbox,
		billing.NewCatalog(billing.PlanConfig{ProductID: "prod_pro"}, billing.PlanConfig{ProductID: "prod_unl"}),
		users, usageSvc, bus, "https://yodoo.test")
	require.NoError(t, err)

	svc := Services{
		Usage:       usageSvc,
		Users:       service.NewUserService(users, keyRepo, prefs, llm.DefaultModel),
		Chats:       service.NewChatService(chats, messages, projectRepo, usageSvc, searcher, attachments, llm.DefaultModel),
		Completions: service.NewCompletionService(registry, completer, chats, messages, projects, searcher, usageSvc, keys, policy, service.CompletionConfig{}),
		Preferences: prefs,
		Projects:    projects,
		Keys:        keys,
		Attachments: attachments,
		Billing:     billingSvc,
	}

	tokens, err := jwt.NewManager("handler-secret", "", "", time.Hour)
	require.NoError(t, err)
	csrf := middleware.NewCSRF("csrf-secret", false, CSRFExempt...)
	guards := Guards{
		Auth: middleware.NewAuthMiddleware(tokens, "sb-access-token", PublicPrefixes...),
		CSRF: csrf,
	}

	r := gin.New()
	h := NewHandler(svc, guards, store, "Yodoo")
	h.RegisterRoutes(r)

	return &testServer{
		t:         t,
		router:    r,
		handler:   h,
		db:        db,
		tokens:    tokens,
		csrf:      csrf,
		users:     users,
		usage:     usageSvc,
		completer: completer,
		provider:  provider,
	}
}

type reqOpts struct {
	user        string
	noCSRF      bool
	contentType string
}

func (s *testServer) do(method, path string, body interface{}, opts reqOpts) *httptest.ResponseRecorder {
	s.t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rdr = bytes.NewReader(b)
	case io.Reader:
		rdr = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rdr)
	if opts.contentType != "" {
		req.Header.Set("Content-Type", opts.contentType)
	} else if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.user != "" {
		token, _, err := s.tokens.GenerateToken(opts.user, opts.user+"@example.com", jwt.UserMetadata{Name: "User " + opts.user})
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if !opts.noCSRF {
		token, err := s.csrf.Generate()
		require.NoError(s.t, err)
		req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: url.QueryEscape(token)})
		req.Header.Set(middleware.CSRFHeaderName, url.QueryEscape(token))
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) createChat(user string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/create-chat", gin.H{"userId": user, "isAuthenticated": true}, reqOpts{user: user})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return decode(s.t, w)["chat"].(map[string]interface{})["id"].(string)
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", nil, reqOpts{}).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/health", nil, reqOpts{}).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/models", nil, reqOpts{}).Code)

	w := s.do(http.MethodGet, "/api/chats", nil, reqOpts{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/auth/session", nil, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["authenticated"])
}

func TestCSRFEndpointAndGuard(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/csrf", nil, reqOpts{noCSRF: true})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["csrfToken"].(string)
	assert.True(t, s.csrf.Validate(token))
	require.NotEmpty(t, w.Result().Cookies())
	assert.Equal(t, middleware.CSRFCookieName, w.Result().Cookies()[0].Name)

	w = s.do(http.MethodPost, "/api/create-chat", gin.H{"userId": "u1", "isAuthenticated": true}, reqOpts{user: "u1", noCSRF: true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid CSRF token", decode(t, w)["error"])
}

func TestCreateChatErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/create-chat", gin.H{"isAuthenticated": true}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing userId", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/create-chat", gin.H{"userId": "u2", "isAuthenticated": true}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "User ID does not match authenticated user", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/create-chat", gin.H{"userId": "u1", "isAuthenticated": false}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authentication required. Please sign in to use Yodoo.", decode(t, w)["error"])
}

func TestUsageLimitResponse(t *testing.T) {
	s := newTestServer(t)
	s.createChat("u1")
	for i := 0; i < testFreeTotal; i++ {
		require.NoError(t, s.usage.IncrementUsageByModel(context.Background(), "u1", llm.DefaultModel, true))
	}

	w := s.do(http.MethodPost, "/api/create-chat", gin.H{"userId": "u1", "isAuthenticated": true}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	assert.Equal(t, "USAGE_LIMIT_ERROR", body["type"])
	assert.Equal(t, domain.UsageLimitCode, body["code"])

	w = s.do(http.MethodGet, "/api/rate-limits?userId=u1&isAuthenticated=true", nil, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)
	assert.Equal(t, float64(testFreeTotal), summary["monthlyCount"])
	assert.Equal(t, float64(0), summary["remainingMonthly"])

	w = s.do(http.MethodGet, "/api/rate-limits?userId=u2&isAuthenticated=true", nil, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChatEndpoint(t *testing.T) {
	s := newTestServer(t)
	chatID := s.createChat("u1")
	body := gin.H{
		"chatId": chatID, "userId": "u1", "model": "gpt-4o", "isAuthenticated": true,
		"messages": []gin.H{{"role": "user", "content": "hi"}},
	}

	// /api/chat is CSRF exempt.
	w := s.do(http.MethodPost, "/api/chat", body, reqOpts{user: "u1", noCSRF: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	msg := decode(t, w)["message"].(map[string]interface{})
	assert.Equal(t, "hello from gpt-4o", msg["content"])
	assert.Equal(t, "gpt-4o", msg["model"])

	body["stream"] = true
	w = s.do(http.MethodPost, "/api/chat", body, reqOpts{user: "u1", noCSRF: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, w.Body.String(), "event:delta")
	assert.Contains(t, w.Body.String(), "event:done")

	body["model"] = "no-such-model"
	w = s.do(http.MethodPost, "/api/chat", body, reqOpts{user: "u1", noCSRF: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/chats/"+chatID+"/messages?model=gpt-4o", nil, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["messages"], 4)
}

func TestMultiChatEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/multi-chat", gin.H{
		"userId": "u1", "isAuthenticated": true, "prompt": "hi", "models": []string{"gpt-4o", "gpt-4.1"},
	}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["chatId"])
	assert.NotEmpty(t, body["message_group_id"])
	assert.Len(t, body["results"], 2)

	w = s.do(http.MethodPost, "/api/multi-chat", gin.H{
		"userId": "u1", "isAuthenticated": true, "prompt": "hi", "models": []string{"gpt-4o", "gpt-4.1", "o4-mini"},
	}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/multi-chat", gin.H{"userId": "u1", "isAuthenticated": true, "models": []string{"gpt-4o"}}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.completer.fail = &llm.UpstreamError{Provider: domain.ProviderOpenAI, StatusCode: 500, Message: "down"}
	w = s.do(http.MethodPost, "/api/multi-chat", gin.H{
		"userId": "u1", "isAuthenticated": true, "prompt": "hi", "models": []string{"gpt-4o", "gpt-4.1"},
	}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	body = decode(t, w)
	assert.Equal(t, "UPSTREAM_ERROR", body["code"])
	assert.NotEmpty(t, body["chatId"])
	assert.NotEmpty(t, body["message_group_id"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	first := results[0].(map[string]interface{})
	assert.Equal(t, "gpt-4o", first["model"])
	assert.Contains(t, first["error"], "down")
	assert.Nil(t, first["message"])
}

func TestMultiChatAllModelsUsageLimited(t *testing.T) {
	s := newTestServer(t)
	s.createChat("u1")
	for i := 0; i < testFreeTotal; i++ {
		require.NoError(t, s.usage.IncrementUsageByModel(context.Background(), "u1", llm.DefaultModel, true))
	}

	w := s.do(http.MethodPost, "/api/multi-chat", gin.H{
		"userId": "u1", "isAuthenticated": true, "prompt": "hi",
		"models": []string{"gpt-4.1-nano", "mistral-large-latest"},
	}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "USAGE_LIMIT_ERROR", body["type"])
	assert.Equal(t, domain.UsageLimitCode, body["code"])
	assert.NotEmpty(t, body["message_group_id"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.UsageLimitCode, r.(map[string]interface{})["code"])
	}
}

func TestChatsCRUD(t *testing.T) {
	s := newTestServer(t)
	chatID := s.createChat("u1")

	w := s.do(http.MethodPut, "/api/chats/"+chatID, gin.H{"title": "Trip plans", "pinned": true}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/chats/search?q=trip", nil, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["chats"], 1)

	w = s.do(http.MethodGet, "/api/chats/"+chatID, nil, reqOpts{user: "u2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/chats/"+chatID+"/messages", gin.H{"messages": []gin.H{{"role": "user", "content": "a"}}}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodDelete, "/api/chats/"+chatID, nil, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/chats", nil, reqOpts{user: "u1"})
	assert.Empty(t, decode(t, w)["chats"])
}

func TestProjectsEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/projects", gin.H{"name": "Work"}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["project"].(map[string]interface{})["id"].(string)

	w = s.do(http.MethodPost, "/api/projects", gin.H{}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/projects/"+id, gin.H{"name": "Home"}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/projects/"+id+"/chats", nil, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/api/projects/"+id, nil, reqOpts{user: "u2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodDelete, "/api/projects/"+id, nil, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPreferencesAndFavorites(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/user-preferences", nil, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["prompt_suggestions"])

	w = s.do(http.MethodPut, "/api/user-preferences", gin.H{"hidden_models": "gpt-4o"}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "hidden_models must be an array", decode(t, w)["error"])

	w = s.do(http.MethodPut, "/api/user-preferences", gin.H{"multi_model_enabled": true}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["multi_model_enabled"])

	w = s.do(http.MethodPut, "/api/user-preferences", gin.H{"prompt_suggestions": false, "show_tool_invocations": false}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/user-preferences", nil, reqOpts{user: "u1"})
	body = decode(t, w)
	assert.Equal(t, false, body["prompt_suggestions"])
	assert.Equal(t, false, body["show_tool_invocations"])
	assert.Equal(t, true, body["show_conversation_previews"])
	assert.Equal(t, true, body["multi_model_enabled"])

	w = s.do(http.MethodPost, "/api/user-preferences/favorite-models", gin.H{"favorite_models": "x"}, reqOpts{user: "u1"})
	assert.Equal(t, "favorite_models must be an array", decode(t, w)["error"])
	w = s.do(http.MethodPost, "/api/user-preferences/favorite-models", gin.H{"favorite_models": []interface{}{"a", 1}}, reqOpts{user: "u1"})
	assert.Equal(t, "All favorite_models must be strings", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/user-preferences/favorite-models", gin.H{"favorite_models": []string{"gpt-4o"}}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/user-preferences/favorite-models", nil, reqOpts{user: "u1"})
	assert.Equal(t, []interface{}{"gpt-4o"}, decode(t, w)["favorite_models"])
}

func TestUserProfileProvisions(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/user", nil, reqOpts{user: "u9"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "User u9", body["display_name"])

	_, err := s.users.GetByID(context.Background(), "u9")
	assert.NoError(t, err)
}

func TestProvisionMemoIsEvictable(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	w := s.do(http.MethodGet, "/api/projects", nil, reqOpts{user: "u7"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.handler.provisioned.Contains("u7"))

	require.NoError(t, s.db.Exec("DELETE FROM users WHERE id = ?", "u7").Error)
	s.do(http.MethodGet, "/api/projects", nil, reqOpts{user: "u7"})
	_, err := s.users.GetByID(ctx, "u7")
	assert.Error(t, err, "remembered users are not re-inserted")

	s.handler.provisioned.Remove("u7")
	s.do(http.MethodGet, "/api/projects", nil, reqOpts{user: "u7"})
	_, err = s.users.GetByID(ctx, "u7")
	assert.NoError(t, err)
}

func TestKeysEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/user-keys", gin.H{"provider": "openai", "apiKey": "sk-abcdef1234"}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "sk-abcdef")

	w = s.do(http.MethodGet, "/api/user-keys", nil, reqOpts{user: "u1"})
	assert.Contains(t, w.Body.String(), "****1234")

	w = s.do(http.MethodDelete, "/api/user-keys/openai", nil, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodDelete, "/api/user-keys/openai", nil, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func uploadForm(t *testing.T, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="` + name + `"`},
		"Content-Type":        {contentType},
	})
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAttachmentUploadAndServe(t *testing.T) {
	s := newTestServer(t)
	chatID := s.createChat("u1")

	buf, ct := uploadForm(t, "note.txt", "text/plain", []byte("hello file"))
	w := s.do(http.MethodPost, "/api/chats/"+chatID+"/attachments", buf, reqOpts{user: "u1", contentType: ct})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fileURL := decode(t, w)["url"].(string)
	assert.True(t, strings.HasPrefix(fileURL, "/api/files/attachments/u1/"))

	w = s.do(http.MethodGet, fileURL, nil, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello file", w.Body.String())

	w = s.do(http.MethodGet, fileURL, nil, reqOpts{user: "u2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttachmentUploadRejections(t *testing.T) {
	s := newTestServer(t)
	chatID := s.createChat("u1")
	uploadPath := "/api/chats/" + chatID + "/attachments"

	big := bytes.Repeat([]byte("a"), int(service.DefaultAttachmentConfig().MaxSize)+1)
	buf, ct := uploadForm(t, "big.txt", "text/plain", big)
	w := s.do(http.MethodPost, uploadPath, buf, reqOpts{user: "u1", contentType: ct})
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Equal(t, "FILE_TOO_LARGE", decode(t, w)["code"])

	buf, ct = uploadForm(t, "run.sh", "application/x-sh", []byte("echo hi"))
	w = s.do(http.MethodPost, uploadPath, buf, reqOpts{user: "u1", contentType: ct})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["error"], "application/x-sh")

	w = s.do(http.MethodPost, uploadPath, bytes.NewBufferString(""), reqOpts{user: "u1", contentType: "multipart/form-data; boundary=x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBillingEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/billing/plans", nil, reqOpts{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sandbox", decode(t, w)["environment"])

	w = s.do(http.MethodPost, "/api/create-checkout", gin.H{"planType": "gold"}, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid plan type", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/create-checkout", gin.H{"planType": "pro"}, reqOpts{user: "u1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "co_1", decode(t, w)["checkoutId"])

	w = s.do(http.MethodGet, "/api/checkout?product_id=prod_pro&metadata%5Bref%5D=x", nil, reqOpts{user: "u1"})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://pay.test/prod_pro", w.Header().Get("Location"))

	s.provider.event = &domain.WebhookEvent{Kind: domain.WebhookSubscriptionCreated, CustomerID: "cus_u1", ProductID: "prod_pro"}
	w = s.do(http.MethodPost, "/api/webhook/polar", []byte(`{}`), reqOpts{noCSRF: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	u, err := s.users.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, u.SubscriptionType)

	s.provider.parseErr = billing.ErrInvalidSignature
	w = s.do(http.MethodPost, "/api/webhook/polar", []byte(`{}`), reqOpts{noCSRF: true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.provider.parseErr = errors.New("db down")
	w = s.do(http.MethodPost, "/api/webhook/polar", []byte(`{}`), reqOpts{noCSRF: true})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = s.do(http.MethodPost, "/api/webhook/unknown", []byte(`{}`), reqOpts{noCSRF: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
