package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jdships/yodoo-rebuild/internal/billing"
	"github.com/jdships/yodoo-rebuild/internal/cache"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/llm"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/internal/usage"
	"github.com/jdships/yodoo-rebuild/pkg/database"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
	"github.com/jdships/yodoo-rebuild/pkg/secretbox"
	"github.com/jdships/yodoo-rebuild/pkg/storage"
)

const (
	freeModel  = "gpt-4.1-nano"
	proModel   = "gpt-4o"
	freeModel2 = "mistral-large-latest"
)

func testLimits() usage.Limits {
	l := usage.DefaultLimits()
	l.FreeTotal = 2
	l.DailyProModels = 1
	l.MessageMaxLength = 50
	l.DailyFileUploads = 1
	return l
}

// fakeCompleter answers every model with a fixed reply unless told to fail.
type fakeCompleter struct {
	mu       sync.Mutex
	fail     map[string]error
	requests []llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.fail[req.Model]; err != nil {
		return nil, err
	}
	return &llm.Completion{Content: "reply from " + req.Model, FinishReason: "stop"}, nil
}

func (f *fakeCompleter) Stream(ctx context.Context, req llm.Request, onDelta func(string) error) (*llm.Completion, error) {
	c, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, part := range []string{"reply ", "from ", req.Model} {
		if err := onDelta(part); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (f *fakeCompleter) calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

type fakeSearcher struct {
	mu      sync.Mutex
	indexed map[string]string
	deleted []string
}

func (f *fakeSearcher) Index(ctx context.Context, chat *domain.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = make(map[string]string)
	}
	f.indexed[chat.ID] = chat.Title
	return nil
}

func (f *fakeSearcher) Delete(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, chatID)
	return nil
}

func (f *fakeSearcher) Search(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error) {
	return []*domain.Chat{}, nil
}

type fakeProvider struct {
	name       string
	customers  int
	checkouts  []billing.CheckoutParams
	event      *domain.WebhookEvent
	parseErr   error
	checkoutID string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	f.customers++
	return "cus_" + userID, nil
}

func (f *fakeProvider) CreateCheckout(ctx context.Context, params billing.CheckoutParams) (*domain.CheckoutSession, error) {
	f.checkouts = append(f.checkouts, params)
	return &domain.CheckoutSession{CheckoutURL: "https://checkout.test/" + f.checkoutID, CheckoutID: f.checkoutID}, nil
}

func (f *fakeProvider) ParseWebhook(header http.Header, body []byte) (*domain.WebhookEvent, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.event, nil
}

type testEnv struct {
	db          *gorm.DB
	users       *repository.GormUserRepository
	chatRepo    *repository.GormChatRepository
	messageRepo *repository.GormMessageRepository
	keyRepo     *repository.GormUserKeyRepository
	attachRepo  *repository.GormAttachmentRepository
	policy      *usage.Policy
	searcher    *fakeSearcher
	completer   *fakeCompleter
	store       storage.Storage

	usage       UsageService
	userSvc     UserService
	prefs       PreferenceService
	projects    ProjectService
	keys        KeyService
	attachments AttachmentService
	chats       ChatService
	completions CompletionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.AllModels()...))
	t.Cleanup(func() { _ = database.Close(db) })

	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/files"})
	require.NoError(t, err)

	box := mustBox(t)

	e := &testEnv{
		db:          db,
		users:       repository.NewGormUserRepository(db),
		chatRepo:    repository.NewGormChatRepository(db),
		messageRepo: repository.NewGormMessageRepository(db),
		keyRepo:     repository.NewGormUserKeyRepository(db),
		attachRepo:  repository.NewGormAttachmentRepository(db),
		policy:      usage.NewPolicy(testLimits(), []string{freeModel, freeModel2}, "Yodoo"),
		searcher:    &fakeSearcher{},
		completer:   &fakeCompleter{fail: map[string]error{}},
		store:       store,
	}
	bus := pubsub.NewNoop()
	registry := llm.NewRegistry([]string{freeModel, proModel, freeModel2}, []string{freeModel, freeModel2})

	e.usage = NewUsageService(e.users, e.keyRepo, e.policy, cache.NoopUsageCache{}, 0, bus)
	e.prefs = NewPreferenceService(repository.NewGormPreferencesRepository(db))
	e.userSvc = NewUserService(e.users, e.keyRepo, e.prefs, freeModel)
	e.projects = NewProjectService(repository.NewGormProjectRepository(db), e.chatRepo)
	e.keys = NewKeyService(e.keyRepo, box, e.usage, bus)
	e.attachments = NewAttachmentService(e.attachRepo, e.chatRepo, store, e.policy, DefaultAttachmentConfig())
	e.chats = NewChatService(e.chatRepo, e.messageRepo, repository.NewGormProjectRepository(db), e.usage, e.searcher, e.attachments, freeModel)
	e.completions = NewCompletionService(registry, e.completer, e.chatRepo, e.messageRepo, e.projects, e.searcher,
		e.usage, e.keys, e.policy, CompletionConfig{DefaultModel: freeModel})
	return e
}

func (e *testEnv) user(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.userSvc.EnsureUser(context.Background(), domain.NewUser{ID: id, Email: id + "@example.com"}))
}

func (e *testEnv) chat(t *testing.T, userID string) *domain.Chat {
	t.Helper()
	chat, err := e.chats.CreateChat(context.Background(), userID, &domain.CreateChatRequest{
		UserID: userID, IsAuthenticated: true, Title: "Test chat",
	})
	require.NoError(t, err)
	return chat
}

func isUsageLimit(err error) bool {
	var ule *domain.UsageLimitError
	return errors.As(err, &ule)
}

func mustBox(t *testing.T) *secretbox.Box {
	t.Helper()
	encoded, err := secretbox.GenerateKey()
	require.NoError(t, err)
	box, err := secretbox.New(encoded)
	require.NoError(t, err)
	return box
}
