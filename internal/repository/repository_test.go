package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.AllModels()...))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func ensureUser(t *testing.T, repo *GormUserRepository, id string) {
	t.Helper()
	_, err := repo.Ensure(context.Background(), domain.NewUser{ID: id, Email: id + "@example.com"}, []string{"gpt-4.1-nano"})
	require.NoError(t, err)
}

func strPtr(s string) *string { return &s }

func TestUserRepository_EnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))

	created, err := repo.Ensure(ctx, domain.NewUser{ID: "u1", Email: "a@example.com"}, []string{"gpt-4.1-nano"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Ensure(ctx, domain.NewUser{ID: "u1", Email: "other@example.com"}, nil)
	require.NoError(t, err)
	assert.False(t, created)

	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, []string{"gpt-4.1-nano"}, u.FavoriteModels)
	assert.Equal(t, domain.PlanFree, u.SubscriptionType)
	assert.Equal(t, domain.StatusInactive, u.SubscriptionStatus)
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	repo := NewGormUserRepository(newTestDB(t))
	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_Counters(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))
	ensureUser(t, repo, "u1")
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.IncrementMessageCount(ctx, "u1", now))
	require.NoError(t, repo.IncrementMessageCount(ctx, "u1", now))
	require.NoError(t, repo.IncrementProCount(ctx, "u1", now))

	u, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.MessageCount)
	assert.Equal(t, 2, u.DailyMessageCount)
	assert.Equal(t, 1, u.DailyProMessageCount)
	require.NotNil(t, u.LastActiveAt)

	require.NoError(t, repo.ResetProCount(ctx, "u1", now))
	u, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, u.DailyProMessageCount)
	require.NotNil(t, u.DailyProReset)
	assert.True(t, u.DailyProReset.Equal(now))

	assert.ErrorIs(t, repo.IncrementMessageCount(ctx, "ghost", now), ErrUserNotFound)
}

func TestUserRepository_ResetMonthlyCounts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewGormUserRepository(db)
	keys := NewGormUserKeyRepository(db)
	now := time.Now().UTC()

	for _, id := range []string{"free", "pro", "keyed"} {
		ensureUser(t, users, id)
		require.NoError(t, users.IncrementMessageCount(ctx, id, now))
	}
	require.NoError(t, users.UpdateSubscription(ctx, "pro", domain.SubscriptionChange{
		Type: domain.PlanPro, Status: domain.StatusActive, StartedAt: &now,
	}))
	require.NoError(t, keys.Upsert(ctx, &domain.UserKey{
		UserID: "keyed", Provider: domain.ProviderOpenAI, EncryptedKey: "ct", Nonce: "n", Masked: "****abcd",
	}))

	n, err := users.ResetMonthlyCounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	free, _ := users.GetByID(ctx, "free")
	pro, _ := users.GetByID(ctx, "pro")
	keyed, _ := users.GetByID(ctx, "keyed")
	assert.Equal(t, 1, free.MessageCount)
	assert.Equal(t, 0, pro.MessageCount)
	assert.Equal(t, 0, keyed.MessageCount)
	assert.True(t, pro.Premium)
}

func TestUserRepository_BillingCustomer(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserRepository(newTestDB(t))
	ensureUser(t, repo, "u1")
	ensureUser(t, repo, "u2")

	require.NoError(t, repo.SetBillingCustomerID(ctx, "u1", "cus_1"))
	u, err := repo.GetByBillingCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	assert.ErrorIs(t, repo.SetBillingCustomerID(ctx, "u2", "cus_1"), ErrCustomerTaken)

	_, err = repo.GetByBillingCustomerID(ctx, "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestChatRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	chats := NewGormChatRepository(db)
	msgs := NewGormMessageRepository(db)

	chat := &domain.Chat{UserID: "u1", Title: "Go generics", Model: "gpt-4.1-nano"}
	require.NoError(t, chats.Create(ctx, chat))
	require.NotEmpty(t, chat.ID)

	require.NoError(t, msgs.Create(ctx, &domain.Message{ChatID: chat.ID, UserID: "u1", Role: domain.RoleUser, Content: "hi"}))

	got, err := chats.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go generics", got.Title)

	got.Title = "Renamed"
	got.Pinned = true
	require.NoError(t, chats.Update(ctx, got))

	got, err = chats.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, got.Pinned)

	require.NoError(t, chats.Delete(ctx, chat.ID))
	_, err = chats.GetByID(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)

	remaining, err := msgs.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	assert.ErrorIs(t, chats.Delete(ctx, chat.ID), ErrChatNotFound)
}

func TestChatRepository_ListOrdersPinnedFirst(t *testing.T) {
	ctx := context.Background()
	chats := NewGormChatRepository(newTestDB(t))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &domain.Chat{UserID: "u1", Title: "older"}
	newer := &domain.Chat{UserID: "u1", Title: "newer"}
	pinned := &domain.Chat{UserID: "u1", Title: "pinned", Pinned: true}
	other := &domain.Chat{UserID: "u2", Title: "other"}
	for _, c := range []*domain.Chat{older, newer, pinned, other} {
		require.NoError(t, chats.Create(ctx, c))
	}
	require.NoError(t, chats.Touch(ctx, pinned.ID, base))
	require.NoError(t, chats.Touch(ctx, older.ID, base.Add(time.Hour)))
	require.NoError(t, chats.Touch(ctx, newer.ID, base.Add(2*time.Hour)))

	list, err := chats.ListByUser(ctx, "u1", nil)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"pinned", "newer", "older"}, []string{list[0].Title, list[1].Title, list[2].Title})
}

func TestChatRepository_SearchTitles(t *testing.T) {
	ctx := context.Background()
	chats := NewGormChatRepository(newTestDB(t))
	for _, title := range []string{"Kafka tuning", "kafka consumer groups", "Postgres 100% CPU", "Redis"} {
		require.NoError(t, chats.Create(ctx, &domain.Chat{UserID: "u1", Title: title}))
	}
	require.NoError(t, chats.Create(ctx, &domain.Chat{UserID: "u2", Title: "Kafka elsewhere"}))

	found, err := chats.SearchTitles(ctx, "u1", "KAFKA", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = chats.SearchTitles(ctx, "u1", "100%", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Postgres 100% CPU", found[0].Title)

	found, err = chats.SearchTitles(ctx, "u1", "%", 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestChatRepository_GetByIDsKeepsOrder(t *testing.T) {
	ctx := context.Background()
	chats := NewGormChatRepository(newTestDB(t))
	a := &domain.Chat{UserID: "u1", Title: "a"}
	b := &domain.Chat{UserID: "u1", Title: "b"}
	foreign := &domain.Chat{UserID: "u2", Title: "c"}
	for _, c := range []*domain.Chat{a, b, foreign} {
		require.NoError(t, chats.Create(ctx, c))
	}

	got, err := chats.GetByIDs(ctx, "u1", []string{b.ID, foreign.ID, a.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, a.ID, got[1].ID)
}

func TestMessageRepository_BatchKeepsOrderAndFields(t *testing.T) {
	ctx := context.Background()
	msgs := NewGormMessageRepository(newTestDB(t))
	group := "g1"

	batch := []*domain.Message{
		{ChatID: "c1", Role: domain.RoleUser, Content: "question", MessageGroupID: &group,
			Attachments: []domain.MessageAttachment{{Name: "a.png", ContentType: "image/png", URL: "/files/a.png"}}},
		{ChatID: "c1", Role: domain.RoleAssistant, Content: "from a", MessageGroupID: &group, Model: strPtr("model-a"),
			Parts: json.RawMessage(`[{"type":"text","text":"from a"}]`)},
		{ChatID: "c1", Role: domain.RoleAssistant, Content: "from b", MessageGroupID: &group, Model: strPtr("model-b")},
	}
	require.NoError(t, msgs.CreateBatch(ctx, batch))
	for _, m := range batch {
		assert.NotZero(t, m.ID)
	}

	list, err := msgs.ListByChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "question", list[0].Content)
	assert.Equal(t, "model-a", list[1].ModelID())
	assert.Equal(t, "model-b", list[2].ModelID())
	assert.Equal(t, "g1", list[0].GroupID())
	require.Len(t, list[0].Attachments, 1)
	assert.Equal(t, "image/png", list[0].Attachments[0].ContentType)
	assert.JSONEq(t, `[{"type":"text","text":"from a"}]`, string(list[1].Parts))
	assert.Nil(t, list[2].Parts)
}

func TestPreferencesRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewGormPreferencesRepository(newTestDB(t))

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrPreferencesNotFound)

	prefs := domain.DefaultPreferences()
	prefs.MultiModelEnabled = true
	require.NoError(t, repo.Upsert(ctx, "u1", prefs))

	prefs.HiddenModels = []string{"gpt-4o"}
	prefs.PromptSuggestions = false
	require.NoError(t, repo.Upsert(ctx, "u1", prefs))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.MultiModelEnabled)
	assert.False(t, got.PromptSuggestions)
	assert.Equal(t, []string{"gpt-4o"}, got.HiddenModels)

	first := domain.DefaultPreferences()
	first.ShowConversationPreviews = false
	require.NoError(t, repo.Upsert(ctx, "u2", first))
	got, err = repo.Get(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, got.ShowConversationPreviews)
	assert.True(t, got.PromptSuggestions)
}

func TestProjectRepository_DeleteDetachesChats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	projects := NewGormProjectRepository(db)
	chats := NewGormChatRepository(db)

	p := &domain.Project{UserID: "u1", Name: "Research"}
	require.NoError(t, projects.Create(ctx, p))
	chat := &domain.Chat{UserID: "u1", Title: "in project", ProjectID: &p.ID}
	require.NoError(t, chats.Create(ctx, chat))

	inProject, err := chats.ListByUser(ctx, "u1", &p.ID)
	require.NoError(t, err)
	assert.Len(t, inProject, 1)

	require.NoError(t, projects.Rename(ctx, p.ID, "Archive"))
	got, err := projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Archive", got.Name)

	require.NoError(t, projects.Delete(ctx, p.ID))
	_, err = projects.GetByID(ctx, p.ID)
	assert.ErrorIs(t, err, ErrProjectNotFound)

	c, err := chats.GetByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, c.ProjectID)
	assert.ErrorIs(t, projects.Rename(ctx, p.ID, "x"), ErrProjectNotFound)
}

func TestUserKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormUserKeyRepository(newTestDB(t))

	has, err := repo.HasAny(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, has)

	key := &domain.UserKey{UserID: "u1", Provider: domain.ProviderMistral, EncryptedKey: "c1", Nonce: "n1", Masked: "****1111"}
	require.NoError(t, repo.Upsert(ctx, key))
	key.EncryptedKey, key.Nonce, key.Masked = "c2", "n2", "****2222"
	require.NoError(t, repo.Upsert(ctx, key))

	list, err := repo.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c2", list[0].EncryptedKey)
	assert.Equal(t, "n2", list[0].Nonce)

	has, err = repo.HasAny(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, repo.Delete(ctx, "u1", domain.ProviderMistral))
	_, err = repo.Get(ctx, "u1", domain.ProviderMistral)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "u1", domain.ProviderMistral), ErrKeyNotFound)
}

func TestAttachmentRepository_CountSince(t *testing.T) {
	ctx := context.Background()
	repo := NewGormAttachmentRepository(newTestDB(t))
	today := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)

	records := []*domain.Attachment{
		{ID: "01A", UserID: "u1", ChatID: "c1", Name: "old.txt", StorageKey: "k1", CreatedAt: today.Add(-time.Hour)},
		{ID: "01B", UserID: "u1", ChatID: "c1", Name: "a.txt", StorageKey: "k2", CreatedAt: today.Add(time.Hour)},
		{ID: "01C", UserID: "u1", ChatID: "c2", Name: "b.txt", StorageKey: "k3", CreatedAt: today.Add(2 * time.Hour)},
		{ID: "01D", UserID: "u2", ChatID: "c3", Name: "c.txt", StorageKey: "k4", CreatedAt: today.Add(time.Hour)},
	}
	for _, a := range records {
		require.NoError(t, repo.Create(ctx, a))
	}

	n, err := repo.CountSince(ctx, "u1", today)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	list, err := repo.ListByChat(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "old.txt", list[0].Name)

	require.NoError(t, repo.DeleteByChat(ctx, "c1"))
	_, err = repo.GetByID(ctx, "01B")
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestUserRepository_GetByIDPropagatesDriverErrors(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormUserRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatRepository_GetByIDNoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormChatRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "chats"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrChatNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleError(t *testing.T) {
	assert.Nil(t, handleError(nil))
	assert.ErrorIs(t, handleError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_billing_customer_id"`)), ErrCustomerTaken)
	assert.ErrorIs(t, handleError(errors.New("UNIQUE constraint failed: projects.id")), ErrDuplicate)
	assert.ErrorIs(t, handleError(errors.New("Error 1062: Duplicate entry 'x' for key 'users.billing_customer_id'")), ErrCustomerTaken)
	other := errors.New("boom")
	assert.Equal(t, other, handleError(other))
}
