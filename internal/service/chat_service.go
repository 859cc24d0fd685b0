package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jdships/yodoo-rebuild/internal/audit"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/multichat"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/internal/search"
	"github.com/jdships/yodoo-rebuild/pkg/log"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	maxTitleLength     = 255
)

type chatServiceImpl struct {
	chats        repository.ChatRepository
	messages     repository.MessageRepository
	projects     repository.ProjectRepository
	usage        UsageService
	searcher     search.ChatSearcher
	attachments  AttachmentService
	defaultModel string
	now          func() time.Time
}

// NewChatService creates a new chat service.
func NewChatService(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	projects repository.ProjectRepository,
	usage UsageService,
	searcher search.ChatSearcher,
	attachments AttachmentService,
	defaultModel string,
) ChatService {
	return &chatServiceImpl{
		chats:        chats,
		messages:     messages,
		projects:     projects,
		usage:        usage,
		searcher:     searcher,
		attachments:  attachments,
		defaultModel: defaultModel,
		now:          time.Now,
	}
}

func (s *chatServiceImpl) CreateChat(ctx context.Context, sessionUserID string, req *domain.CreateChatRequest) (*domain.Chat, error) {
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}
	if err := ValidateUserIdentity(sessionUserID, req.UserID, req.IsAuthenticated); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	if err := s.usage.CheckUsageByModel(ctx, req.UserID, model, req.IsAuthenticated); err != nil {
		return nil, err
	}

	if req.ProjectID != nil && *req.ProjectID != "" {
		if _, err := s.ownedProject(ctx, req.UserID, *req.ProjectID); err != nil {
			return nil, err
		}
	} else {
		req.ProjectID = nil
	}

	chat := &domain.Chat{
		UserID:       req.UserID,
		ProjectID:    req.ProjectID,
		Title:        normalizeTitle(req.Title),
		Model:        model,
		SystemPrompt: req.SystemPrompt,
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	s.index(ctx, chat)
	audit.LogWithTarget(ctx, audit.ActionChatCreated, chat.UserID, chat.ID, "chat created")
	return chat, nil
}

func (s *chatServiceImpl) ListChats(ctx context.Context, userID string, projectID *string) ([]*domain.Chat, error) {
	if projectID != nil {
		if _, err := s.ownedProject(ctx, userID, *projectID); err != nil {
			return nil, err
		}
	}
	return s.chats.ListByUser(ctx, userID, projectID)
}

func (s *chatServiceImpl) GetChat(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	return s.ownedChat(ctx, userID, chatID)
}

func (s *chatServiceImpl) UpdateChat(ctx context.Context, userID, chatID string, req *domain.UpdateChatRequest) (*domain.Chat, error) {
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	reindex := false
	if req.Title != nil {
		chat.Title = normalizeTitle(*req.Title)
		reindex = true
	}
	if req.Model != nil && *req.Model != "" {
		chat.Model = *req.Model
	}
	if req.SystemPrompt != nil {
		chat.SystemPrompt = *req.SystemPrompt
	}
	if req.Pinned != nil && *req.Pinned != chat.Pinned {
		chat.Pinned = *req.Pinned
		if chat.Pinned {
			now := s.now().UTC()
			chat.PinnedAt = &now
		} else {
			chat.PinnedAt = nil
		}
	}
	if req.ProjectID != nil {
		if *req.ProjectID == "" {
			chat.ProjectID = nil
		} else {
			if _, err := s.ownedProject(ctx, userID, *req.ProjectID); err != nil {
				return nil, err
			}
			chat.ProjectID = req.ProjectID
		}
	}

	if err := s.chats.Update(ctx, chat); err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	if reindex {
		s.index(ctx, chat)
	}
	return chat, nil
}

func (s *chatServiceImpl) DeleteChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}

	// Rows go first; files are only removed once the chat is gone.
	if err := s.chats.Delete(ctx, chatID); err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	l := log.Ctx(ctx)
	if err := s.attachments.DeleteByChat(ctx, userID, chatID); err != nil {
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("failed to remove chat attachments from storage")
	}
	if err := s.searcher.Delete(ctx, chatID); err != nil {
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("failed to remove chat from search index")
	}

	audit.LogWithTarget(ctx, audit.ActionChatDeleted, userID, chatID, "chat deleted")
	return nil
}

func (s *chatServiceImpl) SearchChats(ctx context.Context, userID, query string, limit int) ([]*domain.Chat, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*domain.Chat{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.searcher.Search(ctx, userID, query, limit)
}

func (s *chatServiceImpl) ListMessages(ctx context.Context, userID, chatID, model string) ([]*domain.Message, error) {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	// Chats that never ran a multi-model turn have one shared history.
	if model != "" && multichat.HasGroups(msgs) {
		return multichat.FilterForModel(msgs, model), nil
	}
	return msgs, nil
}

func (s *chatServiceImpl) AddMessages(ctx context.Context, userID, chatID string, in []domain.NewMessage) ([]*domain.Message, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrInvalidInput)
	}
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	msgs := make([]*domain.Message, len(in))
	for i, m := range in {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: invalid role %q", ErrInvalidInput, m.Role)
		}
		msgs[i] = &domain.Message{
			ChatID:         chatID,
			UserID:         userID,
			Role:           m.Role,
			Content:        m.Content,
			Attachments:    m.Attachments,
			Parts:          m.Parts,
			MessageGroupID: m.MessageGroupID,
			Model:          m.Model,
		}
	}

	if err := s.messages.CreateBatch(ctx, msgs); err != nil {
		return nil, fmt.Errorf("failed to insert messages: %w", err)
	}
	s.touch(ctx, chatID)
	return msgs, nil
}

func (s *chatServiceImpl) ClearMessages(ctx context.Context, userID, chatID string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.messages.DeleteByChat(ctx, chatID)
}

// ownedChat loads a chat and hides chats of other users.
func (s *chatServiceImpl) ownedChat(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if chat.UserID != userID {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *chatServiceImpl) ownedProject(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	p, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

func (s *chatServiceImpl) index(ctx context.Context, chat *domain.Chat) {
	if err := s.searcher.Index(ctx, chat); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldChatID, chat.ID).Msg("failed to index chat")
	}
}

func (s *chatServiceImpl) touch(ctx context.Context, chatID string) {
	if err := s.chats.Touch(ctx, chatID, s.now().UTC()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("failed to touch chat")
	}
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.DefaultChatTitle
	}
	if r := []rune(title); len(r) > maxTitleLength {
		title = string(r[:maxTitleLength])
	}
	return title
}
