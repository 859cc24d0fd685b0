package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/llm"
	"github.com/jdships/yodoo-rebuild/internal/multichat"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/internal/search"
	"github.com/jdships/yodoo-rebuild/internal/usage"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/metrics"
)

const maxGeneratedTitle = 80

// CompletionConfig tunes completion requests.
type CompletionConfig struct {
	DefaultModel string `mapstructure:"default_model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	// Concurrency caps in-flight models of one multi-model request; 0 runs all at once.
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type completionServiceImpl struct {
	registry  *llm.Registry
	completer llm.Completer
	chats     repository.ChatRepository
	messages  repository.MessageRepository
	projects  ProjectService
	searcher  search.ChatSearcher
	usage     UsageService
	keys      KeyService
	policy    *usage.Policy
	cfg       CompletionConfig
	now       func() time.Time
}

// NewCompletionService creates a new completion service.
func NewCompletionService(
	registry *llm.Registry,
	completer llm.Completer,
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	projects ProjectService,
	searcher search.ChatSearcher,
	usageSvc UsageService,
	keys KeyService,
	policy *usage.Policy,
	cfg CompletionConfig,
) CompletionService {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = llm.DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = llm.DefaultSystemPrompt
	}
	return &completionServiceImpl{
		registry:  registry,
		completer: completer,
		chats:     chats,
		messages:  messages,
		projects:  projects,
		searcher:  searcher,
		usage:     usageSvc,
		keys:      keys,
		policy:    policy,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *completionServiceImpl) Models() []domain.ModelInfo {
	return s.registry.List()
}

func (s *completionServiceImpl) Chat(ctx context.Context, sessionUserID string, req *domain.ChatRequest, onDelta func(string) error) (*domain.Message, error) {
	if req.UserID == "" || req.ChatID == "" || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: missing information", ErrInvalidInput)
	}
	if err := ValidateUserIdentity(sessionUserID, req.UserID, req.IsAuthenticated); err != nil {
		return nil, err
	}

	modelID := req.Model
	if modelID == "" {
		modelID = s.cfg.DefaultModel
	}
	model, ok := s.registry.Get(modelID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}

	last := lastUserMessage(req.Messages)
	if last == nil {
		return nil, fmt.Errorf("%w: no user message", ErrInvalidInput)
	}
	if err := s.policy.CheckMessageLength(last.Content); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	chat, err := s.ownedChat(ctx, req.UserID, req.ChatID)
	if err != nil {
		return nil, err
	}
	if err := s.usage.CheckUsageByModel(ctx, req.UserID, model.ID, req.IsAuthenticated); err != nil {
		return nil, err
	}

	groupID := uuid.NewString()
	if req.MessageGroupID != nil && *req.MessageGroupID != "" {
		groupID = *req.MessageGroupID
	}

	userMsg := &domain.Message{
		ChatID:         chat.ID,
		UserID:         req.UserID,
		Role:           domain.RoleUser,
		Content:        last.Content,
		Attachments:    last.Attachments,
		MessageGroupID: &groupID,
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	history := make([]llm.Message, 0, len(req.Messages)+1)
	history = append(history, llm.Message{Role: string(domain.RoleSystem), Content: s.systemPrompt(req.SystemPrompt, chat)})
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			continue
		}
		history = append(history, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	reply, err := s.complete(ctx, req.UserID, model, history, onDelta)
	if err != nil {
		return nil, err
	}
	msg, err := s.saveReply(ctx, chat.ID, req.UserID, model.ID, groupID, reply, req.IsAuthenticated)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, chat.ID)
	return msg, nil
}

func (s *completionServiceImpl) MultiChat(ctx context.Context, sessionUserID string, req *domain.MultiChatRequest) (*domain.MultiChatResponse, error) {
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}
	if err := ValidateUserIdentity(sessionUserID, req.UserID, req.IsAuthenticated); err != nil {
		return nil, err
	}

	prompt := strings.TrimSpace(req.Prompt)
	models := multichat.Dedupe(req.Models)
	if prompt == "" || len(models) == 0 {
		return nil, fmt.Errorf("%w: prompt and models are required", ErrInvalidInput)
	}
	if err := s.policy.CheckMessageLength(prompt); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	infos := make(map[string]domain.ModelInfo, len(models))
	for _, id := range models {
		m, ok := s.registry.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, id)
		}
		infos[id] = m
	}

	maxModels, err := s.usage.MaxModels(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	maxModels = min(maxModels, multichat.MaxModels)
	if len(models) > maxModels {
		return nil, fmt.Errorf("%w: your plan allows %d models per request", ErrTooManyModels, maxModels)
	}

	chat, err := s.chatFor(ctx, req, prompt, models[0])
	if err != nil {
		return nil, err
	}

	// History is read before the new turn is stored.
	history, err := s.messages.ListByChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	groupID := uuid.NewString()
	userMsg := &domain.Message{
		ChatID:         chat.ID,
		UserID:         req.UserID,
		Role:           domain.RoleUser,
		Content:        prompt,
		Attachments:    req.Attachments,
		MessageGroupID: &groupID,
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	l := log.Ctx(ctx)
	system := s.systemPrompt(req.SystemPrompt, chat)
	outcomes, settleErr := multichat.Settle(ctx, models, s.cfg.Concurrency, func(ctx context.Context, id string) (*domain.Message, error) {
		if err := s.usage.CheckUsageByModel(ctx, req.UserID, id, true); err != nil {
			return nil, err
		}
		msgs := buildHistory(system, multichat.FilterForModel(history, id), prompt)
		reply, err := s.complete(ctx, req.UserID, infos[id], msgs, nil)
		if err != nil {
			return nil, err
		}
		return s.saveReply(ctx, chat.ID, req.UserID, id, groupID, reply, true)
	})

	resp := &domain.MultiChatResponse{
		ChatID:         chat.ID,
		MessageGroupID: groupID,
		UserMessage:    userMsg,
		Results:        make([]domain.ModelResult, len(outcomes)),
	}
	for i, o := range outcomes {
		r := domain.ModelResult{Model: o.Model, Message: o.Message}
		if o.Err != nil {
			r.Error = o.Err.Error()
			var ule *domain.UsageLimitError
			if errors.As(o.Err, &ule) {
				r.Code = ule.Code
			}
			l.Warn().Err(o.Err).Str(log.FieldModel, o.Model).Str(log.FieldMessageGroup, groupID).Msg("model failed in multi-chat")
		}
		resp.Results[i] = r
	}

	s.touch(ctx, chat.ID)
	return resp, settleErr
}

// complete resolves the key for the model's provider and runs one completion.
func (s *completionServiceImpl) complete(ctx context.Context, userID string, model domain.ModelInfo, msgs []llm.Message, onDelta func(string) error) (*llm.Completion, error) {
	key, err := s.keys.Resolve(ctx, userID, model.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api key: %w", err)
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	req := llm.Request{Provider: model.Provider, Model: model.Upstream, Messages: msgs, APIKey: key}
	start := s.now()
	var reply *llm.Completion
	if onDelta != nil {
		reply, err = s.completer.Stream(ctx, req, onDelta)
	} else {
		reply, err = s.completer.Complete(ctx, req)
	}
	metrics.RecordCompletion(model.ID, err, s.now().Sub(start))
	return reply, err
}

func (s *completionServiceImpl) saveReply(ctx context.Context, chatID, userID, model, groupID string, reply *llm.Completion, isAuthenticated bool) (*domain.Message, error) {
	msg := &domain.Message{
		ChatID:         chatID,
		UserID:         userID,
		Role:           domain.RoleAssistant,
		Content:        reply.Content,
		MessageGroupID: &groupID,
		Model:          &model,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save reply: %w", err)
	}
	if err := s.usage.IncrementUsageByModel(ctx, userID, model, isAuthenticated); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Str(log.FieldModel, model).Msg("failed to increment usage")
	}
	return msg, nil
}

// chatFor returns the request's chat, creating one titled after the prompt
// when no chat id is given.
func (s *completionServiceImpl) chatFor(ctx context.Context, req *domain.MultiChatRequest, prompt, model string) (*domain.Chat, error) {
	if req.ChatID != "" {
		return s.ownedChat(ctx, req.UserID, req.ChatID)
	}

	var projectID *string
	if req.ProjectID != nil && *req.ProjectID != "" {
		if _, err := s.projects.Get(ctx, req.UserID, *req.ProjectID); err != nil {
			return nil, err
		}
		projectID = req.ProjectID
	}

	chat := &domain.Chat{
		UserID:       req.UserID,
		ProjectID:    projectID,
		Title:        titleFromPrompt(prompt),
		Model:        model,
		SystemPrompt: req.SystemPrompt,
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	if err := s.searcher.Index(ctx, chat); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldChatID, chat.ID).Msg("failed to index chat")
	}
	return chat, nil
}

func (s *completionServiceImpl) ownedChat(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
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

func (s *completionServiceImpl) systemPrompt(requested string, chat *domain.Chat) string {
	switch {
	case strings.TrimSpace(requested) != "":
		return requested
	case strings.TrimSpace(chat.SystemPrompt) != "":
		return chat.SystemPrompt
	default:
		return s.cfg.SystemPrompt
	}
}

func (s *completionServiceImpl) touch(ctx context.Context, chatID string) {
	if err := s.chats.Touch(ctx, chatID, s.now().UTC()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldChatID, chatID).Msg("failed to touch chat")
	}
}

func buildHistory(system string, stored []*domain.Message, prompt string) []llm.Message {
	out := make([]llm.Message, 0, len(stored)+2)
	out = append(out, llm.Message{Role: string(domain.RoleSystem), Content: system})
	for _, m := range stored {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(out, llm.Message{Role: string(domain.RoleUser), Content: prompt})
}

func lastUserMessage(msgs []domain.ChatMessage) *domain.ChatMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return &msgs[i]
		}
	}
	return nil
}

func titleFromPrompt(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if r := []rune(title); len(r) > maxGeneratedTitle {
		title = strings.TrimSpace(string(r[:maxGeneratedTitle])) + "..."
	}
	if title == "" {
		return domain.DefaultChatTitle
	}
	return title
}
