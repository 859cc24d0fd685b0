package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/internal/usage"
	"github.com/jdships/yodoo-rebuild/pkg/storage"
)

// AttachmentConfig bounds accepted uploads.
type AttachmentConfig struct {
	MaxSize      int64         `mapstructure:"max_size"`
	AllowedTypes []string      `mapstructure:"allowed_types"`
	URLExpiry    time.Duration `mapstructure:"url_expiry"`
}

// DefaultAttachmentConfig accepts images, PDFs and plain text up to 10MB.
func DefaultAttachmentConfig() AttachmentConfig {
	return AttachmentConfig{
		MaxSize:      10 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/gif", "image/webp", "application/pdf", "text/plain", "text/markdown"},
		URLExpiry:    24 * time.Hour,
	}
}

type attachmentServiceImpl struct {
	repo    repository.AttachmentRepository
	chats   repository.ChatRepository
	store   storage.Storage
	policy  *usage.Policy
	cfg     AttachmentConfig
	allowed map[string]struct{}
	now     func() time.Time
}

// NewAttachmentService creates a new attachment service.
func NewAttachmentService(
	repo repository.AttachmentRepository,
	chats repository.ChatRepository,
	store storage.Storage,
	policy *usage.Policy,
	cfg AttachmentConfig,
) AttachmentService {
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &attachmentServiceImpl{
		repo:    repo,
		chats:   chats,
		store:   store,
		policy:  policy,
		cfg:     cfg,
		allowed: allowed,
		now:     time.Now,
	}
}

func (s *attachmentServiceImpl) Upload(ctx context.Context, userID, chatID string, file Upload) (*domain.Attachment, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil || chat.UserID != userID {
		return nil, ErrChatNotFound
	}

	if s.cfg.MaxSize > 0 && file.Size > s.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, file.Size, s.cfg.MaxSize)
	}
	contentType := baseContentType(file.ContentType)
	if _, ok := s.allowed[contentType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileType, contentType)
	}

	now := s.now().UTC()
	today, err := s.repo.CountSince(ctx, userID, usage.StartOfUTCDay(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count uploads: %w", err)
	}
	if err := s.policy.CheckFileUploads(int(today)); err != nil {
		return nil, err
	}

	uid, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate attachment id: %w", err)
	}
	id := uid.String()
	key := chatPrefix(userID, chatID) + id + strings.ToLower(path.Ext(file.Name))

	// Cap the reader so a lying Content-Length cannot push past the limit.
	body := file.Body
	if s.cfg.MaxSize > 0 {
		body = io.LimitReader(body, s.cfg.MaxSize)
	}
	if err := s.store.Write(ctx, key, body, file.Size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	url, err := s.store.GetURL(ctx, key, s.cfg.URLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to build file url: %w", err)
	}

	a := &domain.Attachment{
		ID:          id,
		UserID:      userID,
		ChatID:      chatID,
		Name:        path.Base(file.Name),
		ContentType: contentType,
		Size:        file.Size,
		StorageKey:  key,
		URL:         url,
		CreatedAt:   now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, fmt.Errorf("failed to save attachment: %w", err)
	}
	return a, nil
}

func (s *attachmentServiceImpl) DeleteByChat(ctx context.Context, userID, chatID string) error {
	if err := s.store.DeletePrefix(ctx, chatPrefix(userID, chatID)); err != nil {
		return err
	}
	return s.repo.DeleteByChat(ctx, chatID)
}

func chatPrefix(userID, chatID string) string {
	return "attachments/" + userID + "/" + chatID + "/"
}

func baseContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
