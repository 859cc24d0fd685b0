package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jdships/yodoo-rebuild/internal/audit"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/pubsub"
	"github.com/jdships/yodoo-rebuild/pkg/secretbox"
)

type keyServiceImpl struct {
	keys      repository.UserKeyRepository
	box       *secretbox.Box
	usage     UsageService
	publisher pubsub.Publisher
}

// NewKeyService creates a new key service. A nil box disables storing keys.
func NewKeyService(keys repository.UserKeyRepository, box *secretbox.Box, usage UsageService, publisher pubsub.Publisher) KeyService {
	return &keyServiceImpl{keys: keys, box: box, usage: usage, publisher: publisher}
}

func (s *keyServiceImpl) List(ctx context.Context, userID string) ([]*domain.UserKey, error) {
	return s.keys.List(ctx, userID)
}

func (s *keyServiceImpl) Save(ctx context.Context, userID string, provider domain.Provider, apiKey string) (*domain.UserKey, error) {
	if s.box == nil {
		return nil, ErrEncryptionOff
	}
	if !provider.Valid() {
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrInvalidInput, provider)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidInput)
	}

	ciphertext, nonce, err := s.box.Seal(apiKey, additionalData(userID, provider))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}

	key := &domain.UserKey{
		UserID:       userID,
		Provider:     provider,
		EncryptedKey: ciphertext,
		Nonce:        nonce,
		Masked:       secretbox.Mask(apiKey),
	}
	if err := s.keys.Upsert(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to save key: %w", err)
	}

	s.changed(ctx, userID, provider)
	audit.LogWithDetail(ctx, audit.ActionKeySaved, userID, string(provider), "provider key saved")
	return key, nil
}

func (s *keyServiceImpl) Delete(ctx context.Context, userID string, provider domain.Provider) error {
	if err := s.keys.Delete(ctx, userID, provider); err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	s.changed(ctx, userID, provider)
	audit.LogWithDetail(ctx, audit.ActionKeyDeleted, userID, string(provider), "provider key deleted")
	return nil
}

func (s *keyServiceImpl) Resolve(ctx context.Context, userID string, provider domain.Provider) (string, error) {
	if s.box == nil || userID == "" {
		return "", nil
	}
	key, err := s.keys.Get(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, repository.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	plain, err := s.box.Open(key.EncryptedKey, key.Nonce, additionalData(userID, provider))
	if err != nil {
		// A key sealed under a rotated secret is unusable; fall back to the server key.
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Str(log.FieldProvider, string(provider)).Msg("failed to decrypt provider key")
		return "", nil
	}
	return plain, nil
}

// changed drops cached usage since key ownership changes the user's limits.
func (s *keyServiceImpl) changed(ctx context.Context, userID string, provider domain.Provider) {
	s.usage.Invalidate(ctx, userID)
	publishEvent(ctx, s.publisher, pubsub.UsageChannel(userID), pubsub.EventKeysChanged, userID,
		map[string]string{"provider": string(provider)})
}

func additionalData(userID string, provider domain.Provider) string {
	return userID + ":" + string(provider)
}
