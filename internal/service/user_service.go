package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jdships/yodoo-rebuild/internal/audit"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
	"github.com/jdships/yodoo-rebuild/pkg/log"
)

// userServiceImpl implements UserService interface.
type userServiceImpl struct {
	users        repository.UserRepository
	keys         repository.UserKeyRepository
	preferences  PreferenceService
	defaultModel string
}

// NewUserService creates a new user service.
func NewUserService(users repository.UserRepository, keys repository.UserKeyRepository, preferences PreferenceService, defaultModel string) UserService {
	return &userServiceImpl{
		users:        users,
		keys:         keys,
		preferences:  preferences,
		defaultModel: defaultModel,
	}
}

// EnsureUser inserts the user row on first sight.
func (s *userServiceImpl) EnsureUser(ctx context.Context, u domain.NewUser) error {
	created, err := s.users.Ensure(ctx, u, []string{s.defaultModel})
	if err != nil {
		return fmt.Errorf("failed to provision user: %w", err)
	}
	if created {
		audit.Log(ctx, audit.ActionUserProvisioned, u.ID, "user provisioned")
	}
	return nil
}

func (s *userServiceImpl) GetProfile(ctx context.Context, session domain.NewUser) (*domain.UserProfile, error) {
	if err := s.EnsureUser(ctx, session); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	prefs, err := s.preferences.Get(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	hasKeys, err := s.keys.HasAny(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	// The session carries the freshest name and avatar.
	if session.DisplayName != "" {
		u.DisplayName = session.DisplayName
	}
	if session.ProfileImage != "" {
		u.ProfileImage = session.ProfileImage
	}
	if u.Email == "" {
		u.Email = session.Email
	}

	return &domain.UserProfile{
		User:         *u,
		Preferences:  prefs,
		Subscription: u.Subscription(),
		HasAPIKeys:   hasKeys,
	}, nil
}

// GetFavoriteModels returns [] when the user row does not exist yet.
func (s *userServiceImpl) GetFavoriteModels(ctx context.Context, userID string) ([]string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return u.FavoriteModels, nil
}

func (s *userServiceImpl) UpdateFavoriteModels(ctx context.Context, session domain.NewUser, models []string) ([]string, error) {
	if models == nil {
		models = []string{}
	}
	if err := s.EnsureUser(ctx, session); err != nil {
		return nil, err
	}
	if err := s.users.UpdateFavoriteModels(ctx, session.ID, models); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, session.ID).Msg("failed to update favorite models")
		return nil, err
	}
	return models, nil
}
