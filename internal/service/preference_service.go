package service

import (
	"context"
	"errors"

	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
)

type preferenceServiceImpl struct {
	repo repository.PreferencesRepository
}

// NewPreferenceService creates a new preference service.
func NewPreferenceService(repo repository.PreferencesRepository) PreferenceService {
	return &preferenceServiceImpl{repo: repo}
}

// Get returns the stored preferences or the defaults.
func (s *preferenceServiceImpl) Get(ctx context.Context, userID string) (domain.UserPreferences, error) {
	prefs, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrPreferencesNotFound) {
			return domain.DefaultPreferences(), nil
		}
		return domain.UserPreferences{}, err
	}
	if prefs.HiddenModels == nil {
		prefs.HiddenModels = []string{}
	}
	return prefs, nil
}

// Update overlays the patch on the current values, defaults included.
func (s *preferenceServiceImpl) Update(ctx context.Context, userID string, patch domain.PreferencesPatch) (domain.UserPreferences, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return domain.UserPreferences{}, err
	}
	if patch.Empty() {
		return current, nil
	}

	next := patch.Apply(current)
	if err := s.repo.Upsert(ctx, userID, next); err != nil {
		return domain.UserPreferences{}, err
	}
	return next, nil
}
