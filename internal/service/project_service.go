package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jdships/yodoo-rebuild/internal/audit"
	"github.com/jdships/yodoo-rebuild/internal/domain"
	"github.com/jdships/yodoo-rebuild/internal/repository"
)

const maxProjectName = 100

type projectServiceImpl struct {
	projects repository.ProjectRepository
	chats    repository.ChatRepository
}

// NewProjectService creates a new project service.
func NewProjectService(projects repository.ProjectRepository, chats repository.ChatRepository) ProjectService {
	return &projectServiceImpl{projects: projects, chats: chats}
}

func (s *projectServiceImpl) Create(ctx context.Context, userID, name string) (*domain.Project, error) {
	name, err := validProjectName(name)
	if err != nil {
		return nil, err
	}
	p := &domain.Project{UserID: userID, Name: name}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

func (s *projectServiceImpl) List(ctx context.Context, userID string) ([]*domain.Project, error) {
	return s.projects.ListByUser(ctx, userID)
}

func (s *projectServiceImpl) Get(ctx context.Context, userID, projectID string) (*domain.Project, error) {
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

func (s *projectServiceImpl) Rename(ctx context.Context, userID, projectID, name string) (*domain.Project, error) {
	name, err := validProjectName(name)
	if err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.projects.Rename(ctx, projectID, name); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	p.Name = name
	return p, nil
}

// Delete removes the project; its chats move back to the top level.
func (s *projectServiceImpl) Delete(ctx context.Context, userID, projectID string) error {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return ErrProjectNotFound
		}
		return err
	}
	audit.LogWithTarget(ctx, audit.ActionProjectDeleted, userID, projectID, "project deleted")
	return nil
}

func (s *projectServiceImpl) ListChats(ctx context.Context, userID, projectID string) ([]*domain.Chat, error) {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.chats.ListByUser(ctx, userID, &projectID)
}

func validProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: project name is required", ErrInvalidInput)
	}
	if len([]rune(name)) > maxProjectName {
		return "", fmt.Errorf("%w: project name exceeds %d characters", ErrInvalidInput, maxProjectName)
	}
	return name, nil
}
