package task

import (
	"context"
	"errors"
	"strings"

	"github.com/alecgard/planboard/internal/project"
)

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "invalid task input"
}

// Repository is the persistence surface the Service needs. *Store
// satisfies it.
type Repository interface {
	Create(ctx context.Context, userID string, in CreateTaskInput) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, userID string, params ListParams) ([]*Task, string, error)
	ListAll(ctx context.Context, userID string) ([]*Task, error)
	Update(ctx context.Context, id string, in UpdateTaskInput) (*Task, error)
	Delete(ctx context.Context, id string) error
}

// ProjectAuthorizer checks project permissions. *project.Service
// satisfies it.
type ProjectAuthorizer interface {
	Authorize(ctx context.Context, projectID, userID, permission string) (*project.Project, error)
}

// Service enforces ownership and project permissions for tasks.
type Service struct {
	repo     Repository
	projects ProjectAuthorizer
}

// NewService creates a Service.
func NewService(repo Repository, projects ProjectAuthorizer) *Service {
	return &Service{repo: repo, projects: projects}
}

func (s *Service) authorize(ctx context.Context, t *Task, userID, permission string) error {
	if t.ProjectID == "" {
		if t.UserID != userID {
			return ErrNotFound
		}
		return nil
	}
	_, err := s.projects.Authorize(ctx, t.ProjectID, userID, permission)
	if errors.Is(err, project.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) Create(ctx context.Context, userID string, in CreateTaskInput) (*Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	fields := map[string]string{}
	if in.Title == "" {
		fields["title"] = "is required"
	}
	validateEnums(fields, &in.Status, &in.Priority)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if in.ProjectID != "" {
		if _, err := s.projects.Authorize(ctx, in.ProjectID, userID, project.PermTasksEdit); err != nil {
			return nil, err
		}
	}
	return s.repo.Create(ctx, userID, in)
}

func (s *Service) Get(ctx context.Context, id, userID string) (*Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, t, userID, project.PermTasksView); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, userID string, params ListParams) ([]*Task, string, error) {
	fields := map[string]string{}
	if params.Status != "" {
		validateEnums(fields, &params.Status, nil)
	}
	if params.Priority != "" {
		validateEnums(fields, nil, &params.Priority)
	}
	if len(fields) > 0 {
		return nil, "", &ValidationError{Fields: fields}
	}
	if params.ProjectID != "" {
		if _, err := s.projects.Authorize(ctx, params.ProjectID, userID, project.PermTasksView); err != nil {
			return nil, "", err
		}
	}
	return s.repo.List(ctx, userID, params)
}

// ListAll returns every task the user created, for exports.
func (s *Service) ListAll(ctx context.Context, userID string) ([]*Task, error) {
	return s.repo.ListAll(ctx, userID)
}

func (s *Service) Update(ctx context.Context, id, userID string, in UpdateTaskInput) (*Task, error) {
	fields := map[string]string{}
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
		if trimmed == "" {
			fields["title"] = "must not be empty"
		}
	}
	validateEnums(fields, in.Status, in.Priority)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, t, userID, project.PermTasksEdit); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, t, userID, project.PermTasksEdit); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func validateEnums(fields map[string]string, status, priority *string) {
	if status != nil {
		switch *status {
		case StatusTodo, StatusInProgress, StatusDone:
		default:
			fields["status"] = "must be todo, in_progress or done"
		}
	}
	if priority != nil {
		switch *priority {
		case PriorityLow, PriorityMedium, PriorityHigh:
		default:
			fields["priority"] = "must be low, medium or high"
		}
	}
}
