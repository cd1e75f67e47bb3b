package note

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/alecgard/planboard/internal/project"
)

const maxContentLength = 5000

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "invalid note input" }

type Repository interface {
	Create(ctx context.Context, userID string, in CreateNoteInput) (*Note, error)
	Get(ctx context.Context, id string) (*Note, error)
	List(ctx context.Context, userID string, params ListParams) ([]*Note, string, error)
	ListAll(ctx context.Context, userID string) ([]*Note, error)
	Update(ctx context.Context, id string, in UpdateNoteInput) (*Note, error)
	Delete(ctx context.Context, id string) error
}

type ProjectAuthorizer interface {
	Authorize(ctx context.Context, projectID, userID, permission string) (*project.Project, error)
}

type Service struct {
	repo     Repository
	projects ProjectAuthorizer
}

func NewService(repo Repository, projects ProjectAuthorizer) *Service {
	return &Service{repo: repo, projects: projects}
}

func validate(fields map[string]string, content, color *string) {
	if content != nil {
		switch c := strings.TrimSpace(*content); {
		case c == "":
			fields["content"] = "is required"
		case len(c) > maxContentLength:
			fields["content"] = "is too long"
		}
	}
	if color != nil && !slices.Contains(Colors, *color) {
		fields["color"] = "must be one of " + strings.Join(Colors, ", ")
	}
}

// access checks the caller may use permission on n. Personal notes are only
// visible to their author.
func (s *Service) access(ctx context.Context, n *Note, userID, permission string) error {
	if n.ProjectID == "" {
		if n.UserID != userID {
			return ErrNotFound
		}
		return nil
	}
	if _, err := s.projects.Authorize(ctx, n.ProjectID, userID, permission); err != nil {
		if errors.Is(err, project.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Service) Create(ctx context.Context, userID string, in CreateNoteInput) (*Note, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.Color == "" {
		in.Color = DefaultColor
	}
	fields := map[string]string{}
	validate(fields, &in.Content, &in.Color)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if in.ProjectID != "" {
		if _, err := s.projects.Authorize(ctx, in.ProjectID, userID, project.PermNotesEdit); err != nil {
			return nil, err
		}
	}
	return s.repo.Create(ctx, userID, in)
}

func (s *Service) Get(ctx context.Context, id, userID string) (*Note, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access(ctx, n, userID, project.PermNotesView); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID string, params ListParams) ([]*Note, string, error) {
	if params.ProjectID != "" {
		if _, err := s.projects.Authorize(ctx, params.ProjectID, userID, project.PermNotesView); err != nil {
			return nil, "", err
		}
	}
	return s.repo.List(ctx, userID, params)
}

func (s *Service) ListAll(ctx context.Context, userID string) ([]*Note, error) {
	return s.repo.ListAll(ctx, userID)
}

func (s *Service) Update(ctx context.Context, id, userID string, in UpdateNoteInput) (*Note, error) {
	fields := map[string]string{}
	validate(fields, in.Content, in.Color)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access(ctx, n, userID, project.PermNotesEdit); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.access(ctx, n, userID, project.PermNotesEdit); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
