package project

import (
	"context"
	"errors"
	"strings"
)

// ErrForbidden is returned when a member lacks the required permission.
var ErrForbidden = errors.New("insufficient project permissions")

// ErrOwnerRemoval is returned when removing or demoting the project owner.
var ErrOwnerRemoval = errors.New("the project owner cannot be removed")

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "invalid project input"
}

// Repository is the persistence surface the Service needs. *Store
// satisfies it.
type Repository interface {
	Create(ctx context.Context, ownerID string, in CreateProjectInput) (*Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	ListForUser(ctx context.Context, userID string, params ListParams) ([]*Project, string, error)
	Update(ctx context.Context, id string, in UpdateProjectInput) (*Project, error)
	Delete(ctx context.Context, id string) error
	ListOwned(ctx context.Context, userID string) ([]*Project, error)
	CountOwned(ctx context.Context, userID string) (int64, error)
	GetRole(ctx context.Context, name string) (*Role, error)
	MemberRole(ctx context.Context, projectID, userID string) (*Role, error)
	AddMember(ctx context.Context, projectID, userID, roleName string) error
	RemoveMember(ctx context.Context, projectID, userID string) error
	ListMembers(ctx context.Context, projectID string) ([]*Member, error)
	CountMembers(ctx context.Context, projectID string) (int64, error)
}

// Service applies membership checks on top of the Store.
type Service struct {
	repo Repository
}

// NewService creates a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authorize returns the project when userID holds permission in it.
// Non-members get ErrNotFound so project ids do not leak.
func (s *Service) Authorize(ctx context.Context, projectID, userID, permission string) (*Project, error) {
	role, err := s.repo.MemberRole(ctx, projectID, userID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !role.HasPermissionTo(permission) {
		return nil, ErrForbidden
	}
	return s.repo.Get(ctx, projectID)
}

func (s *Service) Create(ctx context.Context, ownerID string, in CreateProjectInput) (*Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, &ValidationError{Fields: map[string]string{"name": "is required"}}
	}
	return s.repo.Create(ctx, ownerID, in)
}

func (s *Service) Get(ctx context.Context, projectID, userID string) (*Project, error) {
	return s.Authorize(ctx, projectID, userID, PermProjectView)
}

func (s *Service) List(ctx context.Context, userID string, params ListParams) ([]*Project, string, error) {
	return s.repo.ListForUser(ctx, userID, params)
}

func (s *Service) Update(ctx context.Context, projectID, userID string, in UpdateProjectInput) (*Project, error) {
	fields := map[string]string{}
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
		if trimmed == "" {
			fields["name"] = "must not be empty"
		}
	}
	if in.Status != nil && *in.Status != StatusActive && *in.Status != StatusArchived {
		fields["status"] = "must be active or archived"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if _, err := s.Authorize(ctx, projectID, userID, PermProjectEdit); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, projectID, in)
}

func (s *Service) Delete(ctx context.Context, projectID, userID string) error {
	if _, err := s.Authorize(ctx, projectID, userID, PermProjectDelete); err != nil {
		return err
	}
	return s.repo.Delete(ctx, projectID)
}

// ListOwned returns every project the user owns.
func (s *Service) ListOwned(ctx context.Context, userID string) ([]*Project, error) {
	return s.repo.ListOwned(ctx, userID)
}

// CountOwned returns how many projects the user owns, for plan limits.
func (s *Service) CountOwned(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountOwned(ctx, userID)
}

// CountMembers returns occupied seats in a project, for plan limits.
func (s *Service) CountMembers(ctx context.Context, projectID string) (int64, error) {
	return s.repo.CountMembers(ctx, projectID)
}

func (s *Service) Members(ctx context.Context, projectID, userID string) ([]*Member, error) {
	if _, err := s.Authorize(ctx, projectID, userID, PermProjectView); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, projectID)
}

// SetMemberRole changes a member's role. actorID needs members.manage.
func (s *Service) SetMemberRole(ctx context.Context, projectID, actorID, memberID, roleName string) error {
	p, err := s.Authorize(ctx, projectID, actorID, PermMembersManage)
	if err != nil {
		return err
	}
	if memberID == p.UserID {
		return ErrOwnerRemoval
	}
	if roleName == RoleOwner {
		return &ValidationError{Fields: map[string]string{"role": "owner cannot be assigned"}}
	}
	if _, err := s.repo.GetRole(ctx, roleName); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return &ValidationError{Fields: map[string]string{"role": "unknown role"}}
		}
		return err
	}
	if _, err := s.repo.MemberRole(ctx, projectID, memberID); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, projectID, memberID, roleName)
}

// Join adds userID to the project with roleName. It is used when an
// invitation is accepted and performs no permission check.
func (s *Service) Join(ctx context.Context, projectID, userID, roleName string) error {
	return s.repo.AddMember(ctx, projectID, userID, roleName)
}

// RemoveMember removes memberID from the project. Members may always remove
// themselves; removing others needs members.manage.
func (s *Service) RemoveMember(ctx context.Context, projectID, actorID, memberID string) error {
	var p *Project
	var err error
	if actorID == memberID {
		p, err = s.Authorize(ctx, projectID, actorID, PermProjectView)
	} else {
		p, err = s.Authorize(ctx, projectID, actorID, PermMembersManage)
	}
	if err != nil {
		return err
	}
	if memberID == p.UserID {
		return ErrOwnerRemoval
	}
	return s.repo.RemoveMember(ctx, projectID, memberID)
}
