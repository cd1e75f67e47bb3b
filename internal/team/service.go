package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/mail"
	"github.com/alecgard/planboard/internal/project"
)

var (
	ErrAlreadyInvited   = errors.New("an invitation for this email is already pending")
	ErrExpired          = errors.New("invitation has expired")
	ErrAlreadyResponded = errors.New("invitation has already been answered")
	ErrEmailMismatch    = errors.New("invitation was sent to a different email address")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "invalid invitation" }

// Repository is the persistence surface the Service needs. *Store
// satisfies it.
type Repository interface {
	Create(ctx context.Context, projectID, inviterID string, in CreateInvitationInput, tokenHash string, expiresAt time.Time) (*Invitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	HasPending(ctx context.Context, projectID, email string) (bool, error)
	ListForProject(ctx context.Context, projectID string) ([]*Invitation, error)
	Respond(ctx context.Context, id, status string) (*Invitation, error)
	ExpirePending(ctx context.Context) (int64, error)
}

// Projects is the project surface invitations need. *project.Service
// satisfies it.
type Projects interface {
	Authorize(ctx context.Context, projectID, userID, permission string) (*project.Project, error)
	Join(ctx context.Context, projectID, userID, roleName string) error
}

// Service issues and resolves project invitations.
type Service struct {
	repo     Repository
	projects Projects
	mailer   mail.Mailer
	expiry   time.Duration
	baseURL  string
	now      func() time.Time
}

// NewService creates a Service. baseURL is the public API origin used to
// build the accept and decline links.
func NewService(repo Repository, projects Projects, mailer mail.Mailer, expiry time.Duration, baseURL string) *Service {
	return &Service{
		repo:     repo,
		projects: projects,
		mailer:   mailer,
		expiry:   expiry,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
	}
}

// Invite creates an invitation and emails it. A mail failure is logged and
// does not undo the invitation; the token is returned to the inviter either
// way.
func (s *Service) Invite(ctx context.Context, projectID string, inviter *auth.User, in CreateInvitationInput) (*Created, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = project.RoleEditor
	}
	fields := map[string]string{}
	if _, err := netmail.ParseAddress(in.Email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if in.Role != project.RoleEditor && in.Role != project.RoleViewer {
		fields["role"] = "must be editor or viewer"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	p, err := s.projects.Authorize(ctx, projectID, inviter.ID, project.PermMembersManage)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(in.Email, inviter.Email) {
		return nil, &ValidationError{Fields: map[string]string{"email": "cannot invite yourself"}}
	}
	pending, err := s.repo.HasPending(ctx, projectID, in.Email)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrAlreadyInvited
	}

	tok, plaintext, err := auth.GenerateToken(TokenPrefix)
	if err != nil {
		return nil, fmt.Errorf("generating invitation token: %w", err)
	}
	inv, err := s.repo.Create(ctx, projectID, inviter.ID, in, tok.Hash, s.now().Add(s.expiry))
	if err != nil {
		return nil, err
	}

	s.send(ctx, inv, p, inviter, plaintext)
	return &Created{Invitation: inv, Token: plaintext}, nil
}

func (s *Service) send(ctx context.Context, inv *Invitation, p *project.Project, inviter *auth.User, token string) {
	name := inviter.Name
	if name == "" {
		name = inviter.Email
	}
	msg, err := mail.Invitation(mail.InvitationData{
		To:          inv.Email,
		InviterName: name,
		ProjectName: p.Name,
		Role:        inv.Role,
		AcceptURL:   fmt.Sprintf("%s/v1/invitations/%s/accept", s.baseURL, token),
		DeclineURL:  fmt.Sprintf("%s/v1/invitations/%s/decline", s.baseURL, token),
		ExpiresAt:   inv.ExpiresAt,
	})
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		slog.Warn("invitation email not delivered", "invitation_id", inv.ID, "error", err)
	}
}

// lookup resolves a plaintext token to a pending, unexpired invitation.
// Expired invitations are marked as such on the way out.
func (s *Service) lookup(ctx context.Context, token string) (*Invitation, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrNotFound
	}
	inv, err := s.repo.GetByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		return nil, err
	}
	switch {
	case inv.Status == StatusExpired:
		return nil, ErrExpired
	case inv.Status != StatusPending:
		return nil, ErrAlreadyResponded
	case inv.Expired(s.now()):
		if _, err := s.repo.Respond(ctx, inv.ID, StatusExpired); err != nil && !errors.Is(err, ErrNotFound) {
			slog.Warn("marking invitation expired", "invitation_id", inv.ID, "error", err)
		}
		return nil, ErrExpired
	}
	return inv, nil
}

// Accept adds u to the invited project. The invitation must have been
// addressed to u's email.
func (s *Service) Accept(ctx context.Context, token string, u *auth.User) (*Invitation, error) {
	inv, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(inv.Email, u.Email) {
		return nil, ErrEmailMismatch
	}
	if err := s.projects.Join(ctx, inv.ProjectID, u.ID, inv.Role); err != nil {
		return nil, fmt.Errorf("joining project: %w", err)
	}
	accepted, err := s.repo.Respond(ctx, inv.ID, StatusAccepted)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAlreadyResponded
	}
	return accepted, err
}

// Decline rejects the invitation. Possession of the token is enough.
func (s *Service) Decline(ctx context.Context, token string) (*Invitation, error) {
	inv, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	declined, err := s.repo.Respond(ctx, inv.ID, StatusDeclined)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAlreadyResponded
	}
	return declined, err
}

// List returns the project's invitations. The caller needs members.manage.
func (s *Service) List(ctx context.Context, projectID, userID string) ([]*Invitation, error) {
	if _, err := s.projects.Authorize(ctx, projectID, userID, project.PermMembersManage); err != nil {
		return nil, err
	}
	return s.repo.ListForProject(ctx, projectID)
}

// StartExpiry marks overdue invitations expired on a timer until ctx is
// cancelled.
func (s *Service) StartExpiry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.ExpirePending(ctx)
			if err != nil {
				slog.Error("expiring invitations", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("invitations expired", "count", n)
			}
		}
	}
}
