package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/alecgard/planboard/internal/auth"
	"github.com/alecgard/planboard/internal/plan"
)

const minPasswordLength = 8

// ErrInvalidCredentials is returned by Login for an unknown email or a
// wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range []string{"email", "password", "name", "role"} {
		if msg, ok := e.Fields[k]; ok {
			parts = append(parts, k+" "+msg)
		}
	}
	return "invalid user: " + strings.Join(parts, ", ")
}

// Repository is the persistence surface the Service needs. *Store
// satisfies it.
type Repository interface {
	Create(ctx context.Context, in CreateUserInput) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, params ListParams) ([]*User, string, error)
	Update(ctx context.Context, id string, in UpdateUserInput) (*User, error)
	UpdatePreferences(ctx context.Context, id string, prefs NotificationPreferences) error
	Delete(ctx context.Context, id string) error
	CreateSession(ctx context.Context, userID string) (string, *Session, error)
	DeleteSession(ctx context.Context, plaintext string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// FreePlans resolves the plan assigned at registration. *plan.Service
// satisfies it.
type FreePlans interface {
	FreePlan(ctx context.Context) (*plan.Plan, error)
}

// Service implements registration, login and account management.
type Service struct {
	repo  Repository
	plans FreePlans
}

// NewService creates a Service.
func NewService(repo Repository, plans FreePlans) *Service {
	return &Service{repo: repo, plans: plans}
}

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates a user on the lowest-priced active plan and opens a
// session. Without any active plan the account starts with no plan.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateCredentials(in.Email, in.Password); err != nil {
		return nil, "", err
	}

	planID := ""
	if s.plans != nil {
		p, err := s.plans.FreePlan(ctx)
		switch {
		case err == nil:
			planID = p.ID
		case errors.Is(err, plan.ErrNotFound):
			slog.Warn("no active plan to assign at registration", "email", in.Email)
		default:
			return nil, "", err
		}
	}

	u, err := s.repo.Create(ctx, CreateUserInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Role:     auth.RoleUser,
		PlanID:   planID,
	})
	if err != nil {
		return nil, "", err
	}

	token, _, err := s.repo.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, *Session, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", nil, ErrInvalidCredentials
		}
		return nil, "", nil, err
	}
	if !CheckPassword(u, password) {
		return nil, "", nil, ErrInvalidCredentials
	}
	token, sess, err := s.repo.CreateSession(ctx, u.ID)
	if err != nil {
		return nil, "", nil, err
	}
	return u, token, sess, nil
}

// Logout ends the session identified by the plaintext token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}

// CreateAdmin creates an administrator account, used by the seed command.
func (s *Service) CreateAdmin(ctx context.Context, email, password, name string) (*User, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, CreateUserInput{Email: email, Password: password, Name: name, Role: auth.RoleAdmin})
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params ListParams) ([]*User, string, error) {
	return s.repo.List(ctx, params)
}

// Update applies an admin edit to a user.
func (s *Service) Update(ctx context.Context, id string, in UpdateUserInput) (*User, error) {
	fields := map[string]string{}
	if in.Email != nil {
		if _, err := mail.ParseAddress(*in.Email); err != nil {
			fields["email"] = "must be a valid email address"
		}
	}
	if in.Password != nil && len(*in.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if in.Role != nil && *in.Role != auth.RoleAdmin && *in.Role != auth.RoleUser {
		fields["role"] = "must be admin or user"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return s.repo.Update(ctx, id, in)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Preferences returns the user's notification preferences.
func (s *Service) Preferences(ctx context.Context, id string) (NotificationPreferences, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return NotificationPreferences{}, err
	}
	return u.Preferences, nil
}

// UpdatePreferences applies a partial preference update.
func (s *Service) UpdatePreferences(ctx context.Context, id string, in PreferencesUpdate) (NotificationPreferences, error) {
	current, err := s.Preferences(ctx, id)
	if err != nil {
		return NotificationPreferences{}, err
	}
	next := in.Apply(current)
	if err := s.repo.UpdatePreferences(ctx, id, next); err != nil {
		return NotificationPreferences{}, err
	}
	return next, nil
}

// StartSessionCleanup deletes expired sessions on a timer until ctx is
// cancelled.
func (s *Service) StartSessionCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.CleanExpiredSessions(ctx)
			if err != nil {
				slog.Error("cleaning expired sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired sessions removed", "count", n)
			}
		}
	}
}

func validateCredentials(email, password string) error {
	fields := map[string]string{}
	if email == "" {
		fields["email"] = "is required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if len(password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
