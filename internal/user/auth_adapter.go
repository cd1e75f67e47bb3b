package user

import (
	"context"

	"github.com/alecgard/planboard/internal/auth"
)

// SessionUsers looks up the user behind a session token. *Store satisfies
// it.
type SessionUsers interface {
	GetSessionUser(ctx context.Context, plaintext string) (*User, error)
}

// AuthAdapter adapts a SessionUsers to the auth.SessionLookup interface.
type AuthAdapter struct {
	store SessionUsers
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given user store.
func NewAuthAdapter(store SessionUsers) *AuthAdapter {
	return &AuthAdapter{store: store}
}

// LookupSession looks up a session token and returns the associated auth.User.
func (a *AuthAdapter) LookupSession(ctx context.Context, token string) (*auth.User, error) {
	u, err := a.store.GetSessionUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return &auth.User{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		PlanID: u.PlanID,
	}, nil
}
