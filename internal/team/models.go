package team

import "time"

// Invitation statuses.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusDeclined = "declined"
	StatusExpired  = "expired"
)

// TokenPrefix marks invitation tokens.
const TokenPrefix = "inv_"

// Invitation asks someone to join a project with a role. Only the token hash
// is stored.
type Invitation struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	InviterID   string     `json:"inviter_id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired reports whether a pending invitation is past its expiry.
func (i *Invitation) Expired(now time.Time) bool {
	return i.Status == StatusPending && !now.Before(i.ExpiresAt)
}

type CreateInvitationInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Created is returned when an invitation is issued. Token is the plaintext
// and is never retrievable again.
type Created struct {
	Invitation *Invitation `json:"invitation"`
	Token      string      `json:"token"`
}
