package user

import "time"

// User represents a registered user account.
type User struct {
	ID               string                  `json:"id"`
	Email            string                  `json:"email"`
	PasswordHash     string                  `json:"-"`
	Name             string                  `json:"name"`
	Role             string                  `json:"role"` // "admin" or "user"
	PlanID           string                  `json:"plan_id,omitempty"`
	StripeCustomerID string                  `json:"-"`
	Preferences      NotificationPreferences `json:"notification_preferences"`
	CreatedAt        time.Time               `json:"created_at"`
}

// NotificationPreferences controls which emails a user receives.
type NotificationPreferences struct {
	EmailInvitations bool `json:"email_invitations"`
	EmailBilling     bool `json:"email_billing"`
	EmailTaskUpdates bool `json:"email_task_updates"`
	WeeklyDigest     bool `json:"weekly_digest"`
}

// DefaultPreferences is applied to accounts that never saved preferences.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailInvitations: true,
		EmailBilling:     true,
		EmailTaskUpdates: true,
	}
}

// PreferencesUpdate holds optional preference changes.
type PreferencesUpdate struct {
	EmailInvitations *bool `json:"email_invitations,omitempty"`
	EmailBilling     *bool `json:"email_billing,omitempty"`
	EmailTaskUpdates *bool `json:"email_task_updates,omitempty"`
	WeeklyDigest     *bool `json:"weekly_digest,omitempty"`
}

// Apply returns p with the non-nil fields of u applied.
func (u PreferencesUpdate) Apply(p NotificationPreferences) NotificationPreferences {
	if u.EmailInvitations != nil {
		p.EmailInvitations = *u.EmailInvitations
	}
	if u.EmailBilling != nil {
		p.EmailBilling = *u.EmailBilling
	}
	if u.EmailTaskUpdates != nil {
		p.EmailTaskUpdates = *u.EmailTaskUpdates
	}
	if u.WeeklyDigest != nil {
		p.WeeklyDigest = *u.WeeklyDigest
	}
	return p
}

// CreateUserInput holds the fields required to create a new user.
type CreateUserInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	PlanID   string `json:"plan_id"`
}

// UpdateUserInput holds optional fields for a partial user update.
type UpdateUserInput struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	PlanID   *string `json:"plan_id,omitempty"`
}

// ListParams controls pagination and filtering for the admin user list.
type ListParams struct {
	Cursor string
	Limit  int
	Search string
	PlanID string
}

// Session represents an active user session.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
