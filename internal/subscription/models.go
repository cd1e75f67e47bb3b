package subscription

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/plan"
)

// DefaultName is the subscription name used for the primary plan.
const DefaultName = "default"

// StatusExpiredTrial marks a trial that ended without a payment method. It
// is a local status; the provider only knows the subscription as canceled.
const StatusExpiredTrial = "expired_trial"

// Subscription is the local mirror of a remote subscription.
type Subscription struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	StripeID     string     `json:"stripe_id"`
	StripeStatus string     `json:"stripe_status"`
	StripePlan   string     `json:"stripe_plan"`
	PlanID       string     `json:"plan_id,omitempty"`
	Quantity     int        `json:"quantity"`
	TrialEndsAt  *time.Time `json:"trial_ends_at,omitempty"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Terminal reports whether the subscription can no longer become active.
func (s *Subscription) Terminal() bool {
	switch s.StripeStatus {
	case billing.StatusCanceled, billing.StatusIncompleteExpired, StatusExpiredTrial:
		return true
	}
	return false
}

// Valid reports whether the subscription currently entitles the user to its
// plan.
func (s *Subscription) Valid(now time.Time) bool {
	if s.Terminal() {
		return false
	}
	if s.EndsAt != nil && !now.Before(*s.EndsAt) {
		return false
	}
	switch s.StripeStatus {
	case billing.StatusActive, billing.StatusTrialing, billing.StatusPastDue:
		return true
	}
	return false
}

// OnTrial reports whether the subscription is in an unexpired trial.
func (s *Subscription) OnTrial(now time.Time) bool {
	return s.StripeStatus == billing.StatusTrialing && s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
}

// TrialElapsed reports whether a trialing subscription has passed its trial
// end.
func (s *Subscription) TrialElapsed(now time.Time) bool {
	return s.StripeStatus == billing.StatusTrialing && s.TrialEndsAt != nil && !now.Before(*s.TrialEndsAt)
}

// Account is the billing view of a user.
type Account struct {
	UserID           string
	Email            string
	Name             string
	PlanID           string
	StripeCustomerID string
}

// Activation is the local write performed after a remote subscription is
// created. It is idempotent on Remote.ID.
type Activation struct {
	UserID string
	PlanID string
	Remote billing.RemoteSubscription
	// Replaces is the stripe id of a subscription superseded by this one.
	Replaces string
}

// SubscribeRequest is the input to Subscribe and ChangePlan.
type SubscribeRequest struct {
	PlanID          string `json:"plan_id"`
	PaymentMethodID string `json:"payment_method_id"`
	IdempotencyKey  string `json:"-"`
}

// Outcome is the result of a subscribe or plan change.
type Outcome struct {
	Plan         *plan.Plan    `json:"plan"`
	Subscription *Subscription `json:"subscription,omitempty"`
	// Pending is set when the remote subscription exists but the local write
	// was deferred to the reconciler.
	Pending bool `json:"pending"`
}

// Overview is the current billing state of a user.
type Overview struct {
	Plan         *plan.Plan    `json:"plan"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Subscribed   bool          `json:"subscribed"`
	OnTrial      bool          `json:"on_trial"`
}

// PlanCount is the number of users assigned to a plan.
type PlanCount struct {
	PlanID   string `json:"plan_id"`
	PlanName string `json:"plan_name"`
	Users    int    `json:"users"`
}

// Stats aggregates subscription state for the admin analytics view.
type Stats struct {
	ByStatus                map[string]int  `json:"by_status"`
	UsersByPlan             []PlanCount     `json:"users_by_plan"`
	UsersWithoutPlan        int             `json:"users_without_plan"`
	MonthlyRecurringRevenue decimal.Decimal `json:"monthly_recurring_revenue"`
}
