package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConfigured is returned when billing operations are requested but no
// provider credentials are configured.
var ErrNotConfigured = errors.New("billing provider is not configured")

// Provider is the remote billing system. StripeProvider is the production
// implementation.
type Provider interface {
	CreateProduct(ctx context.Context, in ProductInput) (string, error)
	UpdateProduct(ctx context.Context, id string, in ProductInput) error
	DeactivateProduct(ctx context.Context, id string) error

	CreatePrice(ctx context.Context, in PriceInput) (string, error)
	DeactivatePrice(ctx context.Context, id string) error

	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	HasPaymentMethod(ctx context.Context, customerID string) (bool, error)

	CreateSubscription(ctx context.Context, in SubscriptionInput) (*RemoteSubscription, error)
	GetSubscription(ctx context.Context, id string) (*RemoteSubscription, error)
	CancelSubscription(ctx context.Context, id string) error
	// ScheduleCancel stops renewal. The subscription stays live until the
	// end of its current period, when the provider deletes it.
	ScheduleCancel(ctx context.Context, id string) (*RemoteSubscription, error)

	// Ping performs one cheap authenticated call to verify connectivity.
	Ping(ctx context.Context) error
}

// ProductInput describes the remote product mirrored for a plan.
type ProductInput struct {
	Name        string
	Description string
	PlanID      string
}

// PriceInput describes a recurring remote price. UnitAmount is in the
// currency's minor unit.
type PriceInput struct {
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   string
	PlanID     string
	TrialDays  int
}

// CustomerInput describes a remote customer created for a user.
type CustomerInput struct {
	Email  string
	Name   string
	UserID string
}

// SubscriptionInput describes a remote subscription to create.
type SubscriptionInput struct {
	CustomerID     string
	PriceID        string
	TrialDays      int
	UserID         string
	PlanID         string
	IdempotencyKey string
}

// Remote subscription statuses as reported by the provider.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusUnpaid            = "unpaid"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
)

// RemoteSubscription is the provider-neutral view of a remote subscription.
type RemoteSubscription struct {
	ID               string
	CustomerID       string
	Status           string
	PriceID          string
	Quantity         int
	TrialEndsAt      *time.Time
	CurrentPeriodEnd *time.Time
	EndedAt          *time.Time
	Metadata         map[string]string

	// CancelAtPeriodEnd is set once renewal has been stopped.
	CancelAtPeriodEnd bool
}

// RemoteError wraps a failed provider call.
type RemoteError struct {
	Op     string
	Code   string
	Status int
	Msg    string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("billing %s: %s (%s)", e.Op, e.Msg, e.Code)
	}
	return fmt.Sprintf("billing %s: %s", e.Op, e.Msg)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Message returns the provider's human-readable error message for err, or
// err.Error() when err is not a RemoteError.
func Message(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Msg
	}
	return err.Error()
}

// MetricsRecorder is an optional interface for recording provider calls.
type MetricsRecorder interface {
	IncBillingCall(op, outcome string)
}
