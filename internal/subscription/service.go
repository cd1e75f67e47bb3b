package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/plan"
)

var (
	// ErrPaymentMethodRequired is returned when a paid plan is requested
	// without a payment method and none is on file.
	ErrPaymentMethodRequired = errors.New("a payment method is required for paid plans")
	// ErrPlanNotSynced is returned when a paid plan has no remote price yet.
	ErrPlanNotSynced = errors.New("plan is not available for purchase yet")
	// ErrSamePlan is returned when changing to the plan already held.
	ErrSamePlan = errors.New("user is already subscribed to this plan")
	// ErrNoFreePlan is returned when no plan is available to demote to.
	ErrNoFreePlan = errors.New("no free plan is configured")
)

// Repository is the persistence surface the Service needs. *Store
// satisfies it.
type Repository interface {
	Activator
	Account(ctx context.Context, userID string) (*Account, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) error
	AssignPlan(ctx context.Context, userID, planID string) error
	Current(ctx context.Context, userID, name string) (*Subscription, error)
	GetByStripeID(ctx context.Context, stripeID string) (*Subscription, error)
	UpdateStatus(ctx context.Context, stripeID, status string, trialEndsAt, endsAt *time.Time) (*Subscription, error)
	Demote(ctx context.Context, userID, planID, stripeID, status string, endsAt time.Time) error
	Stats(ctx context.Context) (*Stats, error)
}

// PlanCatalog looks up plans. *plan.Service satisfies it.
type PlanCatalog interface {
	Get(ctx context.Context, id string) (*plan.Plan, error)
	GetAvailable(ctx context.Context, id string) (*plan.Plan, error)
	FreePlan(ctx context.Context) (*plan.Plan, error)
}

// MetricsRecorder is an optional recorder for lifecycle transitions.
type MetricsRecorder interface {
	IncSubscriptionTransition(transition string)
}

// Service runs the subscription lifecycle against the local mirror and the
// billing provider.
type Service struct {
	repo       Repository
	plans      PlanCatalog
	provider   billing.Provider
	reconciler *Reconciler
	metrics    MetricsRecorder
	now        func() time.Time
}

// NewService creates a Service. provider may be nil when billing is not
// configured; paid operations then return billing.ErrNotConfigured.
func NewService(repo Repository, plans PlanCatalog, provider billing.Provider, reconciler *Reconciler) *Service {
	return &Service{
		repo:       repo,
		plans:      plans,
		provider:   provider,
		reconciler: reconciler,
		now:        time.Now,
	}
}

// SetMetrics sets the optional metrics recorder.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

func (s *Service) transition(name string) {
	if s.metrics != nil {
		s.metrics.IncSubscriptionTransition(name)
	}
}

// BillingEnabled reports whether a billing provider is configured.
func (s *Service) BillingEnabled() bool {
	return s.provider != nil
}

func (s *Service) currentOrNil(ctx context.Context, userID string) (*Subscription, error) {
	cur, err := s.repo.Current(ctx, userID, DefaultName)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return cur, err
}

// Overview returns the user's plan and current subscription.
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	acct, err := s.repo.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	ov := &Overview{}
	if acct.PlanID != "" {
		p, err := s.plans.Get(ctx, acct.PlanID)
		if err != nil && !errors.Is(err, plan.ErrNotFound) {
			return nil, err
		}
		ov.Plan = p
	}
	cur, err := s.currentOrNil(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		now := s.now()
		ov.Subscription = cur
		ov.Subscribed = cur.Valid(now)
		ov.OnTrial = cur.OnTrial(now)
	}
	return ov, nil
}

// Subscribed reports whether the user holds a valid subscription with the
// given name.
func (s *Service) Subscribed(ctx context.Context, userID, name string) (bool, error) {
	cur, err := s.repo.Current(ctx, userID, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cur.Valid(s.now()), nil
}

// Subscribe assigns a plan to a user who holds no valid subscription. Free
// plans are assigned locally. Paid plans create a remote subscription first
// and then mirror it locally.
func (s *Service) Subscribe(ctx context.Context, userID string, req SubscribeRequest) (*Outcome, error) {
	p, err := s.plans.GetAvailable(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	cur, err := s.currentOrNil(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.Valid(s.now()) {
		return nil, ErrAlreadySubscribed
	}

	if p.IsFree() {
		if err := s.repo.AssignPlan(ctx, userID, p.ID); err != nil {
			return nil, err
		}
		s.transition("free")
		return &Outcome{Plan: p}, nil
	}

	if req.PaymentMethodID == "" {
		return nil, ErrPaymentMethodRequired
	}
	return s.subscribePaid(ctx, userID, p, req, "")
}

// ChangePlan moves a user to another plan. The new remote subscription is
// created before the old one is canceled; moving to a free plan cancels
// first. No proration is applied.
func (s *Service) ChangePlan(ctx context.Context, userID string, req SubscribeRequest) (*Outcome, error) {
	p, err := s.plans.GetAvailable(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	acct, err := s.repo.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	cur, err := s.currentOrNil(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := cur != nil && cur.Valid(now)

	if acct.PlanID == p.ID && (live || p.IsFree()) {
		return nil, ErrSamePlan
	}

	if p.IsFree() {
		if !live {
			if err := s.repo.AssignPlan(ctx, userID, p.ID); err != nil {
				return nil, err
			}
			s.transition("free")
			return &Outcome{Plan: p}, nil
		}
		if s.provider == nil {
			return nil, billing.ErrNotConfigured
		}
		if err := s.provider.CancelSubscription(ctx, cur.StripeID); err != nil {
			return nil, err
		}
		if err := s.repo.Demote(ctx, userID, p.ID, cur.StripeID, billing.StatusCanceled, now); err != nil {
			return nil, err
		}
		s.transition("canceled")
		return &Outcome{Plan: p}, nil
	}

	if req.PaymentMethodID == "" {
		if s.provider == nil {
			return nil, billing.ErrNotConfigured
		}
		has, err := s.provider.HasPaymentMethod(ctx, acct.StripeCustomerID)
		if err != nil {
			return nil, err
		}
		if !has {
			return nil, ErrPaymentMethodRequired
		}
	}

	replaces := ""
	if live {
		replaces = cur.StripeID
	}
	out, err := s.subscribePaid(ctx, userID, p, req, replaces)
	if err != nil {
		return nil, err
	}
	if replaces != "" && !out.Pending {
		if err := s.provider.CancelSubscription(ctx, replaces); err != nil {
			slog.Warn("canceling replaced subscription failed",
				"user_id", userID, "stripe_id", replaces, "error", err)
		}
	}
	return out, nil
}

func (s *Service) subscribePaid(ctx context.Context, userID string, p *plan.Plan, req SubscribeRequest, replaces string) (*Outcome, error) {
	if s.provider == nil {
		return nil, billing.ErrNotConfigured
	}
	if p.StripePriceID == "" {
		return nil, ErrPlanNotSynced
	}

	acct, err := s.repo.Account(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID := acct.StripeCustomerID
	if customerID == "" {
		customerID, err = s.provider.CreateCustomer(ctx, billing.CustomerInput{
			Email: acct.Email, Name: acct.Name, UserID: acct.UserID,
		})
		if err != nil {
			return nil, err
		}
		if err := s.repo.SetStripeCustomerID(ctx, userID, customerID); err != nil {
			return nil, fmt.Errorf("recording customer: %w", err)
		}
	}

	if req.PaymentMethodID != "" {
		if err := s.provider.AttachPaymentMethod(ctx, customerID, req.PaymentMethodID); err != nil {
			return nil, err
		}
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	in := billing.SubscriptionInput{
		CustomerID:     customerID,
		PriceID:        p.StripePriceID,
		UserID:         userID,
		PlanID:         p.ID,
		IdempotencyKey: key,
	}
	if p.TrialActive() {
		in.TrialDays = p.TrialDays
	}

	remote, err := s.provider.CreateSubscription(ctx, in)
	if err != nil {
		return nil, err
	}

	activation := Activation{UserID: userID, PlanID: p.ID, Remote: *remote, Replaces: replaces}
	sub, err := s.repo.Activate(ctx, activation)
	if err != nil {
		if errors.Is(err, ErrAlreadySubscribed) || s.reconciler == nil {
			return nil, err
		}
		slog.Error("local subscription write failed after remote success",
			"user_id", userID, "stripe_id", remote.ID, "error", err)
		s.reconciler.Enqueue(activation)
		return &Outcome{Plan: p, Pending: true}, nil
	}

	s.transition(sub.StripeStatus)
	return &Outcome{Plan: p, Subscription: sub}, nil
}

// Cancel stops renewal of the user's subscription. The subscription stays
// valid until the end of the paid period and ends_at records when that is;
// the user is moved to the free plan when the provider reports the
// subscription deleted. Canceling an already scheduled subscription returns
// it unchanged.
func (s *Service) Cancel(ctx context.Context, userID string) (*Subscription, error) {
	cur, err := s.currentOrNil(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if cur == nil || !cur.Valid(now) {
		return nil, ErrNotFound
	}
	if cur.EndsAt != nil {
		return cur, nil
	}
	if s.provider == nil {
		return nil, billing.ErrNotConfigured
	}

	remote, err := s.provider.ScheduleCancel(ctx, cur.StripeID)
	if err != nil {
		return nil, err
	}
	status := remote.Status
	if status == "" {
		status = cur.StripeStatus
	}
	endsAt := periodEnd(remote, cur, now)
	sub, err := s.repo.UpdateStatus(ctx, cur.StripeID, status, nil, &endsAt)
	if err != nil {
		return nil, err
	}
	s.transition("cancel_scheduled")
	slog.Info("subscription cancellation scheduled",
		"user_id", userID, "stripe_id", cur.StripeID, "ends_at", endsAt)
	return sub, nil
}

// periodEnd is when a subscription scheduled for cancellation stops being
// valid.
func periodEnd(remote *billing.RemoteSubscription, cur *Subscription, now time.Time) time.Time {
	switch {
	case remote.CurrentPeriodEnd != nil:
		return remote.CurrentPeriodEnd.UTC()
	case remote.TrialEndsAt != nil:
		return remote.TrialEndsAt.UTC()
	case cur.TrialEndsAt != nil:
		return cur.TrialEndsAt.UTC()
	}
	return now
}

// EnforceTrial demotes a user whose trial has elapsed without a payment
// method on file. It reports whether the user was demoted.
func (s *Service) EnforceTrial(ctx context.Context, userID string) (bool, error) {
	if s.provider == nil {
		return false, nil
	}
	cur, err := s.currentOrNil(ctx, userID)
	if err != nil || cur == nil {
		return false, err
	}
	now := s.now()
	if !cur.TrialElapsed(now) {
		return false, nil
	}

	acct, err := s.repo.Account(ctx, userID)
	if err != nil {
		return false, err
	}
	has, err := s.provider.HasPaymentMethod(ctx, acct.StripeCustomerID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}

	free, err := s.plans.FreePlan(ctx)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			return false, ErrNoFreePlan
		}
		return false, err
	}

	if err := s.provider.CancelSubscription(ctx, cur.StripeID); err != nil {
		slog.Warn("canceling expired trial failed",
			"user_id", userID, "stripe_id", cur.StripeID, "error", err)
	}
	if err := s.repo.Demote(ctx, userID, free.ID, cur.StripeID, StatusExpiredTrial, now); err != nil {
		return false, err
	}
	s.transition(StatusExpiredTrial)
	slog.Info("trial expired without payment method",
		"user_id", userID, "stripe_id", cur.StripeID, "plan_id", free.ID)
	return true, nil
}

// HandleEvent applies a verified webhook event to the local mirror. Events
// for unknown subscriptions are ignored.
func (s *Service) HandleEvent(ctx context.Context, evt *billing.Event) error {
	if evt == nil || evt.Type == billing.EventIgnored || evt.SubscriptionID == "" {
		return nil
	}

	sub, err := s.repo.GetByStripeID(ctx, evt.SubscriptionID)
	if errors.Is(err, ErrNotFound) {
		slog.Info("webhook for unknown subscription", "event_id", evt.ID, "stripe_id", evt.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}

	// Remote endings are applied even to records already final locally.
	switch {
	case evt.Type == billing.EventSubscriptionDeleted:
		var endedAt *time.Time
		if evt.Subscription != nil {
			endedAt = evt.Subscription.EndedAt
		}
		return s.endRemote(ctx, sub, endedAt)
	case evt.Type == billing.EventSubscriptionUpdated && evt.Subscription != nil && remoteEnded(evt.Subscription.Status):
		return s.endRemote(ctx, sub, evt.Subscription.EndedAt)
	}

	if sub.Terminal() {
		return nil
	}

	switch evt.Type {
	case billing.EventSubscriptionUpdated:
		if evt.Subscription == nil {
			return nil
		}
		r := evt.Subscription
		var endsAt *time.Time
		if r.CancelAtPeriodEnd {
			endsAt = r.CurrentPeriodEnd
		}
		if _, err := s.repo.UpdateStatus(ctx, sub.StripeID, r.Status, r.TrialEndsAt, endsAt); err != nil {
			return err
		}
		if r.Status != sub.StripeStatus {
			s.transition(r.Status)
		}

	case billing.EventPaymentFailed:
		if sub.StripeStatus == billing.StatusPastDue {
			return nil
		}
		if _, err := s.repo.UpdateStatus(ctx, sub.StripeID, billing.StatusPastDue, nil, nil); err != nil {
			return err
		}
		s.transition(billing.StatusPastDue)

	case billing.EventPaymentSucceeded:
		if sub.StripeStatus != billing.StatusPastDue && sub.StripeStatus != billing.StatusIncomplete {
			return nil
		}
		if _, err := s.repo.UpdateStatus(ctx, sub.StripeID, billing.StatusActive, nil, nil); err != nil {
			return err
		}
		s.transition(billing.StatusActive)
	}
	return nil
}

func remoteEnded(status string) bool {
	return status == billing.StatusCanceled || status == billing.StatusIncompleteExpired
}

// endRemote moves the user to the free plan after the provider ended sub.
// When sub is already final locally, the user is demoted only while still
// holding sub's plan with no other live subscription, so a subscription
// replaced by a plan change never demotes its successor.
func (s *Service) endRemote(ctx context.Context, sub *Subscription, endedAt *time.Time) error {
	status := billing.StatusCanceled
	if sub.Terminal() {
		status = sub.StripeStatus

		acct, err := s.repo.Account(ctx, sub.UserID)
		if err != nil {
			return err
		}
		if sub.PlanID == "" || acct.PlanID != sub.PlanID {
			return nil
		}
		cur, err := s.currentOrNil(ctx, sub.UserID)
		if err != nil {
			return err
		}
		if cur != nil && cur.StripeID != sub.StripeID && !cur.Terminal() {
			return nil
		}
	}

	free, err := s.plans.FreePlan(ctx)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			return ErrNoFreePlan
		}
		return err
	}
	endsAt := s.now()
	if endedAt != nil {
		endsAt = *endedAt
	}
	if err := s.repo.Demote(ctx, sub.UserID, free.ID, sub.StripeID, status, endsAt); err != nil {
		return err
	}
	s.transition("canceled")
	slog.Info("subscription ended remotely",
		"user_id", sub.UserID, "stripe_id", sub.StripeID, "plan_id", free.ID)
	return nil
}

// Stats returns aggregate subscription state.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.repo.Stats(ctx)
}
