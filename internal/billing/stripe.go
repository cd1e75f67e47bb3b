package billing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider implements Provider on top of an explicitly constructed
// Stripe API client. It never touches the package-level stripe.Key.
type StripeProvider struct {
	api     *client.API
	metrics MetricsRecorder
}

// StripeOptions configures NewStripeProvider.
type StripeOptions struct {
	MaxNetworkRetries int64
	// Backends overrides the default Stripe backends, for tests.
	Backends *stripe.Backends
}

// NewStripeProvider creates a provider authenticated with secretKey.
func NewStripeProvider(secretKey string, opts StripeOptions) *StripeProvider {
	backends := opts.Backends
	if backends == nil {
		backends = stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(opts.MaxNetworkRetries),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelWarn},
		})
	}
	return &StripeProvider{api: client.New(secretKey, backends)}
}

// SetMetrics sets the optional metrics recorder.
func (p *StripeProvider) SetMetrics(m MetricsRecorder) {
	p.metrics = m
}

func (p *StripeProvider) observe(op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if p.metrics != nil {
		p.metrics.IncBillingCall(op, outcome)
	}
	if err == nil {
		return nil
	}
	return wrapStripeError(op, err)
}

func wrapStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		msg := se.Msg
		if msg == "" {
			msg = string(se.Type)
		}
		return &RemoteError{Op: op, Code: string(se.Code), Status: se.HTTPStatusCode, Msg: msg, Err: err}
	}
	return &RemoteError{Op: op, Msg: err.Error(), Err: err}
}

// CreateProduct creates a remote product and returns its id.
func (p *StripeProvider) CreateProduct(ctx context.Context, in ProductInput) (string, error) {
	params := &stripe.ProductParams{
		Name: stripe.String(in.Name),
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	params.Context = ctx
	params.AddMetadata("plan_id", in.PlanID)

	prod, err := p.api.Products.New(params)
	if err = p.observe("create_product", err); err != nil {
		return "", err
	}
	return prod.ID, nil
}

// UpdateProduct updates the name, description and metadata of a product.
func (p *StripeProvider) UpdateProduct(ctx context.Context, id string, in ProductInput) error {
	params := &stripe.ProductParams{
		Name:        stripe.String(in.Name),
		Description: stripe.String(in.Description),
	}
	params.Context = ctx
	params.AddMetadata("plan_id", in.PlanID)

	_, err := p.api.Products.Update(id, params)
	return p.observe("update_product", err)
}

// DeactivateProduct marks a product inactive. Stripe forbids deleting
// products that have prices.
func (p *StripeProvider) DeactivateProduct(ctx context.Context, id string) error {
	params := &stripe.ProductParams{Active: stripe.Bool(false)}
	params.Context = ctx
	_, err := p.api.Products.Update(id, params)
	return p.observe("deactivate_product", err)
}

// CreatePrice creates a recurring price. Prices are immutable remotely so a
// pricing change always produces a new one.
func (p *StripeProvider) CreatePrice(ctx context.Context, in PriceInput) (string, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(in.ProductID),
		UnitAmount: stripe.Int64(in.UnitAmount),
		Currency:   stripe.String(in.Currency),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(in.Interval),
		},
	}
	params.Context = ctx
	params.AddMetadata("plan_id", in.PlanID)
	if in.TrialDays > 0 {
		params.AddMetadata("trial_days", strconv.Itoa(in.TrialDays))
	}

	price, err := p.api.Prices.New(params)
	if err = p.observe("create_price", err); err != nil {
		return "", err
	}
	return price.ID, nil
}

// DeactivatePrice marks a price inactive.
func (p *StripeProvider) DeactivatePrice(ctx context.Context, id string) error {
	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.Context = ctx
	_, err := p.api.Prices.Update(id, params)
	return p.observe("deactivate_price", err)
}

// CreateCustomer creates a remote customer for a user.
func (p *StripeProvider) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", in.UserID)

	cust, err := p.api.Customers.New(params)
	if err = p.observe("create_customer", err); err != nil {
		return "", err
	}
	return cust.ID, nil
}

// AttachPaymentMethod attaches a payment method to the customer and makes it
// the default for invoices.
func (p *StripeProvider) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	_, err := p.api.PaymentMethods.Attach(paymentMethodID, attach)
	if err = p.observe("attach_payment_method", err); err != nil {
		return err
	}

	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	update.Context = ctx
	_, err = p.api.Customers.Update(customerID, update)
	return p.observe("set_default_payment_method", err)
}

// HasPaymentMethod reports whether the customer has at least one card on file.
func (p *StripeProvider) HasPaymentMethod(ctx context.Context, customerID string) (bool, error) {
	if customerID == "" {
		return false, nil
	}
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := p.api.PaymentMethods.List(params)
	found := it.Next()
	if err := p.observe("list_payment_methods", it.Err()); err != nil {
		return false, err
	}
	return found, nil
}

// CreateSubscription creates a remote subscription for one price.
func (p *StripeProvider) CreateSubscription(ctx context.Context, in SubscriptionInput) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(in.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(in.PriceID)},
		},
	}
	if in.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(in.TrialDays))
	}
	params.Context = ctx
	params.AddMetadata("user_id", in.UserID)
	params.AddMetadata("plan_id", in.PlanID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	sub, err := p.api.Subscriptions.New(params)
	if err = p.observe("create_subscription", err); err != nil {
		return nil, err
	}
	return FromStripeSubscription(sub), nil
}

// GetSubscription fetches a remote subscription.
func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(id, params)
	if err = p.observe("get_subscription", err); err != nil {
		return nil, err
	}
	return FromStripeSubscription(sub), nil
}

// CancelSubscription cancels a remote subscription immediately.
func (p *StripeProvider) CancelSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := p.api.Subscriptions.Cancel(id, params)
	return p.observe("cancel_subscription", err)
}

// ScheduleCancel sets cancel_at_period_end on a remote subscription.
func (p *StripeProvider) ScheduleCancel(ctx context.Context, id string) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Update(id, params)
	if err = p.observe("schedule_cancel", err); err != nil {
		return nil, err
	}
	return FromStripeSubscription(sub), nil
}

// Ping lists a single product.
func (p *StripeProvider) Ping(ctx context.Context) error {
	params := &stripe.ProductListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	it := p.api.Products.List(params)
	it.Next()
	return p.observe("ping", it.Err())
}

// FromStripeSubscription converts a Stripe subscription object.
func FromStripeSubscription(sub *stripe.Subscription) *RemoteSubscription {
	if sub == nil {
		return nil
	}
	rs := &RemoteSubscription{
		ID:               sub.ID,
		Status:           string(sub.Status),
		Quantity:         1,
		TrialEndsAt:      unixPtr(sub.TrialEnd),
		CurrentPeriodEnd: unixPtr(sub.CurrentPeriodEnd),
		EndedAt:          unixPtr(sub.EndedAt),
		Metadata:         sub.Metadata,

		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		rs.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			rs.PriceID = item.Price.ID
		}
		if item.Quantity > 0 {
			rs.Quantity = int(item.Quantity)
		}
	}
	return rs
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
