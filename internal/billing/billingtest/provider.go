// Package billingtest provides an in-memory billing.Provider for tests.
package billingtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alecgard/planboard/internal/billing"
)

// Product is a fake remote product.
type Product struct {
	ID     string
	Name   string
	PlanID string
	Active bool
}

// Price is a fake remote price.
type Price struct {
	ID         string
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   string
	Active     bool
}

// Provider is an in-memory billing.Provider. Set Fail[op] to make an
// operation return a RemoteError. It is safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	Products       map[string]*Product
	Prices         map[string]*Price
	Customers      map[string]string
	PaymentMethods map[string][]string
	Subscriptions  map[string]*billing.RemoteSubscription

	// Calls counts invocations per operation name.
	Calls map[string]int
	// Fail makes the named operation fail with the given message.
	Fail map[string]string
	// Now is used for trial end dates.
	Now func() time.Time

	idempotent map[string]string
	seq        int
}

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		Products:       map[string]*Product{},
		Prices:         map[string]*Price{},
		Customers:      map[string]string{},
		PaymentMethods: map[string][]string{},
		Subscriptions:  map[string]*billing.RemoteSubscription{},
		Calls:          map[string]int{},
		Fail:           map[string]string{},
		Now:            time.Now,
		idempotent:     map[string]string{},
	}
}

var _ billing.Provider = (*Provider)(nil)

func (p *Provider) call(op string) error {
	p.Calls[op]++
	if msg, ok := p.Fail[op]; ok {
		return &billing.RemoteError{Op: op, Msg: msg}
	}
	return nil
}

func (p *Provider) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%d", prefix, p.seq)
}

// TotalCalls returns the number of calls across all operations.
func (p *Provider) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Calls {
		n += c
	}
	return n
}

// CallCount returns the number of calls to op.
func (p *Provider) CallCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls[op]
}

// ActivePrices returns the active prices of a product.
func (p *Provider) ActivePrices(productID string) []*Price {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Price
	for _, pr := range p.Prices {
		if pr.ProductID == productID && pr.Active {
			out = append(out, pr)
		}
	}
	return out
}

func (p *Provider) CreateProduct(_ context.Context, in billing.ProductInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("create_product"); err != nil {
		return "", err
	}
	id := p.nextID("prod")
	p.Products[id] = &Product{ID: id, Name: in.Name, PlanID: in.PlanID, Active: true}
	return id, nil
}

func (p *Provider) UpdateProduct(_ context.Context, id string, in billing.ProductInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("update_product"); err != nil {
		return err
	}
	prod, ok := p.Products[id]
	if !ok {
		return &billing.RemoteError{Op: "update_product", Code: "resource_missing", Msg: "No such product: " + id}
	}
	prod.Name = in.Name
	return nil
}

func (p *Provider) DeactivateProduct(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("deactivate_product"); err != nil {
		return err
	}
	if prod, ok := p.Products[id]; ok {
		prod.Active = false
	}
	return nil
}

func (p *Provider) CreatePrice(_ context.Context, in billing.PriceInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("create_price"); err != nil {
		return "", err
	}
	id := p.nextID("price")
	p.Prices[id] = &Price{
		ID:         id,
		ProductID:  in.ProductID,
		UnitAmount: in.UnitAmount,
		Currency:   in.Currency,
		Interval:   in.Interval,
		Active:     true,
	}
	return id, nil
}

func (p *Provider) DeactivatePrice(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("deactivate_price"); err != nil {
		return err
	}
	if pr, ok := p.Prices[id]; ok {
		pr.Active = false
	}
	return nil
}

func (p *Provider) CreateCustomer(_ context.Context, in billing.CustomerInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("create_customer"); err != nil {
		return "", err
	}
	id := p.nextID("cus")
	p.Customers[id] = in.Email
	return id, nil
}

func (p *Provider) AttachPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("attach_payment_method"); err != nil {
		return err
	}
	p.PaymentMethods[customerID] = append(p.PaymentMethods[customerID], paymentMethodID)
	return nil
}

func (p *Provider) HasPaymentMethod(_ context.Context, customerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("list_payment_methods"); err != nil {
		return false, err
	}
	return len(p.PaymentMethods[customerID]) > 0, nil
}

// RemovePaymentMethods detaches every payment method of a customer.
func (p *Provider) RemovePaymentMethods(customerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.PaymentMethods, customerID)
}

func (p *Provider) CreateSubscription(_ context.Context, in billing.SubscriptionInput) (*billing.RemoteSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("create_subscription"); err != nil {
		return nil, err
	}
	if in.IdempotencyKey != "" {
		if id, ok := p.idempotent[in.IdempotencyKey]; ok {
			cp := *p.Subscriptions[id]
			return &cp, nil
		}
	}

	sub := &billing.RemoteSubscription{
		ID:         p.nextID("sub"),
		CustomerID: in.CustomerID,
		Status:     billing.StatusActive,
		PriceID:    in.PriceID,
		Quantity:   1,
		Metadata:   map[string]string{"user_id": in.UserID, "plan_id": in.PlanID},
	}
	periodEnd := p.Now().AddDate(0, 1, 0).UTC()
	if in.TrialDays > 0 {
		end := p.Now().Add(time.Duration(in.TrialDays) * 24 * time.Hour).UTC()
		sub.Status = billing.StatusTrialing
		sub.TrialEndsAt = &end
		periodEnd = end
	}
	sub.CurrentPeriodEnd = &periodEnd
	p.Subscriptions[sub.ID] = sub
	if in.IdempotencyKey != "" {
		p.idempotent[in.IdempotencyKey] = sub.ID
	}
	cp := *sub
	return &cp, nil
}

func (p *Provider) GetSubscription(_ context.Context, id string) (*billing.RemoteSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("get_subscription"); err != nil {
		return nil, err
	}
	sub, ok := p.Subscriptions[id]
	if !ok {
		return nil, &billing.RemoteError{Op: "get_subscription", Code: "resource_missing", Msg: "No such subscription: " + id}
	}
	cp := *sub
	return &cp, nil
}

func (p *Provider) CancelSubscription(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("cancel_subscription"); err != nil {
		return err
	}
	if sub, ok := p.Subscriptions[id]; ok {
		now := p.Now().UTC()
		sub.Status = billing.StatusCanceled
		sub.EndedAt = &now
	}
	return nil
}

// ScheduleCancel marks the subscription to end with its current period. It
// stays in its current status until the test sends the deleted event.
func (p *Provider) ScheduleCancel(_ context.Context, id string) (*billing.RemoteSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("schedule_cancel"); err != nil {
		return nil, err
	}
	sub, ok := p.Subscriptions[id]
	if !ok {
		return nil, &billing.RemoteError{Op: "schedule_cancel", Code: "resource_missing", Msg: "No such subscription: " + id}
	}
	sub.CancelAtPeriodEnd = true
	cp := *sub
	return &cp, nil
}

func (p *Provider) Ping(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.call("ping")
}
