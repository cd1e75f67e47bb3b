package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alecgard/planboard/internal/plan"
)

// IDWriter persists the remote identifiers recorded for a plan.
// plan.Service satisfies it.
type IDWriter interface {
	RecordStripeIDs(ctx context.Context, planID, productID, priceID string) error
}

// Result is the outcome of a sync operation. Remote failures are reported
// here rather than as Go errors so the local plan stays usable.
type Result struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Details map[string]bool `json:"details,omitempty"`
}

func ok() *Result { return &Result{Success: true} }

func failed(err error) *Result {
	return &Result{Success: false, Error: Message(err)}
}

// Keys are the credentials checked by ValidateConfiguration.
type Keys struct {
	SecretKey      string
	PublishableKey string
}

// Syncer mirrors plans into the billing provider.
type Syncer struct {
	provider Provider
	ids      IDWriter
	keys     Keys
}

// NewSyncer creates a Syncer. provider may be nil, in which case every
// operation returns ErrNotConfigured.
func NewSyncer(provider Provider, ids IDWriter, keys Keys) *Syncer {
	return &Syncer{provider: provider, ids: ids, keys: keys}
}

// Configured reports whether a provider is available.
func (s *Syncer) Configured() bool {
	return s != nil && s.provider != nil
}

// SyncProduct creates or updates the remote product for p and records a
// newly created product id. p is updated in place. Free plans are skipped.
func (s *Syncer) SyncProduct(ctx context.Context, p *plan.Plan) (*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	if p.IsFree() {
		return ok(), nil
	}

	in := ProductInput{Name: p.Name, Description: p.Description, PlanID: p.ID}
	if p.StripeProductID != "" {
		if err := s.provider.UpdateProduct(ctx, p.StripeProductID, in); err != nil {
			return failed(err), nil
		}
		return ok(), nil
	}

	id, err := s.provider.CreateProduct(ctx, in)
	if err != nil {
		return failed(err), nil
	}
	if err := s.ids.RecordStripeIDs(ctx, p.ID, id, p.StripePriceID); err != nil {
		return failed(fmt.Errorf("recording product id: %w", err)), nil
	}
	p.StripeProductID = id
	return ok(), nil
}

// SyncPrice creates a new remote price for a paid plan and retires the
// previous one. Free plans succeed without any remote call.
func (s *Syncer) SyncPrice(ctx context.Context, p *plan.Plan) (*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	if p.IsFree() {
		return ok(), nil
	}

	if p.StripeProductID == "" {
		res, err := s.SyncProduct(ctx, p)
		if err != nil || !res.Success {
			return res, err
		}
	}

	in := PriceInput{
		ProductID:  p.StripeProductID,
		UnitAmount: p.UnitAmount(),
		Currency:   p.Currency,
		Interval:   p.Interval(),
		PlanID:     p.ID,
	}
	if p.TrialActive() {
		in.TrialDays = p.TrialDays
	}

	newID, err := s.provider.CreatePrice(ctx, in)
	if err != nil {
		return failed(err), nil
	}

	if err := s.ids.RecordStripeIDs(ctx, p.ID, p.StripeProductID, newID); err != nil {
		return failed(fmt.Errorf("recording price id: %w", err)), nil
	}

	// The previous price stays active until the new id is stored.
	old := p.StripePriceID
	p.StripePriceID = newID
	if old != "" && old != newID {
		if err := s.provider.DeactivatePrice(ctx, old); err != nil {
			slog.Warn("deactivating previous price failed",
				"plan_id", p.ID, "price_id", old, "error", err)
		}
	}
	return ok(), nil
}

// SyncPlan syncs product then price. A plan that became free has its remote
// objects retired and its ids cleared.
func (s *Syncer) SyncPlan(ctx context.Context, p *plan.Plan) (*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	if p.IsFree() {
		if !p.HasRemoteIDs() {
			return ok(), nil
		}
		res := s.retire(ctx, p)
		if err := s.ids.RecordStripeIDs(ctx, p.ID, "", ""); err != nil {
			return failed(fmt.Errorf("clearing remote ids: %w", err)), nil
		}
		p.StripeProductID, p.StripePriceID = "", ""
		return res, nil
	}

	res, err := s.SyncProduct(ctx, p)
	if err != nil || !res.Success {
		return res, err
	}
	return s.SyncPrice(ctx, p)
}

// ArchivePlan deactivates the remote price and product independently. It
// always succeeds; Details records which parts were deactivated.
func (s *Syncer) ArchivePlan(ctx context.Context, p *plan.Plan) (*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	return s.retire(ctx, p), nil
}

func (s *Syncer) retire(ctx context.Context, p *plan.Plan) *Result {
	res := &Result{Success: true, Details: map[string]bool{}}
	if p.StripePriceID != "" {
		err := s.provider.DeactivatePrice(ctx, p.StripePriceID)
		if err != nil {
			slog.Warn("deactivating price failed", "plan_id", p.ID, "price_id", p.StripePriceID, "error", err)
		}
		res.Details["price"] = err == nil
	}
	if p.StripeProductID != "" {
		err := s.provider.DeactivateProduct(ctx, p.StripeProductID)
		if err != nil {
			slog.Warn("deactivating product failed", "plan_id", p.ID, "product_id", p.StripeProductID, "error", err)
		}
		res.Details["product"] = err == nil
	}
	return res
}

// ValidateConfiguration checks that both keys are present and that the
// provider answers one authenticated call. Missing keys return the details
// together with ErrNotConfigured.
func (s *Syncer) ValidateConfiguration(ctx context.Context) (*Result, error) {
	res := &Result{Details: map[string]bool{
		"secret_key":      s.keys.SecretKey != "",
		"publishable_key": s.keys.PublishableKey != "",
		"api":             false,
	}}
	if s.keys.SecretKey == "" || s.keys.PublishableKey == "" {
		res.Error = "billing keys are not configured"
		return res, ErrNotConfigured
	}
	if !s.Configured() {
		res.Error = "billing provider is not configured"
		return res, ErrNotConfigured
	}
	if err := s.provider.Ping(ctx); err != nil {
		res.Error = Message(err)
		return res, nil
	}
	res.Details["api"] = true
	res.Success = true
	return res, nil
}

// SyncAll runs SyncPlan over every plan and returns the results keyed by
// plan id.
func (s *Syncer) SyncAll(ctx context.Context, plans []*plan.Plan) (map[string]*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	results := make(map[string]*Result, len(plans))
	for _, p := range plans {
		if p.Archived() {
			continue
		}
		res, err := s.SyncPlan(ctx, p)
		if err != nil {
			return results, err
		}
		results[p.ID] = res
		if !res.Success {
			slog.Warn("plan sync failed", "plan_id", p.ID, "plan", p.Name, "error", res.Error)
		}
	}
	return results, nil
}
