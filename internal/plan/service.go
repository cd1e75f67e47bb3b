package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInUse is returned when a plan still referenced by users is deleted.
var ErrInUse = errors.New("plan is referenced by users")

// ValidationError carries per-field messages for a rejected plan input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + e.Fields[k]
	}
	return "invalid plan: " + strings.Join(parts, ", ")
}

// defaultProjectLimits fills max_projects for the named tiers when a plan is
// created without an explicit limit. Keys are lower-cased plan names.
var defaultProjectLimits = map[string]int{
	"free":         3,
	"starter":      10,
	"professional": 50,
}

// DefaultProjectLimit returns the tier table entry for a plan name, if any.
func DefaultProjectLimit(name string) (int, bool) {
	n, ok := defaultProjectLimits[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

// Repository is the persistence surface the Service needs. *Store satisfies it.
type Repository interface {
	Create(ctx context.Context, in CreatePlanInput) (*Plan, error)
	GetByID(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context, includeArchived, publicOnly bool) ([]*Plan, error)
	Cheapest(ctx context.Context) (*Plan, error)
	Update(ctx context.Context, id string, in UpdatePlanInput) (*Plan, error)
	SetStripeIDs(ctx context.Context, id, productID, priceID string) error
	Archive(ctx context.Context, id string) (*Plan, error)
	Delete(ctx context.Context, id string) error
	CountUsers(ctx context.Context, id string) (int, error)
}

// Service provides validated business logic over the plan Repository.
type Service struct {
	repo            Repository
	defaultCurrency string
}

// NewService creates a new Service. currency is used for plans created
// without one.
func NewService(repo Repository, currency string) *Service {
	if currency == "" {
		currency = "usd"
	}
	return &Service{repo: repo, defaultCurrency: strings.ToLower(currency)}
}

// Create validates the input, applies defaults and creates the plan.
func (s *Service) Create(ctx context.Context, in CreatePlanInput) (*Plan, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Currency == "" {
		in.Currency = s.defaultCurrency
	}
	in.Currency = strings.ToLower(in.Currency)
	if in.BillingPeriod == "" {
		in.BillingPeriod = Monthly
	}
	if in.MaxProjects == nil {
		if n, ok := DefaultProjectLimit(in.Name); ok {
			in.MaxProjects = &n
		}
	}
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, in)
}

// Get retrieves a plan by id.
func (s *Service) Get(ctx context.Context, id string) (*Plan, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every plan, archived ones included, for administrators.
func (s *Service) List(ctx context.Context) ([]*Plan, error) {
	return s.repo.List(ctx, true, false)
}

// ListPublic returns the plans users can subscribe to.
func (s *Service) ListPublic(ctx context.Context) ([]*Plan, error) {
	return s.repo.List(ctx, false, true)
}

// GetAvailable returns the plan only if users may be assigned to it.
func (s *Service) GetAvailable(ctx context.Context, id string) (*Plan, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Available() {
		return nil, ErrNotFound
	}
	return p, nil
}

// FreePlan returns the lowest-priced available plan.
func (s *Service) FreePlan(ctx context.Context) (*Plan, error) {
	return s.repo.Cheapest(ctx)
}

// Update validates and applies a partial update.
func (s *Service) Update(ctx context.Context, id string, in UpdatePlanInput) (*Plan, error) {
	if err := validateUpdate(in); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Archived() && in.Active != nil && *in.Active {
		return nil, &ValidationError{Fields: map[string]string{"active": "cannot be set on an archived plan"}}
	}
	return s.repo.Update(ctx, id, in)
}

// RecordStripeIDs persists the provider identifiers for a plan. It is the
// write hook used by billing sync.
func (s *Service) RecordStripeIDs(ctx context.Context, id, productID, priceID string) error {
	return s.repo.SetStripeIDs(ctx, id, productID, priceID)
}

// Archive marks the plan archived so it disappears from the public list
// while existing references keep working.
func (s *Service) Archive(ctx context.Context, id string) (*Plan, error) {
	return s.repo.Archive(ctx, id)
}

// Delete hard-deletes an unreferenced plan. Referenced plans are archived
// instead and ErrInUse is returned alongside the archived plan.
func (s *Service) Delete(ctx context.Context, id string) (*Plan, error) {
	n, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		p, err := s.repo.Archive(ctx, id)
		if err != nil {
			return nil, err
		}
		return p, ErrInUse
	}
	return nil, s.repo.Delete(ctx, id)
}

func validateCreate(in CreatePlanInput) error {
	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "is required"
	}
	validatePrice(fields, in.Price)
	validatePeriod(fields, in.BillingPeriod)
	if in.TrialDays < 0 {
		fields["trial_days"] = "must not be negative"
	}
	if in.HasTrial && in.TrialDays == 0 {
		fields["trial_days"] = "must be positive when has_trial is set"
	}
	if len(in.Currency) != 3 {
		fields["currency"] = "must be a three-letter ISO code"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateUpdate(in UpdatePlanInput) error {
	fields := map[string]string{}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		fields["name"] = "must not be empty"
	}
	if in.Price != nil {
		validatePrice(fields, *in.Price)
	}
	if in.BillingPeriod != nil {
		validatePeriod(fields, *in.BillingPeriod)
	}
	if in.TrialDays != nil && *in.TrialDays < 0 {
		fields["trial_days"] = "must not be negative"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validatePrice(fields map[string]string, price decimal.Decimal) {
	if price.IsNegative() {
		fields["price"] = "must not be negative"
		return
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		fields["price"] = fmt.Sprintf("must have at most two decimal places, got %s", price.String())
	}
}

func validatePeriod(fields map[string]string, period BillingPeriod) {
	if period != Monthly && period != Yearly {
		fields["billing_period"] = "must be monthly or yearly"
	}
}
