package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	plans map[string]*Plan
	users map[string]int
	seq   int
}

func newMemRepo() *memRepo {
	return &memRepo{plans: map[string]*Plan{}, users: map[string]int{}}
}

func (m *memRepo) Create(_ context.Context, in CreatePlanInput) (*Plan, error) {
	m.seq++
	p := &Plan{
		ID:               fmt.Sprintf("plan-%d", m.seq),
		Name:             in.Name,
		Description:      in.Description,
		Price:            in.Price,
		Currency:         in.Currency,
		BillingPeriod:    in.BillingPeriod,
		Features:         in.Features,
		MaxUsers:         in.MaxUsers,
		MaxProjects:      in.MaxProjects,
		StorageQuota:     in.StorageQuota,
		AdvancedFeatures: in.AdvancedFeatures,
		HasTrial:         in.HasTrial,
		TrialDays:        in.TrialDays,
		TrialEnabled:     in.TrialEnabled == nil || *in.TrialEnabled,
		Active:           in.Active == nil || *in.Active,
		CreatedAt:        time.Now(),
	}
	m.plans[p.ID] = p
	return p, nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, includeArchived, publicOnly bool) ([]*Plan, error) {
	var out []*Plan
	for _, p := range m.plans {
		if !includeArchived && p.Archived() {
			continue
		}
		if publicOnly && !p.Active {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out, nil
}

func (m *memRepo) Cheapest(ctx context.Context) (*Plan, error) {
	plans, _ := m.List(ctx, false, true)
	if len(plans) == 0 {
		return nil, ErrNotFound
	}
	return plans[0], nil
}

func (m *memRepo) Update(_ context.Context, id string, in UpdatePlanInput) (*Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) SetStripeIDs(_ context.Context, id, productID, priceID string) error {
	p, ok := m.plans[id]
	if !ok {
		return ErrNotFound
	}
	p.StripeProductID, p.StripePriceID = productID, priceID
	return nil
}

func (m *memRepo) Archive(_ context.Context, id string) (*Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	p.ArchivedAt = &now
	p.Active = false
	cp := *p
	return &cp, nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.plans[id]; !ok {
		return ErrNotFound
	}
	delete(m.plans, id)
	return nil
}

func (m *memRepo) CountUsers(_ context.Context, id string) (int, error) {
	return m.users[id], nil
}

func TestServiceCreate_Defaults(t *testing.T) {
	svc := NewService(newMemRepo(), "EUR")

	p, err := svc.Create(context.Background(), CreatePlanInput{
		Name:  "  Starter ",
		Price: decimal.NewFromInt(12),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "Starter" {
		t.Errorf("expected trimmed name, got %q", p.Name)
	}
	if p.Currency != "eur" {
		t.Errorf("expected default currency eur, got %q", p.Currency)
	}
	if p.BillingPeriod != Monthly {
		t.Errorf("expected monthly default, got %q", p.BillingPeriod)
	}
	if p.MaxProjects == nil || *p.MaxProjects != 10 {
		t.Errorf("expected tier default of 10 projects, got %v", p.MaxProjects)
	}
	if !p.TrialEnabled || !p.Active {
		t.Error("expected trial_enabled and active to default true")
	}
}

func TestServiceCreate_ExplicitProjectLimitWins(t *testing.T) {
	svc := NewService(newMemRepo(), "usd")
	limit := 99
	p, err := svc.Create(context.Background(), CreatePlanInput{Name: "Starter", MaxProjects: &limit})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if *p.MaxProjects != 99 {
		t.Errorf("expected explicit limit 99, got %d", *p.MaxProjects)
	}
}

func TestServiceCreate_Validation(t *testing.T) {
	tests := []struct {
		name      string
		input     CreatePlanInput
		wantField string
	}{
		{"missing name", CreatePlanInput{}, "name"},
		{"negative price", CreatePlanInput{Name: "X", Price: decimal.NewFromInt(-1)}, "price"},
		{"fractional cents", CreatePlanInput{Name: "X", Price: decimal.RequireFromString("9.999")}, "price"},
		{"bad period", CreatePlanInput{Name: "X", BillingPeriod: "weekly"}, "billing_period"},
		{"negative trial", CreatePlanInput{Name: "X", TrialDays: -3}, "trial_days"},
		{"trial without days", CreatePlanInput{Name: "X", HasTrial: true}, "trial_days"},
		{"bad currency", CreatePlanInput{Name: "X", Currency: "dollars"}, "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMemRepo(), "usd")
			_, err := svc.Create(context.Background(), tt.input)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Errorf("expected field %q in %v", tt.wantField, verr.Fields)
			}
		})
	}
}

func TestServiceListPublic_HidesArchivedAndInactive(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, "usd")
	ctx := context.Background()

	free, _ := svc.Create(ctx, CreatePlanInput{Name: "Free"})
	paid, _ := svc.Create(ctx, CreatePlanInput{Name: "Pro", Price: decimal.NewFromInt(20)})
	inactive := false
	_, _ = svc.Create(ctx, CreatePlanInput{Name: "Hidden", Price: decimal.NewFromInt(5), Active: &inactive})

	if _, err := svc.Archive(ctx, paid.ID); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	plans, err := svc.ListPublic(ctx)
	if err != nil {
		t.Fatalf("ListPublic: %v", err)
	}
	if len(plans) != 1 || plans[0].ID != free.ID {
		t.Fatalf("expected only the free plan, got %d plans", len(plans))
	}

	all, _ := svc.List(ctx)
	if len(all) != 3 {
		t.Errorf("admin list should include every plan, got %d", len(all))
	}
}

func TestServiceGetAvailable(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, "usd")
	ctx := context.Background()

	p, _ := svc.Create(ctx, CreatePlanInput{Name: "Pro", Price: decimal.NewFromInt(20)})
	if _, err := svc.GetAvailable(ctx, p.ID); err != nil {
		t.Fatalf("expected plan to be available: %v", err)
	}

	_, _ = svc.Archive(ctx, p.ID)
	if _, err := svc.GetAvailable(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("archived plan should not be available, got %v", err)
	}
}

func TestServiceUpdate_RejectsReactivatingArchived(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, "usd")
	ctx := context.Background()

	p, _ := svc.Create(ctx, CreatePlanInput{Name: "Pro", Price: decimal.NewFromInt(20)})
	_, _ = svc.Archive(ctx, p.ID)

	active := true
	_, err := svc.Update(ctx, p.ID, UpdatePlanInput{Active: &active})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestServiceDelete(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, "usd")
	ctx := context.Background()

	unused, _ := svc.Create(ctx, CreatePlanInput{Name: "Unused"})
	used, _ := svc.Create(ctx, CreatePlanInput{Name: "Used"})
	repo.users[used.ID] = 2

	if _, err := svc.Delete(ctx, unused.ID); err != nil {
		t.Fatalf("Delete unused: %v", err)
	}
	if _, ok := repo.plans[unused.ID]; ok {
		t.Error("unused plan should be removed")
	}

	archived, err := svc.Delete(ctx, used.ID)
	if !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
	if archived == nil || !archived.Archived() {
		t.Error("referenced plan should be archived instead of deleted")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"price": "must not be negative", "name": "is required"}}
	want := "invalid plan: name is required, price must not be negative"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
