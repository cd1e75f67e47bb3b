package plan

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillingPeriod is the recurring interval a plan is billed on.
type BillingPeriod string

const (
	Monthly BillingPeriod = "monthly"
	Yearly  BillingPeriod = "yearly"
)

// Plan is a billing tier with a price, usage limits and optional trial terms.
// Nil numeric limits mean unlimited.
type Plan struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	BillingPeriod    BillingPeriod   `json:"billing_period"`
	Features         []string        `json:"features"`
	MaxUsers         *int            `json:"max_users"`
	MaxProjects      *int            `json:"max_projects"`
	StorageQuota     string          `json:"storage_quota"`
	AdvancedFeatures bool            `json:"advanced_features"`
	HasTrial         bool            `json:"has_trial"`
	TrialDays        int             `json:"trial_days"`
	TrialEnabled     bool            `json:"trial_enabled"`
	Active           bool            `json:"active"`
	ArchivedAt       *time.Time      `json:"archived_at,omitempty"`
	StripeProductID  string          `json:"stripe_product_id,omitempty"`
	StripePriceID    string          `json:"stripe_price_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsFree reports whether the plan costs nothing. Free plans are never synced
// to the billing provider.
func (p *Plan) IsFree() bool {
	return !p.Price.IsPositive()
}

// TrialActive reports whether subscribing to the plan starts a trial.
func (p *Plan) TrialActive() bool {
	return p.HasTrial && p.TrialEnabled && p.TrialDays > 0
}

// Archived reports whether the plan has been archived.
func (p *Plan) Archived() bool {
	return p.ArchivedAt != nil
}

// Available reports whether users may be assigned to the plan.
func (p *Plan) Available() bool {
	return p.Active && !p.Archived()
}

// HasRemoteIDs reports whether any billing provider identifier is recorded.
func (p *Plan) HasRemoteIDs() bool {
	return p.StripeProductID != "" || p.StripePriceID != ""
}

// UnitAmount returns the price in the currency's minor unit (cents).
func (p *Plan) UnitAmount() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}

// Interval maps the billing period to the provider's recurring interval.
func (p *Plan) Interval() string {
	if p.BillingPeriod == Yearly {
		return "year"
	}
	return "month"
}

// MonthlyPrice normalizes the price to one month, for revenue reporting.
func (p *Plan) MonthlyPrice() decimal.Decimal {
	if p.BillingPeriod == Yearly {
		return p.Price.Div(decimal.NewFromInt(12)).Round(2)
	}
	return p.Price
}

// Includes reports whether the plan's feature list contains the named feature.
func (p *Plan) Includes(feature string) bool {
	for _, f := range p.Features {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// CreatePlanInput holds the fields required to create a new plan.
type CreatePlanInput struct {
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	BillingPeriod    BillingPeriod   `json:"billing_period"`
	Features         []string        `json:"features"`
	MaxUsers         *int            `json:"max_users"`
	MaxProjects      *int            `json:"max_projects"`
	StorageQuota     string          `json:"storage_quota"`
	AdvancedFeatures bool            `json:"advanced_features"`
	HasTrial         bool            `json:"has_trial"`
	TrialDays        int             `json:"trial_days"`
	TrialEnabled     *bool           `json:"trial_enabled"`
	Active           *bool           `json:"active"`
}

// UpdatePlanInput holds optional fields for a partial plan update.
type UpdatePlanInput struct {
	Name             *string          `json:"name,omitempty"`
	Description      *string          `json:"description,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	BillingPeriod    *BillingPeriod   `json:"billing_period,omitempty"`
	Features         *[]string        `json:"features,omitempty"`
	MaxUsers         *int             `json:"max_users,omitempty"`
	MaxProjects      *int             `json:"max_projects,omitempty"`
	StorageQuota     *string          `json:"storage_quota,omitempty"`
	AdvancedFeatures *bool            `json:"advanced_features,omitempty"`
	HasTrial         *bool            `json:"has_trial,omitempty"`
	TrialDays        *int             `json:"trial_days,omitempty"`
	TrialEnabled     *bool            `json:"trial_enabled,omitempty"`
	Active           *bool            `json:"active,omitempty"`
}

// PricingChanged reports whether the update touches anything mirrored into
// the provider's price object.
func (in UpdatePlanInput) PricingChanged() bool {
	return in.Price != nil || in.BillingPeriod != nil || in.HasTrial != nil ||
		in.TrialDays != nil || in.TrialEnabled != nil
}

// ProductChanged reports whether the update touches the provider's product.
func (in UpdatePlanInput) ProductChanged() bool {
	return in.Name != nil || in.Description != nil
}
