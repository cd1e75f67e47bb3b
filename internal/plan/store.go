package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a plan does not exist.
var ErrNotFound = errors.New("plan not found")

// Store provides database operations for plans.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new plan store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// planColumns is the full list of columns used in SELECT and RETURNING.
const planColumns = `id, name, description, price, currency, billing_period, features,
	max_users, max_projects, storage_quota, advanced_features,
	has_trial, trial_days, trial_enabled, active, archived_at,
	COALESCE(stripe_product_id, ''), COALESCE(stripe_price_id, ''),
	created_at, updated_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	var featuresJSON []byte
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Currency,
		&p.BillingPeriod,
		&featuresJSON,
		&p.MaxUsers,
		&p.MaxProjects,
		&p.StorageQuota,
		&p.AdvancedFeatures,
		&p.HasTrial,
		&p.TrialDays,
		&p.TrialEnabled,
		&p.Active,
		&p.ArchivedAt,
		&p.StripeProductID,
		&p.StripePriceID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Features = []string{}
	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &p.Features); err != nil {
			return nil, fmt.Errorf("unmarshalling features: %w", err)
		}
	}
	return &p, nil
}

func marshalFeatures(features []string) ([]byte, error) {
	if features == nil {
		features = []string{}
	}
	return json.Marshal(features)
}

// limitArg maps the "unlimited" sentinel (nil or <= 0) to SQL NULL.
func limitArg(v *int) any {
	if v == nil || *v <= 0 {
		return nil
	}
	return *v
}

// Create inserts a new plan and returns the full row.
func (s *Store) Create(ctx context.Context, in CreatePlanInput) (*Plan, error) {
	featuresJSON, err := marshalFeatures(in.Features)
	if err != nil {
		return nil, fmt.Errorf("marshalling features: %w", err)
	}

	trialEnabled := true
	if in.TrialEnabled != nil {
		trialEnabled = *in.TrialEnabled
	}
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	query := fmt.Sprintf(`INSERT INTO plans
		(name, description, price, currency, billing_period, features,
		 max_users, max_projects, storage_quota, advanced_features,
		 has_trial, trial_days, trial_enabled, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING %s`, planColumns)

	p, err := scanPlan(s.pool.QueryRow(ctx, query,
		in.Name,
		in.Description,
		in.Price.String(),
		in.Currency,
		string(in.BillingPeriod),
		featuresJSON,
		limitArg(in.MaxUsers),
		limitArg(in.MaxProjects),
		in.StorageQuota,
		in.AdvancedFeatures,
		in.HasTrial,
		in.TrialDays,
		trialEnabled,
		active,
	))
	if err != nil {
		return nil, fmt.Errorf("creating plan: %w", err)
	}
	return p, nil
}

// GetByID retrieves a plan by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE id = $1`, planColumns)
	p, err := scanPlan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("getting plan by id: %w", err)
	}
	return p, nil
}

// GetByName retrieves a plan by its unique name.
func (s *Store) GetByName(ctx context.Context, name string) (*Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE name = $1`, planColumns)
	p, err := scanPlan(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		return nil, fmt.Errorf("getting plan by name: %w", err)
	}
	return p, nil
}

// List returns plans ordered by price. Archived plans are included only when
// includeArchived is set; publicOnly further restricts to active plans.
func (s *Store) List(ctx context.Context, includeArchived, publicOnly bool) ([]*Plan, error) {
	var where []string
	if !includeArchived {
		where = append(where, "archived_at IS NULL")
	}
	if publicOnly {
		where = append(where, "active")
	}
	query := fmt.Sprintf(`SELECT %s FROM plans`, planColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY price ASC, name ASC"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plan row: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plan rows: %w", err)
	}
	return plans, nil
}

// Cheapest returns the lowest-priced available plan, used as the free tier
// users fall back to.
func (s *Store) Cheapest(ctx context.Context) (*Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM plans
		WHERE active AND archived_at IS NULL
		ORDER BY price ASC, created_at ASC
		LIMIT 1`, planColumns)
	p, err := scanPlan(s.pool.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("getting cheapest plan: %w", err)
	}
	return p, nil
}

// Update performs a partial update on the plan with the given id.
func (s *Store) Update(ctx context.Context, id string, in UpdatePlanInput) (*Plan, error) {
	var setClauses []string
	var args []any
	argIdx := 1

	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if in.Name != nil {
		set("name", *in.Name)
	}
	if in.Description != nil {
		set("description", *in.Description)
	}
	if in.Price != nil {
		set("price", in.Price.String())
	}
	if in.BillingPeriod != nil {
		set("billing_period", string(*in.BillingPeriod))
	}
	if in.Features != nil {
		featuresJSON, err := marshalFeatures(*in.Features)
		if err != nil {
			return nil, fmt.Errorf("marshalling features: %w", err)
		}
		set("features", featuresJSON)
	}
	if in.MaxUsers != nil {
		set("max_users", limitArg(in.MaxUsers))
	}
	if in.MaxProjects != nil {
		set("max_projects", limitArg(in.MaxProjects))
	}
	if in.StorageQuota != nil {
		set("storage_quota", *in.StorageQuota)
	}
	if in.AdvancedFeatures != nil {
		set("advanced_features", *in.AdvancedFeatures)
	}
	if in.HasTrial != nil {
		set("has_trial", *in.HasTrial)
	}
	if in.TrialDays != nil {
		set("trial_days", *in.TrialDays)
	}
	if in.TrialEnabled != nil {
		set("trial_enabled", *in.TrialEnabled)
	}
	if in.Active != nil {
		set("active", *in.Active)
	}

	if len(setClauses) == 0 {
		return s.GetByID(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE plans SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(setClauses, ", "), argIdx, planColumns)

	p, err := scanPlan(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("updating plan: %w", err)
	}
	return p, nil
}

// SetStripeIDs records the provider identifiers mirrored for a plan. Empty
// strings are stored as NULL.
func (s *Store) SetStripeIDs(ctx context.Context, id, productID, priceID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plans
		 SET stripe_product_id = NULLIF($1, ''), stripe_price_id = NULLIF($2, ''), updated_at = now()
		 WHERE id = $3`,
		productID, priceID, id,
	)
	if err != nil {
		return fmt.Errorf("setting stripe ids: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Archive marks a plan archived and inactive.
func (s *Store) Archive(ctx context.Context, id string) (*Plan, error) {
	query := fmt.Sprintf(`UPDATE plans
		SET archived_at = COALESCE(archived_at, now()), active = false, updated_at = now()
		WHERE id = $1
		RETURNING %s`, planColumns)
	p, err := scanPlan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("archiving plan: %w", err)
	}
	return p, nil
}

// Delete removes a plan row. Callers must check CountUsers first.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns how many users reference the plan, directly or through
// a subscription mirror row.
func (s *Store) CountUsers(ctx context.Context, id string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM users WHERE plan_id = $1)
		      + (SELECT COUNT(*) FROM subscriptions WHERE plan_id = $1)`,
		id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting plan users: %w", err)
	}
	return n, nil
}
