package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no matching subscription exists.
	ErrNotFound = errors.New("subscription not found")
	// ErrAlreadySubscribed is returned when the user already holds a live
	// subscription.
	ErrAlreadySubscribed = errors.New("user already has an active subscription")
	// ErrUserNotFound is returned when the account does not exist.
	ErrUserNotFound = errors.New("user not found")
)

const oneLiveIndex = "ux_subscriptions_one_live"

// Store provides database operations for subscription mirrors.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new subscription store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const subscriptionColumns = `id, user_id, name, stripe_id, stripe_status, stripe_plan,
	COALESCE(plan_id::text, ''), quantity, trial_ends_at, ends_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.StripeID, &s.StripeStatus, &s.StripePlan,
		&s.PlanID, &s.Quantity, &s.TrialEndsAt, &s.EndsAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isOneLiveViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == oneLiveIndex
}

// Account returns the billing view of a user.
func (s *Store) Account(ctx context.Context, userID string) (*Account, error) {
	a := &Account{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, COALESCE(plan_id::text, ''), COALESCE(stripe_customer_id, '')
		 FROM users WHERE id = $1`, userID,
	).Scan(&a.UserID, &a.Email, &a.Name, &a.PlanID, &a.StripeCustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return a, nil
}

// SetStripeCustomerID records the remote customer created for a user.
func (s *Store) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $1 WHERE id = $2`, customerID, userID)
	if err != nil {
		return fmt.Errorf("setting stripe customer id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AssignPlan points the user at a plan without touching subscriptions.
func (s *Store) AssignPlan(ctx context.Context, userID, planID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET plan_id = $1 WHERE id = $2`, nullable(planID), userID)
	if err != nil {
		return fmt.Errorf("assigning plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Activate upserts the mirror row keyed by the remote id and assigns the
// plan to the user in one transaction. A superseded subscription named in
// a.Replaces is marked canceled first.
func (s *Store) Activate(ctx context.Context, a Activation) (*Subscription, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning activation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if a.Replaces != "" && a.Replaces != a.Remote.ID {
		_, err := tx.Exec(ctx,
			`UPDATE subscriptions
			 SET stripe_status = 'canceled', ends_at = COALESCE(ends_at, now()), updated_at = now()
			 WHERE stripe_id = $1
			   AND stripe_status NOT IN ('canceled', 'expired_trial', 'incomplete_expired')`,
			a.Replaces)
		if err != nil {
			return nil, fmt.Errorf("canceling replaced subscription: %w", err)
		}
	}

	quantity := a.Remote.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	query := fmt.Sprintf(`INSERT INTO subscriptions
		(user_id, name, stripe_id, stripe_status, stripe_plan, plan_id, quantity, trial_ends_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stripe_id) DO UPDATE SET
			stripe_status = EXCLUDED.stripe_status,
			stripe_plan   = EXCLUDED.stripe_plan,
			plan_id       = EXCLUDED.plan_id,
			quantity      = EXCLUDED.quantity,
			trial_ends_at = EXCLUDED.trial_ends_at,
			ends_at       = EXCLUDED.ends_at,
			updated_at    = now()
		RETURNING %s`, subscriptionColumns)

	sub, err := scanSubscription(tx.QueryRow(ctx, query,
		a.UserID, DefaultName, a.Remote.ID, a.Remote.Status, a.Remote.PriceID,
		nullable(a.PlanID), quantity, a.Remote.TrialEndsAt, a.Remote.EndedAt,
	))
	if err != nil {
		if isOneLiveViolation(err) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("upserting subscription: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET plan_id = $1 WHERE id = $2`, nullable(a.PlanID), a.UserID); err != nil {
		return nil, fmt.Errorf("assigning plan: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing activation: %w", err)
	}
	return sub, nil
}

// Current returns the most recent subscription with the given name.
func (s *Store) Current(ctx context.Context, userID, name string) (*Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions
		WHERE user_id = $1 AND name = $2
		ORDER BY (stripe_status NOT IN ('canceled', 'expired_trial', 'incomplete_expired')) DESC,
		         created_at DESC
		LIMIT 1`, subscriptionColumns)
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, userID, name))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting current subscription: %w", err)
	}
	return sub, nil
}

// GetByStripeID returns the mirror row for a remote subscription.
func (s *Store) GetByStripeID(ctx context.Context, stripeID string) (*Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE stripe_id = $1`, subscriptionColumns)
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, stripeID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting subscription by stripe id: %w", err)
	}
	return sub, nil
}

// UpdateStatus sets the status of a mirror row. Nil times leave the stored
// values unchanged.
func (s *Store) UpdateStatus(ctx context.Context, stripeID, status string, trialEndsAt, endsAt *time.Time) (*Subscription, error) {
	query := fmt.Sprintf(`UPDATE subscriptions
		SET stripe_status = $1,
		    trial_ends_at = COALESCE($2, trial_ends_at),
		    ends_at       = COALESCE($3, ends_at),
		    updated_at    = now()
		WHERE stripe_id = $4
		RETURNING %s`, subscriptionColumns)
	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, status, trialEndsAt, endsAt, stripeID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating subscription status: %w", err)
	}
	return sub, nil
}

// Demote ends a subscription with the given status and moves the user to
// planID in one transaction.
func (s *Store) Demote(ctx context.Context, userID, planID, stripeID, status string, endsAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning demotion: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if stripeID != "" {
		_, err := tx.Exec(ctx,
			`UPDATE subscriptions
			 SET stripe_status = $1, ends_at = COALESCE(ends_at, $2), updated_at = now()
			 WHERE stripe_id = $3`,
			status, endsAt, stripeID)
		if err != nil {
			return fmt.Errorf("ending subscription: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `UPDATE users SET plan_id = $1 WHERE id = $2`, nullable(planID), userID)
	if err != nil {
		return fmt.Errorf("demoting user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing demotion: %w", err)
	}
	return nil
}

// Stats aggregates subscription and plan assignment counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByStatus: map[string]int{}, UsersByPlan: []PlanCount{}}

	rows, err := s.pool.Query(ctx, `SELECT stripe_status, COUNT(*) FROM subscriptions GROUP BY stripe_status`)
	if err != nil {
		return nil, fmt.Errorf("counting subscriptions: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		st.ByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT p.id, p.name, COUNT(u.id)
		 FROM plans p LEFT JOIN users u ON u.plan_id = p.id
		 GROUP BY p.id, p.name, p.price
		 ORDER BY p.price ASC, p.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("counting users by plan: %w", err)
	}
	for rows.Next() {
		var pc PlanCount
		if err := rows.Scan(&pc.PlanID, &pc.PlanName, &pc.Users); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning plan count: %w", err)
		}
		st.UsersByPlan = append(st.UsersByPlan, pc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plan counts: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM users WHERE plan_id IS NULL),
		   COALESCE((SELECT SUM(CASE WHEN p.billing_period = 'yearly' THEN ROUND(p.price / 12, 2) ELSE p.price END)
		             FROM subscriptions s JOIN plans p ON p.id = s.plan_id
		             WHERE s.stripe_status = 'active'), 0)::text`,
	).Scan(&st.UsersWithoutPlan, &st.MonthlyRecurringRevenue)
	if err != nil {
		return nil, fmt.Errorf("computing revenue: %w", err)
	}
	return st, nil
}
