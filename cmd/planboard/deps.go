package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/config"
	"github.com/alecgard/planboard/internal/export"
	"github.com/alecgard/planboard/internal/limits"
	"github.com/alecgard/planboard/internal/mail"
	"github.com/alecgard/planboard/internal/metrics"
	"github.com/alecgard/planboard/internal/note"
	"github.com/alecgard/planboard/internal/plan"
	"github.com/alecgard/planboard/internal/project"
	"github.com/alecgard/planboard/internal/subscription"
	"github.com/alecgard/planboard/internal/task"
	"github.com/alecgard/planboard/internal/team"
	"github.com/alecgard/planboard/internal/user"
)

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// newProvider returns the Stripe provider, or a nil interface when billing
// is not configured.
func newProvider(cfg *config.Config, m *metrics.Metrics) billing.Provider {
	if !cfg.Billing.Enabled() {
		return nil
	}
	p := billing.NewStripeProvider(cfg.Billing.SecretKey, billing.StripeOptions{
		MaxNetworkRetries: cfg.Billing.MaxNetworkRetries,
	})
	if m != nil {
		p.SetMetrics(m)
	}
	return p
}

// app holds the wired services shared by the commands.
type app struct {
	userStore   *user.Store
	plans       *plan.Service
	users       *user.Service
	syncer      *billing.Syncer
	reconciler  *subscription.Reconciler
	subs        *subscription.Service
	enforcer    *limits.Enforcer
	projects    *project.Service
	tasks       *task.Service
	notes       *note.Service
	invitations *team.Service
	exporter    *export.Exporter
}

func newApp(pool *pgxpool.Pool, cfg *config.Config, provider billing.Provider, m *metrics.Metrics) *app {
	a := &app{userStore: user.NewStore(pool)}

	a.plans = plan.NewService(plan.NewStore(pool), cfg.Billing.Currency)
	a.users = user.NewService(a.userStore, a.plans)
	a.syncer = billing.NewSyncer(provider, a.plans, billing.Keys{
		SecretKey:      cfg.Billing.SecretKey,
		PublishableKey: cfg.Billing.PublishableKey,
	})

	subStore := subscription.NewStore(pool)
	a.reconciler = subscription.NewReconciler(subStore, cfg.Reconcile.Interval, cfg.Reconcile.MaxAttempts)
	a.subs = subscription.NewService(subStore, a.plans, provider, a.reconciler)

	a.enforcer = limits.NewEnforcer(limits.NewGate(cfg.Limits.AdvancedFeaturePlans), a.plans)
	if m != nil {
		a.reconciler.SetMetrics(m)
		a.subs.SetMetrics(m)
		a.enforcer.SetMetrics(m)
	}

	a.projects = project.NewService(project.NewStore(pool))
	a.tasks = task.NewService(task.NewStore(pool), a.projects)
	a.notes = note.NewService(note.NewStore(pool), a.projects)
	a.invitations = team.NewService(team.NewStore(pool), a.projects, mail.New(cfg.Mail),
		cfg.Invitations.Expiry, cfg.Server.PublicURL)
	a.exporter = export.New(a.projects, a.tasks, a.notes)
	return a
}
