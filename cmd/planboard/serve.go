package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alecgard/planboard/internal/api"
	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/config"
	"github.com/alecgard/planboard/internal/metrics"
	"github.com/alecgard/planboard/internal/ratelimit"
	"github.com/alecgard/planboard/internal/user"
)

const (
	sessionCleanupInterval   = time.Hour
	invitationExpiryInterval = 15 * time.Minute
	limiterSweepInterval     = 5 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Planboard API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() metrics.PoolStats {
		s := pool.Stat()
		return metrics.PoolStats{
			Total:         s.TotalConns(),
			Idle:          s.IdleConns(),
			Acquired:      s.AcquiredConns(),
			Max:           s.MaxConns(),
			EmptyAcquires: s.EmptyAcquireCount(),
		}
	})

	provider := newProvider(cfg, m)
	if provider == nil {
		slog.Warn("billing is not configured; paid plans cannot be purchased")
	}
	a := newApp(pool, cfg, provider, m)

	authLimiter := ratelimit.New(cfg.RateLimit.Auth, cfg.RateLimit.Window)
	apiLimiter := ratelimit.New(cfg.RateLimit.API, cfg.RateLimit.Window)

	var wg sync.WaitGroup
	background := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	background(func() { a.reconciler.Start(ctx) })
	background(func() { a.users.StartSessionCleanup(ctx, sessionCleanupInterval) })
	background(func() { a.invitations.StartExpiry(ctx, invitationExpiryInterval) })
	background(func() { sweepLimiters(ctx, limiterSweepInterval, authLimiter, apiLimiter) })

	router := api.NewRouter(api.RouterDeps{
		Users:          a.users,
		Sessions:       user.NewAuthAdapter(a.userStore),
		Plans:          a.plans,
		Syncer:         a.syncer,
		Webhooks:       billing.NewWebhookParser(cfg.Billing.WebhookSecret),
		Subscriptions:  a.subs,
		Limits:         a.enforcer,
		Projects:       a.projects,
		Tasks:          a.tasks,
		Notes:          a.notes,
		Invitations:    a.invitations,
		Exporter:       a.exporter,
		Metrics:        m,
		AuthLimiter:    authLimiter,
		APILimiter:     apiLimiter,
		DB:             pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "billing", provider != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		slog.Info("shutting down")
	case err := <-errCh:
		slog.Error("server error", "error", err)
		cancel()
		wg.Wait()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)

	// The reconciler retries once more before returning.
	a.reconciler.Stop()
	cancel()
	wg.Wait()
	return err
}

func sweepLimiters(ctx context.Context, interval time.Duration, limiters ...*ratelimit.Limiter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				if l.Enabled() {
					l.Sweep()
				}
			}
		}
	}
}
