package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/alecgard/planboard/internal/config"
	"github.com/alecgard/planboard/internal/plan"
	"github.com/alecgard/planboard/internal/user"
)

var (
	seedAdminEmail    string
	seedAdminPassword string
	seedAdminName     string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the default plans and an optional admin user",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "", "create an admin user with this email")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "", "password for the admin user")
	seedCmd.Flags().StringVar(&seedAdminName, "admin-name", "Administrator", "display name for the admin user")
	rootCmd.AddCommand(seedCmd)
}

func intPtr(n int) *int { return &n }

var defaultPlans = []plan.CreatePlanInput{
	{
		Name:         "Free",
		Description:  "For individuals getting organised.",
		Price:        decimal.Zero,
		Features:     []string{"3 projects", "Personal tasks and notes"},
		MaxUsers:     intPtr(1),
		MaxProjects:  intPtr(3),
		StorageQuota: "100MB",
	},
	{
		Name:         "Starter",
		Description:  "For small teams sharing a few projects.",
		Price:        decimal.RequireFromString("9.00"),
		Features:     []string{"10 projects", "Team invitations", "Email notifications"},
		MaxUsers:     intPtr(5),
		MaxProjects:  intPtr(10),
		StorageQuota: "5GB",
		HasTrial:     true,
		TrialDays:    14,
	},
	{
		Name:             "Professional",
		Description:      "For growing teams that need exports and more room.",
		Price:            decimal.RequireFromString("29.00"),
		Features:         []string{"50 projects", "Data exports", "Priority support"},
		MaxUsers:         intPtr(25),
		MaxProjects:      intPtr(50),
		StorageQuota:     "50GB",
		AdvancedFeatures: true,
		HasTrial:         true,
		TrialDays:        14,
	},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	a := newApp(pool, cfg, newProvider(cfg, nil), nil)

	existing, err := a.plans.List(ctx)
	if err != nil {
		return fmt.Errorf("listing plans: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[strings.ToLower(p.Name)] = true
	}

	created := 0
	for _, in := range defaultPlans {
		if have[strings.ToLower(in.Name)] {
			slog.Info("plan already exists, skipping", "name", in.Name)
			continue
		}
		p, err := a.plans.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("creating plan %q: %w", in.Name, err)
		}
		created++
		slog.Info("created plan", "name", p.Name, "id", p.ID)

		if a.syncer.Configured() && !p.IsFree() {
			res, err := a.syncer.SyncPlan(ctx, p)
			if err != nil {
				return fmt.Errorf("syncing plan %q: %w", p.Name, err)
			}
			if !res.Success {
				slog.Warn("plan sync failed", "name", p.Name, "error", res.Error)
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Plans: %d created, %d already present\n", created, len(defaultPlans)-created)

	if seedAdminEmail == "" {
		return nil
	}
	admin, err := a.users.CreateAdmin(ctx, seedAdminEmail, seedAdminPassword, seedAdminName)
	if errors.Is(err, user.ErrEmailTaken) {
		slog.Info("admin user already exists, skipping", "email", seedAdminEmail)
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Admin: %s (%s)\n", admin.Email, admin.ID)
	return nil
}
