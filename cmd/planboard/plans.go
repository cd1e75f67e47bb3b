package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alecgard/planboard/internal/config"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Inspect and synchronise plans",
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every plan, including archived ones",
	RunE:  runPlansList,
}

var plansSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push every active paid plan to Stripe",
	RunE:  runPlansSync,
}

func init() {
	plansCmd.AddCommand(plansListCmd, plansSyncCmd)
	rootCmd.AddCommand(plansCmd)
}

func runPlansList(cmd *cobra.Command, args []string) error {
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

	a := newApp(pool, cfg, nil, nil)
	plans, err := a.plans.List(ctx)
	if err != nil {
		return fmt.Errorf("listing plans: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tPERIOD\tSTATUS\tSTRIPE PRICE")
	for _, p := range plans {
		status := "active"
		switch {
		case p.Archived():
			status = "archived"
		case !p.Active:
			status = "inactive"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Price.StringFixed(2), p.Currency, p.BillingPeriod, status, p.StripePriceID)
	}
	return tw.Flush()
}

func runPlansSync(cmd *cobra.Command, args []string) error {
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
	plans, err := a.plans.List(ctx)
	if err != nil {
		return fmt.Errorf("listing plans: %w", err)
	}
	names := make(map[string]string, len(plans))
	for _, p := range plans {
		names[p.ID] = p.Name
	}

	results, err := a.syncer.SyncAll(ctx, plans)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return names[ids[i]] < names[ids[j]] })

	failed := 0
	out := cmd.OutOrStdout()
	for _, id := range ids {
		res := results[id]
		if res.Success {
			fmt.Fprintf(out, "ok      %s\n", names[id])
			continue
		}
		failed++
		fmt.Fprintf(out, "FAILED  %s: %s\n", names[id], res.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plans failed to sync", failed, len(results))
	}
	return nil
}
