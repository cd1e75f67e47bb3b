package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alecgard/planboard/internal/billing"
	"github.com/alecgard/planboard/internal/config"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Billing provider utilities",
}

var billingCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the Stripe keys and make one authenticated call",
	RunE:  runBillingCheck,
}

func init() {
	billingCmd.AddCommand(billingCheckCmd)
	rootCmd.AddCommand(billingCmd)
}

func runBillingCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	syncer := billing.NewSyncer(newProvider(cfg, nil), nil, billing.Keys{
		SecretKey:      cfg.Billing.SecretKey,
		PublishableKey: cfg.Billing.PublishableKey,
	})
	res, err := syncer.ValidateConfiguration(context.Background())
	if err != nil && res == nil {
		return err
	}

	checks := make([]string, 0, len(res.Details))
	for k := range res.Details {
		checks = append(checks, k)
	}
	sort.Strings(checks)

	out := cmd.OutOrStdout()
	for _, k := range checks {
		mark := "missing"
		if res.Details[k] {
			mark = "ok"
		}
		fmt.Fprintf(out, "%-16s %s\n", k, mark)
	}
	if !res.Success {
		return fmt.Errorf("billing check failed: %s", res.Error)
	}
	return nil
}
