package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd(openApp).Execute()
}

func newRootCmd(open appOpener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the credit ledger: balances, credits, reconciliation and pricing",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var asJSON bool
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Render JSON output")

	run := func(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.close(context.WithoutCancel(cmd.Context())) }()
			return fn(cmd, a, args)
		}
	}
	jsonOutput := func() bool { return asJSON }

	rootCmd.AddCommand(
		newBalanceCmd(run, jsonOutput),
		newCreditCmd(run, jsonOutput),
		newAdjustCmd(run, jsonOutput),
		newReconcileCmd(run, jsonOutput),
		newPricingCmd(run, jsonOutput),
		newMigrateCmd(run),
	)

	return rootCmd
}

type runner func(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
