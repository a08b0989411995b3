package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/smallbiznis/creditledger/internal/seed"
	"github.com/spf13/cobra"
)

func newPricingCmd(run runner, asJSON func() bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect and seed pricing rules",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List active pricing rules",
			Args:  cobra.NoArgs,
			RunE: run(func(cmd *cobra.Command, a *app, _ []string) error {
				rules, err := a.pricing.ListActive(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON() {
					return writeJSON(cmd, rules)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tPROVIDER\tMODEL\tINPUT\tOUTPUT\tBASE")
				for _, rule := range rules {
					base := "-"
					if rule.BasePrice.Valid {
						base = rule.BasePrice.Decimal.String()
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						rule.ID.String(), rule.Provider, rule.ModelName,
						rule.InputTokenPrice.String(), rule.OutputTokenPrice.String(), base)
				}
				return w.Flush()
			}),
		},
		&cobra.Command{
			Use:   "seed <file.toml>",
			Short: "Create pricing rules from a TOML file, skipping unchanged ones",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
				file, err := seed.LoadPricingFile(args[0])
				if err != nil {
					return err
				}
				result, err := seed.ApplyPricing(cmd.Context(), a.pricing, file)
				if err != nil {
					return err
				}
				if asJSON() {
					return writeJSON(cmd, result)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %d, unchanged %d\n", result.Created, result.Unchanged)
				return err
			}),
		},
	)

	return cmd
}
