package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/creditledger/internal/billing/domain"
	"github.com/smallbiznis/creditledger/pkg/money"
	"github.com/spf13/cobra"
)

func newBalanceCmd(run runner, asJSON func() bool) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show a user's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
			balance, err := a.ledger.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON() {
				return writeJSON(cmd, map[string]any{"user_id": args[0], "balance": balance})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], balance.String())
			return err
		}),
	}
}

func newCreditCmd(run runner, asJSON func() bool) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "credit <user-id> <amount>",
		Short: "Add purchased credits to a user's account",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
			amount, err := money.Parse(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			desc := strings.TrimSpace(description)
			if desc == "" {
				desc = domain.DefaultCreditDescription
			}
			balance, err := a.ledger.Credit(cmd.Context(), args[0], amount, desc)
			if err != nil {
				return err
			}
			return printBalance(cmd, asJSON(), args[0], balance.String())
		}),
	}
	cmd.Flags().StringVar(&description, "description", "", "Transaction description")
	return cmd
}

func newAdjustCmd(run runner, asJSON func() bool) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "adjust <user-id> <signed-amount>",
		Short: "Post a signed balance correction",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
			desc := strings.TrimSpace(description)
			if desc == "" {
				return errors.New("--description is required")
			}
			amount, err := money.Parse(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			balance, err := a.ledger.Adjust(cmd.Context(), args[0], amount, desc)
			if err != nil {
				return err
			}
			return printBalance(cmd, asJSON(), args[0], balance.String())
		}),
	}
	cmd.Flags().StringVar(&description, "description", "", "Reason for the correction")
	return cmd
}

func newReconcileCmd(run runner, asJSON func() bool) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <user-id>",
		Short: "Compare a stored balance with the sum of its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
			result, err := a.ledger.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON() {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "user: %s\n", result.UserID)
			_, _ = fmt.Fprintf(out, "balance: %s\n", result.Balance.String())
			_, _ = fmt.Fprintf(out, "transactions: %d (sum %s)\n", result.TransactionCount, result.TransactionSum.String())
			_, _ = fmt.Fprintf(out, "drift: %s\n", result.Drift.String())
			if !result.Consistent {
				return fmt.Errorf("account %s drifted by %s", result.UserID, result.Drift.String())
			}
			return nil
		}),
	}
}

func printBalance(cmd *cobra.Command, asJSON bool, userID, balance string) error {
	if asJSON {
		return writeJSON(cmd, map[string]any{"user_id": userID, "balance": balance})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s balance: %s\n", userID, balance)
	return err
}
