package cli

import (
	"fmt"

	"github.com/smallbiznis/creditledger/internal/migration"
	"github.com/spf13/cobra"
)

func newMigrateCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := migration.Migrate(a.db, a.cfg.DBType); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.DBType)
			return err
		}),
	}
}
