package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vporoshin/flowtime/internal/ui"
)

var migrateDownTo int64

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Brings the database schema up to the latest embedded migration.
With --down-to, rolls back to the given version instead.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if cmd.Flags().Changed("down-to") {
			if err := st.MigrateDownTo(ctx, migrateDownTo); err != nil {
				return err
			}
			fmt.Printf("%s schema rolled back to version %d\n", ui.RenderPassIcon(), migrateDownTo)
			return nil
		}

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		fmt.Printf("%s schema is up to date\n", ui.RenderPassIcon())
		return nil
	},
}

func init() {
	migrateCmd.Flags().Int64Var(&migrateDownTo, "down-to", 0, "Roll back migrations down to this version")
	rootCmd.AddCommand(migrateCmd)
}
