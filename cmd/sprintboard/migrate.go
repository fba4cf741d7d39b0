package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
		Long: `Apply all pending migrations. Opening the database already migrates
it up, so this mainly reports the resulting version.

Examples:
  sprintboard migrate
  sprintboard migrate --down
  sprintboard migrate version`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, store, err := bootstrap("migrate")
			if err != nil {
				return err
			}
			defer store.Close()

			if down {
				if err := store.MigrateDown(); err != nil {
					return err
				}
				log.Infow("schema rolled back")
				return nil
			}
			if err := store.MigrateUp(); err != nil {
				return err
			}
			version, dirty, err := store.MigrationVersion()
			if err != nil {
				return err
			}
			log.Infow("schema up to date", "version", version, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, store, err := bootstrap("migrate")
			if err != nil {
				return err
			}
			defer store.Close()

			version, dirty, err := store.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	})
	return cmd
}
