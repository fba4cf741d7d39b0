package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sprintboard/internal/seed"
)

const defaultFixtures = "config/seed.yaml"

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [fixtures.yaml]",
		Short: "Load demo users, tasks, sprints and roles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultFixtures
			if len(args) == 1 {
				path = args[0]
			}

			fixtures, err := seed.Load(path)
			if err != nil {
				return err
			}

			_, log, store, err := bootstrap("seed")
			if err != nil {
				return err
			}
			defer store.Close()

			sum, err := fixtures.Apply(context.Background(), store, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d tasks, %d sprints, %d roles\n",
				sum.Users, sum.Tasks, sum.Sprints, sum.Roles)
			return nil
		},
	}
}
