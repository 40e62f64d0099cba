package main

import (
	"context"
	"fmt"
	"time"

	"growtube/internal/config"
	"growtube/internal/db"

	"github.com/spf13/cobra"
)

func newDBCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the Postgres schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create tables and seed the catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := config.DatabaseURLFromEnv()
				if err != nil {
					return err
				}
				logger := flags.logger(false)
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()
				pool, err := db.Connect(ctx, url)
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := db.ApplySchema(ctx, pool); err != nil {
					return err
				}
				logger.Info("schema applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the schema SQL",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := fmt.Fprint(cmd.OutOrStdout(), db.Schema())
				return err
			},
		},
	)
	return cmd
}
