// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/autobrr/tubarr/internal/models"
)

func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	cmd.AddCommand(runDBCheckCommand())
	return cmd
}

func runDBCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open and migrate the database, then print job counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			db, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("database ping failed: %w", err)
			}

			counts, err := store.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", cfg.GetDatabasePath())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			total := 0
			for _, status := range models.AllJobStatuses() {
				fmt.Fprintf(tw, "%s\t%d\n", status, counts[status])
				total += counts[status]
			}
			fmt.Fprintf(tw, "total\t%d\n", total)
			return tw.Flush()
		},
	}
}
