// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autobrr/tubarr/internal/buildinfo"
	"github.com/autobrr/tubarr/internal/config"
	"github.com/autobrr/tubarr/internal/database"
	"github.com/autobrr/tubarr/internal/models"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tubarr",
		Short:         "Search, download and follow video series with yt-dlp",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config-dir", "", "config directory or path to config.toml (default $XDG_CONFIG_HOME/tubarr)")

	root.AddCommand(
		RunServeCommand(),
		RunJobsCommand(),
		RunNotifyCommand(),
		RunDBCommand(),
		RunVersionCommand(),
	)

	return root
}

func RunVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				out, err := buildinfo.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), buildinfo.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	configDir, err := cmd.Flags().GetString("config-dir")
	if err != nil {
		return nil, err
	}

	cfg, err := config.New(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// openStore opens (and migrates) the configured database. The caller closes
// the returned DB.
func openStore(cfg *config.AppConfig) (*database.DB, *models.JobStore, error) {
	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, models.NewJobStore(db), nil
}
