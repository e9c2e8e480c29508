// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/tubarr/internal/services/notifications"
)

func RunNotifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification tools",
	}

	cmd.AddCommand(runNotifyTestCommand())
	return cmd
}

func runNotifyTestCommand() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Send a test message to every configured notification URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			svc, err := notifications.NewService(cfg.Config.NotificationURLs, cfg.Config.NotificationEvents, nil, log.Logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := svc.SendTest(ctx, "tubarr test notification", message); err != nil {
				return fmt.Errorf("test notification failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Test notification sent to %d target(s)\n", len(cfg.Config.NotificationURLs))
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "Notifications are working.", "message body")
	return cmd
}
