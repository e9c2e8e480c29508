// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/tubarr/internal/events"
	"github.com/autobrr/tubarr/internal/models"
	"github.com/autobrr/tubarr/internal/services/jobs"
)

// RunJobsCommand manages jobs directly in the database. A running server
// picks changes up on its next poll.
func RunJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage jobs",
	}

	cmd.AddCommand(
		runJobsAddCommand(),
		runJobsListCommand(),
		runJobsGetCommand(),
		runJobsCancelCommand(),
		runJobsImportCommand(),
	)
	return cmd
}

// withJobs opens the store for the duration of fn.
func withJobs(cmd *cobra.Command, fn func(svc *jobs.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(jobs.NewService(store, nil, events.Discard))
}

func runJobsAddCommand() *cobra.Command {
	var (
		sub    jobs.Submission
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "add <query>",
		Short: "Submit a search query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub.Query = strings.Join(args, " ")

			return withJobs(cmd, func(svc *jobs.Service) error {
				job, err := svc.Submit(cmd.Context(), sub)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d created (%s) -> %s\n", job.ID, job.Status, job.FolderName)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&sub.IsSeries, "series", false, "queue every search result instead of the best match")
	cmd.Flags().BoolVar(&sub.AlwaysSeries, "always", false, "keep discovering new items (only with --series)")
	cmd.Flags().IntVar(&sub.MinLength, "min", 0, "minimum duration in minutes, 0 for no bound")
	cmd.Flags().IntVar(&sub.MaxLength, "max", 0, "maximum duration in minutes, 0 for no bound")
	cmd.Flags().StringVar(&sub.Language, "language", "", "preferred metadata language, e.g. en")
	cmd.Flags().StringVar(&sub.FolderName, "folder", "", "folder under the download root (default: slug of the query)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")

	return cmd
}

func runJobsListCommand() *cobra.Command {
	var (
		status string
		parent int64
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := models.JobFilter{Limit: limit}
			if status != "" {
				parsed, err := models.ParseJobStatus(status)
				if err != nil {
					return err
				}
				filter.Status = parsed
			}
			if parent > 0 {
				filter.ParentID = &parent
			}

			return withJobs(cmd, func(svc *jobs.Service) error {
				list, err := svc.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				return printJobTable(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|waiting|queued|running|done|failed|cancelled|active)")
	cmd.Flags().Int64Var(&parent, "parent", 0, "only children of this series job")
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")

	return cmd
}

func runJobsGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			return withJobs(cmd, func(svc *jobs.Service) error {
				job, err := svc.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), job)
			})
		},
	}
	return cmd
}

func runJobsCancelCommand() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			return withJobs(cmd, func(svc *jobs.Service) error {
				if err := svc.Cancel(cmd.Context(), id, cascade); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %d cancelled\n", id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "also cancel children that have not started")
	return cmd
}

// importFile accepts either a bare list of submissions or a document with a
// top-level jobs key.
type importFile struct {
	Jobs []jobs.Submission `yaml:"jobs"`
}

func parseImport(data []byte) ([]jobs.Submission, error) {
	var doc importFile
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Jobs) > 0 {
		return doc.Jobs, nil
	}

	var list []jobs.Submission
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}
	if len(list) == 0 {
		return nil, errors.New("import file contains no jobs")
	}
	return list, nil
}

func runJobsImportCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Submit every job listed in a YAML file (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read import file: %w", err)
			}

			subs, err := parseImport(data)
			if err != nil {
				return err
			}

			return withJobs(cmd, func(svc *jobs.Service) error {
				results, err := svc.Import(cmd.Context(), subs)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), results)
				}

				failed := 0
				for _, r := range results {
					if r.Error != "" {
						failed++
						fmt.Fprintf(cmd.OutOrStdout(), "skipped %q: %s\n", r.Query, r.Error)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "job %d: %s\n", r.Job.ID, r.Query)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d jobs\n", len(results)-failed, len(results))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	return cmd
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", raw)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobTable(w io.Writer, list []*models.Job) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPARENT\tITEM\tFOLDER\tQUERY")
	for _, job := range list {
		parent := "-"
		if job.ParentID != nil {
			parent = strconv.FormatInt(*job.ParentID, 10)
		}
		item := job.ExternalItemID
		if item == "" {
			item = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", job.ID, job.Status, parent, item, job.FolderName, job.Query)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
