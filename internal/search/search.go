// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package search resolves free-text queries into concrete media items.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"
)

// Item is one candidate returned by a provider.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
	Uploader string `json:"uploader"`
	URL      string `json:"url"`
}

// Searcher returns up to limit candidates ranked best first. Callers treat an
// error the same as an empty result.
type Searcher interface {
	Search(ctx context.Context, query, language string, limit int) ([]Item, error)
}

// FilterByDuration drops items outside [minMinutes, maxMinutes]. A zero
// bound is unbounded; items of unknown duration count as 0 seconds.
func FilterByDuration(items []Item, minMinutes, maxMinutes int) []Item {
	if minMinutes <= 0 && maxMinutes <= 0 {
		return items
	}

	minSec := minMinutes * 60
	maxSec := maxMinutes * 60

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if minMinutes > 0 && item.Duration < minSec {
			continue
		}
		if maxMinutes > 0 && item.Duration > maxSec {
			continue
		}
		out = append(out, item)
	}
	return out
}

// YTDLP searches YouTube through the yt-dlp binary.
type YTDLP struct {
	executable string
	extraArgs  []string
}

// NewYTDLP builds a searcher. extraArgs is a shell-quoted string appended to
// every invocation.
func NewYTDLP(executable, extraArgs string) (*YTDLP, error) {
	args, err := shellquote.Split(extraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid yt-dlp extra args: %w", err)
	}

	if strings.TrimSpace(executable) == "" {
		executable = "yt-dlp"
	}

	return &YTDLP{executable: executable, extraArgs: args}, nil
}

func searchTerm(query string, limit int) string {
	if limit <= 0 {
		limit = 1
	}
	return fmt.Sprintf("ytsearch%d:%s", limit, strings.TrimSpace(query))
}

func (y *YTDLP) command(language string) *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(y.executable).
		SkipDownload().
		DumpSingleJSON().
		IgnoreErrors()

	if lang := strings.TrimSpace(language); lang != "" {
		cmd = cmd.ExtractorArgs("youtube:lang=" + lang)
	}

	return cmd
}

func (y *YTDLP) Search(ctx context.Context, query, language string, limit int) ([]Item, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	args := append(append([]string{}, y.extraArgs...), searchTerm(query, limit))

	res, err := y.command(language).Run(ctx, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "yt-dlp search %q", query)
	}

	items, err := parseResults([]byte(res.Stdout))
	if err != nil {
		return nil, errors.Wrap(err, "parse yt-dlp search output")
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items, nil
}

type searchEntry struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Duration   *float64 `json:"duration"`
	Uploader   string   `json:"uploader"`
	WebpageURL string   `json:"webpage_url"`
	URL        string   `json:"url"`
}

type searchResult struct {
	Entries []*searchEntry `json:"entries"`
}

func parseResults(raw []byte) ([]Item, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}

	var result searchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(result.Entries))
	for _, entry := range result.Entries {
		// ignore-errors leaves nulls for unavailable entries
		if entry == nil || entry.ID == "" {
			continue
		}

		item := Item{
			ID:       entry.ID,
			Title:    entry.Title,
			Uploader: entry.Uploader,
			URL:      entry.WebpageURL,
		}
		if item.URL == "" {
			item.URL = entry.URL
		}
		if entry.Duration != nil {
			item.Duration = int(*entry.Duration)
		}
		items = append(items, item)
	}

	return items, nil
}
