// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fetch downloads resolved media items to disk.
package fetch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/avast/retry-go"
	"github.com/lrstanley/go-ytdlp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFormat         = "bestvideo[ext=mp4]+bestaudio/best/best"
	DefaultOutputTemplate = "%(playlist_index)s - %(title)s.%(ext)s"
	DefaultRetries        = 3

	watchURL         = "https://www.youtube.com/watch?v="
	progressInterval = 500 * time.Millisecond
)

// Progress is one progress report for an in-flight download. Field names
// follow yt-dlp's progress hook so clients can consume it unchanged.
type Progress struct {
	Status          string  `json:"status"`
	Filename        string  `json:"filename,omitempty"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
	Percent         float64 `json:"percent"`
	Speed           float64 `json:"speed,omitempty"`
	ETA             int     `json:"eta,omitempty"`
}

// Fetcher downloads itemID into destDir. onProgress may be nil and may be
// called from another goroutine.
type Fetcher interface {
	Fetch(ctx context.Context, itemID, destDir string, onProgress func(Progress)) error
}

type Options struct {
	Executable string
	ExtraArgs  string
	Format     string
	Template   string
	// Retries is the total number of attempts per fetch.
	Retries    int
	RetryDelay time.Duration
}

// YTDLP fetches items with the yt-dlp binary.
type YTDLP struct {
	executable string
	extraArgs  []string
	format     string
	template   string
	retries    uint
	retryDelay time.Duration
}

func NewYTDLP(opts Options) (*YTDLP, error) {
	extra, err := shellquote.Split(opts.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid yt-dlp extra args: %w", err)
	}

	y := &YTDLP{
		executable: strings.TrimSpace(opts.Executable),
		extraArgs:  extra,
		format:     opts.Format,
		template:   opts.Template,
		retries:    DefaultRetries,
		retryDelay: opts.RetryDelay,
	}

	if y.executable == "" {
		y.executable = "yt-dlp"
	}
	if y.format == "" {
		y.format = DefaultFormat
	}
	if y.template == "" {
		y.template = DefaultOutputTemplate
	}
	if opts.Retries > 0 {
		y.retries = uint(opts.Retries)
	}
	if y.retryDelay <= 0 {
		y.retryDelay = 2 * time.Second
	}

	return y, nil
}

// ItemURL returns the watch URL for an item id. Ids that already are URLs
// are returned unchanged.
func ItemURL(itemID string) string {
	itemID = strings.TrimSpace(itemID)
	if strings.HasPrefix(itemID, "http://") || strings.HasPrefix(itemID, "https://") {
		return itemID
	}
	return watchURL + itemID
}

func (y *YTDLP) command(destDir string, onProgress func(Progress)) *ytdlp.Command {
	cmd := ytdlp.New().
		SetExecutable(y.executable).
		Format(y.format).
		Output(filepath.Join(destDir, y.template)).
		NoPlaylist()

	if onProgress != nil {
		cmd = cmd.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			onProgress(progressFromUpdate(update))
		})
	}

	return cmd
}

func (y *YTDLP) Fetch(ctx context.Context, itemID, destDir string, onProgress func(Progress)) error {
	if strings.TrimSpace(itemID) == "" {
		return errors.New("item id is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return errors.New("destination directory is required")
	}

	url := ItemURL(itemID)
	args := append(append([]string{}, y.extraArgs...), url)

	err := retry.Do(
		func() error {
			_, err := y.command(destDir, onProgress).Run(ctx, args...)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(y.retries),
		retry.Delay(y.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Str("item", itemID).Uint("attempt", n+1).Msg("fetch attempt failed, retrying")
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "fetch %s", url)
	}

	return nil
}

func progressFromUpdate(update ytdlp.ProgressUpdate) Progress {
	p := Progress{
		Status:          string(update.Status),
		Filename:        update.Filename,
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
	}

	if p.TotalBytes > 0 {
		p.Percent = float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
	}

	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			p.Speed = float64(p.DownloadedBytes) / elapsed
		}
	}

	if eta := update.ETA(); eta > 0 {
		p.ETA = int(eta.Seconds())
	}

	return p
}
