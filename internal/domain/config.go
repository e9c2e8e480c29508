// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	APIToken      string `toml:"apiToken" mapstructure:"apiToken"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`
	DatabasePath  string `toml:"databasePath" mapstructure:"databasePath"`

	CORSAllowedOrigins []string `toml:"corsAllowedOrigins" mapstructure:"corsAllowedOrigins"`

	// DownloadRoot is the directory that job folders are created under.
	DownloadRoot string `toml:"downloadRoot" mapstructure:"downloadRoot"`

	// Scheduler cadence, in seconds.
	PollInterval   int `toml:"pollInterval" mapstructure:"pollInterval"`
	SeriesInterval int `toml:"seriesInterval" mapstructure:"seriesInterval"`

	ResolveLimit           int `toml:"resolveLimit" mapstructure:"resolveLimit"`
	SeriesLimit            int `toml:"seriesLimit" mapstructure:"seriesLimit"`
	MaxConcurrentDownloads int `toml:"maxConcurrentDownloads" mapstructure:"maxConcurrentDownloads"`
	FetchRetries           int `toml:"fetchRetries" mapstructure:"fetchRetries"`

	YtdlpPath      string `toml:"ytdlpPath" mapstructure:"ytdlpPath"`
	YtdlpExtraArgs string `toml:"ytdlpExtraArgs" mapstructure:"ytdlpExtraArgs"`

	// NotificationURLs are shoutrrr service URLs told about finished jobs.
	NotificationURLs []string `toml:"notificationUrls" mapstructure:"notificationUrls"`
	// NotificationEvents limits which events are sent; empty sends all.
	NotificationEvents []string `toml:"notificationEvents" mapstructure:"notificationEvents"`

	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	PprofEnabled bool   `toml:"pprofEnabled" mapstructure:"pprofEnabled"`
	PprofHost    string `toml:"pprofHost" mapstructure:"pprofHost"`
	PprofPort    int    `toml:"pprofPort" mapstructure:"pprofPort"`
}

// PollDuration returns the scheduler poll interval.
func (c *Config) PollDuration() time.Duration {
	return secondsOr(c.PollInterval, 5*time.Second)
}

// SeriesDuration returns the sleep between series monitor passes.
func (c *Config) SeriesDuration() time.Duration {
	return secondsOr(c.SeriesInterval, 5*time.Minute)
}

func secondsOr(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.DownloadRoot) == "" {
		return errors.New("downloadRoot is required")
	}
	if c.MetricsEnabled && (c.MetricsPort <= 0 || c.MetricsPort > 65535) {
		return fmt.Errorf("invalid metricsPort %d", c.MetricsPort)
	}
	if c.MaxConcurrentDownloads < 0 {
		return fmt.Errorf("maxConcurrentDownloads must not be negative, got %d", c.MaxConcurrentDownloads)
	}
	return nil
}
