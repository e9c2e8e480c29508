// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads config.toml through viper, applies TUBARR__ env
// overrides and owns the global logger setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/tubarr/internal/domain"
	"github.com/autobrr/tubarr/pkg/debounce"
)

const (
	appName          = "tubarr"
	configFileName   = "config.toml"
	databaseFileName = "tubarr.db"
	envPrefix        = "TUBARR__"

	reloadDelay = 500 * time.Millisecond
)

type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
	dataDir    string

	mu         sync.Mutex
	logCleanup func()
	reload     *debounce.Debouncer
}

// New loads the configuration from configDirOrPath, which may name either
// a directory or a .toml file. An empty value uses the default config dir.
// A missing file is created with commented defaults.
func New(configDirOrPath string) (*AppConfig, error) {
	configPath := resolveConfigPath(configDirOrPath)

	if err := ensureConfigFile(configPath); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	c := &AppConfig{
		Config:     cfg,
		viper:      v,
		configPath: configPath,
	}
	c.dataDir = c.resolveDataDir()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return c, nil
}

func resolveConfigPath(configDirOrPath string) string {
	p := strings.TrimSpace(configDirOrPath)
	if p == "" {
		return filepath.Join(getDefaultConfigDir(), configFileName)
	}
	if strings.EqualFold(filepath.Ext(p), ".toml") {
		return p
	}
	return filepath.Join(p, configFileName)
}

// getDefaultConfigDir returns the directory config.toml lives in when none
// is given. XDG_CONFIG_HOME=/config is the container layout and is used
// as-is.
func getDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if filepath.Clean(xdg) == "/config" {
			return "/config"
		}
		return filepath.Join(xdg, appName)
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		log.Warn().Err(err).Msg("Could not determine user config dir, using working directory")
		return "."
	}
	return filepath.Join(dir, appName)
}

// defaults lists every config key with its default. The camelCase keys
// double as the source for env variable names.
var defaults = []struct {
	key   string
	value any
}{
	{"host", "127.0.0.1"},
	{"port", 7478},
	{"baseUrl", "/"},
	{"apiToken", ""},
	{"logLevel", "INFO"},
	{"logPath", ""},
	{"logMaxSize", 50},
	{"logMaxBackups", 3},
	{"dataDir", ""},
	{"databasePath", ""},
	{"corsAllowedOrigins", []string{}},
	{"downloadRoot", "downloads"},
	{"pollInterval", 5},
	{"seriesInterval", 300},
	{"resolveLimit", 10},
	{"seriesLimit", 20},
	{"maxConcurrentDownloads", 1},
	{"fetchRetries", 3},
	{"ytdlpPath", "yt-dlp"},
	{"ytdlpExtraArgs", ""},
	{"notificationUrls", []string{}},
	{"notificationEvents", []string{}},
	{"metricsEnabled", false},
	{"metricsHost", "127.0.0.1"},
	{"metricsPort", 9074},
	{"metricsBasicAuthUsers", ""},
	{"pprofEnabled", false},
	{"pprofHost", "127.0.0.1"},
	{"pprofPort", 6060},
}

func setDefaults(v *viper.Viper) {
	for _, d := range defaults {
		v.SetDefault(d.key, d.value)
	}
}

// bindEnv maps every known key to TUBARR__UPPER_SNAKE, so databasePath is
// read from TUBARR__DATABASE_PATH.
func bindEnv(v *viper.Viper) error {
	for _, d := range defaults {
		if err := v.BindEnv(d.key, envName(d.key)); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", d.key, err)
		}
	}
	return nil
}

// envName converts a camelCase config key to its environment variable.
func envName(key string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	for i, r := range key {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func (c *AppConfig) resolveDataDir() string {
	if dir := strings.TrimSpace(c.Config.DataDir); dir != "" {
		return dir
	}
	return filepath.Dir(c.configPath)
}

// ConfigPath returns the config file in use.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// GetDataDir returns the directory relative paths are resolved against.
func (c *AppConfig) GetDataDir() string {
	return c.dataDir
}

// GetDatabasePath returns the sqlite file path. It defaults to tubarr.db in
// the data dir, which is the config dir unless dataDir is set.
func (c *AppConfig) GetDatabasePath() string {
	if p := strings.TrimSpace(c.Config.DatabasePath); p != "" {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.dataDir, p)
	}
	return filepath.Join(c.dataDir, databaseFileName)
}

// GetDownloadRoot resolves downloadRoot against the data dir.
func (c *AppConfig) GetDownloadRoot() string {
	root := strings.TrimSpace(c.Config.DownloadRoot)
	if filepath.IsAbs(root) {
		return root
	}
	return filepath.Join(c.dataDir, root)
}

// Watch reloads the log level when config.toml changes. Other settings
// take effect on restart. Editors emit several write events per save, so
// reloads are coalesced.
func (c *AppConfig) Watch() {
	c.mu.Lock()
	if c.reload == nil {
		c.reload = debounce.New(reloadDelay)
	}
	reload := c.reload
	c.mu.Unlock()

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		reload.Do(func() { c.reloadLogLevel(e.Name) })
	})
	c.viper.WatchConfig()
}

func (c *AppConfig) reloadLogLevel(file string) {
	level := c.viper.GetString("logLevel")

	c.mu.Lock()
	changed := !strings.EqualFold(level, c.Config.LogLevel)
	c.Config.LogLevel = level
	c.mu.Unlock()

	if changed {
		setLogLevel(level)
		log.Info().Str("file", file).Str("level", level).Msg("Log level updated from config file")
	}
}
