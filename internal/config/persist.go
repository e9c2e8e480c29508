// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

var defaultConfigTemplate = template.Must(template.New("config").Parse(`# config.toml - Auto-generated on first run

# Hostname / IP
# Default: "127.0.0.1"
host = "{{ .Host }}"

# Port
# Default: 7478
port = {{ .Port }}

# Base URL the UI and API are served under
# Default: "/"
#baseUrl = "/"

# API token. When set, requests must send it as X-API-Token or ?apikey=
#apiToken = ""

# Log file path
# If not defined, logs to stdout
# Optional
#logPath = "log/tubarr.log"

# Log rotation
# Maximum log file size in megabytes before rotation
# Default: 50
#logMaxSize = 50

# Number of rotated log files to retain (0 keeps all)
# Default: 3
#logMaxBackups = 3

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Database file. Defaults to tubarr.db next to this file
#databasePath = ""

# Directory job folders are created under
# Default: "downloads"
downloadRoot = "downloads"

# Scheduler poll interval in seconds
# Default: 5
#pollInterval = 5

# Seconds between discovery passes of always-series jobs
# Default: 300
#seriesInterval = 300

# Search results considered when resolving a job
# Default: 10
#resolveLimit = 10

# Search results considered per series discovery pass
# Default: 20
#seriesLimit = 20

# Downloads running at the same time
# Default: 1
#maxConcurrentDownloads = 1

# Attempts per download before the job fails
# Default: 3
#fetchRetries = 3

# yt-dlp executable and extra arguments passed to every invocation
#ytdlpPath = "yt-dlp"
#ytdlpExtraArgs = "--cookies /config/cookies.txt"

# Notification targets (shoutrrr URLs) told about finished and failed jobs
#notificationUrls = ["discord://token@id"]
# Options: "job_done", "job_failed", "series_item_found". Empty sends all
#notificationEvents = ["job_done", "job_failed"]

# Prometheus metrics
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9074
#metricsBasicAuthUsers = "user:password"

# Go pprof endpoints, for debugging only
#pprofEnabled = false
#pprofHost = "127.0.0.1"
#pprofPort = 6060
`))

// ensureConfigFile writes the commented default config when path does not
// exist yet.
func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	var buf bytes.Buffer
	data := struct {
		Host string
		Port int
	}{Host: "127.0.0.1", Port: 7478}
	if os.Getenv("XDG_CONFIG_HOME") == "/config" {
		// containers need to listen on all interfaces
		data.Host = "0.0.0.0"
	}
	if err := defaultConfigTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}
	return nil
}

// UpdateLogSettings applies new log settings and writes them back to
// config.toml, keeping the rest of the file intact.
func (c *AppConfig) UpdateLogSettings(level, path string, maxSize, maxBackups int) error {
	content, err := os.ReadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	updated := updateLogSettingsInTOML(string(content), level, path, maxSize, maxBackups)
	if err := os.WriteFile(c.configPath, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	c.mu.Lock()
	c.Config.LogLevel = level
	c.Config.LogPath = path
	c.Config.LogMaxSize = maxSize
	c.Config.LogMaxBackups = maxBackups
	c.mu.Unlock()

	return c.SetupLogging()
}

var tableHeader = regexp.MustCompile(`^\s*\[`)

// updateLogSettingsInTOML rewrites the log keys where they already appear,
// commented or not. Keys that are missing are added before the first table.
func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	lines := strings.Split(content, "\n")

	settings := []struct {
		key   string
		value string
	}{
		{"logLevel", strconv.Quote(level)},
		{"logPath", strconv.Quote(path)},
		{"logMaxSize", strconv.Itoa(maxSize)},
		{"logMaxBackups", strconv.Itoa(maxBackups)},
	}

	var missing []string
	for _, s := range settings {
		line := s.key + " = " + s.value
		if s.key == "logPath" && path == "" {
			line = "#" + line
		}
		if !replaceKey(lines, s.key, line) {
			missing = append(missing, line)
		}
	}
	if len(missing) == 0 {
		return strings.Join(lines, "\n")
	}

	insertAt := len(lines)
	for i, line := range lines {
		if tableHeader.MatchString(line) {
			insertAt = i
			break
		}
	}

	block := append([]string{"# Log settings"}, missing...)
	block = append(block, "")
	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:insertAt]...)
	out = append(out, block...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n")
}

func replaceKey(lines []string, key, replacement string) bool {
	re := regexp.MustCompile(`^\s*#?\s*` + regexp.QuoteMeta(key) + `\s*=`)
	for i, line := range lines {
		if tableHeader.MatchString(line) {
			return false
		}
		if re.MatchString(line) {
			lines[i] = replacement
			return true
		}
	}
	return false
}

// LogSettings returns the current log settings.
func (c *AppConfig) LogSettings() (level, path string, maxSize, maxBackups int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Config.LogLevel, c.Config.LogPath, c.Config.LogMaxSize, c.Config.LogMaxBackups
}
