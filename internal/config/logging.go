// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogging points the global zerolog logger at stdout, or at a rotating
// file when logPath is set.
func (c *AppConfig) SetupLogging() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	writer, cleanup, err := c.logWriter()
	if err != nil {
		return err
	}

	if c.logCleanup != nil {
		c.logCleanup()
	}
	c.logCleanup = cleanup

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	setLogLevel(c.Config.LogLevel)
	return nil
}

// CloseLogs stops config reloads and releases the log file, if any.
func (c *AppConfig) CloseLogs() {
	c.mu.Lock()
	reload := c.reload
	c.reload = nil
	c.mu.Unlock()
	if reload != nil {
		reload.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logCleanup != nil {
		c.logCleanup()
		c.logCleanup = nil
	}
}

func (c *AppConfig) logWriter() (io.Writer, func(), error) {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}

	path := strings.TrimSpace(c.Config.LogPath)
	if path == "" {
		return console, nil, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.dataDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	maxSize := c.Config.LogMaxSize
	if maxSize <= 0 {
		maxSize = 50
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: max(c.Config.LogMaxBackups, 0),
	}

	return zerolog.MultiLevelWriter(console, rotator), func() { _ = rotator.Close() }, nil
}

func setLogLevel(level string) {
	zerolog.SetGlobalLevel(parseLogLevel(level))
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
