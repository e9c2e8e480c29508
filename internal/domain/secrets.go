// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"strings"
)

const RedactedStr = "<redacted>"

// RedactString hides a secret; empty stays empty so unset values remain
// recognisable in logs.
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return RedactedStr
}

// RedactURL keeps only the scheme of a notification URL. Shoutrrr URLs carry
// tokens in the user, host and path parts alike.
func RedactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok || scheme == "" {
		return RedactedStr
	}
	return scheme + "://" + RedactedStr
}

// Redacted returns a copy of the config that is safe to log.
func (c *Config) Redacted() Config {
	out := *c
	out.APIToken = RedactString(c.APIToken)
	out.MetricsBasicAuthUsers = RedactString(c.MetricsBasicAuthUsers)
	out.YtdlpExtraArgs = redactCookieArgs(c.YtdlpExtraArgs)

	if len(c.NotificationURLs) > 0 {
		out.NotificationURLs = make([]string, len(c.NotificationURLs))
		for i, u := range c.NotificationURLs {
			out.NotificationURLs[i] = RedactURL(u)
		}
	}
	out.CORSAllowedOrigins = append([]string(nil), c.CORSAllowedOrigins...)
	out.NotificationEvents = append([]string(nil), c.NotificationEvents...)

	return out
}

// redactCookieArgs hides credentials passed through to yt-dlp.
func redactCookieArgs(args string) string {
	if args == "" {
		return ""
	}
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "--password", "-p", "--video-password", "--ap-password", "--add-header":
			if i+1 < len(fields) {
				fields[i+1] = RedactedStr
				i++
			}
		}
	}
	return strings.Join(fields, " ")
}
