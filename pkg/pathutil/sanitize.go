// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathutil turns user supplied names into safe relative paths.
package pathutil

import (
	"errors"
	"strings"
)

var ErrInvalidFolder = errors.New("invalid folder name")

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// SanitizePathSegment strips characters that are illegal in a file name on
// any common filesystem. The result is never empty.
func SanitizePathSegment(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`<>:"/\|?*`, r):
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimRight(b.String(), ". ")
	out = strings.TrimLeft(out, " ")
	if out == "" {
		return "_"
	}

	base, _, _ := strings.Cut(out, ".")
	if _, reserved := reservedNames[strings.ToUpper(base)]; reserved {
		out = "_" + out
	}
	return out
}

// SanitizeFolder cleans a slash separated relative folder. Both separators
// are accepted, empty segments are dropped and "." or ".." segments are
// rejected so the result always stays below the download root.
func SanitizeFolder(folder string) (string, error) {
	folder = strings.ReplaceAll(strings.TrimSpace(folder), `\`, "/")

	segments := make([]string, 0, strings.Count(folder, "/")+1)
	for _, seg := range strings.Split(folder, "/") {
		seg = strings.TrimSpace(seg)
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", ErrInvalidFolder
		}
		segments = append(segments, SanitizePathSegment(seg))
	}

	if len(segments) == 0 {
		return "", ErrInvalidFolder
	}
	return strings.Join(segments, "/"), nil
}
