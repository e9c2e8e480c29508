// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package slug turns free-form queries into filesystem friendly folder names.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest slug Make will return.
const MaxLength = 50

var ligatures = strings.NewReplacer(
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"ß", "ss",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
)

func stripMarks(s string) string {
	// transform.Chain is stateful; build per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// Make lowercases s, folds diacritics to ASCII, collapses every run of
// non-alphanumerics into a single dash and truncates to MaxLength.
// It returns "" when nothing usable remains.
func Make(s string) string {
	s = strings.ToLower(stripMarks(s))

	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if len(out) > MaxLength {
		out = strings.TrimRight(out[:MaxLength], "-")
	}
	return out
}
