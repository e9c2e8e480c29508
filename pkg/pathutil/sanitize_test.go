// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePathSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple name", input: "Chillhop", expected: "Chillhop"},
		{name: "name with spaces", input: "Lofi Beats", expected: "Lofi Beats"},
		{name: "strips illegal chars", input: "Mix<>:\"/\\|?*Tape", expected: "MixTape"},
		{name: "strips control chars", input: "a\tb\x00c", expected: "abc"},
		{name: "removes trailing dots", input: "Volume...", expected: "Volume"},
		{name: "removes trailing spaces", input: "Volume   ", expected: "Volume"},
		{name: "Windows reserved name CON", input: "CON", expected: "_CON"},
		{name: "Windows reserved name with extension", input: "nul.txt", expected: "_nul.txt"},
		{name: "Windows reserved name COM1", input: "COM1", expected: "_COM1"},
		{name: "case insensitive reserved name", input: "lpt1", expected: "_lpt1"},
		{name: "reserved name not at start", input: "MyCON", expected: "MyCON"},
		{name: "empty string", input: "", expected: "_"},
		{name: "all illegal chars", input: "<>:\"/\\|?*", expected: "_"},
		{name: "mixed content", input: "Live [2024]!@#$%^&()", expected: "Live [2024]!@#$%^&()"},
		{name: "unicode characters preserved", input: "ローファイ", expected: "ローファイ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, SanitizePathSegment(tt.input))
		})
	}
}

func TestSanitizeFolder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "single segment", input: "music", want: "music"},
		{name: "nested", input: "music/chill", want: "music/chill"},
		{name: "surrounding slashes and spaces", input: " /music/chill/ ", want: "music/chill"},
		{name: "backslashes", input: `music\chill`, want: "music/chill"},
		{name: "collapses empty segments", input: "music//chill", want: "music/chill"},
		{name: "sanitizes segments", input: "music/what?", want: "music/what"},
		{name: "dots inside a name are fine", input: "vol..2", want: "vol..2"},
		{name: "parent traversal", input: "../etc", wantErr: true},
		{name: "nested traversal", input: "music/../../etc", wantErr: true},
		{name: "current dir", input: "./music", wantErr: true},
		{name: "only slashes", input: "///", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := SanitizeFolder(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidFolder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
