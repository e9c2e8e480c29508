// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterByDuration(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ID: "short", Duration: 60},
		{ID: "mid", Duration: 600},
		{ID: "long", Duration: 3600},
		{ID: "unknown"},
	}

	tests := []struct {
		name string
		min  int
		max  int
		want []string
	}{
		{name: "unbounded", want: []string{"short", "mid", "long", "unknown"}},
		{name: "min only", min: 5, want: []string{"mid", "long"}},
		{name: "max only", max: 10, want: []string{"short", "mid", "unknown"}},
		{name: "window", min: 2, max: 30, want: []string{"mid"}},
		{name: "inclusive bounds", min: 1, max: 1, want: []string{"short"}},
		{name: "nothing survives", min: 120, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := FilterByDuration(items, tt.min, tt.max)
			ids := make([]string, 0, len(got))
			for _, item := range got {
				ids = append(ids, item.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestParseResults(t *testing.T) {
	t.Parallel()

	raw := `{
		"_type": "playlist",
		"id": "lofi",
		"entries": [
			{"id": "abc", "title": "First", "duration": 245.0, "uploader": "Chan", "webpage_url": "https://www.youtube.com/watch?v=abc"},
			null,
			{"id": "", "title": "broken"},
			{"id": "def", "title": "Live", "duration": null, "uploader": "Chan", "url": "https://youtu.be/def"}
		]
	}`

	items, err := parseResults([]byte(raw))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, Item{
		ID:       "abc",
		Title:    "First",
		Duration: 245,
		Uploader: "Chan",
		URL:      "https://www.youtube.com/watch?v=abc",
	}, items[0])
	assert.Equal(t, "def", items[1].ID)
	assert.Zero(t, items[1].Duration)
	assert.Equal(t, "https://youtu.be/def", items[1].URL)

	items, err = parseResults([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = parseResults([]byte("not json"))
	require.Error(t, err)
}

func TestSearchTerm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ytsearch10:lofi beats", searchTerm("  lofi beats ", 10))
	assert.Equal(t, "ytsearch1:x", searchTerm("x", 0))
}

func TestNewYTDLP(t *testing.T) {
	t.Parallel()

	y, err := NewYTDLP("", `--proxy "socks5://127.0.0.1:1080" --geo-bypass`)
	require.NoError(t, err)
	assert.Equal(t, "yt-dlp", y.executable)
	assert.Equal(t, []string{"--proxy", "socks5://127.0.0.1:1080", "--geo-bypass"}, y.extraArgs)

	_, err = NewYTDLP("/usr/bin/yt-dlp", `--proxy "unterminated`)
	require.Error(t, err)
}

func TestYTDLPEmptyQuery(t *testing.T) {
	t.Parallel()

	y, err := NewYTDLP("/nonexistent/yt-dlp", "")
	require.NoError(t, err)

	items, err := y.Search(t.Context(), "   ", "", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}
