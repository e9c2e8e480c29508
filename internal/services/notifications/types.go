// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"fmt"
	"slices"
	"strings"
)

type EventType string

const (
	EventJobDone         EventType = "job_done"
	EventJobFailed       EventType = "job_failed"
	EventSeriesItemFound EventType = "series_item_found"
)

// eventOrder is the canonical order used when normalizing filters.
var eventOrder = []EventType{EventJobDone, EventJobFailed, EventSeriesItemFound}

func (t EventType) Valid() bool {
	return slices.Contains(eventOrder, t)
}

// Title is the notification title for the event.
func (t EventType) Title() string {
	switch t {
	case EventJobDone:
		return "Download finished"
	case EventJobFailed:
		return "Download failed"
	case EventSeriesItemFound:
		return "New series item"
	default:
		return string(t)
	}
}

// NormalizeEventTypes trims, dedupes and orders a notificationEvents
// filter. An empty result means every event is sent.
func NormalizeEventTypes(input []string) ([]string, error) {
	seen := make(map[EventType]bool, len(input))
	for _, raw := range input {
		value := EventType(strings.ToLower(strings.TrimSpace(raw)))
		if value == "" {
			continue
		}
		if !value.Valid() {
			return nil, fmt.Errorf("unknown event type: %s", raw)
		}
		seen[value] = true
	}
	if len(seen) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(seen))
	for _, t := range eventOrder {
		if seen[t] {
			out = append(out, string(t))
		}
	}
	return out, nil
}
