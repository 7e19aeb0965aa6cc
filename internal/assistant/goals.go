// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CommonGoals are matched by keyword when model-based detection yields nothing.
var CommonGoals = []string{
	"weight loss",
	"longevity",
	"anti aging",
	"muscle gain",
	"hair loss",
	"sleep",
	"energy",
	"mental clarity",
	"stress reduction",
	"immune support",
}

const maxGoals = 10

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*?\]`)

// parseGoals accepts {"goals": [...]}, a bare array, or text containing an
// array. ok is false when nothing parseable was found.
func parseGoals(text string) (goals []string, ok bool) {
	text = strings.TrimSpace(text)

	var obj struct {
		Goals []string `json:"goals"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj.Goals != nil {
		return normalizeGoals(obj.Goals), true
	}

	var arr []string
	if err := json.Unmarshal([]byte(text), &arr); err == nil {
		return normalizeGoals(arr), true
	}

	if m := jsonArrayPattern.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), &arr); err == nil {
			return normalizeGoals(arr), true
		}
	}
	return nil, false
}

// keywordGoals returns the common goals mentioned in text.
func keywordGoals(text string) []string {
	text = strings.ToLower(text)
	// "anti-aging" and "anti aging" both count.
	text = strings.ReplaceAll(text, "-", " ")

	var out []string
	for _, g := range CommonGoals {
		if strings.Contains(text, g) {
			out = append(out, g)
		}
	}
	return out
}

// normalizeGoals lowercases, trims, dedupes and caps the list.
func normalizeGoals(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, g := range in {
		g = strings.Join(strings.Fields(strings.ToLower(g)), " ")
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
		if len(out) == maxGoals {
			break
		}
	}
	return out
}
