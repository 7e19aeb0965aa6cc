// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// PALETTE
// =============================================================================

var (
	emerald     = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	cyan        = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	rose        = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	roseDeep    = lipgloss.AdaptiveColor{Light: "#FFE4E6", Dark: "#881337"}
	amber       = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	textPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}
	textMuted   = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
	overlay     = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}
)

// Theme holds the styles the chat view uses.
type Theme struct {
	Header         lipgloss.Style
	Disclaimer     lipgloss.Style
	UserLabel      lipgloss.Style
	UserText       lipgloss.Style
	AssistantLabel lipgloss.Style
	Pending        lipgloss.Style
	Banner         lipgloss.Style
	Recommendation lipgloss.Style
	Input          lipgloss.Style
	Status         lipgloss.Style
	Spinner        lipgloss.Style
}

// NewTheme returns the default theme.
func NewTheme() Theme {
	return Theme{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(emerald).
			Padding(0, 1),
		Disclaimer: lipgloss.NewStyle().
			Foreground(textMuted).
			Italic(true).
			Padding(0, 1),
		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(cyan),
		UserText: lipgloss.NewStyle().
			Foreground(textPrimary).
			PaddingLeft(2),
		AssistantLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(emerald),
		Pending: lipgloss.NewStyle().
			Foreground(textMuted).
			PaddingLeft(2),
		Banner: lipgloss.NewStyle().
			Bold(true).
			Foreground(rose).
			Background(roseDeep).
			Padding(0, 1),
		Recommendation: lipgloss.NewStyle().
			Foreground(amber).
			PaddingLeft(2),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(overlay).
			Padding(0, 1),
		Status: lipgloss.NewStyle().
			Foreground(textMuted).
			Padding(0, 1),
		Spinner: lipgloss.NewStyle().Foreground(emerald),
	}
}

// DisableColor switches lipgloss to plain ASCII output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
