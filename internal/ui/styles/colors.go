// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

var (
	Purple  = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}
	Cyan    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	Rose    = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	Amber   = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
)

// =============================================================================
// SURFACES AND TEXT
// =============================================================================

var (
	Surface    = lipgloss.AdaptiveColor{Light: "#F4F4F5", Dark: "#27272A"}
	SurfaceDim = lipgloss.AdaptiveColor{Light: "#E4E4E7", Dark: "#18181B"}
	Border     = lipgloss.AdaptiveColor{Light: "#D4D4D8", Dark: "#3F3F46"}

	TextPrimary   = lipgloss.AdaptiveColor{Light: "#18181B", Dark: "#FAFAFA"}
	TextSecondary = lipgloss.AdaptiveColor{Light: "#52525B", Dark: "#A1A1AA"}
	TextMuted     = lipgloss.AdaptiveColor{Light: "#A1A1AA", Dark: "#71717A"}
)

// =============================================================================
// SEMANTIC COLORS
// =============================================================================

var (
	UserColor      = Cyan
	AssistantColor = Purple
	SystemColor    = TextSecondary

	ErrorColor   = Rose
	WarningColor = Amber
	SuccessColor = Emerald
	FocusRing    = Cyan
)

// StatusIndicatorSet contains ASCII markers shown next to status text so the
// state is readable without color.
type StatusIndicatorSet struct {
	Success string
	Error   string
	Warning string
	Info    string
}

// StatusIndicators are the markers used by the Render helpers.
var StatusIndicators = StatusIndicatorSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
}

// RenderSuccess renders a success notice.
func RenderSuccess(message string) string {
	return lipgloss.NewStyle().Foreground(SuccessColor).Bold(true).
		Render(StatusIndicators.Success + " " + message)
}

// RenderError renders an error notice.
func RenderError(message string) string {
	return lipgloss.NewStyle().Foreground(ErrorColor).Bold(true).
		Render(StatusIndicators.Error + " " + message)
}

// RenderWarning renders a warning notice.
func RenderWarning(message string) string {
	return lipgloss.NewStyle().Foreground(WarningColor).Bold(true).
		Render(StatusIndicators.Warning + " " + message)
}

// RenderInfo renders an informational notice.
func RenderInfo(message string) string {
	return lipgloss.NewStyle().Foreground(TextSecondary).
		Render(StatusIndicators.Info + " " + message)
}
