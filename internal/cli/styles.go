// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(colorProfile(os.Stdout))
}

// Command output shares the chat screen's palette.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan).
			MarginBottom(1)

	// LabelStyle pads setting and model names into a column.
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(22)

	ValueStyle   = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	SuccessStyle = lipgloss.NewStyle().Foreground(styles.SuccessColor).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(styles.ErrorColor).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(styles.WarningColor)
	DimStyle     = lipgloss.NewStyle().Foreground(styles.TextMuted)

	// PromptStyle colors the role labels of the line-mode chat.
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.UserColor).
			Bold(true)
)

// RenderLabel renders a label padded to the label column.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// RenderStatus colors a model, message or check status.
func RenderStatus(status string) string {
	switch status {
	case "ok", "active", "loaded", model.StatusCompleted.String():
		return SuccessStyle.Render(status)
	case "failed", model.StatusError.String():
		return ErrorStyle.Render(status)
	case "archived", "disabled", model.StatusPending.String(), model.StatusStreaming.String():
		return WarningStyle.Render(status)
	default:
		return DimStyle.Render(status)
	}
}
