// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Header and status bar
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	StatusBar   lipgloss.Style
	StatusBusy  lipgloss.Style
	StatusError lipgloss.Style

	// Messages
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	ErrorText      lipgloss.Style
	Metrics        lipgloss.Style

	// Input
	InputBox      lipgloss.Style
	InputDisabled lipgloss.Style
	Prompt        lipgloss.Style

	// Misc
	Dim  lipgloss.Style
	Hint lipgloss.Style
}

// NewTheme builds the styles for mode: "dark", "light" or anything else to
// follow the terminal.
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(mode) {
	case "dark":
		isDark = true
		lipgloss.SetHasDarkBackground(true)
	case "light":
		isDark = false
		lipgloss.SetHasDarkBackground(false)
	default:
		isDark = termenv.HasDarkBackground()
	}

	t := &Theme{
		IsDark:       isDark,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// GlamourStyle is the glamour standard style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceDim).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 1)

	t.StatusBusy = t.StatusBar.
		Foreground(Amber)

	t.StatusError = t.StatusBar.
		Foreground(ErrorColor)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(UserColor)

	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(AssistantColor)

	t.SystemLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(SystemColor)

	t.MessageBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		PaddingLeft(2)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(ErrorColor).
		PaddingLeft(2)

	t.Metrics = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		PaddingLeft(2)

	t.InputBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(FocusRing).
		Padding(0, 1)

	t.InputDisabled = t.InputBox.
		BorderForeground(Border)

	t.Prompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.Dim = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Hint = lipgloss.NewStyle().
		Foreground(Amber)
}
