// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and Lip Gloss styles of the nanochat TUI.

# Color System (colors.go)

Every color is a lipgloss.AdaptiveColor so the palette follows the
terminal background:

	Purple  - Assistant label and accents
	Cyan    - User label and the input prompt
	Rose    - Failed replies and error notices
	Amber   - Warnings and the stop hint
	Emerald - Success notices

Text uses TextPrimary, TextSecondary and TextMuted.

# Theme System (theme.go)

	theme := styles.NewTheme("auto")
	errLine := theme.ErrorText.Render("Error: engine crashed")

"dark" and "light" force the background instead of detecting it.
*/
package styles
