// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateRunes cuts s to at most maxRunes characters, replacing the tail
// with "..." when something was cut.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateRunesNoEllipsis cuts s to at most maxRunes characters.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// TruncateWidth cuts s to a terminal display width, counting wide (CJK,
// emoji) characters as two columns.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// SingleLine collapses all whitespace runs, newlines included, into single
// spaces. Used for list rows and status lines.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
