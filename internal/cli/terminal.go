// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Wrapping width for replies when the output is not a terminal, and the
// narrowest width used when it is.
const (
	fallbackWidth = 80
	minWidth      = 40
)

type fdWriter interface {
	Fd() uintptr
}

// isTerminal reports whether v is a file attached to a terminal. Buffers
// and pipes in tests are never terminals.
func isTerminal(v any) bool {
	f, ok := v.(fdWriter)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the column count of the terminal behind v.
func terminalWidth(v any) int {
	f, ok := v.(fdWriter)
	if !ok {
		return fallbackWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return max(width, minWidth)
}

// colorProfile is the profile styled output to w should use. termenv
// applies NO_COLOR and CLICOLOR_FORCE; anything that is not a terminal
// gets plain text.
func colorProfile(w io.Writer) termenv.Profile {
	if !isTerminal(w) {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}
