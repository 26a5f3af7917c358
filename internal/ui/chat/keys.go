// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the keyboard bindings of the chat screen.
type KeyMap struct {
	Submit   key.Binding
	Stop     key.Binding
	Quit     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Help     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		Stop: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "stop generating"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("PgDn", "page down"),
		),
		Top: key.NewBinding(
			key.WithKeys("ctrl+home"),
			key.WithHelp("C-Home", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("ctrl+end"),
			key.WithHelp("C-End", "bottom"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
	}
}

// ShortHelp is the one-line hint under the input.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Stop, k.PageUp, k.Help, k.Quit}
}

// HelpLine renders bindings as "key action" pairs.
func HelpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, "  ")
}
