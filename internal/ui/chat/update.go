// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/nanochat/internal/inference"
)

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case ConversationUpdatedMsg:
		m.refresh()
		return m, waitForUpdate(m.chat)

	case EngineStateMsg:
		m.state = msg.State
		if f, ok := msg.State.(inference.Failed); ok {
			m.log.WithError(f.Err).Debug("engine failed")
		}
		return m, waitForState(m.states)

	case SettingsReloadedMsg:
		m.values = msg.Values
		m.refresh()
		return m, nil

	case SendResultMsg:
		m.sending = false
		if msg.Err != nil {
			m.log.WithError(msg.Err).Warn("send failed")
			m.setNotice("Could not send: "+msg.Err.Error(), true)
		}
		return m, nil

	case NoticeMsg:
		m.setNotice(msg.Text, msg.Error)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()

	case key.Matches(msg, m.keys.Stop):
		if m.chat.IsGenerating() {
			m.chat.Stop()
			m.setNotice("Stopped.", false)
			return m, nil
		}
		if m.input.Value() != "" {
			m.input.Reset()
			return m, nil
		}
		m.clearNotice()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		if m.notice == slashHelp {
			m.clearNotice()
			m.refresh()
		} else {
			m.setNotice(slashHelp, false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs a slash command or sends the input as a user turn. Sending
// is refused while a reply is in flight; the text stays in the input.
func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	if strings.TrimSpace(value) == "" {
		return m, nil
	}

	if cmd, _, ok := ParseSlashCommand(value); ok {
		m.input.Reset()
		return m, m.runSlash(cmd)
	}

	if m.sending || m.chat.IsGenerating() {
		m.setNotice("A reply is still generating. Press Esc to stop it.", false)
		return m, nil
	}

	_, text, _ := ParseSlashCommand(value)
	m.input.Reset()
	return m, m.send(text)
}

// resize lays the screen out for a new terminal size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	m.input.Width = max(width-8, 10)
	m.viewport.Width = width
	m.viewport.Height = max(height-chromeHeight, 3)
	m.refresh()
}
