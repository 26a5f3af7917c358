// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	chatsvc "github.com/jeranaias/nanochat/internal/chat"
	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/settings"
)

// =============================================================================
// MESSAGES
// =============================================================================

// ConversationUpdatedMsg signals that the orchestrator's message list or
// generating flag changed.
type ConversationUpdatedMsg struct{}

// EngineStateMsg carries a new inference state.
type EngineStateMsg struct {
	State inference.State
}

// SettingsReloadedMsg is sent when the settings file changed on disk.
type SettingsReloadedMsg struct {
	Values settings.Values
}

// SendResultMsg reports the outcome of persisting a user turn.
type SendResultMsg struct {
	Err error
}

// NoticeMsg replaces the notice shown below the conversation.
type NoticeMsg struct {
	Text  string
	Error bool
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForUpdate blocks until the orchestrator signals a change.
func waitForUpdate(o *chatsvc.Orchestrator) tea.Cmd {
	ch := o.Updates()
	return func() tea.Msg {
		<-ch
		return ConversationUpdatedMsg{}
	}
}

// waitForState blocks until the engine publishes a state. A closed
// subscription ends the listener.
func waitForState(ch <-chan inference.State) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return EngineStateMsg{State: st}
	}
}

func noticeErr(err error) tea.Msg {
	return NoticeMsg{Text: err.Error(), Error: true}
}
