// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat screen of the nanochat TUI.

The screen is a Bubble Tea model over the generation orchestrator. It
never talks to the engine for replies itself: Enter hands the input to
the orchestrator, and the screen redraws whenever the orchestrator
signals a change or the engine publishes a new state.

# Layout

	┌ header: app name and conversation title ┐
	│ conversation (viewport)                  │
	│ status: engine state, spinner while busy │
	│ > input                                  │
	└ key hints                                ┘

# Keys

	Enter   send (ignored while a reply is generating)
	Esc     stop the running reply
	PgUp    scroll the conversation
	F1      slash command help
	C-c     quit

# Slash Commands

	/load <model>  /unload  /models  /new  /clear  /stop  /help  /quit

# Usage

	m := chat.New(ctx, chat.Options{
		Chat:    orchestrator,
		Engine:  engine,
		Library: lib,
	})
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
*/
package chat
