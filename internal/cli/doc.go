// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the nanochat command line and implements the
// commands that run without the TUI.
//
// # Usage
//
//	cmd, args := cli.Parse()
//	if cmd == cli.CmdTUI {
//	    // start the bubbletea program
//	}
//	err := cli.Run(ctx, cmd, app, args)
//
// Handlers receive an *App holding the wired stores, engine, library and
// chat orchestrator, and write to App.Out and App.Err. List and show
// commands accept --json.
package cli
