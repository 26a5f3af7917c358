// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat turns user turns into persisted, streamed assistant replies.
//
// The Orchestrator owns the current conversation. Send persists the user
// message, then a background task renders the prompt, streams fragments
// from the inference engine and writes the growing reply to storage after
// every fragment. Observers watch Updates and read snapshots:
//
//	orch := chat.New(store, svc, settings, chat.WithLogger(log))
//	go func() {
//	    for range orch.Updates() {
//	        render(orch.Messages(), orch.Throughput())
//	    }
//	}()
//	_ = orch.Send(ctx, "Hello")
//
// Stop halts a generation and leaves the reply as it stood.
package chat
