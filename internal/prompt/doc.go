// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt renders a conversation into the single text prompt a
// model family expects.
//
// The package is pure: no I/O, no shared mutable state. The same messages,
// system prompt and dialect always produce byte-identical output.
//
//	d := prompt.SelectDialect(modelPath)
//	p := prompt.Render(history, systemPrompt, d)
//	// p.Text ends with prompt.AssistantOpener(d); p.Stop ends the reply.
package prompt
