// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved conversations out of the database.
//
// # Supported Formats
//
//   - Markdown: the same document as storage.FormatMarkdown
//   - JSON: conversation and messages, machine-readable
//   - HTML: one self-contained page with embedded CSS
//
// # Usage
//
//	doc, err := export.Load(ctx, store, conversationID)
//	exporter, err := export.ForFormat("html", nil)
//	path, err := export.ExportToFile(doc, exporter, &export.Options{OutputDir: "."})
package export
