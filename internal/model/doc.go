// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages
// and the local model library.
//
// # Key Types
//
//   - Conversation: header record of a chat (title, model, timestamps)
//   - Message: one entry with role, content, status and generation metrics
//   - Status: pending → streaming → completed, or error; see CanTransition
//   - Model, ModelConfig: a registered GGUF file and its parameter overrides
//
// # Usage
//
//	conv := model.NewConversation(model.TruncateTitle(text), "")
//	msg := model.NewUserMessage(conv.ID, text)
package model
