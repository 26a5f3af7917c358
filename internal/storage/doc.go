// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations, messages and the model library
// in an embedded SQLite database.
//
// All access goes through one connection, so every write is serialized and
// a transaction never races another writer. Timestamps are stored as Unix
// milliseconds.
//
// # Key Types
//
//   - Store: the database handle with every query the app needs
//   - StoreError: sentinel error type; compare with errors.Is
//
// # Usage
//
//	store, err := storage.Open(cfg.DatabasePath(), log)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	conv := model.NewConversation("Hello", "")
//	err = store.CreateConversation(ctx, conv)
//	err = store.AddMessage(ctx, model.NewUserMessage(conv.ID, "Hello"))
//	msgs, err := store.ListMessages(ctx, conv.ID)
package storage
