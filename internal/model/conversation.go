// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/nanochat/internal/util"
)

// TitleMaxRunes is how much of the first user message becomes the title.
const TitleMaxRunes = 50

// DefaultTitle is used for conversations created without any text.
const DefaultTitle = "New Chat"

// Conversation is the header record of a chat. Messages are stored
// separately and reference it by ID.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ModelID   *string   `json:"model_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Archived  bool      `json:"is_archived"`
}

// NewConversation creates a conversation with a fresh ID. An empty title
// becomes DefaultTitle; an empty modelID leaves the association unset.
func NewConversation(title, modelID string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now()
	c := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if modelID != "" {
		c.ModelID = &modelID
	}
	return c
}

// TruncateTitle returns the first TitleMaxRunes characters of text.
func TruncateTitle(text string) string {
	return util.TruncateRunesNoEllipsis(text, TitleMaxRunes)
}

// DisplayTitle returns the title folded onto one line.
func (c *Conversation) DisplayTitle() string {
	t := util.SingleLine(c.Title)
	if t == "" {
		return DefaultTitle
	}
	return t
}
