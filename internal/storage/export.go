// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/nanochat/internal/model"
)

// ExportMarkdown renders a conversation as a Markdown transcript.
func (s *Store) ExportMarkdown(ctx context.Context, conversationID string) (string, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	msgs, err := s.ListMessages(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return FormatMarkdown(conv, msgs), nil
}

// FormatMarkdown is the rendering behind ExportMarkdown.
func FormatMarkdown(conv *model.Conversation, msgs []model.Message) string {
	var sb strings.Builder
	sb.WriteString("# " + conv.DisplayTitle() + "\n\n")
	sb.WriteString("Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range msgs {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + ")")
		if msg.Status == model.StatusError {
			sb.WriteString(" [error]")
		}
		if msg.TokenCount != nil && msg.DurationMs != nil {
			sb.WriteString(fmt.Sprintf(" · %d tokens, %.1fs", *msg.TokenCount, float64(*msg.DurationMs)/1000))
		}
		sb.WriteString(":\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}
