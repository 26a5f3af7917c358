// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle position of a message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStreaming, StatusCompleted, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether a message may move from one status to
// another. Status only moves forward along pending → streaming → completed;
// error is reachable from any non-terminal status. Re-applying the current
// status is allowed so streaming content updates can repeat.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusStreaming || to == StatusCompleted || to == StatusError
	case StatusStreaming:
		return to == StatusCompleted || to == StatusError
	default:
		return false
	}
}

// ParseStatus converts a stored status string back into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown message status %q", s)
	}
	return st, nil
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`

	// Set only once an assistant message completes.
	TokenCount *int   `json:"token_count,omitempty"`
	DurationMs *int64 `json:"generation_time_ms,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(conversationID string, role Role, content string, status Status) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		Role:           role,
		Status:         status,
		Timestamp:      time.Now(),
	}
}

// NewUserMessage creates a completed user message.
func NewUserMessage(conversationID, content string) *Message {
	return NewMessage(conversationID, RoleUser, content, StatusCompleted)
}

// NewPendingAssistantMessage creates an empty assistant message awaiting
// its first fragment.
func NewPendingAssistantMessage(conversationID string) *Message {
	return NewMessage(conversationID, RoleAssistant, "", StatusPending)
}

// NewErrorMessage creates an assistant message that reports a failure.
func NewErrorMessage(conversationID, content string) *Message {
	return NewMessage(conversationID, RoleAssistant, content, StatusError)
}

// IsUser returns true if this is a user message.
func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant returns true if this is an assistant message.
func (m *Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// IsInFlight reports whether the message is still being produced.
func (m *Message) IsInFlight() bool {
	return m.Status == StatusPending || m.Status == StatusStreaming
}

// SetMetrics records the generation statistics of a completed message.
func (m *Message) SetMetrics(tokens int, durationMs int64) {
	m.TokenCount = &tokens
	m.DurationMs = &durationMs
}

// TokensPerSecond derives throughput from the stored metrics, or 0 when
// they are absent.
func (m *Message) TokensPerSecond() float64 {
	if m.TokenCount == nil || m.DurationMs == nil || *m.DurationMs <= 0 {
		return 0
	}
	return float64(*m.TokenCount) / (float64(*m.DurationMs) / 1000)
}
