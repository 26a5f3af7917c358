// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jeranaias/nanochat/internal/model"
)

type messageRow struct {
	ID               string        `db:"id"`
	ConversationID   string        `db:"conversation_id"`
	Content          string        `db:"content"`
	Role             string        `db:"role"`
	Status           string        `db:"status"`
	Timestamp        int64         `db:"timestamp"`
	TokenCount       sql.NullInt64 `db:"token_count"`
	GenerationTimeMs sql.NullInt64 `db:"generation_time_ms"`
}

func (r messageRow) toModel() model.Message {
	m := model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Content:        r.Content,
		Role:           model.Role(r.Role),
		Status:         model.Status(r.Status),
		Timestamp:      fromMillis(r.Timestamp),
	}
	if r.TokenCount.Valid {
		n := int(r.TokenCount.Int64)
		m.TokenCount = &n
	}
	if r.GenerationTimeMs.Valid {
		d := r.GenerationTimeMs.Int64
		m.DurationMs = &d
	}
	return m
}

func messageToRow(m *model.Message) messageRow {
	r := messageRow{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		Role:           string(m.Role),
		Status:         string(m.Status),
		Timestamp:      toMillis(m.Timestamp),
	}
	if m.TokenCount != nil {
		r.TokenCount = sql.NullInt64{Int64: int64(*m.TokenCount), Valid: true}
	}
	if m.DurationMs != nil {
		r.GenerationTimeMs = sql.NullInt64{Int64: *m.DurationMs, Valid: true}
	}
	return r
}

const messageColumns = `id, conversation_id, content, role, status, timestamp, token_count, generation_time_ms`

// AddMessage inserts m and refreshes its conversation's updated_at.
func (s *Store) AddMessage(ctx context.Context, m *model.Message) error {
	if !m.Status.Valid() {
		return fmt.Errorf("add message: unknown status %q", m.Status)
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`, nowMillis(), m.ConversationID)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if err := requireAffected(res, "conversation", m.ConversationID); err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO messages (`+messageColumns+`)
			VALUES (:id, :conversation_id, :content, :role, :status, :timestamp, :token_count, :generation_time_ms)`,
			messageToRow(m))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
}

// GetMessage returns the message with the given ID.
func (s *Store) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var row messageRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "message", id)
	}
	m := row.toModel()
	return &m, nil
}

// ListMessages returns a conversation's messages in timestamp order; equal
// timestamps keep insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC, rowid ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// LastMessage returns the newest message of a conversation.
func (s *Store) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT 1`,
		conversationID)
	if err != nil {
		return nil, notFound(err, "last message of conversation", conversationID)
	}
	m := row.toModel()
	return &m, nil
}

// UpdateMessageContent replaces the content and status of a message. A
// status change that moves backwards fails with ErrInvalidTransition.
func (s *Store) UpdateMessageContent(ctx context.Context, id, content string, status model.Status) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkTransition(ctx, tx, id, status); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET content = ?, status = ? WHERE id = ?`, content, string(status), id); err != nil {
			return fmt.Errorf("update message content: %w", err)
		}
		return nil
	})
}

// UpdateMessageStatus changes only the status of a message.
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status model.Status) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := checkTransition(ctx, tx, id, status); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET status = ? WHERE id = ?`, string(status), id); err != nil {
			return fmt.Errorf("update message status: %w", err)
		}
		return nil
	})
}

func checkTransition(ctx context.Context, tx *sqlx.Tx, id string, to model.Status) error {
	var current string
	if err := tx.GetContext(ctx, &current, `SELECT status FROM messages WHERE id = ?`, id); err != nil {
		return notFound(err, "message", id)
	}
	if !model.CanTransition(model.Status(current), to) {
		return fmt.Errorf("message %s %s -> %s: %w", id, current, to, ErrInvalidTransition)
	}
	return nil
}

// UpdateMessageMetrics records the token count and generation time.
func (s *Store) UpdateMessageMetrics(ctx context.Context, id string, tokens int, durationMs int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET token_count = ?, generation_time_ms = ? WHERE id = ?`, tokens, durationMs, id)
	if err != nil {
		return fmt.Errorf("update message metrics: %w", err)
	}
	return requireAffected(res, "message", id)
}

// DeleteMessage removes a single message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireAffected(res, "message", id)
}

// DeleteMessages removes every message of a conversation and returns how
// many were removed.
func (s *Store) DeleteMessages(ctx context.Context, conversationID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.RowsAffected()
}

// CountMessages counts a conversation's messages.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// TotalTokens sums the recorded token counts of a conversation.
func (s *Store) TotalTokens(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COALESCE(SUM(token_count), 0) FROM messages WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("sum tokens: %w", err)
	}
	return n, nil
}
