// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jeranaias/nanochat/internal/model"
)

type conversationRow struct {
	ID        string         `db:"id"`
	Title     string         `db:"title"`
	ModelID   sql.NullString `db:"model_id"`
	CreatedAt int64          `db:"created_at"`
	UpdatedAt int64          `db:"updated_at"`
	Archived  bool           `db:"is_archived"`
}

func (r conversationRow) toModel() model.Conversation {
	c := model.Conversation{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
		Archived:  r.Archived,
	}
	if r.ModelID.Valid {
		id := r.ModelID.String
		c.ModelID = &id
	}
	return c
}

func conversationsFromRows(rows []conversationRow) []model.Conversation {
	out := make([]model.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

const conversationColumns = `id, title, model_id, created_at, updated_at, is_archived`

// CreateConversation inserts c. A ModelID that does not name a registered
// model is cleared, on c as well as in the row.
func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if c.ModelID != nil {
		var n int
		if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM models WHERE id = ?`, *c.ModelID); err != nil {
			return fmt.Errorf("check model: %w", err)
		}
		if n == 0 {
			s.log.WithField("model_id", *c.ModelID).Debug("conversation model not registered, leaving unset")
			c.ModelID = nil
		}
	}

	row := conversationRow{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: toMillis(c.CreatedAt),
		UpdatedAt: toMillis(c.UpdatedAt),
		Archived:  c.Archived,
	}
	if c.ModelID != nil {
		row.ModelID = sql.NullString{String: *c.ModelID, Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (:id, :title, :model_id, :created_at, :updated_at, :is_archived)`, row)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversation returns the conversation with the given ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "conversation", id)
	}
	c := row.toModel()
	return &c, nil
}

// ListConversations returns conversations, most recently updated first. A
// nil archived returns both archived and active ones.
func (s *Store) ListConversations(ctx context.Context, archived *bool) ([]model.Conversation, error) {
	var rows []conversationRow
	var err error
	if archived == nil {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+conversationColumns+` FROM conversations ORDER BY updated_at DESC, rowid DESC`)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+conversationColumns+` FROM conversations WHERE is_archived = ? ORDER BY updated_at DESC, rowid DESC`,
			*archived)
	}
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversationsFromRows(rows), nil
}

// ListConversationsByModel returns the conversations bound to a model.
func (s *Store) ListConversationsByModel(ctx context.Context, modelID string) ([]model.Conversation, error) {
	var rows []conversationRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+conversationColumns+` FROM conversations WHERE model_id = ? ORDER BY updated_at DESC, rowid DESC`,
		modelID)
	if err != nil {
		return nil, fmt.Errorf("list conversations by model: %w", err)
	}
	return conversationsFromRows(rows), nil
}

// UpdateConversationTitle renames a conversation and refreshes updated_at.
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	return requireAffected(res, "conversation", id)
}

// TouchConversation refreshes updated_at.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, nowMillis(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return requireAffected(res, "conversation", id)
}

// SetArchived archives or restores a conversation.
func (s *Store) SetArchived(ctx context.Context, id string, archived bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET is_archived = ? WHERE id = ?`, archived, id)
	if err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	return requireAffected(res, "conversation", id)
}

// DeleteConversation removes a conversation and, by cascade, its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return requireAffected(res, "conversation", id)
}

// CountActiveConversations counts conversations that are not archived.
func (s *Store) CountActiveConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM conversations WHERE is_archived = 0`); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}
