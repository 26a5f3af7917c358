// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jeranaias/nanochat/internal/model"
)

type modelRow struct {
	ID           string        `db:"id"`
	Name         string        `db:"model_name"`
	Path         string        `db:"model_path"`
	PathType     string        `db:"path_type"`
	ProviderType string        `db:"provider_type"`
	FileSize     sql.NullInt64 `db:"file_size"`
	Active       bool          `db:"is_active"`
}

func (r modelRow) toModel() model.Model {
	m := model.Model{
		ID:           r.ID,
		Name:         r.Name,
		Path:         r.Path,
		PathType:     r.PathType,
		ProviderType: r.ProviderType,
		Active:       r.Active,
	}
	if r.FileSize.Valid {
		size := r.FileSize.Int64
		m.FileSize = &size
	}
	return m
}

const modelColumns = `id, model_name, model_path, path_type, provider_type, file_size, is_active`

// InsertModel registers a model file.
func (s *Store) InsertModel(ctx context.Context, m *model.Model) error {
	row := modelRow{
		ID:           m.ID,
		Name:         m.Name,
		Path:         m.Path,
		PathType:     m.PathType,
		ProviderType: m.ProviderType,
		Active:       m.Active,
	}
	if m.FileSize != nil {
		row.FileSize = sql.NullInt64{Int64: *m.FileSize, Valid: true}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO models (`+modelColumns+`)
		VALUES (:id, :model_name, :model_path, :path_type, :provider_type, :file_size, :is_active)`, row)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// GetModel returns the model with the given ID.
func (s *Store) GetModel(ctx context.Context, id string) (*model.Model, error) {
	var row modelRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "model", id)
	}
	m := row.toModel()
	return &m, nil
}

// GetModelByPath returns the model registered for a file path.
func (s *Store) GetModelByPath(ctx context.Context, path string) (*model.Model, error) {
	var row modelRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+modelColumns+` FROM models WHERE model_path = ?`, path); err != nil {
		return nil, notFound(err, "model at", path)
	}
	m := row.toModel()
	return &m, nil
}

// ListModels returns registered models by name.
func (s *Store) ListModels(ctx context.Context, activeOnly bool) ([]model.Model, error) {
	query := `SELECT ` + modelColumns + ` FROM models`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY model_name COLLATE NOCASE`

	var rows []modelRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]model.Model, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// SetModelActive shows or hides a model in the active list.
func (s *Store) SetModelActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE models SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	return requireAffected(res, "model", id)
}

// DeleteModel removes a model and its config. Conversations that used it
// keep existing with no model.
func (s *Store) DeleteModel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	return requireAffected(res, "model", id)
}

// UpsertModelConfig stores the config of a model, replacing any previous
// one.
func (s *Store) UpsertModelConfig(ctx context.Context, cfg *model.ModelConfig) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO model_configs (id, model_id, loading_params, inference_params)
		VALUES (:id, :model_id, :loading_params, :inference_params)
		ON CONFLICT(model_id) DO UPDATE SET
			loading_params = excluded.loading_params,
			inference_params = excluded.inference_params`,
		map[string]any{
			"id":               cfg.ID,
			"model_id":         cfg.ModelID,
			"loading_params":   cfg.LoadingParams,
			"inference_params": cfg.InferenceParams,
		})
	if err != nil {
		return fmt.Errorf("upsert model config: %w", err)
	}
	return nil
}

// GetModelConfig returns the config of a model.
func (s *Store) GetModelConfig(ctx context.Context, modelID string) (*model.ModelConfig, error) {
	var cfg struct {
		ID              string `db:"id"`
		ModelID         string `db:"model_id"`
		LoadingParams   string `db:"loading_params"`
		InferenceParams string `db:"inference_params"`
	}
	err := s.db.GetContext(ctx, &cfg,
		`SELECT id, model_id, loading_params, inference_params FROM model_configs WHERE model_id = ?`, modelID)
	if err != nil {
		return nil, notFound(err, "config of model", modelID)
	}
	return &model.ModelConfig{
		ID:              cfg.ID,
		ModelID:         cfg.ModelID,
		LoadingParams:   cfg.LoadingParams,
		InferenceParams: cfg.InferenceParams,
	}, nil
}
