// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Path and provider kinds recorded for library entries.
const (
	PathTypeFile     = "file"
	ProviderTypeGGUF = "gguf"
)

// Model is a registered weights file in the local library.
type Model struct {
	ID           string `json:"id"`
	Name         string `json:"model_name"`
	Path         string `json:"model_path"`
	PathType     string `json:"path_type"`
	ProviderType string `json:"provider_type"`
	FileSize     *int64 `json:"file_size,omitempty"`
	Active       bool   `json:"is_active"`
}

// NewModel creates an active library entry for a GGUF file.
func NewModel(name, path string, size int64) *Model {
	return &Model{
		ID:           uuid.NewString(),
		Name:         name,
		Path:         path,
		PathType:     PathTypeFile,
		ProviderType: ProviderTypeGGUF,
		FileSize:     &size,
		Active:       true,
	}
}

// ModelConfig holds per-model parameter overrides as JSON documents.
type ModelConfig struct {
	ID              string `json:"id"`
	ModelID         string `json:"model_id"`
	LoadingParams   string `json:"loading_params"`
	InferenceParams string `json:"inference_params"`
}

// LoadingParams is the decoded form of ModelConfig.LoadingParams.
type LoadingParams struct {
	ContextLength int `json:"contextLength"`
	Threads       int `json:"threads"`
	GPULayers     int `json:"gpuLayers"`
}

// InferenceParams is the decoded form of ModelConfig.InferenceParams.
type InferenceParams struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"topP"`
	TopK          int     `json:"topK"`
	MaxTokens     int     `json:"maxTokens"`
	RepeatPenalty float64 `json:"repeatPenalty"`
}

// DefaultLoadingParams matches what a freshly imported model gets.
func DefaultLoadingParams() LoadingParams {
	return LoadingParams{ContextLength: 4096, Threads: 4, GPULayers: 0}
}

// DefaultInferenceParams matches what a freshly imported model gets.
func DefaultInferenceParams() InferenceParams {
	return InferenceParams{
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		MaxTokens:     2048,
		RepeatPenalty: 1.1,
	}
}

// NewDefaultModelConfig builds the config row stored alongside a new model.
func NewDefaultModelConfig(modelID string) (*ModelConfig, error) {
	loading, err := json.Marshal(DefaultLoadingParams())
	if err != nil {
		return nil, fmt.Errorf("encode loading params: %w", err)
	}
	inference, err := json.Marshal(DefaultInferenceParams())
	if err != nil {
		return nil, fmt.Errorf("encode inference params: %w", err)
	}
	return &ModelConfig{
		ID:              uuid.NewString(),
		ModelID:         modelID,
		LoadingParams:   string(loading),
		InferenceParams: string(inference),
	}, nil
}

// Loading decodes LoadingParams, falling back to defaults for an empty
// document.
func (c *ModelConfig) Loading() (LoadingParams, error) {
	p := DefaultLoadingParams()
	if c == nil || c.LoadingParams == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(c.LoadingParams), &p); err != nil {
		return DefaultLoadingParams(), fmt.Errorf("decode loading params: %w", err)
	}
	return p, nil
}

// Inference decodes InferenceParams, falling back to defaults for an empty
// document.
func (c *ModelConfig) Inference() (InferenceParams, error) {
	p := DefaultInferenceParams()
	if c == nil || c.InferenceParams == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(c.InferenceParams), &p); err != nil {
		return DefaultInferenceParams(), fmt.Errorf("decode inference params: %w", err)
	}
	return p, nil
}
