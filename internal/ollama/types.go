// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Options contains model parameters for inference. Pointer fields are
// omitted when nil so that a zero value (temperature 0, seed 0, no GPU
// layers) is still sent when meant.
type Options struct {
	// Sampling parameters
	Temperature   *float64 `json:"temperature,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	RepeatPenalty float64  `json:"repeat_penalty,omitempty"`

	// Context parameters
	NumCtx     int `json:"num_ctx,omitempty"`
	NumPredict int `json:"num_predict,omitempty"` // -1 for unlimited

	// Performance parameters
	NumGPU    *int `json:"num_gpu,omitempty"`
	NumThread int  `json:"num_thread,omitempty"`

	Stop []string `json:"stop,omitempty"`
	Seed *int     `json:"seed,omitempty"`
}

// GenerateRequest is the request body for /api/generate.
type GenerateRequest struct {
	Model     string   `json:"model"`
	Prompt    string   `json:"prompt,omitempty"`
	Stream    bool     `json:"stream"`
	Raw       bool     `json:"raw,omitempty"`
	KeepAlive any      `json:"keep_alive,omitempty"`
	Options   *Options `json:"options,omitempty"`
}

// ShowModelRequest is the request for /api/show.
type ShowModelRequest struct {
	Model string `json:"model"`
}

// CreateModelRequest is the request for /api/create. Files maps a file name
// to the digest of a blob already pushed to the server.
type CreateModelRequest struct {
	Model  string            `json:"model"`
	Files  map[string]string `json:"files"`
	Stream bool              `json:"stream"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// GenerateResponse is one line of the /api/generate response. When streaming,
// only the final line has Done set and carries the counters.
type GenerateResponse struct {
	Model              string    `json:"model"`
	CreatedAt          time.Time `json:"created_at"`
	Response           string    `json:"response"`
	Done               bool      `json:"done"`
	DoneReason         string    `json:"done_reason,omitempty"`
	TotalDuration      int64     `json:"total_duration,omitempty"` // nanoseconds
	LoadDuration       int64     `json:"load_duration,omitempty"`
	PromptEvalCount    int       `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64     `json:"prompt_eval_duration,omitempty"`
	EvalCount          int       `json:"eval_count,omitempty"`
	EvalDuration       int64     `json:"eval_duration,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// CreateModelResponse is the non-streaming /api/create reply.
type CreateModelResponse struct {
	Status string `json:"status"`
}

// ModelInfo describes a model known to the server.
type ModelInfo struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from /api/tags.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ShowModelResponse is the response from /api/show.
type ShowModelResponse struct {
	Modelfile  string       `json:"modelfile"`
	Parameters string       `json:"parameters"`
	Template   string       `json:"template"`
	Details    ModelDetails `json:"details"`
}

// OllamaError represents an error body from the Ollama API.
type OllamaError struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// TokensPerSecond is the server-measured generation speed of a final chunk.
func (r *GenerateResponse) TokensPerSecond() float64 {
	if r.EvalDuration == 0 {
		return 0
	}
	return float64(r.EvalCount) / (float64(r.EvalDuration) / 1e9)
}

// TotalTime returns the total generation time reported by the server.
func (r *GenerateResponse) TotalTime() time.Duration {
	return time.Duration(r.TotalDuration)
}
