// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - Machine-readable output for --json.

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope every --json command prints.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response as indented JSON.
func (r *JSONResponse) Print(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// OutputJSON runs handler and prints its result in the envelope when
// jsonMode is set. Otherwise handler prints its own output and only its
// error is returned.
func OutputJSON(w io.Writer, jsonMode bool, command string, handler func() (any, error)) error {
	data, err := handler()
	if !jsonMode {
		return err
	}
	if err != nil {
		_ = NewJSONErrorResponse(command, err).Print(w)
		return err
	}
	return NewJSONResponse(command, data).Print(w)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// ModelData is one row of `models list --json`.
type ModelData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size_bytes"`
	Active   bool   `json:"active"`
	Selected bool   `json:"selected"`
	Loaded   bool   `json:"loaded"`
}

// SessionData is one row of `sessions list --json`.
type SessionData struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ModelID   string `json:"model_id,omitempty"`
	Messages  int    `json:"messages"`
	Archived  bool   `json:"archived"`
	UpdatedAt string `json:"updated_at"`
}

// AskData is the result of `ask --json`.
type AskData struct {
	Response     string  `json:"response"`
	Model        string  `json:"model"`
	Conversation string  `json:"conversation_id"`
	Status       string  `json:"status"`
	OutputTokens int     `json:"output_tokens"`
	DurationMs   int64   `json:"duration_ms"`
	TokensPerSec float64 `json:"tokens_per_second"`
}
