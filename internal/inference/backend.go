// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import "context"

// Backend is the external engine that owns weights, tokenization and
// sampling. Implementations need not be safe for concurrent use; the
// Service never calls them concurrently.
type Backend interface {
	Load(ctx context.Context, path string, opts LoadOptions) error
	Generate(ctx context.Context, prompt string, cfg SamplingConfig) (Fragments, error)
	Unload(ctx context.Context) error
}

// Fragments is a lazily produced, ordered sequence of text fragments.
type Fragments interface {
	// Next returns the next fragment, or io.EOF after the last one.
	Next(ctx context.Context) (string, error)
	// Close releases the underlying request. It is safe to call more than
	// once.
	Close() error
	// Usage is meaningful once Next has returned io.EOF.
	Usage() Usage
}

// Usage is what the engine reported about a finished generation. Zero
// fields mean the engine did not say.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	StopReason       string
}
