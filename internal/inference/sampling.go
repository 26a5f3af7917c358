// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import "time"

// SamplingConfig is the per-request generation configuration. The engine
// does the sampling; these values are passed through.
type SamplingConfig struct {
	Temperature   float64
	TopP          float64
	TopK          int
	MaxTokens     int
	RepeatPenalty float64
	ContextLength int
	Threads       int
	// Seed < 0 lets the engine choose.
	Seed int
	Stop []string
}

// DefaultSampling returns the defaults used when no setting overrides them.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		MaxTokens:     2048,
		RepeatPenalty: 1.1,
		ContextLength: 4096,
		Threads:       4,
		Seed:          -1,
	}
}

// Clone returns a copy that shares no memory with c.
func (c SamplingConfig) Clone() SamplingConfig {
	out := c
	if c.Stop != nil {
		out.Stop = make([]string, len(c.Stop))
		copy(out.Stop, c.Stop)
	}
	return out
}

// LoadOptions configures how the engine loads a model.
type LoadOptions struct {
	ContextLength int
	Threads       int
	// GPULayers < 0 lets the engine decide how many layers to offload.
	GPULayers int
}

// DefaultLoadOptions mirrors the defaults of a freshly imported model.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{ContextLength: 4096, Threads: 4, GPULayers: 0}
}

// TokensPerSecond is tokens divided by elapsed seconds, or 0 when no time
// has elapsed.
func TokensPerSecond(tokens int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed.Seconds()
}
