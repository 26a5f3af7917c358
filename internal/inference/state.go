// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import "fmt"

// State is the observable status of the inference session. The concrete
// variants are Idle, Loading, Ready, Generating and Failed; no other type
// can satisfy the interface.
type State interface {
	isState()
}

// Idle means no model is loaded.
type Idle struct{}

// Loading means a model file is being loaded. Progress is in [0, 1].
type Loading struct {
	Path     string
	Progress float64
}

// Ready means a model is loaded and no generation is running.
type Ready struct {
	ModelName string
}

// Generating reports the progress of the running generation.
type Generating struct {
	TokensGenerated int
	TokensPerSecond float64
}

// Failed carries the last load, unload or generation failure.
type Failed struct {
	Message string
	Err     error
}

func (Idle) isState()       {}
func (Loading) isState()    {}
func (Ready) isState()      {}
func (Generating) isState() {}
func (Failed) isState()     {}

// IsReady reports whether s is Ready.
func IsReady(s State) bool {
	_, ok := s.(Ready)
	return ok
}

// IsGenerating reports whether s is Generating.
func IsGenerating(s State) bool {
	_, ok := s.(Generating)
	return ok
}

// Describe renders s for a status line.
func Describe(s State) string {
	switch st := s.(type) {
	case Idle:
		return "No model loaded"
	case Loading:
		return fmt.Sprintf("Loading model... %.0f%%", st.Progress*100)
	case Ready:
		return fmt.Sprintf("Ready: %s", st.ModelName)
	case Generating:
		return fmt.Sprintf("Generating... %d tokens (%.1f tok/s)", st.TokensGenerated, st.TokensPerSecond)
	case Failed:
		return "Error: " + st.Message
	case nil:
		return "No model loaded"
	default:
		return fmt.Sprintf("unknown state %T", s)
	}
}
