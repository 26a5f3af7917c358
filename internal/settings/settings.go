// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings is the user-editable key-value store behind the
// settings screen: sampling defaults, the system prompt, the selected model
// and display toggles. Values live in a TOML file that may also be edited
// by hand while the app runs.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/util"
)

// DefaultSystemPrompt is sent ahead of every conversation unless changed.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// ErrOutOfRange is returned by setters given an invalid value.
var ErrOutOfRange = errors.New("setting out of range")

// Values is a snapshot of every setting.
type Values struct {
	Temperature   float64 `toml:"temperature"`
	TopP          float64 `toml:"top_p"`
	TopK          int     `toml:"top_k"`
	MaxTokens     int     `toml:"max_tokens"`
	RepeatPenalty float64 `toml:"repeat_penalty"`
	ContextLength int     `toml:"context_length"`
	SystemPrompt  string  `toml:"system_prompt"`

	SelectedModelID string `toml:"selected_model_id"`

	DarkMode           bool `toml:"dark_mode"`
	DynamicColor       bool `toml:"dynamic_color"`
	ShowTokenCount     bool `toml:"show_token_count"`
	ShowGenerationTime bool `toml:"show_generation_time"`
	AutoScroll         bool `toml:"auto_scroll"`
}

// Defaults returns the value of every setting on first run.
func Defaults() Values {
	return Values{
		Temperature:        0.7,
		TopP:               0.9,
		TopK:               40,
		MaxTokens:          2048,
		RepeatPenalty:      1.1,
		ContextLength:      4096,
		SystemPrompt:       DefaultSystemPrompt,
		DarkMode:           true,
		DynamicColor:       true,
		ShowTokenCount:     true,
		ShowGenerationTime: true,
		AutoScroll:         true,
	}
}

// Validate checks the numeric ranges.
func (v Values) Validate() error {
	switch {
	case v.Temperature < 0 || v.Temperature > 2:
		return fmt.Errorf("%w: temperature must be within [0, 2], got %v", ErrOutOfRange, v.Temperature)
	case v.TopP <= 0 || v.TopP > 1:
		return fmt.Errorf("%w: top_p must be within (0, 1], got %v", ErrOutOfRange, v.TopP)
	case v.TopK < 0:
		return fmt.Errorf("%w: top_k must not be negative, got %d", ErrOutOfRange, v.TopK)
	case v.MaxTokens < 1:
		return fmt.Errorf("%w: max_tokens must be positive, got %d", ErrOutOfRange, v.MaxTokens)
	case v.RepeatPenalty <= 0:
		return fmt.Errorf("%w: repeat_penalty must be positive, got %v", ErrOutOfRange, v.RepeatPenalty)
	case v.ContextLength < 128:
		return fmt.Errorf("%w: context_length must be at least 128, got %d", ErrOutOfRange, v.ContextLength)
	}
	return nil
}

// Store holds the settings in memory and mirrors them to a TOML file.
type Store struct {
	path string
	log  logrus.FieldLogger

	mu sync.RWMutex
	v  Values
}

// Open reads the settings file at path. A missing file yields defaults and
// is only created on the first change.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	s := &Store{path: abs, log: log, v: Defaults()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the file. Keys missing from the file keep their default.
// A file with out-of-range values is rejected and the current values kept.
func (s *Store) Reload() error {
	v := Defaults()
	if _, err := toml.DecodeFile(s.path, &v); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.mu.Lock()
			s.v = Defaults()
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("settings %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
	return nil
}

// Values returns a snapshot of every setting.
func (s *Store) Values() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Sampling returns a fresh SamplingConfig built from the current values.
func (s *Store) Sampling() inference.SamplingConfig {
	v := s.Values()
	cfg := inference.DefaultSampling()
	cfg.Temperature = v.Temperature
	cfg.TopP = v.TopP
	cfg.TopK = v.TopK
	cfg.MaxTokens = v.MaxTokens
	cfg.RepeatPenalty = v.RepeatPenalty
	cfg.ContextLength = v.ContextLength
	return cfg
}

// SystemPrompt returns the current system prompt.
func (s *Store) SystemPrompt() string {
	return s.Values().SystemPrompt
}

// SelectedModelID returns the ID of the selected model, or "".
func (s *Store) SelectedModelID() string {
	return s.Values().SelectedModelID
}

// ContextLength returns the context window to load models with.
func (s *Store) ContextLength() int {
	return s.Values().ContextLength
}

// Update applies fn to a copy of the values, validates and persists the
// result. Nothing changes if validation or the write fails.
func (s *Store) Update(fn func(*Values)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.v
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.v = next
	return nil
}

func (s *Store) write(v Values) error {
	var buf bytes.Buffer
	buf.WriteString("# nanochat settings\n\n")
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// ResetInference restores the sampling values and system prompt to their
// defaults, leaving the model selection and display toggles alone.
func (s *Store) ResetInference() error {
	d := Defaults()
	return s.Update(func(v *Values) {
		v.Temperature = d.Temperature
		v.TopP = d.TopP
		v.TopK = d.TopK
		v.MaxTokens = d.MaxTokens
		v.RepeatPenalty = d.RepeatPenalty
		v.ContextLength = d.ContextLength
		v.SystemPrompt = d.SystemPrompt
	})
}

// Clear deletes the settings file and returns to defaults.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove settings: %w", err)
	}
	s.v = Defaults()
	return nil
}

// =============================================================================
// SETTERS
// =============================================================================

func (s *Store) SetTemperature(t float64) error {
	return s.Update(func(v *Values) { v.Temperature = t })
}

func (s *Store) SetTopP(p float64) error {
	return s.Update(func(v *Values) { v.TopP = p })
}

func (s *Store) SetTopK(k int) error {
	return s.Update(func(v *Values) { v.TopK = k })
}

func (s *Store) SetMaxTokens(n int) error {
	return s.Update(func(v *Values) { v.MaxTokens = n })
}

func (s *Store) SetRepeatPenalty(p float64) error {
	return s.Update(func(v *Values) { v.RepeatPenalty = p })
}

func (s *Store) SetContextLength(n int) error {
	return s.Update(func(v *Values) { v.ContextLength = n })
}

func (s *Store) SetSystemPrompt(p string) error {
	return s.Update(func(v *Values) { v.SystemPrompt = p })
}

// SetSelectedModelID records the selected model; "" clears it.
func (s *Store) SetSelectedModelID(id string) error {
	return s.Update(func(v *Values) { v.SelectedModelID = id })
}

func (s *Store) SetDarkMode(on bool) error {
	return s.Update(func(v *Values) { v.DarkMode = on })
}

func (s *Store) SetDynamicColor(on bool) error {
	return s.Update(func(v *Values) { v.DynamicColor = on })
}

func (s *Store) SetShowTokenCount(on bool) error {
	return s.Update(func(v *Values) { v.ShowTokenCount = on })
}

func (s *Store) SetShowGenerationTime(on bool) error {
	return s.Update(func(v *Values) { v.ShowGenerationTime = on })
}

func (s *Store) SetAutoScroll(on bool) error {
	return s.Update(func(v *Values) { v.AutoScroll = on })
}
