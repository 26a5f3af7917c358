// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"fmt"
	"strconv"
)

type field struct {
	get func(Values) string
	set func(*Values, string) error
}

func floatField(ptr func(*Values) *float64) field {
	return field{
		get: func(v Values) string { return strconv.FormatFloat(*ptr(&v), 'g', -1, 64) },
		set: func(v *Values, s string) error {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("not a number: %q", s)
			}
			*ptr(v) = f
			return nil
		},
	}
}

func intField(ptr func(*Values) *int) field {
	return field{
		get: func(v Values) string { return strconv.Itoa(*ptr(&v)) },
		set: func(v *Values, s string) error {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("not an integer: %q", s)
			}
			*ptr(v) = n
			return nil
		},
	}
}

func boolField(ptr func(*Values) *bool) field {
	return field{
		get: func(v Values) string { return strconv.FormatBool(*ptr(&v)) },
		set: func(v *Values, s string) error {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("not a boolean: %q", s)
			}
			*ptr(v) = b
			return nil
		},
	}
}

func stringField(ptr func(*Values) *string) field {
	return field{
		get: func(v Values) string { return *ptr(&v) },
		set: func(v *Values, s string) error {
			*ptr(v) = s
			return nil
		},
	}
}

var keyOrder = []string{
	"temperature", "top_p", "top_k", "max_tokens", "repeat_penalty",
	"context_length", "system_prompt", "selected_model_id",
	"dark_mode", "dynamic_color", "show_token_count", "show_generation_time", "auto_scroll",
}

var fields = map[string]field{
	"temperature":          floatField(func(v *Values) *float64 { return &v.Temperature }),
	"top_p":                floatField(func(v *Values) *float64 { return &v.TopP }),
	"top_k":                intField(func(v *Values) *int { return &v.TopK }),
	"max_tokens":           intField(func(v *Values) *int { return &v.MaxTokens }),
	"repeat_penalty":       floatField(func(v *Values) *float64 { return &v.RepeatPenalty }),
	"context_length":       intField(func(v *Values) *int { return &v.ContextLength }),
	"system_prompt":        stringField(func(v *Values) *string { return &v.SystemPrompt }),
	"selected_model_id":    stringField(func(v *Values) *string { return &v.SelectedModelID }),
	"dark_mode":            boolField(func(v *Values) *bool { return &v.DarkMode }),
	"dynamic_color":        boolField(func(v *Values) *bool { return &v.DynamicColor }),
	"show_token_count":     boolField(func(v *Values) *bool { return &v.ShowTokenCount }),
	"show_generation_time": boolField(func(v *Values) *bool { return &v.ShowGenerationTime }),
	"auto_scroll":          boolField(func(v *Values) *bool { return &v.AutoScroll }),
}

// Keys lists every setting name in display order.
func Keys() []string {
	out := make([]string, len(keyOrder))
	copy(out, keyOrder)
	return out
}

// Get returns a setting by its file key, formatted as text.
func (s *Store) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q", key)
	}
	return f.get(s.Values()), nil
}

// Set parses value for the named setting and persists it.
func (s *Store) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	scratch := s.Values()
	if err := f.set(&scratch, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return s.Update(func(v *Values) { _ = f.set(v, value) })
}
