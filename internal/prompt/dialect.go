// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Dialect is a model family's prompt template.
type Dialect int

const (
	ChatML Dialect = iota
	Llama2
	Llama3
	Alpaca
	Vicuna
	Mistral
	Raw
)

var dialectNames = map[Dialect]string{
	ChatML:  "chatml",
	Llama2:  "llama2",
	Llama3:  "llama3",
	Alpaca:  "alpaca",
	Vicuna:  "vicuna",
	Mistral: "mistral",
	Raw:     "raw",
}

// String returns the lower-case name used in config files.
func (d Dialect) String() string {
	if name, ok := dialectNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dialect(%d)", int(d))
}

// Dialects lists every dialect in declaration order.
func Dialects() []Dialect {
	return []Dialect{ChatML, Llama2, Llama3, Alpaca, Vicuna, Mistral, Raw}
}

// ParseDialect accepts a dialect name, case-insensitively.
func ParseDialect(s string) (Dialect, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for d, name := range dialectNames {
		if name == want {
			return d, nil
		}
	}
	return ChatML, fmt.Errorf("unknown prompt dialect %q", s)
}

// familyMarkers is checked top to bottom; the first hit wins.
var familyMarkers = []struct {
	dialect Dialect
	markers []string
}{
	{Llama3, []string{"llama-3", "llama3"}},
	{Llama2, []string{"llama-2", "llama2"}},
	{Mistral, []string{"mistral"}},
	{Vicuna, []string{"vicuna"}},
	{Alpaca, []string{"alpaca"}},
	{ChatML, []string{"chatml", "qwen", "yi"}},
}

// SelectDialect picks a dialect from the model file's name. Only the base
// name of a path is inspected; unrecognized names fall back to ChatML.
func SelectDialect(modelFileName string) Dialect {
	name := strings.ToLower(filepath.Base(modelFileName))
	for _, fm := range familyMarkers {
		for _, m := range fm.markers {
			if strings.Contains(name, m) {
				return fm.dialect
			}
		}
	}
	return ChatML
}

var stopMarkers = map[Dialect][]string{
	ChatML:  {"<|im_end|>", "<|im_start|>"},
	Llama2:  {"</s>", "[INST]"},
	Llama3:  {"<|eot_id|>", "<|start_header_id|>"},
	Alpaca:  {"### Instruction:", "### Response:", "###"},
	Vicuna:  {"USER:", "ASSISTANT:"},
	Mistral: {"</s>", "[INST]"},
	Raw:     {},
}

// StopMarkers returns a fresh copy of the dialect's stop strings.
func StopMarkers(d Dialect) []string {
	src := stopMarkers[d]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// AssistantOpener is the text every rendered prompt ends with: the marker
// after which the engine writes the assistant's reply. Raw has none.
func AssistantOpener(d Dialect) string {
	switch d {
	case ChatML:
		return "<|im_start|>assistant\n"
	case Llama2, Mistral:
		return " [/INST]"
	case Llama3:
		return "<|start_header_id|>assistant<|end_header_id|>\n\n"
	case Alpaca:
		return "### Response:\n"
	case Vicuna:
		return "ASSISTANT:"
	default:
		return ""
	}
}
