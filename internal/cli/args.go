// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing shared by the subcommand handlers.

package cli

import (
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits subcommand arguments into flags and positionals.
// It handles:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: names passed to NewArgParser never take a value
//   - Positional arguments: everything else, in order
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

// NewArgParser parses raw. Flags named in bools are boolean and never
// consume the following argument.
//
// Example:
//
//	p := NewArgParser([]string{"export", "abc", "--output", "chat.md"}, "all")
//	p.Positional(0)     // "export"
//	p.Flag("output")    // "chat.md"
func NewArgParser(raw []string, bools ...string) *ArgParser {
	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
	}
	isBool := make(map[string]bool, len(bools))
	for _, b := range bools {
		isBool[b] = true
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if len(arg) < 2 || !strings.HasPrefix(arg, "-") {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			if isBool[k] {
				p.boolFlags[k] = v == "true"
			} else {
				p.flags[k] = v
			}
			continue
		}

		if !isBool[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		p.boolFlags[name] = true
	}
	return p
}

// Flag returns the value of a string flag, or "".
func (p *ArgParser) Flag(name string) string {
	return p.flags[strings.TrimLeft(name, "-")]
}

// FlagOrDefault returns the flag value or def if it is unset.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v := p.Flag(name); v != "" {
		return v
	}
	return def
}

// BoolFlag reports whether a boolean flag was given.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[strings.TrimLeft(name, "-")]
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns the positional arguments from index on.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return nil
	}
	return p.positional[index:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}
