// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing for nanochat.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdImport
	CmdModels
	CmdValidate
	CmdSessions
	CmdSettings
	CmdVersion
	CmdHelp
	CmdUnknown
)

var commandNames = map[Command]string{
	CmdTUI:      "tui",
	CmdAsk:      "ask",
	CmdChat:     "chat",
	CmdImport:   "import",
	CmdModels:   "models",
	CmdValidate: "validate",
	CmdSessions: "sessions",
	CmdSettings: "settings",
	CmdVersion:  "version",
	CmdHelp:     "help",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool
	Model   string // model name, ID or path to load before chatting
	Config  string // config file overriding ~/.nanochat/config.toml

	// Command-specific
	Query      string
	File       string
	Subcommand string

	// Raw args (remaining after the command name)
	Raw []string
	// Name is the unrecognized command for CmdUnknown.
	Name string
}

const usageText = `nanochat - chat with local GGUF models

Usage:
  nanochat                          Start the chat TUI (default)
  nanochat ask "question"           Ask one question, stream the reply to stdout
  nanochat chat                     Line-mode chat with input history
  nanochat import <file.gguf>       Copy a model into the library
  nanochat models [subcommand]      Model library
  nanochat validate <file.gguf>     Check a model file header
  nanochat sessions [subcommand]    Saved conversations
  nanochat settings [subcommand]    Chat settings
  nanochat version                  Show version
  nanochat help                     Show this help

Model Commands:
  nanochat models list              List library models (default)
    --all                           Include disabled models
  nanochat models scan              Register GGUF files found in the models dir
  nanochat models select <ref>      Select the model loaded at startup
  nanochat models enable <ref>      Show a model in the picker
  nanochat models disable <ref>     Hide a model from the picker
  nanochat models delete <ref>      Remove a model (and its file if imported)

  <ref> is a model ID, name or path.

Session Commands:
  nanochat sessions list            List conversations (default)
    --all                           Include archived conversations
  nanochat sessions show <id>       Print a conversation
  nanochat sessions export <id>     Export a conversation (Markdown by default)
    --format md|json|html           Output format
    --output FILE                   Write to FILE instead of stdout
    --dir DIR                       Write a generated file name in DIR
  nanochat sessions archive <id>    Archive a conversation
  nanochat sessions unarchive <id>  Restore an archived conversation
  nanochat sessions delete <id>     Delete a conversation

Settings Commands:
  nanochat settings show            Show every setting (default)
  nanochat settings get <key>       Print one setting
  nanochat settings set <key> <v>   Change a setting
  nanochat settings reset           Restore sampling defaults

Global Flags:
  -m, --model REF                   Load this model first (ask, chat, tui)
  -c, --config FILE                 Use FILE as the configuration
  --json                            JSON output (list/show commands)
  -q, --quiet                       Minimal output
  -v, --verbose                     Verbose logging

Examples:
  nanochat import ~/Downloads/qwen2.5-0.5b-instruct-q4_k_m.gguf
  nanochat ask --model qwen2.5 "What is a goroutine?"
  echo "Summarize this" | nanochat ask
  nanochat settings set temperature 0.4
`

// PrintUsage prints the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "nanochat %s\n", Version)
	fmt.Fprintf(w, "  Commit:  %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:   %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses a command line without the program name.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	// No command starts the TUI
	if len(remaining) == 0 {
		return CmdTUI, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsed

	case "ask":
		parseAskArgs(&parsed, remaining)
		return CmdAsk, parsed

	case "chat":
		return CmdChat, parsed

	case "import":
		if len(remaining) > 0 {
			parsed.File = remaining[0]
		}
		return CmdImport, parsed

	case "validate", "check":
		if len(remaining) > 0 {
			parsed.File = remaining[0]
		}
		return CmdValidate, parsed

	case "models", "model":
		parseSubcommand(&parsed, remaining, "list")
		return CmdModels, parsed

	case "sessions", "session":
		parseSubcommand(&parsed, remaining, "list")
		return CmdSessions, parsed

	case "settings", "config":
		parseSubcommand(&parsed, remaining, "show")
		return CmdSettings, parsed

	case "version", "--version", "-V":
		return CmdVersion, parsed

	case "help", "--help", "-h":
		return CmdHelp, parsed

	default:
		parsed.Name = cmd
		return CmdUnknown, parsed
	}
}

// parseGlobalFlags strips the flags accepted before or after any command.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--json":
			parsed.JSON = true
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsed.Model = args[i]
			}
		case "-c", "--config":
			if i+1 < len(args) {
				i++
				parsed.Config = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsed.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--config="):
				parsed.Config = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsed
}

// parseAskArgs joins the positional words into the query. A lone "-" reads
// the query from stdin.
func parseAskArgs(args *Args, remaining []string) {
	var query []string
	for _, arg := range remaining {
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			query = append(query, arg)
		}
	}
	args.Query = strings.Join(query, " ")
}

func parseSubcommand(args *Args, remaining []string, def string) {
	args.Subcommand = def
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		args.Subcommand = strings.ToLower(remaining[0])
		args.Raw = remaining[1:]
	}
}
