// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat for terminals where the TUI is unwanted.
//
// Command: chat
// Short:   Start an interactive line-mode chat
//
// Interactive Commands (during chat):
//
//	/help               Show available commands
//	/new                Start a new conversation
//	/models             List library models
//	/load <ref>         Load a model
//	/unload             Unload the model
//	/history            Show this conversation
//	/quit               Exit
//	Ctrl+C              Stop the current reply
//	Ctrl+D              Exit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/model"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history lives in historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads one line, adding it to history when non-blank.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the history file, owner-only.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the line-mode chat until /quit or end of input.
func HandleChat(ctx context.Context, a *App, args Args) error {
	if err := a.ensureModel(ctx, args.Model, args.Quiet); err != nil {
		return err
	}

	input := NewChatCLI(a.historyPath())
	defer input.Close()

	if !args.Quiet {
		a.printWelcome()
	}

	for {
		line, err := input.ReadInput("you> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(a.Out)
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := a.handleSlashCommand(ctx, line)
			if err != nil {
				fmt.Fprintln(a.Err, ErrorStyle.Render("Error: "+err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		a.replyTurn(ctx, line, args.Quiet)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// replyTurn streams one reply. Ctrl+C during the reply stops it without
// leaving the chat.
func (a *App) replyTurn(ctx context.Context, text string, quiet bool) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprint(a.Out, PromptStyle.Render("assistant> "))
	reply, err := a.sendAndStream(turnCtx, text, a.Out)
	fmt.Fprintln(a.Out)

	switch {
	case errors.Is(err, ErrReplyFailed):
		fmt.Fprintln(a.Err, ErrorStyle.Render(reply.Content))
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(a.Err, WarningStyle.Render("Stopped."))
	case err != nil:
		fmt.Fprintln(a.Err, ErrorStyle.Render("Error: "+err.Error()))
	case !quiet:
		if stats := replyStats(reply); stats != "" {
			fmt.Fprintln(a.Err, DimStyle.Render(stats))
		}
	}
}

// handleSlashCommand runs a /command. It reports whether the chat should
// end.
func (a *App) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		a.printChatHelp()

	case "/new", "/clear":
		if err := a.Chat.ClearConversation(); err != nil {
			return false, err
		}
		fmt.Fprintln(a.Out, DimStyle.Render("Started a new conversation."))

	case "/models":
		return false, a.listModels(ctx, false, false)

	case "/load":
		if rest == "" {
			return false, errors.New("usage: /load <model>")
		}
		entry, err := a.Library.Find(ctx, rest)
		if err != nil {
			return false, err
		}
		if _, err := a.Library.Load(ctx, entry.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(a.Out, SuccessStyle.Render("Loaded "+entry.Name))

	case "/unload":
		if err := a.Library.Unload(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(a.Out, DimStyle.Render("Model unloaded."))

	case "/history":
		a.printMessages(a.Chat.Messages())

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func (a *App) printWelcome() {
	fmt.Fprintln(a.Out, TitleStyle.Render("nanochat "+Version))
	fmt.Fprintln(a.Out, DimStyle.Render(inference.Describe(a.Engine.State())))
	fmt.Fprintln(a.Out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(a.Out)
}

func (a *App) printChatHelp() {
	rows := [][2]string{
		{"/new", "Start a new conversation"},
		{"/models", "List library models"},
		{"/load <model>", "Load a model by ID, name or path"},
		{"/unload", "Unload the model"},
		{"/history", "Show this conversation"},
		{"/quit", "Exit"},
		{"Ctrl+C", "Stop the current reply"},
	}
	for _, r := range rows {
		fmt.Fprintln(a.Out, RenderLabel(r[0])+ValueStyle.Render(r[1]))
	}
}

// printMessages prints a transcript, errors in the error color.
func (a *App) printMessages(msgs []model.Message) {
	for _, m := range msgs {
		label := PromptStyle.Render(strings.ToLower(m.Role.DisplayName()) + ">")
		content := m.Content
		if m.Status == model.StatusError {
			content = ErrorStyle.Render(content)
		}
		fmt.Fprintf(a.Out, "%s %s\n", label, content)
	}
}
