// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask
// Short:   Ask one question and stream the reply to stdout
//
// Examples:
//
//	nanochat ask "What is a goroutine?"
//	nanochat ask --model qwen2.5 "Explain channels"
//	git diff | nanochat ask -
//
// The question and reply are saved as a new conversation.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/nanochat/internal/model"
)

// maxStdinQuestion bounds how much piped input becomes the question.
const maxStdinQuestion = 1 << 20

// HandleAsk runs the ask command.
func HandleAsk(ctx context.Context, a *App, args Args) error {
	question, err := a.readQuestion(args.Query)
	if err != nil {
		return err
	}
	if question == "" {
		return errors.New(`no question provided. Usage: nanochat ask "your question"`)
	}

	if err := a.ensureModel(ctx, args.Model, args.Quiet || args.JSON); err != nil {
		return err
	}
	if err := a.Chat.ClearConversation(); err != nil {
		return err
	}

	if args.JSON {
		reply, err := a.sendAndStream(ctx, question, nil)
		if err != nil && !errors.Is(err, ErrReplyFailed) {
			return err
		}
		return NewJSONResponse("ask", a.askData(reply)).Print(a.Out)
	}

	// Markdown rendering needs the whole reply, so it only replaces live
	// streaming when the output is a terminal and the user wants it.
	pretty := a.Config.UI.RenderMarkdown && isTerminal(a.Out)
	var live io.Writer = a.Out
	if pretty {
		live = nil
	}

	reply, err := a.sendAndStream(ctx, question, live)
	switch {
	case errors.Is(err, ErrReplyFailed):
		fmt.Fprintln(a.Err, ErrorStyle.Render(reply.Content))
		return err
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(a.Out)
		fmt.Fprintln(a.Err, WarningStyle.Render("Stopped."))
		return nil
	case err != nil:
		return err
	}

	if pretty {
		fmt.Fprint(a.Out, renderMarkdown(reply.Content, terminalWidth(a.Out)))
	} else if !strings.HasSuffix(reply.Content, "\n") {
		fmt.Fprintln(a.Out)
	}

	if !args.Quiet {
		if stats := replyStats(reply); stats != "" {
			fmt.Fprintln(a.Err, DimStyle.Render(stats))
		}
	}
	return nil
}

// readQuestion returns query, or the piped stdin when query is empty or
// "-".
func (a *App) readQuestion(query string) (string, error) {
	if query != "" && query != "-" {
		return strings.TrimSpace(query), nil
	}
	if query == "" && isTerminal(a.stdin()) {
		return "", nil
	}
	data, err := io.ReadAll(io.LimitReader(a.stdin(), maxStdinQuestion))
	if err != nil {
		return "", fmt.Errorf("read question from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (a *App) askData(reply model.Message) AskData {
	d := AskData{
		Response: reply.Content,
		Model:    a.Engine.ModelPath(),
		Status:   reply.Status.String(),
	}
	if conv := a.Chat.Conversation(); conv != nil {
		d.Conversation = conv.ID
	}
	if reply.TokenCount != nil {
		d.OutputTokens = *reply.TokenCount
	}
	if reply.DurationMs != nil {
		d.DurationMs = *reply.DurationMs
	}
	d.TokensPerSec = reply.TokensPerSecond()
	return d
}

// renderMarkdown renders content for the terminal, falling back to the raw
// text when glamour fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return content + "\n"
	}
	out, err := r.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

