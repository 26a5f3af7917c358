// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Dependencies shared by the command handlers.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nanochat/internal/chat"
	"github.com/jeranaias/nanochat/internal/config"
	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/library"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/settings"
	"github.com/jeranaias/nanochat/internal/storage"
)

// ErrReplyFailed is returned when the assistant reply ended in the error
// state. The reply's text has already been printed.
var ErrReplyFailed = errors.New("reply failed")

// App is everything a command handler may touch. main wires it once.
type App struct {
	Config   *config.Config
	Log      logrus.FieldLogger
	Store    *storage.Store
	Settings *settings.Store
	Engine   *inference.Service
	Library  *library.Manager
	Chat     *chat.Orchestrator

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

func (a *App) stdin() io.Reader {
	if a.In != nil {
		return a.In
	}
	return os.Stdin
}

// Run executes every command except CmdTUI.
func Run(ctx context.Context, cmd Command, a *App, args Args) error {
	switch cmd {
	case CmdAsk:
		return HandleAsk(ctx, a, args)
	case CmdChat:
		return HandleChat(ctx, a, args)
	case CmdImport:
		return HandleImport(ctx, a, args)
	case CmdModels:
		return HandleModels(ctx, a, args)
	case CmdValidate:
		return HandleValidate(ctx, a, args)
	case CmdSessions:
		return HandleSessions(ctx, a, args)
	case CmdSettings:
		return HandleSettings(ctx, a, args)
	case CmdVersion:
		PrintVersion(a.Out)
		return nil
	case CmdHelp:
		PrintUsage(a.Out)
		return nil
	case CmdUnknown:
		return fmt.Errorf("unknown command %q (run 'nanochat help')", args.Name)
	default:
		return fmt.Errorf("command %s has no handler", cmd)
	}
}

// ensureModel loads ref when given, otherwise the selected model if the
// engine holds nothing. With neither, it leaves the engine empty and the
// next send records the no-model reply.
func (a *App) ensureModel(ctx context.Context, ref string, quiet bool) error {
	var entry *model.Model
	if ref != "" {
		found, err := a.Library.Find(ctx, ref)
		if err != nil {
			return err
		}
		if a.Engine.ModelPath() == found.Path {
			return nil
		}
		entry = found
	} else {
		if a.Engine.IsLoaded() {
			return nil
		}
		selected, err := a.Library.Selected(ctx)
		if err != nil {
			return err
		}
		if selected == nil {
			return nil
		}
		entry = selected
	}

	if !quiet {
		fmt.Fprintln(a.Err, DimStyle.Render("Loading "+entry.Name+"..."))
	}
	start := time.Now()
	if _, err := a.Library.Load(ctx, entry.ID); err != nil {
		return err
	}
	a.Log.WithFields(logrus.Fields{
		"model":   entry.Name,
		"elapsed": time.Since(start),
	}).Debug("model ready")
	return nil
}

// sendAndStream submits one user turn and writes the reply to w as it
// grows. Cancelling ctx stops the generation. The returned message is the
// reply as it ended.
func (a *App) sendAndStream(ctx context.Context, text string, w io.Writer) (model.Message, error) {
	if err := a.Chat.Send(ctx, text); err != nil {
		return model.Message{}, err
	}

	printed := 0
	var reply model.Message
	flush := func() {
		msgs := a.Chat.Messages()
		if len(msgs) == 0 {
			return
		}
		reply = msgs[len(msgs)-1]
		if reply.Role != model.RoleAssistant || reply.Status == model.StatusError {
			return
		}
		if w != nil && len(reply.Content) > printed {
			io.WriteString(w, reply.Content[printed:])
			printed = len(reply.Content)
		}
	}

	for a.Chat.IsGenerating() {
		select {
		case <-ctx.Done():
			a.Chat.Stop()
			a.Chat.Wait()
			flush()
			return reply, ctx.Err()
		case <-a.Chat.Updates():
			flush()
		}
	}
	flush()

	if reply.Status == model.StatusError {
		return reply, fmt.Errorf("%w: %s", ErrReplyFailed, reply.Content)
	}
	return reply, nil
}

// replyStats formats a completed reply's metrics.
func replyStats(m model.Message) string {
	if m.TokenCount == nil || m.DurationMs == nil {
		return ""
	}
	return fmt.Sprintf("%d tokens · %.1fs · %.1f tok/s",
		*m.TokenCount, float64(*m.DurationMs)/1000, m.TokensPerSecond())
}

// historyPath is where the line-mode chat keeps its input history.
func (a *App) historyPath() string {
	return filepath.Join(a.Config.DataDir(), "chat_history")
}
