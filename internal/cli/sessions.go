// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions.go - Saved conversation commands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/nanochat/internal/export"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/storage"
	"github.com/jeranaias/nanochat/internal/util"
)

// HandleSessions runs the sessions subcommands.
func HandleSessions(ctx context.Context, a *App, args Args) error {
	p := NewArgParser(args.Raw, "all")
	id := p.Positional(0)
	if args.Subcommand != "list" && args.Subcommand != "ls" && id == "" {
		return fmt.Errorf("usage: nanochat sessions %s <id>", args.Subcommand)
	}

	if id != "" {
		full, err := a.resolveSession(ctx, id)
		if err != nil {
			return err
		}
		id = full
	}

	switch args.Subcommand {
	case "list", "ls":
		return a.listSessions(ctx, p.BoolFlag("all"), args.JSON)

	case "show":
		return a.showSession(ctx, id, args.JSON)

	case "export":
		return a.exportSession(ctx, id, p)

	case "archive", "unarchive":
		return a.Chat.ArchiveConversation(ctx, id, args.Subcommand == "archive")

	case "delete", "rm":
		if err := a.Chat.DeleteConversation(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Deleted %s\n", id)
		return nil

	default:
		return fmt.Errorf("unknown sessions subcommand %q", args.Subcommand)
	}
}

// exportSession writes a conversation as Markdown, JSON or HTML to stdout,
// to --output, or to a generated file name in --dir. Without --format the
// output file's extension picks the format.
func (a *App) exportSession(ctx context.Context, id string, p *ArgParser) error {
	out := p.Flag("output")
	format := p.Flag("format")
	if format == "" && out != "" {
		if _, err := export.ForFormat(filepath.Ext(out), nil); err == nil {
			format = filepath.Ext(out)
		}
	}

	opts := export.DefaultOptions()
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return err
	}
	doc, err := export.Load(ctx, a.Store, id)
	if err != nil {
		return err
	}

	if dir := p.Flag("dir"); dir != "" {
		opts.OutputDir = dir
		path, err := export.ExportToFile(doc, exporter, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Err, "Exported to %s\n", path)
		return nil
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return err
	}
	if out != "" {
		if err := util.AtomicWriteFile(out, content, 0600); err != nil {
			return err
		}
		fmt.Fprintf(a.Err, "Exported to %s\n", out)
		return nil
	}
	_, err = a.Out.Write(content)
	return err
}

// resolveSession accepts a full conversation ID or a unique prefix of one,
// as printed by sessions list.
func (a *App) resolveSession(ctx context.Context, ref string) (string, error) {
	if _, err := a.Store.GetConversation(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	convs, err := a.Store.ListConversations(ctx, nil)
	if err != nil {
		return "", err
	}
	var match string
	for _, c := range convs {
		if strings.HasPrefix(c.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("conversation prefix %q is ambiguous", ref)
			}
			match = c.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("conversation %s: %w", ref, storage.ErrNotFound)
	}
	return match, nil
}

func (a *App) listSessions(ctx context.Context, all, jsonMode bool) error {
	return OutputJSON(a.Out, jsonMode, "sessions", func() (any, error) {
		convs, err := a.Chat.Conversations(ctx, all)
		if err != nil {
			return nil, err
		}
		rows := make([]SessionData, 0, len(convs))
		for _, c := range convs {
			n, err := a.Store.CountMessages(ctx, c.ID)
			if err != nil {
				return nil, err
			}
			row := SessionData{
				ID:        c.ID,
				Title:     c.DisplayTitle(),
				Messages:  n,
				Archived:  c.Archived,
				UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
			}
			if c.ModelID != nil {
				row.ModelID = *c.ModelID
			}
			rows = append(rows, row)
		}
		if jsonMode {
			return rows, nil
		}

		if len(rows) == 0 {
			fmt.Fprintln(a.Out, DimStyle.Render("No conversations yet."))
			return rows, nil
		}
		for _, r := range rows {
			title := util.TruncateWidth(r.Title, 40)
			line := fmt.Sprintf("%s  %-40s  %3d msgs  %s",
				DimStyle.Render(util.TruncateRunesNoEllipsis(r.ID, 8)), title, r.Messages, DimStyle.Render(r.UpdatedAt))
			if r.Archived {
				line += "  " + RenderStatus("archived")
			}
			fmt.Fprintln(a.Out, line)
		}
		return rows, nil
	})
}

func (a *App) showSession(ctx context.Context, id string, jsonMode bool) error {
	return OutputJSON(a.Out, jsonMode, "sessions show", func() (any, error) {
		conv, err := a.Store.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		msgs, err := a.Store.ListMessages(ctx, id)
		if err != nil {
			return nil, err
		}
		if jsonMode {
			return struct {
				Conversation *model.Conversation `json:"conversation"`
				Messages     []model.Message     `json:"messages"`
			}{conv, msgs}, nil
		}
		fmt.Fprintln(a.Out, TitleStyle.Render(conv.DisplayTitle()))
		a.printMessages(msgs)
		return nil, nil
	})
}
