// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model library commands: import, validate and models.

package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/progress"

	"github.com/jeranaias/nanochat/internal/gguf"
	"github.com/jeranaias/nanochat/internal/model"
)

// HandleImport copies a GGUF file into the library.
func HandleImport(ctx context.Context, a *App, args Args) error {
	if args.File == "" {
		return errors.New("usage: nanochat import <file.gguf>")
	}

	report := func(float64) {}
	if !args.Quiet && !args.JSON && isTerminal(a.Err) {
		bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
		name := filepath.Base(args.File)
		report = func(p float64) {
			fmt.Fprintf(a.Err, "\r%s %s", name, bar.ViewAs(p))
		}
	}

	entry, err := a.Library.Import(ctx, args.File, report)
	if !args.Quiet && !args.JSON && isTerminal(a.Err) {
		fmt.Fprintln(a.Err)
	}
	if err != nil {
		return err
	}

	return OutputJSON(a.Out, args.JSON, "import", func() (any, error) {
		if !args.JSON {
			fmt.Fprintf(a.Out, "%s %s (%s)\n", SuccessStyle.Render("Imported"), entry.Name, entry.ID)
		}
		return a.modelData(*entry), nil
	})
}

// HandleValidate checks a model file's header without importing it.
func HandleValidate(_ context.Context, a *App, args Args) error {
	if args.File == "" {
		return errors.New("usage: nanochat validate <file.gguf>")
	}
	return OutputJSON(a.Out, args.JSON, "validate", func() (any, error) {
		info, err := gguf.Validate(args.File)
		if err != nil {
			if !args.JSON {
				fmt.Fprintf(a.Out, "%s %s\n", RenderStatus("failed"), err)
			}
			return nil, err
		}
		if !args.JSON {
			fmt.Fprintf(a.Out, "%s %s: GGUF v%d, %s\n",
				RenderStatus("ok"), info.Name, info.Version, gguf.FormatSize(info.Size))
		}
		return info, nil
	})
}

// HandleModels runs the models subcommands.
func HandleModels(ctx context.Context, a *App, args Args) error {
	p := NewArgParser(args.Raw, "all")
	ref := p.Positional(0)

	needRef := func() error {
		if ref == "" {
			return fmt.Errorf("usage: nanochat models %s <model>", args.Subcommand)
		}
		return nil
	}

	switch args.Subcommand {
	case "list", "ls":
		return a.listModels(ctx, p.BoolFlag("all"), args.JSON)

	case "scan":
		added, err := a.Library.Scan(ctx)
		if err != nil {
			return err
		}
		for _, m := range added {
			fmt.Fprintf(a.Out, "%s %s\n", SuccessStyle.Render("Registered"), m.Name)
		}
		if len(added) == 0 {
			fmt.Fprintln(a.Out, DimStyle.Render("No new models in "+a.Library.Dir()))
		}
		return nil

	case "select", "use":
		if err := needRef(); err != nil {
			return err
		}
		entry, err := a.Library.Find(ctx, ref)
		if err != nil {
			return err
		}
		if err := a.Library.Select(ctx, entry.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Selected %s\n", entry.Name)
		return nil

	case "enable", "disable":
		if err := needRef(); err != nil {
			return err
		}
		entry, err := a.Library.Find(ctx, ref)
		if err != nil {
			return err
		}
		return a.Library.SetActive(ctx, entry.ID, args.Subcommand == "enable")

	case "delete", "rm", "remove":
		if err := needRef(); err != nil {
			return err
		}
		entry, err := a.Library.Find(ctx, ref)
		if err != nil {
			return err
		}
		if err := a.Library.Delete(ctx, entry.ID); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "Deleted %s\n", entry.Name)
		return nil

	default:
		return fmt.Errorf("unknown models subcommand %q", args.Subcommand)
	}
}

func (a *App) listModels(ctx context.Context, all, jsonMode bool) error {
	return OutputJSON(a.Out, jsonMode, "models", func() (any, error) {
		models, err := a.Library.List(ctx, !all)
		if err != nil {
			return nil, err
		}
		rows := make([]ModelData, 0, len(models))
		for _, m := range models {
			rows = append(rows, a.modelData(m))
		}
		if jsonMode {
			return rows, nil
		}

		if len(rows) == 0 {
			fmt.Fprintln(a.Out, DimStyle.Render("No models. Import one with: nanochat import <file.gguf>"))
			return rows, nil
		}
		for _, r := range rows {
			mark := "  "
			if r.Selected {
				mark = "* "
			}
			status := "active"
			switch {
			case r.Loaded:
				status = "loaded"
			case !r.Active:
				status = "disabled"
			}
			fmt.Fprintf(a.Out, "%s%s %8s  %s  %s\n",
				mark, RenderLabel(r.Name), gguf.FormatSize(r.Size), RenderStatus(status), DimStyle.Render(r.ID))
		}
		return rows, nil
	})
}

func (a *App) modelData(m model.Model) ModelData {
	d := ModelData{
		ID:       m.ID,
		Name:     m.Name,
		Path:     m.Path,
		Active:   m.Active,
		Selected: a.Settings.SelectedModelID() == m.ID,
		Loaded:   a.Engine.ModelPath() == m.Path,
	}
	if m.FileSize != nil {
		d.Size = *m.FileSize
	}
	return d
}
