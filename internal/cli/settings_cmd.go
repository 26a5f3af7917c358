// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// settings_cmd.go - Chat settings commands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/nanochat/internal/settings"
	"github.com/jeranaias/nanochat/internal/util"
)

// HandleSettings runs the settings subcommands.
func HandleSettings(_ context.Context, a *App, args Args) error {
	switch args.Subcommand {
	case "show", "list":
		return a.showSettings(args.JSON)

	case "get":
		if len(args.Raw) < 1 {
			return errors.New("usage: nanochat settings get <key>")
		}
		v, err := a.Settings.Get(args.Raw[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Out, v)
		return nil

	case "set":
		if len(args.Raw) < 2 {
			return fmt.Errorf("usage: nanochat settings set <key> <value>\nkeys: %s",
				strings.Join(settings.Keys(), ", "))
		}
		key := args.Raw[0]
		value := strings.Join(args.Raw[1:], " ")
		if err := a.Settings.Set(key, value); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Fprintf(a.Out, "%s %s = %s\n", SuccessStyle.Render("Set"), key, value)
		}
		return nil

	case "reset":
		if err := a.Settings.ResetInference(); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Fprintln(a.Out, "Sampling settings restored to defaults.")
		}
		return nil

	case "path":
		fmt.Fprintln(a.Out, a.Settings.Path())
		return nil

	default:
		return fmt.Errorf("unknown settings subcommand %q", args.Subcommand)
	}
}

func (a *App) showSettings(jsonMode bool) error {
	return OutputJSON(a.Out, jsonMode, "settings", func() (any, error) {
		values := make(map[string]string, len(settings.Keys()))
		for _, k := range settings.Keys() {
			v, err := a.Settings.Get(k)
			if err != nil {
				return nil, err
			}
			values[k] = v
		}
		if jsonMode {
			return values, nil
		}

		fmt.Fprintln(a.Out, TitleStyle.Render("Settings"))
		for _, k := range settings.Keys() {
			v := values[k]
			if k == "system_prompt" {
				v = util.TruncateWidth(util.SingleLine(v), terminalWidth(a.Out)-26)
			}
			if v == "" {
				v = DimStyle.Render("(none)")
			}
			fmt.Fprintln(a.Out, RenderLabel(k)+ValueStyle.Render(v))
		}
		fmt.Fprintln(a.Out, DimStyle.Render(a.Settings.Path()))
		return values, nil
	})
}
