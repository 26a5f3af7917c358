// nanochat - chat with local GGUF models from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nanochat/internal/chat"
	"github.com/jeranaias/nanochat/internal/cli"
	"github.com/jeranaias/nanochat/internal/config"
	"github.com/jeranaias/nanochat/internal/gguf"
	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/library"
	"github.com/jeranaias/nanochat/internal/logging"
	"github.com/jeranaias/nanochat/internal/ollama"
	"github.com/jeranaias/nanochat/internal/prompt"
	"github.com/jeranaias/nanochat/internal/settings"
	"github.com/jeranaias/nanochat/internal/storage"
	uichat "github.com/jeranaias/nanochat/internal/ui/chat"
	"github.com/jeranaias/nanochat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// tuiLogFile receives TUI logs when no log file is configured; the screen
// itself owns the terminal.
const tuiLogFile = "nanochat.log"

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return
	case cli.CmdUnknown:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args.Name)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	if err := run(cmd, args); err != nil {
		// A failed reply was already printed as the reply text.
		if !errors.Is(err, cli.ErrReplyFailed) && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error: "+err.Error()))
		}
		os.Exit(1)
	}
}

func run(cmd cli.Command, args cli.Args) error {
	// The line-mode chat handles Ctrl-C per reply; everywhere else it ends
	// the command.
	sigs := []os.Signal{syscall.SIGTERM}
	if cmd != cli.CmdChat {
		sigs = append(sigs, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(context.Background(), sigs...)
	defer stop()

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if cmd == cli.CmdTUI && cfg.Log.File == "" {
		cfg.Log.File = tuiLogFile
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	if args.Model == "" {
		args.Model = cfg.Engine.DefaultModel
	}

	log, closer, err := logging.New(logging.FromConfig(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer closer.Close()
	log.WithFields(logrus.Fields{
		"command":  cmd.String(),
		"version":  Version,
		"data_dir": cfg.DataDir(),
	}).Debug("starting")

	app, cleanup, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if cmd == cli.CmdTUI {
		return runTUI(ctx, app, args)
	}
	return cli.Run(ctx, cmd, app, args)
}

func loadConfig(args cli.Args) (*config.Config, error) {
	// Nothing is logged before the logger exists.
	boot := logging.Discard()
	if args.Config != "" {
		return config.LoadFromPath(args.Config, boot)
	}
	return config.Load(boot)
}

// buildApp opens storage and settings and wires the engine, the model
// library and the orchestrator.
func buildApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*cli.App, func(), error) {
	store, err := storage.Open(cfg.DatabasePath(), log)
	if err != nil {
		return nil, nil, err
	}

	st, err := settings.Open(cfg.SettingsPath(), log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	backend := ollama.NewBackend(&ollama.ClientConfig{
		BaseURL:   cfg.Engine.OllamaURL,
		Timeout:   time.Duration(cfg.Engine.RequestTimeoutSecs) * time.Second,
		KeepAlive: cfg.Engine.KeepAlive,
		AutoStart: cfg.Engine.AutoStart,
	}, log.WithField("component", "ollama"))

	engineOpts := []inference.Option{inference.WithLogger(log.WithField("component", "engine"))}
	if cfg.Engine.Preflight {
		engineOpts = append(engineOpts, inference.WithPreflight(gguf.Preflight))
	}
	engine := inference.NewService(backend, engineOpts...)

	lib := library.New(store, engine, st, cfg.ModelsPath(), log.WithField("component", "library"))
	lib.SetLoadDefaults(cfg.Engine.Threads, cfg.Engine.GPULayers)
	if added, err := lib.Scan(ctx); err != nil {
		log.WithError(err).Warn("model scan failed")
	} else if len(added) > 0 {
		log.WithField("count", len(added)).Info("registered models found on disk")
	}

	chatOpts := []chat.Option{chat.WithLogger(log.WithField("component", "chat"))}
	if cfg.Engine.Dialect != "" {
		d, err := prompt.ParseDialect(cfg.Engine.Dialect)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		chatOpts = append(chatOpts, chat.WithDialect(d))
	}
	orch := chat.New(store, engine, st, chatOpts...)

	app := &cli.App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Settings: st,
		Engine:   engine,
		Library:  lib,
		Chat:     orch,
		In:       os.Stdin,
		Out:      os.Stdout,
		Err:      os.Stderr,
	}
	cleanup := func() {
		orch.Stop()
		orch.Wait()
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("close storage")
		}
	}
	return app, cleanup, nil
}

// runTUI runs the chat screen until the user quits. Settings edited on
// disk while it runs are pushed into the screen.
func runTUI(ctx context.Context, app *cli.App, args cli.Args) error {
	m := uichat.New(ctx, uichat.Options{
		Chat:           app.Chat,
		Engine:         app.Engine,
		Library:        app.Library,
		Settings:       app.Settings,
		Theme:          styles.NewTheme(app.Config.UI.Theme),
		Log:            app.Log,
		RenderMarkdown: app.Config.UI.RenderMarkdown,
		StartupModel:   args.Model,
		AutoLoad:       true,
	})
	defer m.Close()

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		err := app.Settings.Watch(watchCtx, settings.DefaultWatchDebounce, func(v settings.Values) {
			p.Send(uichat.SettingsReloadedMsg{Values: v})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			app.Log.WithError(err).Warn("settings watcher stopped")
		}
	}()

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
