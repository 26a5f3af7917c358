// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/sirupsen/logrus"

	chatsvc "github.com/jeranaias/nanochat/internal/chat"
	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/library"
	"github.com/jeranaias/nanochat/internal/logging"
	"github.com/jeranaias/nanochat/internal/settings"
	"github.com/jeranaias/nanochat/internal/ui/styles"
)

// Layout rows outside the viewport: header, status bar, bordered input
// (3 rows) and the key hint.
const chromeHeight = 6

// Options wires the chat screen to the application services.
type Options struct {
	Chat     *chatsvc.Orchestrator
	Engine   *inference.Service
	Library  *library.Manager
	Settings *settings.Store
	Theme    *styles.Theme
	Log      logrus.FieldLogger

	// RenderMarkdown renders completed assistant replies with glamour.
	RenderMarkdown bool
	// StartupModel is loaded on Init. Empty loads the selected model when
	// AutoLoad is set.
	StartupModel string
	AutoLoad     bool
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx     context.Context
	chat    *chatsvc.Orchestrator
	engine  *inference.Service
	library *library.Manager
	log     logrus.FieldLogger
	theme   *styles.Theme
	keys    KeyMap

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	states      <-chan inference.State
	unsubscribe func()
	state       inference.State
	values      settings.Values

	markdown      bool
	renderer      *glamour.TermRenderer
	renderedWidth int
	rendered      map[string]string

	notice      string
	noticeError bool

	startupModel string
	autoLoad     bool

	width    int
	height   int
	sending  bool
	quitting bool
}

// New creates the chat screen. ctx bounds the background work the screen
// starts; Close releases the engine subscription.
func New(ctx context.Context, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a message or /help"
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	ti.PromptStyle = theme.Prompt
	sp.Style = theme.Hint

	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}

	values := settings.Defaults()
	if opts.Settings != nil {
		values = opts.Settings.Values()
	}

	states, unsubscribe := opts.Engine.Subscribe()

	return Model{
		ctx:          ctx,
		chat:         opts.Chat,
		engine:       opts.Engine,
		library:      opts.Library,
		log:          log.WithField("component", "tui"),
		theme:        theme,
		keys:         DefaultKeyMap(),
		input:        ti,
		viewport:     vp,
		spinner:      sp,
		states:       states,
		unsubscribe:  unsubscribe,
		state:        opts.Engine.State(),
		values:       values,
		markdown:     opts.RenderMarkdown,
		rendered:     make(map[string]string),
		startupModel: opts.StartupModel,
		autoLoad:     opts.AutoLoad || opts.StartupModel != "",
		width:        80,
		height:       24,
	}
}

// Close unsubscribes from engine state changes.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts the listeners and the startup model load.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		waitForUpdate(m.chat),
		waitForState(m.states),
	}
	if m.autoLoad {
		cmds = append(cmds, loadStartupModel(m.ctx, &m, m.startupModel))
	}
	return tea.Batch(cmds...)
}

// Generating reports whether a reply is being produced.
func (m Model) Generating() bool {
	return m.chat.IsGenerating()
}

// Notice returns the text shown below the conversation.
func (m Model) Notice() string {
	return m.notice
}

// InputValue returns the text in the input line.
func (m Model) InputValue() string {
	return m.input.Value()
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeError = isErr
	m.refresh()
}

func (m *Model) clearNotice() {
	m.notice = ""
	m.noticeError = false
}

func (m *Model) quit() tea.Cmd {
	m.quitting = true
	if m.chat.IsGenerating() {
		m.chat.Stop()
	}
	return tea.Quit
}

// send persists the user turn in the background. The orchestrator starts
// the reply and signals through Updates.
func (m *Model) send(text string) tea.Cmd {
	m.sending = true
	m.clearNotice()
	o, ctx := m.chat, m.ctx
	return func() tea.Msg {
		return SendResultMsg{Err: o.Send(ctx, text)}
	}
}
