// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	chatsvc "github.com/jeranaias/nanochat/internal/chat"
	"github.com/jeranaias/nanochat/internal/config"
	"github.com/jeranaias/nanochat/internal/gguf"
	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/library"
	"github.com/jeranaias/nanochat/internal/logging"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/settings"
	"github.com/jeranaias/nanochat/internal/storage"
	"github.com/jeranaias/nanochat/internal/ui/styles"
)

// =============================================================================
// FIXTURES
// =============================================================================

// gateBackend replies with "Hi" once release is closed, or blocks until the
// generation is cancelled.
type gateBackend struct {
	release chan struct{}
}

func (b *gateBackend) Load(context.Context, string, inference.LoadOptions) error { return nil }
func (b *gateBackend) Unload(context.Context) error                              { return nil }

func (b *gateBackend) Generate(context.Context, string, inference.SamplingConfig) (inference.Fragments, error) {
	return &gateFragments{release: b.release}, nil
}

type gateFragments struct {
	release <-chan struct{}
	sent    bool
}

func (f *gateFragments) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.release:
	}
	if f.sent {
		return "", io.EOF
	}
	f.sent = true
	return "Hi", nil
}

func (f *gateFragments) Close() error          { return nil }
func (f *gateFragments) Usage() inference.Usage { return inference.Usage{} }

type harness struct {
	orch    *chatsvc.Orchestrator
	engine  *inference.Service
	library *library.Manager
	backend *gateBackend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.Discard()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()

	store, err := storage.Open(cfg.DatabasePath(), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	st, err := settings.Open(cfg.SettingsPath(), log)
	require.NoError(t, err)

	be := &gateBackend{release: make(chan struct{})}
	svc := inference.NewService(be, inference.WithLogger(log), inference.WithPreflight(gguf.Preflight))
	h := &harness{
		orch:    chatsvc.New(store, svc, st, chatsvc.WithLogger(log)),
		engine:  svc,
		library: library.New(store, svc, st, cfg.ModelsPath(), log),
		backend: be,
	}
	t.Cleanup(func() {
		h.orch.Stop()
		h.orch.Wait()
	})
	return h
}

func (h *harness) newModel(t *testing.T) Model {
	t.Helper()
	m := New(context.Background(), Options{
		Chat:    h.orch,
		Engine:  h.engine,
		Library: h.library,
		Theme:   styles.NewTheme("dark"),
	})
	t.Cleanup(m.Close)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func (h *harness) importModel(t *testing.T, name string) *model.Model {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, []byte("GGUF\x03\x00\x00\x00padding"), 0644))
	entry, err := h.library.Import(context.Background(), src, nil)
	require.NoError(t, err)
	return entry
}

func (h *harness) loadModel(t *testing.T, name string) {
	t.Helper()
	entry := h.importModel(t, name)
	_, err := h.library.Load(context.Background(), entry.ID)
	require.NoError(t, err)
}

// typeAndPress sets the input and presses key.
func typeAndPress(m Model, text string, k tea.KeyType) (Model, tea.Cmd) {
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: k})
	return next.(Model), cmd
}

// apply runs cmd synchronously and feeds its message back into m.
func apply(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(Model)
}

// =============================================================================
// SEND
// =============================================================================

func TestSubmit_SendsAndRendersReply(t *testing.T) {
	h := newHarness(t)
	h.loadModel(t, "tiny.gguf")
	close(h.backend.release)

	m := h.newModel(t)
	m, cmd := typeAndPress(m, "Hello there", tea.KeyEnter)
	require.Empty(t, m.InputValue())
	require.True(t, m.sending)

	m = apply(t, m, cmd)
	require.False(t, m.sending)
	h.orch.Wait()

	next, _ := m.Update(ConversationUpdatedMsg{})
	m = next.(Model)
	view := m.View()
	require.Contains(t, view, "Hello there")
	require.Contains(t, view, "Hi")
	require.Contains(t, view, "Assistant")
}

func TestSubmit_BlankIsIgnored(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "   ", tea.KeyEnter)
	require.Nil(t, cmd)
	require.False(t, m.sending)
}

func TestSubmit_DisabledWhileGenerating(t *testing.T) {
	h := newHarness(t)
	h.loadModel(t, "tiny.gguf")
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "first", tea.KeyEnter)
	m = apply(t, m, cmd)
	require.True(t, m.Generating())

	m, cmd = typeAndPress(m, "second", tea.KeyEnter)
	require.Nil(t, cmd)
	require.Equal(t, "second", m.InputValue())
	require.Contains(t, m.Notice(), "still generating")
	require.Len(t, h.orch.Messages(), 2)
}

func TestSubmit_NoModelShowsErrorReply(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "anyone?", tea.KeyEnter)
	m = apply(t, m, cmd)
	next, _ := m.Update(ConversationUpdatedMsg{})
	m = next.(Model)

	msgs := h.orch.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, model.StatusError, msgs[1].Status)
	require.Contains(t, m.View(), "No model loaded")
}

func TestSubmit_DoubleSlashSendsText(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "//etc/hosts", tea.KeyEnter)
	apply(t, m, cmd)
	require.Equal(t, "/etc/hosts", h.orch.Messages()[0].Content)
}

// =============================================================================
// STOP
// =============================================================================

func TestEsc_StopsGeneration(t *testing.T) {
	h := newHarness(t)
	h.loadModel(t, "tiny.gguf")
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "go", tea.KeyEnter)
	m = apply(t, m, cmd)
	require.True(t, m.Generating())

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	h.orch.Wait()

	require.False(t, m.Generating())
	require.Equal(t, "Stopped.", m.Notice())
	require.True(t, inference.IsReady(h.engine.State()))
}

func TestEsc_ClearsInputWhenIdle(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m.input.SetValue("draft")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Empty(t, next.(Model).InputValue())
}

func TestStopCommand(t *testing.T) {
	h := newHarness(t)
	h.loadModel(t, "tiny.gguf")
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "/stop", tea.KeyEnter)
	require.Nil(t, cmd)
	require.Equal(t, "Nothing is generating.", m.Notice())

	m, cmd = typeAndPress(m, "go", tea.KeyEnter)
	m = apply(t, m, cmd)
	m, _ = typeAndPress(m, "/stop", tea.KeyEnter)
	h.orch.Wait()
	require.False(t, m.Generating())
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		name string
		args []string
		text string
	}{
		{line: "hello", ok: false, text: "hello"},
		{line: "  /LOAD qwen 2.5 ", ok: true, name: "load", args: []string{"qwen", "2.5"}},
		{line: "/quit", ok: true, name: "quit", args: []string{}},
		{line: "//not a command", ok: false, text: "/not a command"},
		{line: "/", ok: false, text: "/"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, text, ok := ParseSlashCommand(tt.line)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.name, cmd.Name)
				require.Equal(t, tt.args, cmd.Args)
			} else {
				require.Equal(t, tt.text, text)
			}
		})
	}
}

func TestLoadAndUnloadCommands(t *testing.T) {
	h := newHarness(t)
	h.importModel(t, "tiny.gguf")
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "/load tiny", tea.KeyEnter)
	require.Equal(t, "Loading tiny...", m.Notice())
	m = apply(t, m, cmd)
	require.Equal(t, "Loaded tiny.", m.Notice())
	require.True(t, h.engine.IsLoaded())

	m, cmd = typeAndPress(m, "/unload", tea.KeyEnter)
	m = apply(t, m, cmd)
	require.Equal(t, "Model unloaded.", m.Notice())
	require.False(t, h.engine.IsLoaded())

	m, cmd = typeAndPress(m, "/unload", tea.KeyEnter)
	require.Nil(t, cmd)
	require.Equal(t, "No model loaded.", m.Notice())
}

func TestLoadCommand_Errors(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "/load", tea.KeyEnter)
	require.Nil(t, cmd)
	require.True(t, m.noticeError)

	m, cmd = typeAndPress(m, "/load missing", tea.KeyEnter)
	m = apply(t, m, cmd)
	require.True(t, m.noticeError)
	require.Contains(t, m.Notice(), "missing")
	require.Contains(t, m.View(), "missing")
}

func TestModelsCommand(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "/models", tea.KeyEnter)
	m = apply(t, m, cmd)
	require.Contains(t, m.Notice(), "No models")

	h.importModel(t, "alpha.gguf")
	h.loadModel(t, "beta.gguf")
	m, cmd = typeAndPress(m, "/models", tea.KeyEnter)
	m = apply(t, m, cmd)
	require.Contains(t, m.Notice(), "  alpha")
	require.Contains(t, m.Notice(), "* beta")
}

func TestNewCommand(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "/new", tea.KeyEnter)
	m = apply(t, m, cmd)
	require.Equal(t, "Started a new conversation.", m.Notice())
	require.NotNil(t, h.orch.Conversation())
	require.Equal(t, model.DefaultTitle, h.orch.Conversation().Title)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "/frobnicate", tea.KeyEnter)
	require.Nil(t, cmd)
	require.True(t, m.noticeError)
	require.Contains(t, m.Notice(), "/frobnicate")
}

func TestQuit(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "/quit", tea.KeyEnter)
	require.NotNil(t, cmd)
	require.Equal(t, tea.Quit(), cmd())
	require.Empty(t, m.View())

	next, cmd := h.newModel(t).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Equal(t, tea.Quit(), cmd())
	require.Empty(t, next.(Model).View())
}

// =============================================================================
// STATE AND SETTINGS
// =============================================================================

func TestEngineStateShownInStatus(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)
	require.Contains(t, m.View(), "No model loaded")

	next, cmd := m.Update(EngineStateMsg{State: inference.Failed{Message: "engine crashed"}})
	require.NotNil(t, cmd)
	require.Contains(t, next.(Model).View(), "Error: engine crashed")

	next, _ = m.Update(EngineStateMsg{State: inference.Ready{ModelName: "tiny.gguf"}})
	require.Contains(t, next.(Model).View(), "Ready: tiny.gguf")
}

func TestSettingsReload_ShowsMetrics(t *testing.T) {
	h := newHarness(t)
	h.loadModel(t, "tiny.gguf")
	close(h.backend.release)
	m := h.newModel(t)

	m, cmd := typeAndPress(m, "hi", tea.KeyEnter)
	m = apply(t, m, cmd)
	h.orch.Wait()

	values := settings.Defaults()
	values.ShowTokenCount = false
	values.ShowGenerationTime = false
	next, _ := m.Update(SettingsReloadedMsg{Values: values})
	require.NotContains(t, next.(Model).View(), "tokens")

	values.ShowTokenCount = true
	next, _ = m.Update(SettingsReloadedMsg{Values: values})
	require.Contains(t, next.(Model).View(), "1 tokens")
}

func TestHelpToggle(t *testing.T) {
	h := newHarness(t)
	m := h.newModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyF1})
	m = next.(Model)
	require.Contains(t, m.Notice(), "/load <model>")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyF1})
	require.Empty(t, next.(Model).Notice())
}
