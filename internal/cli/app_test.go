// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nanochat/internal/chat"
	"github.com/jeranaias/nanochat/internal/config"
	"github.com/jeranaias/nanochat/internal/export"
	"github.com/jeranaias/nanochat/internal/gguf"
	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/library"
	"github.com/jeranaias/nanochat/internal/logging"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/settings"
	"github.com/jeranaias/nanochat/internal/storage"
)

// replyBackend answers every prompt with the same fragments.
type replyBackend struct {
	mu      sync.Mutex
	frags   []string
	prompts []string
}

func (b *replyBackend) Load(context.Context, string, inference.LoadOptions) error { return nil }
func (b *replyBackend) Unload(context.Context) error                              { return nil }

func (b *replyBackend) Generate(_ context.Context, prompt string, _ inference.SamplingConfig) (inference.Fragments, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	return &sliceFragments{frags: append([]string(nil), b.frags...)}, nil
}

func (b *replyBackend) lastPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.prompts) == 0 {
		return ""
	}
	return b.prompts[len(b.prompts)-1]
}

type sliceFragments struct{ frags []string }

func (s *sliceFragments) Next(context.Context) (string, error) {
	if len(s.frags) == 0 {
		return "", io.EOF
	}
	f := s.frags[0]
	s.frags = s.frags[1:]
	return f, nil
}

func (s *sliceFragments) Close() error          { return nil }
func (s *sliceFragments) Usage() inference.Usage { return inference.Usage{} }

type testApp struct {
	*App
	backend *replyBackend
	out     *bytes.Buffer
	errOut  *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	dir := t.TempDir()
	log := logging.Discard()

	cfg := config.Default()
	cfg.Storage.DataDir = dir

	store, err := storage.Open(cfg.DatabasePath(), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	st, err := settings.Open(cfg.SettingsPath(), log)
	require.NoError(t, err)

	be := &replyBackend{frags: []string{"Hello", " world"}}
	svc := inference.NewService(be, inference.WithLogger(log), inference.WithPreflight(gguf.Preflight))

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	app := &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Settings: st,
		Engine:   svc,
		Library:  library.New(store, svc, st, cfg.ModelsPath(), log),
		Chat:     chat.New(store, svc, st, chat.WithLogger(log)),
		In:       strings.NewReader(""),
		Out:      out,
		Err:      errOut,
	}
	return &testApp{App: app, backend: be, out: out, errOut: errOut}
}

// importModel writes a minimal GGUF file and imports it.
func (a *testApp) importModel(t *testing.T, name string) *model.Model {
	t.Helper()
	src := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(src, []byte("GGUF\x03\x00\x00\x00padding"), 0644))
	m, err := a.Library.Import(context.Background(), src, nil)
	require.NoError(t, err)
	return m
}

func (a *testApp) reset() {
	a.out.Reset()
	a.errOut.Reset()
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_NoModel(t *testing.T) {
	a := newTestApp(t)
	err := HandleAsk(context.Background(), a.App, Args{Query: "Hi"})
	require.ErrorIs(t, err, ErrReplyFailed)
	require.Contains(t, a.errOut.String(), chat.NoModelMessage)
	require.Empty(t, a.out.String())
}

func TestAsk_StreamsReplyWithSelectedModel(t *testing.T) {
	a := newTestApp(t)
	m := a.importModel(t, "tiny.gguf")
	require.NoError(t, a.Library.Select(context.Background(), m.ID))

	require.NoError(t, HandleAsk(context.Background(), a.App, Args{Query: "Say hello"}))
	require.Equal(t, "Hello world\n", a.out.String())
	require.Contains(t, a.errOut.String(), "2 tokens")
	require.Contains(t, a.backend.lastPrompt(), "Say hello")
	require.Equal(t, m.Path, a.Engine.ModelPath())

	convs, err := a.Store.ListConversations(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "Say hello", convs[0].Title)
}

func TestAsk_ModelFlagAndQuiet(t *testing.T) {
	a := newTestApp(t)
	a.importModel(t, "other.gguf")

	require.NoError(t, HandleAsk(context.Background(), a.App, Args{Query: "x", Model: "other", Quiet: true}))
	require.Equal(t, "Hello world\n", a.out.String())
	require.Empty(t, a.errOut.String())
}

func TestAsk_UnknownModel(t *testing.T) {
	a := newTestApp(t)
	err := HandleAsk(context.Background(), a.App, Args{Query: "x", Model: "nope"})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAsk_ReadsStdin(t *testing.T) {
	a := newTestApp(t)
	a.importModel(t, "tiny.gguf")
	a.In = strings.NewReader("  piped question \n")

	require.NoError(t, HandleAsk(context.Background(), a.App, Args{Query: "-", Model: "tiny"}))
	require.Contains(t, a.backend.lastPrompt(), "piped question")
}

func TestAsk_EmptyQuestion(t *testing.T) {
	a := newTestApp(t)
	err := HandleAsk(context.Background(), a.App, Args{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no question")
}

func TestAsk_JSON(t *testing.T) {
	a := newTestApp(t)
	a.importModel(t, "tiny.gguf")

	require.NoError(t, HandleAsk(context.Background(), a.App, Args{Query: "q", Model: "tiny", JSON: true}))

	var resp struct {
		Success bool    `json:"success"`
		Data    AskData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(a.out.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "Hello world", resp.Data.Response)
	require.Equal(t, "completed", resp.Data.Status)
	require.Equal(t, 2, resp.Data.OutputTokens)
	require.NotEmpty(t, resp.Data.Conversation)
}

func TestAsk_EachCallIsANewConversation(t *testing.T) {
	a := newTestApp(t)
	a.importModel(t, "tiny.gguf")
	ctx := context.Background()

	require.NoError(t, HandleAsk(ctx, a.App, Args{Query: "one", Model: "tiny"}))
	require.NoError(t, HandleAsk(ctx, a.App, Args{Query: "two", Model: "tiny"}))
	require.NotContains(t, a.backend.lastPrompt(), "one")

	convs, err := a.Store.ListConversations(ctx, nil)
	require.NoError(t, err)
	require.Len(t, convs, 2)
}

// =============================================================================
// MODELS
// =============================================================================

func TestModels_ListJSON(t *testing.T) {
	a := newTestApp(t)
	m := a.importModel(t, "tiny.gguf")
	require.NoError(t, a.Library.Select(context.Background(), m.ID))

	require.NoError(t, HandleModels(context.Background(), a.App, Args{Subcommand: "list", JSON: true}))

	var resp struct {
		Success bool        `json:"success"`
		Data    []ModelData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(a.out.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "tiny", resp.Data[0].Name)
	require.True(t, resp.Data[0].Selected)
	require.False(t, resp.Data[0].Loaded)
	require.Equal(t, int64(15), resp.Data[0].Size)
}

func TestModels_DisableHidesFromDefaultList(t *testing.T) {
	a := newTestApp(t)
	a.importModel(t, "tiny.gguf")
	ctx := context.Background()

	require.NoError(t, HandleModels(ctx, a.App, Args{Subcommand: "disable", Raw: []string{"tiny"}}))
	a.reset()
	require.NoError(t, HandleModels(ctx, a.App, Args{Subcommand: "list"}))
	require.Contains(t, a.out.String(), "No models")

	a.reset()
	require.NoError(t, HandleModels(ctx, a.App, Args{Subcommand: "list", Raw: []string{"--all"}}))
	require.Contains(t, a.out.String(), "tiny")
	require.Contains(t, a.out.String(), "disabled")
}

func TestModels_SelectAndDelete(t *testing.T) {
	a := newTestApp(t)
	m := a.importModel(t, "tiny.gguf")
	ctx := context.Background()

	require.NoError(t, HandleModels(ctx, a.App, Args{Subcommand: "select", Raw: []string{"tiny"}}))
	require.Equal(t, m.ID, a.Settings.SelectedModelID())

	require.NoError(t, HandleModels(ctx, a.App, Args{Subcommand: "delete", Raw: []string{m.ID}}))
	require.Equal(t, "", a.Settings.SelectedModelID())
	_, err := os.Stat(m.Path)
	require.True(t, os.IsNotExist(err))

	err = HandleModels(ctx, a.App, Args{Subcommand: "delete"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "usage")
}

func TestModels_Scan(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, os.MkdirAll(a.Library.Dir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(a.Library.Dir(), "found.gguf"), []byte("GGUF\x02\x00\x00\x00"), 0644))

	require.NoError(t, HandleModels(context.Background(), a.App, Args{Subcommand: "scan"}))
	require.Contains(t, a.out.String(), "found")
}

func TestImportAndValidate(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "new.gguf")
	require.NoError(t, os.WriteFile(src, []byte("GGUF\x03\x00\x00\x00"), 0644))
	require.NoError(t, HandleValidate(ctx, a.App, Args{File: src}))
	require.Contains(t, a.out.String(), "GGUF v3")

	a.reset()
	require.NoError(t, HandleImport(ctx, a.App, Args{File: src}))
	require.Contains(t, a.out.String(), "Imported")

	err := HandleImport(ctx, a.App, Args{File: src})
	require.ErrorIs(t, err, library.ErrAlreadyImported)

	bad := filepath.Join(t.TempDir(), "bad.gguf")
	require.NoError(t, os.WriteFile(bad, []byte("not a model"), 0644))
	require.ErrorIs(t, HandleValidate(ctx, a.App, Args{File: bad}), gguf.ErrBadMagic)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessions(t *testing.T) {
	a := newTestApp(t)
	a.importModel(t, "tiny.gguf")
	ctx := context.Background()

	require.NoError(t, HandleAsk(ctx, a.App, Args{Query: "Remember me", Model: "tiny"}))
	id := a.Chat.Conversation().ID
	a.reset()

	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "list"}))
	require.Contains(t, a.out.String(), "Remember me")
	require.Contains(t, a.out.String(), "2 msgs")

	a.reset()
	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "show", Raw: []string{id[:8]}}))
	require.Contains(t, a.out.String(), "Hello world")

	out := filepath.Join(t.TempDir(), "chat.md")
	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "export", Raw: []string{id, "--output", out}}))
	md, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(md), "# Remember me"))

	a.reset()
	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "export", Raw: []string{id, "--format", "json"}}))
	require.Contains(t, a.out.String(), `"title": "Remember me"`)

	dir := t.TempDir()
	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "export", Raw: []string{id, "--format", "html", "--dir", dir}}))
	files, err := filepath.Glob(filepath.Join(dir, "*.html"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	err = HandleSessions(ctx, a.App, Args{Subcommand: "export", Raw: []string{id, "--format", "pdf"}})
	require.ErrorIs(t, err, export.ErrUnknownFormat)

	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "archive", Raw: []string{id}}))
	a.reset()
	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "list"}))
	require.Contains(t, a.out.String(), "No conversations")

	require.NoError(t, HandleSessions(ctx, a.App, Args{Subcommand: "delete", Raw: []string{id}}))
	_, err = a.Store.GetConversation(ctx, id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = HandleSessions(ctx, a.App, Args{Subcommand: "show", Raw: []string{"zzz"}})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, HandleSettings(ctx, a.App, Args{Subcommand: "set", Raw: []string{"temperature", "0.3"}}))
	require.Equal(t, 0.3, a.Settings.Values().Temperature)

	require.NoError(t, HandleSettings(ctx, a.App, Args{Subcommand: "set", Raw: []string{"system_prompt", "Be", "brief."}}))
	require.Equal(t, "Be brief.", a.Settings.SystemPrompt())

	err := HandleSettings(ctx, a.App, Args{Subcommand: "set", Raw: []string{"temperature", "9"}})
	require.ErrorIs(t, err, settings.ErrOutOfRange)
	require.Error(t, HandleSettings(ctx, a.App, Args{Subcommand: "set", Raw: []string{"bogus", "1"}}))

	a.reset()
	require.NoError(t, HandleSettings(ctx, a.App, Args{Subcommand: "get", Raw: []string{"temperature"}}))
	require.Equal(t, "0.3\n", a.out.String())

	a.reset()
	require.NoError(t, HandleSettings(ctx, a.App, Args{Subcommand: "show", JSON: true}))
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(a.out.Bytes(), &resp))
	require.Equal(t, "Be brief.", resp.Data["system_prompt"])

	require.NoError(t, HandleSettings(ctx, a.App, Args{Subcommand: "reset"}))
	require.Equal(t, settings.Defaults().Temperature, a.Settings.Values().Temperature)
}

func TestRun_Dispatch(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, Run(ctx, CmdVersion, a.App, Args{}))
	require.Contains(t, a.out.String(), "nanochat "+Version)

	a.reset()
	require.NoError(t, Run(ctx, CmdHelp, a.App, Args{}))
	require.Contains(t, a.out.String(), "Usage:")

	err := Run(ctx, CmdUnknown, a.App, Args{Name: "frob"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "frob")
}

func TestSendAndStream_CancelStops(t *testing.T) {
	a := newTestApp(t)
	a.importModel(t, "tiny.gguf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, a.ensureModel(context.Background(), "tiny", true))
	_, err := a.sendAndStream(ctx, "hi", a.out)
	if err != nil {
		require.True(t, errors.Is(err, context.Canceled))
	}
	require.False(t, a.Chat.IsGenerating())
}
