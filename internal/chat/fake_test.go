// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/storage"
)

// scriptBackend hands out the next queued fragment source per Generate.
type scriptBackend struct {
	mu      sync.Mutex
	genErr  error
	queue   []*fragSource
	prompts []string
	configs []inference.SamplingConfig
	// entered, when set, makes the next Generate close it and block
	// until its context ends.
	entered chan struct{}
}

func (b *scriptBackend) Load(context.Context, string, inference.LoadOptions) error { return nil }
func (b *scriptBackend) Unload(context.Context) error { return nil }

func (b *scriptBackend) Generate(ctx context.Context, prompt string, cfg inference.SamplingConfig) (inference.Fragments, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	b.configs = append(b.configs, cfg)
	if entered := b.entered; entered != nil {
		b.entered = nil
		b.mu.Unlock()
		close(entered)
		<-ctx.Done()
		b.mu.Lock()
		return nil, ctx.Err()
	}
	if b.genErr != nil {
		return nil, b.genErr
	}
	if len(b.queue) == 0 {
		return fixed(nil, nil), nil
	}
	src := b.queue[0]
	b.queue = b.queue[1:]
	return src, nil
}

func (b *scriptBackend) push(src *fragSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, src)
}

func (b *scriptBackend) lastPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompts[len(b.prompts)-1]
}

func (b *scriptBackend) lastConfig() inference.SamplingConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configs[len(b.configs)-1]
}

// fragSource yields what is sent on ch; a closed ch ends with err, or
// io.EOF when err is nil.
type fragSource struct {
	ch    chan string
	err   error
	usage inference.Usage
}

func fixed(frags []string, err error) *fragSource {
	ch := make(chan string, len(frags))
	for _, f := range frags {
		ch <- f
	}
	close(ch)
	return &fragSource{ch: ch, err: err}
}

func live() *fragSource {
	return &fragSource{ch: make(chan string)}
}

func (s *fragSource) Next(ctx context.Context) (string, error) {
	select {
	case f, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *fragSource) Close() error { return nil }
func (s *fragSource) Usage() inference.Usage { return s.usage }

// staticSettings is a fixed Settings.
type staticSettings struct {
	sampling inference.SamplingConfig
	system   string
	modelID  string
}

func (s staticSettings) Sampling() inference.SamplingConfig { return s.sampling.Clone() }
func (s staticSettings) SystemPrompt() string { return s.system }
func (s staticSettings) SelectedModelID() string { return s.modelID }

// failingStore rejects streaming content updates once allowed is spent.
type failingStore struct {
	*storage.Store
	mu      sync.Mutex
	allowed int
}

func (f *failingStore) UpdateMessageContent(ctx context.Context, id, content string, status model.Status) error {
	f.mu.Lock()
	if f.allowed <= 0 && status == model.StatusStreaming {
		f.mu.Unlock()
		return errors.New("disk full")
	}
	f.allowed--
	f.mu.Unlock()
	return f.Store.UpdateMessageContent(ctx, id, content, status)
}

type harness struct {
	orch    *Orchestrator
	store   *storage.Store
	backend *scriptBackend
	svc     *inference.Service
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// newHarness wires an orchestrator to a real store and inference service.
// modelFile, when non-empty, is loaded before returning.
func newHarness(t *testing.T, modelFile string, opts ...Option) *harness {
	t.Helper()
	store := openStore(t)
	be := &scriptBackend{}
	svc := inference.NewService(be, inference.WithLogger(quietLogger()))

	if modelFile != "" {
		path := filepath.Join(t.TempDir(), modelFile)
		require.NoError(t, os.WriteFile(path, []byte("GGUF\x03\x00\x00\x00"), 0600))
		require.NoError(t, svc.LoadModel(context.Background(), path, inference.DefaultLoadOptions()))
	}

	settings := staticSettings{sampling: inference.DefaultSampling(), system: "You are a helpful AI assistant."}
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return &harness{
		orch:    New(store, svc, settings, opts...),
		store:   store,
		backend: be,
		svc:     svc,
	}
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) lastMessage() model.Message {
	msgs := h.orch.Messages()
	return msgs[len(msgs)-1]
}
