// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nanochat/internal/inference"
)

// =============================================================================
// FAKE SERVER
// =============================================================================

type fakeServer struct {
	t *testing.T

	mu        sync.Mutex
	models    map[string]bool
	blobs     map[string][]byte
	creates   []CreateModelRequest
	generates []map[string]any
	stream    []string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	f := &fakeServer{t: t, models: map[string]bool{}, blobs: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/":
		_, _ = io.WriteString(w, "Ollama is running")

	case r.URL.Path == "/api/show":
		var req ShowModelRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if !f.models[req.Model] {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"model '`+req.Model+`' not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"modelfile":"FROM x"}`)

	case strings.HasPrefix(r.URL.Path, "/api/blobs/"):
		digest := strings.TrimPrefix(r.URL.Path, "/api/blobs/")
		if r.Method == http.MethodHead {
			if _, ok := f.blobs[digest]; !ok {
				w.WriteHeader(http.StatusNotFound)
			}
			return
		}
		data, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)
		f.blobs[digest] = data
		w.WriteHeader(http.StatusCreated)

	case r.URL.Path == "/api/create":
		var req CreateModelRequest
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.creates = append(f.creates, req)
		f.models[req.Model] = true
		_, _ = io.WriteString(w, `{"status":"success"}`)

	case r.URL.Path == "/api/generate":
		var req map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.generates = append(f.generates, req)
		if stream, _ := req["stream"].(bool); stream {
			w.Header().Set("Content-Type", "application/x-ndjson")
			for _, line := range f.stream {
				_, _ = io.WriteString(w, line+"\n")
			}
			return
		}
		_, _ = io.WriteString(w, `{"model":"x","response":"","done":true,"done_reason":"load"}`)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) lastGenerate() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generates[len(f.generates)-1]
}

func writeModel(t *testing.T, name string) (string, string) {
	t.Helper()
	data := []byte("GGUF\x03\x00\x00\x00 fake weights")
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	sum := sha256.Sum256(data)
	return path, "sha256:" + hex.EncodeToString(sum[:])
}

func newTestBackend(srv *httptest.Server) *Backend {
	return NewBackend(&ClientConfig{BaseURL: srv.URL, KeepAlive: "5m"}, nil)
}

// =============================================================================
// MODEL NAME TESTS
// =============================================================================

func TestModelName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/m/phi-3-mini.Q4_K_M.gguf", "nanochat/phi-3-mini.q4_k_m"},
		{"/m/Llama 3 8B Instruct.gguf", "nanochat/llama-3-8b-instruct"},
		{"/m/ｍｉｓｔｒａｌ.gguf", "nanochat/mistral"},
		{"/m/модель.gguf", "nanochat/model"},
		{"/m/--odd__.gguf", "nanochat/odd"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			require.Equal(t, tt.want, ModelName(tt.path))
		})
	}
}

// =============================================================================
// BACKEND TESTS
// =============================================================================

func TestBackendLoad_RegistersMissingModel(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, digest := writeModel(t, "tiny.gguf")
	b := newTestBackend(srv)

	err := b.Load(context.Background(), path, inference.LoadOptions{ContextLength: 2048, Threads: 6, GPULayers: -1})
	require.NoError(t, err)
	require.Equal(t, "nanochat/tiny", b.Model())

	require.Contains(t, fake.blobs, digest)
	require.Len(t, fake.creates, 1)
	require.Equal(t, map[string]string{"tiny.gguf": digest}, fake.creates[0].Files)

	require.Len(t, fake.generates, 1)
	warm := fake.generates[0]
	require.Equal(t, "5m", warm["keep_alive"])
	opts := warm["options"].(map[string]any)
	require.EqualValues(t, 2048, opts["num_ctx"])
	require.EqualValues(t, 6, opts["num_thread"])
	require.NotContains(t, opts, "num_gpu")
}

func TestBackendLoad_SkipsCreateForKnownModel(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, _ := writeModel(t, "known.gguf")
	fake.models["nanochat/known"] = true
	b := newTestBackend(srv)

	require.NoError(t, b.Load(context.Background(), path, inference.LoadOptions{ContextLength: 4096, Threads: 4}))
	require.Empty(t, fake.creates)
	require.Empty(t, fake.blobs)

	opts := fake.generates[0]["options"].(map[string]any)
	require.EqualValues(t, 0, opts["num_gpu"])
}

func TestBackendLoad_ReusesExistingBlob(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, digest := writeModel(t, "dup.gguf")
	fake.blobs[digest] = []byte("already there")
	b := newTestBackend(srv)

	require.NoError(t, b.Load(context.Background(), path, inference.DefaultLoadOptions()))
	require.Equal(t, []byte("already there"), fake.blobs[digest])
	require.Len(t, fake.creates, 1)
}

func TestBackendLoad_NotRunning(t *testing.T) {
	_, srv := newFakeServer(t)
	url := srv.URL
	srv.Close()

	b := NewBackend(&ClientConfig{BaseURL: url}, nil)
	err := b.Load(context.Background(), "/m/x.gguf", inference.DefaultLoadOptions())
	require.Error(t, err)
	require.True(t, IsNotRunning(err))
}

func TestBackendGenerate_StreamsFragments(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, _ := writeModel(t, "chat.gguf")
	b := newTestBackend(srv)
	require.NoError(t, b.Load(context.Background(), path, inference.LoadOptions{ContextLength: 4096, Threads: 4, GPULayers: 10}))

	fake.stream = []string{
		`{"model":"nanochat/chat","response":"Hel","done":false}`,
		``,
		`not json`,
		`{"model":"nanochat/chat","response":"","done":false}`,
		`{"model":"nanochat/chat","response":"lo","done":false}`,
		`{"model":"nanochat/chat","response":"","done":true,"done_reason":"stop","eval_count":2,"prompt_eval_count":7,"eval_duration":1000000000}`,
	}

	cfg := inference.DefaultSampling()
	cfg.Temperature = 0
	cfg.Seed = 42
	cfg.Stop = []string{"</s>"}
	frags, err := b.Generate(context.Background(), "<s>[INST] Hi [/INST]", cfg)
	require.NoError(t, err)
	defer frags.Close()

	var got []string
	for {
		f, err := frags.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}
	require.Equal(t, []string{"Hel", "lo"}, got)
	require.Equal(t, inference.Usage{PromptTokens: 7, CompletionTokens: 2, StopReason: "stop"}, frags.Usage())

	// Subsequent calls keep returning EOF.
	_, err = frags.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)

	req := fake.lastGenerate()
	require.Equal(t, true, req["raw"])
	require.Equal(t, "<s>[INST] Hi [/INST]", req["prompt"])
	opts := req["options"].(map[string]any)
	require.EqualValues(t, 0, opts["temperature"])
	require.EqualValues(t, 42, opts["seed"])
	require.EqualValues(t, 2048, opts["num_predict"])
	require.EqualValues(t, 40, opts["top_k"])
	require.EqualValues(t, 10, opts["num_gpu"])
	require.Equal(t, []any{"</s>"}, opts["stop"])
}

func TestBackendGenerate_OmitsNegativeSeed(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, _ := writeModel(t, "seed.gguf")
	b := newTestBackend(srv)
	require.NoError(t, b.Load(context.Background(), path, inference.DefaultLoadOptions()))

	fake.stream = []string{`{"response":"","done":true}`}
	frags, err := b.Generate(context.Background(), "x", inference.DefaultSampling())
	require.NoError(t, err)
	defer frags.Close()

	_, err = frags.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	opts := fake.lastGenerate()["options"].(map[string]any)
	require.NotContains(t, opts, "seed")
}

func TestBackendGenerate_ErrorLine(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, _ := writeModel(t, "err.gguf")
	b := newTestBackend(srv)
	require.NoError(t, b.Load(context.Background(), path, inference.DefaultLoadOptions()))

	fake.stream = []string{
		`{"response":"partial","done":false}`,
		`{"error":"prompt exceeds context length"}`,
	}
	frags, err := b.Generate(context.Background(), "x", inference.DefaultSampling())
	require.NoError(t, err)
	defer frags.Close()

	f, err := frags.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "partial", f)

	_, err = frags.Next(context.Background())
	require.Error(t, err)
	require.True(t, IsContextExceeded(err))
}

func TestBackendGenerate_TruncatedStream(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, _ := writeModel(t, "cut.gguf")
	b := newTestBackend(srv)
	require.NoError(t, b.Load(context.Background(), path, inference.DefaultLoadOptions()))

	fake.stream = []string{`{"response":"a","done":false}`}
	frags, err := b.Generate(context.Background(), "x", inference.DefaultSampling())
	require.NoError(t, err)
	defer frags.Close()

	_, err = frags.Next(context.Background())
	require.NoError(t, err)
	_, err = frags.Next(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, io.EOF))
}

func TestBackendGenerate_NotLoaded(t *testing.T) {
	_, srv := newFakeServer(t)
	b := newTestBackend(srv)
	_, err := b.Generate(context.Background(), "x", inference.DefaultSampling())
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestBackendUnload(t *testing.T) {
	fake, srv := newFakeServer(t)
	path, _ := writeModel(t, "bye.gguf")
	b := newTestBackend(srv)
	require.NoError(t, b.Load(context.Background(), path, inference.DefaultLoadOptions()))

	require.NoError(t, b.Unload(context.Background()))
	require.Empty(t, b.Model())
	last := fake.lastGenerate()
	require.EqualValues(t, 0, last["keep_alive"])

	// Unloading twice is a no-op.
	n := len(fake.generates)
	require.NoError(t, b.Unload(context.Background()))
	require.Len(t, fake.generates, n)
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestClientShow_NotFound(t *testing.T) {
	_, srv := newFakeServer(t)
	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})

	_, err := c.Show(context.Background(), "missing")
	require.True(t, IsModelNotFound(err))
	require.False(t, IsNotRunning(err))

	ok, err := c.ModelExists(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClientCheckRunning(t *testing.T) {
	_, srv := newFakeServer(t)
	c := NewClientWithConfig(&ClientConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, c.CheckRunning(context.Background()))
	require.Equal(t, srv.URL, c.GetConfig().BaseURL)
}

func TestClientEnsureRunning_NoAutoStart(t *testing.T) {
	_, srv := newFakeServer(t)
	url := srv.URL
	srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url})
	err := c.EnsureRunning(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestClientError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: cause}
	require.Equal(t, "Ollama is not running: dial tcp: refused", err.Error())
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrNotRunning)
	require.NotErrorIs(t, err, ErrTimeout)

	unknown := &ClientError{Type: ErrTypeUnknown, Message: "x"}
	require.False(t, errors.Is(unknown, &ClientError{Type: ErrTypeUnknown}))
}

func TestStreamReader_ContextCancelled(t *testing.T) {
	r := NewStreamReader(strings.NewReader(`{"response":"a","done":false}` + "\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestStreamReader_FinalLineWithoutNewline(t *testing.T) {
	r := NewStreamReader(strings.NewReader(`{"response":"a","done":false}` + "\n" + `{"response":"b","done":true,"eval_count":9}`))
	var got []string
	for {
		f, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}
	require.Equal(t, []string{"a", "b"}, got)
	require.Equal(t, 9, r.Usage().CompletionTokens)
	require.Equal(t, "ab", r.GetAccumulated())
	require.Equal(t, 2, r.Fragments())
	require.NotNil(t, r.Stats())
}
