// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/nanochat/internal/inference"
)

// ErrNotLoaded is returned by Generate before a successful Load.
var ErrNotLoaded = errors.New("no model loaded in Ollama backend")

// modelNamespace prefixes every model this backend registers, keeping them
// apart from models pulled by hand.
const modelNamespace = "nanochat/"

// Backend runs generations on a local Ollama server. A GGUF file handed to
// Load is registered with the server on first use and kept resident for
// the configured keep-alive.
type Backend struct {
	client *Client
	log    logrus.FieldLogger

	model string
	opts  inference.LoadOptions
}

var _ inference.Backend = (*Backend)(nil)

// NewBackend creates a backend talking to the server described by cfg.
func NewBackend(cfg *ClientConfig, log logrus.FieldLogger) *Backend {
	client := NewClientWithConfig(cfg)
	if log != nil {
		client.log = log
	} else {
		log = client.log
	}
	return &Backend{client: client, log: log}
}

// Client exposes the underlying API client.
func (b *Backend) Client() *Client {
	return b.client
}

// Model returns the server-side name of the loaded model, or "".
func (b *Backend) Model() string {
	return b.model
}

// ModelName maps a model file path to the name it is registered under:
// the file's base name without extension, NFKC-normalized, lower-cased,
// with everything outside [a-z0-9._-] replaced by '-'.
func ModelName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(norm.NFKC.String(base))

	var sb strings.Builder
	lastDash := false
	for _, r := range base {
		ok := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_')
		if ok {
			sb.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			sb.WriteByte('-')
			lastDash = true
		}
	}
	name := strings.Trim(sb.String(), "-._")
	if name == "" {
		name = "model"
	}
	return modelNamespace + name
}

// Load registers the file with the server when needed and warms it up with
// the given options.
func (b *Backend) Load(ctx context.Context, path string, opts inference.LoadOptions) error {
	if err := b.client.EnsureRunning(ctx); err != nil {
		return err
	}

	name := ModelName(path)
	log := b.log.WithFields(logrus.Fields{"model": name, "path": path})

	exists, err := b.client.ModelExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		log.Info("registering model file with Ollama")
		if err := b.createFromFile(ctx, name, path); err != nil {
			return err
		}
	}

	_, err = b.client.Generate(ctx, GenerateRequest{
		Model:     name,
		KeepAlive: b.client.config.KeepAlive,
		Options:   loadOptions(opts),
	})
	if err != nil {
		return err
	}

	b.model = name
	b.opts = opts
	log.WithFields(logrus.Fields{
		"num_ctx":    opts.ContextLength,
		"num_thread": opts.Threads,
		"num_gpu":    opts.GPULayers,
	}).Debug("model warm")
	return nil
}

// createFromFile pushes the file as a blob, skipping the upload when the
// server already has it, and creates a model from it.
func (b *Backend) createFromFile(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return fmt.Errorf("hash model file: %w", err)
	}
	digest := "sha256:" + hex.EncodeToString(h.Sum(nil))

	has, err := b.client.HasBlob(ctx, digest)
	if err != nil {
		return err
	}
	if !has {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind model file: %w", err)
		}
		if err := b.client.PushBlob(ctx, digest, f, size); err != nil {
			return err
		}
	}

	return b.client.Create(ctx, CreateModelRequest{
		Model: name,
		Files: map[string]string{filepath.Base(path): digest},
	})
}

// Generate streams a completion of the already formatted prompt. The prompt
// is sent raw; the server applies no template of its own.
func (b *Backend) Generate(ctx context.Context, prompt string, cfg inference.SamplingConfig) (inference.Fragments, error) {
	if b.model == "" {
		return nil, ErrNotLoaded
	}

	opts := samplingOptions(cfg)
	// The thread count and GPU split must match the warm load, or the
	// server reloads the model.
	if b.opts.Threads > 0 {
		opts.NumThread = b.opts.Threads
	}
	if b.opts.GPULayers >= 0 {
		gpu := b.opts.GPULayers
		opts.NumGPU = &gpu
	}

	stream, err := b.client.GenerateStream(ctx, GenerateRequest{
		Model:     b.model,
		Prompt:    prompt,
		Raw:       true,
		KeepAlive: b.client.config.KeepAlive,
		Options:   opts,
	})
	if err != nil {
		return nil, err
	}
	return &loggedStream{StreamReader: stream, log: b.log.WithField("model", b.model)}, nil
}

// Unload asks the server to evict the model now.
func (b *Backend) Unload(ctx context.Context) error {
	if b.model == "" {
		return nil
	}
	_, err := b.client.Generate(ctx, GenerateRequest{Model: b.model, KeepAlive: 0})
	if err != nil && !IsModelNotFound(err) {
		return err
	}
	b.model = ""
	return nil
}

func loadOptions(opts inference.LoadOptions) *Options {
	o := &Options{
		NumCtx:    opts.ContextLength,
		NumThread: opts.Threads,
	}
	if opts.GPULayers >= 0 {
		gpu := opts.GPULayers
		o.NumGPU = &gpu
	}
	return o
}

func samplingOptions(cfg inference.SamplingConfig) *Options {
	temp := cfg.Temperature
	o := &Options{
		Temperature:   &temp,
		TopP:          cfg.TopP,
		TopK:          cfg.TopK,
		NumPredict:    cfg.MaxTokens,
		RepeatPenalty: cfg.RepeatPenalty,
		NumCtx:        cfg.ContextLength,
		NumThread:     cfg.Threads,
		Stop:          cfg.Stop,
	}
	if cfg.Seed >= 0 {
		seed := cfg.Seed
		o.Seed = &seed
	}
	return o
}

// loggedStream logs the server's timings when the stream is closed.
type loggedStream struct {
	*StreamReader
	log    logrus.FieldLogger
	logged bool
}

func (s *loggedStream) Close() error {
	if stats := s.Stats(); stats != nil && !s.logged {
		s.logged = true
		s.log.WithFields(logrus.Fields{
			"prompt_tokens":     stats.PromptTokens,
			"completion_tokens": stats.CompletionTokens,
			"tok_per_sec":       fmt.Sprintf("%.1f", stats.TokensPerSecond),
			"total":             stats.TotalDuration,
		}).Debug("generation finished")
	}
	return s.StreamReader.Close()
}
