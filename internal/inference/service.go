// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrNoModel is returned by Generate when nothing is loaded.
	ErrNoModel = errors.New("no model loaded")
	// ErrBusy is returned by Generate when a load or another generation
	// holds the session.
	ErrBusy = errors.New("inference session busy")
	// ErrModelNotFound is returned when the model file is missing or is not
	// a regular file.
	ErrModelNotFound = errors.New("model file not found")
	// ErrInvalidModel is returned when the preflight check rejects a file.
	ErrInvalidModel = errors.New("invalid model file")
	// ErrStopped is returned by Stream.Next after StopGeneration.
	ErrStopped = errors.New("generation stopped")
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithPreflight installs a check run on the model file before the backend
// sees it, e.g. gguf.Preflight.
func WithPreflight(check func(path string) error) Option {
	return func(s *Service) { s.preflight = check }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the single inference session of the process. Loading,
// unloading and generating are serialized: at most one of them runs at a
// time. State changes are published to subscribers.
type Service struct {
	backend   Backend
	log       logrus.FieldLogger
	preflight func(string) error
	now       func() time.Time

	sem  *semaphore.Weighted
	stop atomic.Bool

	mu        sync.RWMutex
	modelPath string
	state     State
	subs      map[int]chan State
	nextSub   int
}

// NewService wraps backend in a session that starts Idle.
func NewService(backend Backend, opts ...Option) *Service {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Service{
		backend: backend,
		log:     discard,
		now:     time.Now,
		sem:     semaphore.NewWeighted(1),
		state:   Idle{},
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// STATE
// =============================================================================

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe returns a channel that receives the current state immediately
// and every later change. Slow readers only see the latest state. The
// returned func unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// IsLoaded reports whether a model is loaded.
func (s *Service) IsLoaded() bool {
	return s.ModelPath() != ""
}

// ModelPath returns the path of the loaded model, or "".
func (s *Service) ModelPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelPath
}

// =============================================================================
// LOAD / UNLOAD
// =============================================================================

// LoadModel loads the model at path, unloading a different model first.
// Loading the model that is already loaded only republishes Ready. Waits
// for a running generation to finish or for ctx to end.
func (s *Service) LoadModel(ctx context.Context, path string, opts LoadOptions) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	log := s.log.WithField("model", path)
	current := s.ModelPath()
	if current != "" && current == path {
		s.setState(Ready{ModelName: filepath.Base(path)})
		return nil
	}
	if current != "" {
		if err := s.unloadLocked(ctx); err != nil {
			return err
		}
	}

	s.setState(Loading{Path: path, Progress: 0})

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		s.setState(Failed{Message: "Model file not found: " + path, Err: ErrModelNotFound})
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if s.preflight != nil {
		if err := s.preflight(path); err != nil {
			s.setState(Failed{Message: "Invalid model file: " + err.Error(), Err: err})
			return fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
	}

	s.setState(Loading{Path: path, Progress: 0.5})

	start := s.now()
	if err := s.backend.Load(ctx, path, opts); err != nil {
		log.WithError(err).Warn("model load failed")
		s.setState(Failed{Message: "Failed to load model: " + err.Error(), Err: err})
		return fmt.Errorf("load model: %w", err)
	}

	s.mu.Lock()
	s.modelPath = path
	s.mu.Unlock()
	s.setState(Ready{ModelName: filepath.Base(path)})

	log.WithField("elapsed", s.now().Sub(start)).Info("model loaded")
	return nil
}

// Unload releases the loaded model. Unloading with nothing loaded is a
// no-op that leaves the state Idle.
func (s *Service) Unload(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return s.unloadLocked(ctx)
}

func (s *Service) unloadLocked(ctx context.Context) error {
	path := s.ModelPath()
	if path == "" {
		s.setState(Idle{})
		return nil
	}
	if err := s.backend.Unload(ctx); err != nil {
		s.setState(Failed{Message: "Failed to unload model: " + err.Error(), Err: err})
		return fmt.Errorf("unload model: %w", err)
	}
	s.mu.Lock()
	s.modelPath = ""
	s.mu.Unlock()
	s.setState(Idle{})
	s.log.WithField("model", path).Info("model unloaded")
	return nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate starts a generation for a fully rendered prompt. It never waits:
// if the session is held by a load or another stream it returns ErrBusy.
// The caller must Close the returned Stream.
//
// Generate clears any earlier StopGeneration, so a stop that must also
// cover a generation which has not started yet has to cancel ctx.
// Stopping or cancelling while the engine is still evaluating the prompt
// leaves the session Ready.
func (s *Service) Generate(ctx context.Context, prompt string, cfg SamplingConfig) (*Stream, error) {
	if !s.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	path := s.ModelPath()
	if path == "" {
		s.sem.Release(1)
		return nil, ErrNoModel
	}
	if err := ctx.Err(); err != nil {
		s.sem.Release(1)
		return nil, err
	}

	s.stop.Store(false)
	s.setState(Generating{})

	frags, err := s.backend.Generate(ctx, prompt, cfg.Clone())
	if err != nil {
		s.sem.Release(1)
		switch {
		case s.stopRequested():
			s.setState(Ready{ModelName: filepath.Base(path)})
			return nil, ErrStopped
		case ctx.Err() != nil:
			s.setState(Ready{ModelName: filepath.Base(path)})
			return nil, ctx.Err()
		}
		s.setState(Failed{Message: "Generation failed: " + err.Error(), Err: err})
		return nil, fmt.Errorf("generate: %w", err)
	}

	return &Stream{
		svc:     s,
		frags:   frags,
		model:   filepath.Base(path),
		started: s.now(),
	}, nil
}

// StopGeneration asks the running stream to stop before its next fragment.
func (s *Service) StopGeneration() {
	s.stop.Store(true)
}

func (s *Service) stopRequested() bool {
	return s.stop.Load()
}
