// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// Stream is one running generation. It holds the session until Close.
// A Stream is consumed by a single goroutine.
type Stream struct {
	svc     *Service
	frags   Fragments
	model   string
	started time.Time

	tokens   int
	finished bool
	closeErr error
	once     sync.Once
}

// Next returns the next fragment. It returns io.EOF when the engine is
// done, ErrStopped after StopGeneration, or ctx's error after cancellation.
func (st *Stream) Next(ctx context.Context) (string, error) {
	if st.finished {
		return "", io.EOF
	}
	if st.svc.stopRequested() {
		st.finish(Ready{ModelName: st.model})
		return "", ErrStopped
	}
	if err := ctx.Err(); err != nil {
		st.finish(Ready{ModelName: st.model})
		return "", err
	}

	frag, err := st.frags.Next(ctx)
	switch {
	case errors.Is(err, io.EOF):
		st.finish(Ready{ModelName: st.model})
		st.svc.log.WithField("tokens", st.tokens).
			WithField("elapsed", st.Elapsed()).
			Debug("generation finished")
		return "", io.EOF
	case err != nil:
		if st.svc.stopRequested() {
			st.finish(Ready{ModelName: st.model})
			return "", ErrStopped
		}
		if ctx.Err() != nil {
			st.finish(Ready{ModelName: st.model})
			return "", ctx.Err()
		}
		st.finish(Failed{Message: "Generation failed: " + err.Error(), Err: err})
		return "", err
	}

	// A fragment that arrives after a stop request is dropped.
	if st.svc.stopRequested() {
		st.finish(Ready{ModelName: st.model})
		return "", ErrStopped
	}

	st.tokens++
	st.svc.setState(Generating{
		TokensGenerated: st.tokens,
		TokensPerSecond: TokensPerSecond(st.tokens, st.Elapsed()),
	})
	return frag, nil
}

func (st *Stream) finish(final State) {
	if st.finished {
		return
	}
	st.finished = true
	st.svc.setState(final)
}

// Close ends the generation and releases the session. A stream closed
// before it finished leaves the session Ready.
func (st *Stream) Close() error {
	st.once.Do(func() {
		st.finish(Ready{ModelName: st.model})
		st.closeErr = st.frags.Close()
		st.svc.sem.Release(1)
	})
	return st.closeErr
}

// Tokens is the number of fragments delivered so far.
func (st *Stream) Tokens() int {
	return st.tokens
}

// Elapsed is the time since the stream started.
func (st *Stream) Elapsed() time.Duration {
	return st.svc.now().Sub(st.started)
}

// Usage is the engine's own accounting, available after io.EOF.
func (st *Stream) Usage() Usage {
	return st.frags.Usage()
}
