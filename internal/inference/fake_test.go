// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"context"
	"io"
	"sync"
	"time"
)

// fakeBackend is a scripted engine.
type fakeBackend struct {
	mu        sync.Mutex
	loadErr   error
	unloadErr error
	genErr    error
	onLoad    func(path string)
	loads     []string
	unloads   int
	prompts   []string
	configs   []SamplingConfig
	next      *chanFragments
	// entered, when set, makes the next Generate close it and block
	// until its context ends.
	entered chan struct{}
}

func (f *fakeBackend) Load(_ context.Context, path string, _ LoadOptions) error {
	if f.onLoad != nil {
		f.onLoad(path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, path)
	return f.loadErr
}

func (f *fakeBackend) Unload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
	return f.unloadErr
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, cfg SamplingConfig) (Fragments, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.configs = append(f.configs, cfg)
	if entered := f.entered; entered != nil {
		f.entered = nil
		f.mu.Unlock()
		close(entered)
		<-ctx.Done()
		f.mu.Lock()
		return nil, ctx.Err()
	}
	if f.genErr != nil {
		return nil, f.genErr
	}
	if f.next != nil {
		n := f.next
		f.next = nil
		return n, nil
	}
	return scripted(nil, nil), nil
}

// chanFragments yields whatever is sent on ch; a closed ch ends the stream
// with err, or io.EOF when err is nil.
type chanFragments struct {
	ch     chan string
	err    error
	usage  Usage
	mu     sync.Mutex
	closed int
}

func scripted(frags []string, err error) *chanFragments {
	ch := make(chan string, len(frags))
	for _, f := range frags {
		ch <- f
	}
	close(ch)
	return &chanFragments{ch: ch, err: err}
}

func live() *chanFragments {
	return &chanFragments{ch: make(chan string)}
}

func (c *chanFragments) Next(ctx context.Context) (string, error) {
	select {
	case s, ok := <-c.ch:
		if !ok {
			if c.err != nil {
				return "", c.err
			}
			return "", io.EOF
		}
		return s, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *chanFragments) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *chanFragments) Usage() Usage { return c.usage }

func (c *chanFragments) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stepClock advances by step every time it is read.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}
