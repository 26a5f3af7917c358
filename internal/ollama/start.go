// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	startupPoll    = 500 * time.Millisecond
)

// startOllamaProcess starts `ollama serve` detached from this process and
// waits for it to answer.
func (c *Client) startOllamaProcess(ctx context.Context) error {
	ollamaPath, err := findOllamaExecutable()
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to find Ollama executable", Cause: err}
	}

	cmd := exec.Command(ollamaPath, "serve")
	// GPU-related variables such as OLLAMA_VULKAN must reach the server.
	cmd.Env = os.Environ()
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: fmt.Sprintf("failed to start Ollama (path: %s)", ollamaPath),
			Cause:   err,
		}
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	start := time.Now()
	c.log.WithField("path", ollamaPath).Info("starting Ollama service")

	ticker := time.NewTicker(startupPoll)
	defer ticker.Stop()
	deadline := time.NewTimer(startupTimeout)
	defer deadline.Stop()

	var lastErr error
	for {
		checkCtx, cancel := context.WithTimeout(ctx, startupPoll)
		lastErr = c.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			c.log.WithField("elapsed", time.Since(start).Round(100*time.Millisecond)).Info("Ollama service started")
			return nil
		}

		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeConnection, Message: "Ollama startup cancelled", Cause: ctx.Err()}
		case <-deadline.C:
			return &ClientError{
				Type:    ErrTypeNotRunning,
				Message: fmt.Sprintf("Ollama started but not responding after %s (path: %s)", startupTimeout, ollamaPath),
				Cause:   lastErr,
			}
		case <-ticker.C:
		}
	}
}
