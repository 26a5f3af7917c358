// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package ollama

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// findOllamaExecutable searches PATH and the usual Unix/macOS install
// locations.
func findOllamaExecutable() (string, error) {
	if path, err := exec.LookPath("ollama"); err == nil {
		return path, nil
	}

	candidates := []string{
		"/usr/local/bin/ollama",
		"/usr/bin/ollama",
		"/opt/ollama/ollama",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", "ollama"),
			filepath.Join(home, "bin", "ollama"),
		)
	}
	candidates = append(candidates, "/Applications/Ollama.app/Contents/Resources/ollama")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("ollama not found in PATH, /usr/local/bin, /usr/bin or ~/.local/bin")
}

// detach puts the server in its own process group so it outlives us.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
