// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package ollama

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

const (
	createNoWindow  = 0x08000000
	detachedProcess = 0x00000008
)

// findOllamaExecutable searches PATH and the usual Windows install
// locations.
func findOllamaExecutable() (string, error) {
	for _, name := range []string{"ollama.exe", "ollama"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	var candidates []string
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		candidates = append(candidates, filepath.Join(localAppData, "Programs", "Ollama", "ollama.exe"))
	}
	candidates = append(candidates,
		`C:\Program Files\Ollama\ollama.exe`,
		`C:\Program Files (x86)\Ollama\ollama.exe`,
	)

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New(`ollama.exe not found in PATH, %LOCALAPPDATA%\Programs\Ollama or C:\Program Files\Ollama`)
}

// detach starts the server without a console and in its own process group.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | createNoWindow | detachedProcess,
	}
}
