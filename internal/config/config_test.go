// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "http://127.0.0.1:11434", cfg.Engine.OllamaURL)
	require.True(t, cfg.Engine.Preflight)
	require.Equal(t, 4, cfg.Engine.Threads)
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/var/lib/nanochat"
	require.Equal(t, "/var/lib/nanochat/nanochat.db", cfg.DatabasePath())
	require.Equal(t, "/var/lib/nanochat/models", cfg.ModelsPath())
	require.Equal(t, "/var/lib/nanochat/settings.toml", cfg.SettingsPath())
	require.Empty(t, cfg.LogPath())

	cfg.Storage.ModelsDir = "/mnt/models"
	require.Equal(t, "/mnt/models", cfg.ModelsPath())
	cfg.Log.File = "nanochat.log"
	require.Equal(t, "/var/lib/nanochat/nanochat.log", cfg.LogPath())

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cfg.Storage.DataDir = "~/chat"
	require.Equal(t, filepath.Join(home, "chat", "nanochat.db"), cfg.DatabasePath())
}

func TestSaveAndLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Storage.DataDir = "/data"
	cfg.Engine.GPULayers = 33
	cfg.Engine.Dialect = "llama3"
	cfg.Log.Format = "json"
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path, quiet())
	require.NoError(t, err)
	require.Equal(t, "/data", loaded.Storage.DataDir)
	require.Equal(t, 33, loaded.Engine.GPULayers)
	require.Equal(t, "llama3", loaded.Engine.Dialect)
	require.Equal(t, "json", loaded.Log.Format)
}

func TestLoadTOML_PartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nthreads = 8\n"), 0644))

	cfg, err := LoadFromPath(path, quiet())
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Engine.Threads)
	require.Equal(t, "http://127.0.0.1:11434", cfg.Engine.OllamaURL)
	require.Equal(t, "nanochat.db", cfg.Storage.DatabaseFile)

	// Loading tightens permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine":{"ollama_url":"http://gpu-box:11434"}}`), 0600))

	cfg, err := LoadFromPath(path, quiet())
	require.NoError(t, err)
	require.Equal(t, "http://gpu-box:11434", cfg.Engine.OllamaURL)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nollama_url = \"ftp://x\"\nthreads = 999\n"), 0600))

	_, err := LoadFromPath(path, quiet())
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)
	require.Equal(t, "engine.ollama_url", verrs[0].Field)
	require.Equal(t, "engine.threads", verrs[1].Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"bad dialect", func(c *Config) { c.Engine.Dialect = "gpt" }, "engine.dialect"},
		{"bad gpu layers", func(c *Config) { c.Engine.GPULayers = -5 }, "engine.gpu_layers"},
		{"bad timeout", func(c *Config) { c.Engine.RequestTimeoutSecs = 0 }, "engine.request_timeout_secs"},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = " " }, "storage.data_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Equal(t, tt.field, verrs[0].Field)
		})
	}

	cfg := Default()
	cfg.Engine.GPULayers = -1
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NANOCHAT_DATA_DIR", "/tmp/nc")
	t.Setenv("NANOCHAT_OLLAMA_URL", "http://10.0.0.2:11434")
	t.Setenv("NANOCHAT_LOG_LEVEL", "debug")
	t.Setenv("NANOCHAT_GPU_LAYERS", "12")
	t.Setenv("NANOCHAT_THREADS", "not-a-number")
	t.Setenv("NANOCHAT_MODEL", "/models/phi.gguf")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	require.Equal(t, "/tmp/nc", cfg.Storage.DataDir)
	require.Equal(t, "http://10.0.0.2:11434", cfg.Engine.OllamaURL)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 12, cfg.Engine.GPULayers)
	require.Equal(t, 4, cfg.Engine.Threads)
	require.Equal(t, "/models/phi.gguf", cfg.Engine.DefaultModel)
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(quiet())
	require.NoError(t, err)
	require.Equal(t, Default().Engine, cfg.Engine)
}
