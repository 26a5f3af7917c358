// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the nanochat application configuration.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.nanochat/config.toml
//   - ~/.nanochat/config.json
//   - Built-in defaults
//
// User-facing chat settings (temperature, system prompt, ...) are not part of
// this file; they live in the settings store.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nanochat/internal/prompt"
	"github.com/jeranaias/nanochat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete nanochat configuration.
type Config struct {
	Version string        `toml:"version" json:"version"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Engine  EngineConfig  `toml:"engine" json:"engine"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// StorageConfig says where data lives. Relative file names resolve
// against DataDir.
type StorageConfig struct {
	DataDir      string `toml:"data_dir" json:"data_dir"`
	DatabaseFile string `toml:"database_file" json:"database_file"`
	ModelsDir    string `toml:"models_dir" json:"models_dir"`
	SettingsFile string `toml:"settings_file" json:"settings_file"`
}

// EngineConfig configures the Ollama-backed inference engine.
type EngineConfig struct {
	OllamaURL          string `toml:"ollama_url" json:"ollama_url"`
	RequestTimeoutSecs int    `toml:"request_timeout_secs" json:"request_timeout_secs"`
	KeepAlive          string `toml:"keep_alive" json:"keep_alive"`
	Threads            int    `toml:"threads" json:"threads"`
	// GPULayers < 0 lets the engine decide.
	GPULayers int `toml:"gpu_layers" json:"gpu_layers"`
	// Preflight validates the GGUF header before loading.
	Preflight bool `toml:"preflight" json:"preflight"`
	// AutoStart runs `ollama serve` when the server is not reachable.
	AutoStart bool `toml:"auto_start" json:"auto_start"`
	// DefaultModel is a model file loaded at startup, if set.
	DefaultModel string `toml:"default_model" json:"default_model"`
	// Dialect forces a prompt dialect instead of guessing from the file name.
	Dialect string `toml:"dialect" json:"dialect"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	// File receives log output; empty means stderr for CLI commands and a
	// file under DataDir for the TUI.
	File string `toml:"file" json:"file"`
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	RenderMarkdown bool   `toml:"render_markdown" json:"render_markdown"`
	Theme          string `toml:"theme" json:"theme"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	dataDir := "~/.nanochat"
	if dir, err := ConfigDir(); err == nil {
		dataDir = dir
	}
	return &Config{
		Version: "1.0.0",
		Storage: StorageConfig{
			DataDir:      dataDir,
			DatabaseFile: "nanochat.db",
			ModelsDir:    "models",
			SettingsFile: "settings.toml",
		},
		Engine: EngineConfig{
			OllamaURL:          "http://127.0.0.1:11434",
			RequestTimeoutSecs: 300,
			KeepAlive:          "30m",
			Threads:            4,
			GPULayers:          0,
			Preflight:          true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			RenderMarkdown: true,
			Theme:          "auto",
		},
	}
}

// ConfigDir returns ~/.nanochat.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nanochat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration from the default locations, trying TOML
// first and then JSON, falling back to defaults. Environment overrides are
// applied last.
func Load(log logrus.FieldLogger) (*Config, error) {
	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path, log)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads the file at path (TOML unless it ends in .json),
// applies environment overrides and validates.
func LoadFromPath(path string, log logrus.FieldLogger) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path, log)
	} else {
		err = LoadTOML(cfg, path, log)
	}
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string, log logrus.FieldLogger) error {
	if err := ensureSecurePermissions(path); err != nil {
		log.WithError(err).WithField("path", path).Warn("could not ensure secure permissions")
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string, log logrus.FieldLogger) error {
	if err := ensureSecurePermissions(path); err != nil {
		log.WithError(err).WithField("path", path).Warn("could not ensure secure permissions")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// fillDefaults fills in values a file set to empty.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaults.Storage.DataDir
	}
	if cfg.Storage.DatabaseFile == "" {
		cfg.Storage.DatabaseFile = defaults.Storage.DatabaseFile
	}
	if cfg.Storage.ModelsDir == "" {
		cfg.Storage.ModelsDir = defaults.Storage.ModelsDir
	}
	if cfg.Storage.SettingsFile == "" {
		cfg.Storage.SettingsFile = defaults.Storage.SettingsFile
	}

	if cfg.Engine.OllamaURL == "" {
		cfg.Engine.OllamaURL = defaults.Engine.OllamaURL
	}
	if cfg.Engine.RequestTimeoutSecs == 0 {
		cfg.Engine.RequestTimeoutSecs = defaults.Engine.RequestTimeoutSecs
	}
	if cfg.Engine.KeepAlive == "" {
		cfg.Engine.KeepAlive = defaults.Engine.KeepAlive
	}
	if cfg.Engine.Threads == 0 {
		cfg.Engine.Threads = defaults.Engine.Threads
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# nanochat configuration file\n")
	buf.WriteString("# Chat settings (temperature, system prompt, ...) live in the settings file.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// PATHS
// =============================================================================

// DataDir returns the data directory with a leading ~ expanded.
func (c *Config) DataDir() string {
	return expandHome(c.Storage.DataDir)
}

func (c *Config) resolve(name string) string {
	name = expandHome(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir(), name)
}

// DatabasePath returns the SQLite database path.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Storage.DatabaseFile)
}

// ModelsPath returns the directory imported models are copied into.
func (c *Config) ModelsPath() string {
	return c.resolve(c.Storage.ModelsDir)
}

// SettingsPath returns the settings file path.
func (c *Config) SettingsPath() string {
	return c.resolve(c.Storage.SettingsFile)
}

// LogPath returns the log file path, or "" for stderr.
func (c *Config) LogPath() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats = map[string]bool{"text": true, "json": true}
	validThemes  = map[string]bool{"auto": true, "dark": true, "light": true}
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		errs = append(errs, ValidationError{Field: "storage.data_dir", Message: "must not be empty"})
	}

	u, err := url.Parse(c.Engine.OllamaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "engine.ollama_url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Engine.OllamaURL),
		})
	}
	if c.Engine.RequestTimeoutSecs < 1 || c.Engine.RequestTimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "engine.request_timeout_secs",
			Message: fmt.Sprintf("must be between 1 and 3600, got %d", c.Engine.RequestTimeoutSecs),
		})
	}
	if c.Engine.Threads < 1 || c.Engine.Threads > 256 {
		errs = append(errs, ValidationError{
			Field:   "engine.threads",
			Message: fmt.Sprintf("must be between 1 and 256, got %d", c.Engine.Threads),
		})
	}
	if c.Engine.GPULayers < -1 {
		errs = append(errs, ValidationError{
			Field:   "engine.gpu_layers",
			Message: fmt.Sprintf("must be -1 (auto) or a layer count, got %d", c.Engine.GPULayers),
		})
	}
	if c.Engine.Dialect != "" {
		if _, err := prompt.ParseDialect(c.Engine.Dialect); err != nil {
			errs = append(errs, ValidationError{Field: "engine.dialect", Message: err.Error()})
		}
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: trace, debug, info, warn, error", c.Log.Level),
		})
	}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies NANOCHAT_* environment variables. Numeric
// variables that do not parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("NANOCHAT_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if u := os.Getenv("NANOCHAT_OLLAMA_URL"); u != "" {
		c.Engine.OllamaURL = u
	}
	if level := os.Getenv("NANOCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if layers := os.Getenv("NANOCHAT_GPU_LAYERS"); layers != "" {
		if n, err := strconv.Atoi(layers); err == nil {
			c.Engine.GPULayers = n
		}
	}
	if threads := os.Getenv("NANOCHAT_THREADS"); threads != "" {
		if n, err := strconv.Atoi(threads); err == nil {
			c.Engine.Threads = n
		}
	}
	if model := os.Getenv("NANOCHAT_MODEL"); model != "" {
		c.Engine.DefaultModel = model
	}
}
