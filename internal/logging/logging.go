// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the application logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nanochat/internal/config"
)

// Options say where and how to log.
type Options struct {
	Level  string
	Format string
	// Path receives log output when set; otherwise Fallback is used.
	Path     string
	Fallback io.Writer
}

// FromConfig derives Options from the [log] section.
func FromConfig(cfg *config.Config, fallback io.Writer) Options {
	return Options{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Path:     cfg.LogPath(),
		Fallback: fallback,
	}
}

// New creates a logger. The returned closer releases the log file, if one
// was opened, and is always non-nil.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nopCloser{}, err
	}
	log.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if opts.Path == "" {
		out := opts.Fallback
		if out == nil {
			out = os.Stderr
		}
		log.SetOutput(out)
		return log, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, nopCloser{}, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return log, f, nil
}

// ParseLevel accepts trace, debug, info, warn(ing) and error. Empty means
// info.
func ParseLevel(s string) (logrus.Level, error) {
	if strings.TrimSpace(s) == "" {
		return logrus.InfoLevel, nil
	}
	level, err := logrus.ParseLevel(strings.ToLower(s))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
