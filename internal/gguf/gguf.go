// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gguf checks that a file looks like a GGUF model before it is
// handed to the inference engine.
package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Magic is "GGUF" read as a little-endian uint32.
const Magic uint32 = 0x46554747

// Supported header versions.
const (
	MinVersion uint32 = 1
	MaxVersion uint32 = 3
)

// headerSize is the magic plus the version field.
const headerSize = 8

var (
	ErrTooSmall           = errors.New("file too small to be a GGUF model")
	ErrBadMagic           = errors.New("not a GGUF file")
	ErrUnsupportedVersion = errors.New("unsupported GGUF version")
)

// Info describes a file that passed validation.
type Info struct {
	Name    string
	Size    int64
	Version uint32
}

// Validate opens path and checks its header.
func Validate(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("stat model file: %w", err)
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", path)
	}
	return ValidateReader(f, filepath.Base(path), st.Size())
}

// ValidateReader checks the first eight bytes of r. size is the full
// length of the underlying file.
func ValidateReader(r io.Reader, name string, size int64) (Info, error) {
	if size < headerSize {
		return Info{}, fmt.Errorf("%w: %d bytes", ErrTooSmall, size)
	}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Info{}, ErrTooSmall
		}
		return Info{}, fmt.Errorf("read header: %w", err)
	}

	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != Magic {
		return Info{}, fmt.Errorf("%w: magic 0x%08X", ErrBadMagic, magic)
	}
	version := binary.LittleEndian.Uint32(hdr[4:8])
	if version < MinVersion || version > MaxVersion {
		return Info{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	return Info{Name: name, Size: size, Version: version}, nil
}

// Preflight adapts Validate to the func(path) error shape used by the
// inference service.
func Preflight(path string) error {
	_, err := Validate(path)
	return err
}

// IsGGUFName reports whether name has a .gguf extension.
func IsGGUFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".gguf")
}

// FormatSize renders a byte count the way the model list shows it.
func FormatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
