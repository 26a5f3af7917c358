// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data next to path in a temp file, fsyncs it and
// renames it over path. Readers see either the old file or the new one,
// never a partial write. Missing parent directories are created with 0700.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return AtomicWriteFileWithDir(path, data, perm, 0700)
}

// AtomicWriteFileWithDir is AtomicWriteFile with an explicit mode for any
// parent directory it has to create.
func AtomicWriteFileWithDir(path string, data []byte, filePerm, dirPerm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	// The temp file must live on the same filesystem for rename to be atomic.
	f, err := os.CreateTemp(dir, "."+filepath.Base(absPath)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := f.Name()

	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, filePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tempPath, absPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	committed = true
	return nil
}
