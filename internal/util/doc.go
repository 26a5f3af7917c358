// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the rest of nanochat.
//
// File Operations:
//   - AtomicWriteFile: crash-safe writes (temp file, fsync, rename), used for
//     the config and settings files
//
// String Utilities:
//   - TruncateRunes / TruncateRunesNoEllipsis: UTF-8 safe truncation
//   - TruncateWidth: display-width truncation for the terminal UI
//   - SingleLine: whitespace folding for one-line previews
package util
