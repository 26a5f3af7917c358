// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package library manages the local collection of GGUF model files:
// importing, scanning the models directory, selecting and loading.
package library
