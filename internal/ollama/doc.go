// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama runs inference on a local Ollama server.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API (show, blobs, create, generate)
//   - Backend: inference.Backend that registers GGUF files and streams raw
//     completions
//   - StreamReader: NDJSON reader for /api/generate, yielding fragments
//   - ClientError: typed error with an ErrorType for handling
//
// # Usage
//
//	backend := ollama.NewBackend(&ollama.ClientConfig{BaseURL: url}, log)
//	svc := inference.NewService(backend)
//	if err := svc.LoadModel(ctx, "/models/phi-3-mini.Q4_K_M.gguf", opts); err != nil {
//	    return err
//	}
//
// Prompts are formatted by the caller and sent with raw mode on, so the
// server's own chat template never applies.
package ollama
