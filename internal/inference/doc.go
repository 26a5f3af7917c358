// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package inference owns the single inference session of the process.
//
// A Service wraps an external Backend (the engine that actually runs the
// model) and exposes its status as a State value: Idle, Loading, Ready,
// Generating or Failed. Loads, unloads and generations are serialized on a
// weighted semaphore; Generate refuses with ErrBusy instead of queueing.
//
//	svc := inference.NewService(backend, inference.WithPreflight(gguf.Preflight))
//	if err := svc.LoadModel(ctx, path, inference.DefaultLoadOptions()); err != nil {
//	    return err
//	}
//	stream, err := svc.Generate(ctx, prompt, inference.DefaultSampling())
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    frag, err := stream.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package inference
