// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/nanochat/internal/inference"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of a streaming
// /api/generate response. It implements inference.Fragments.
type StreamReader struct {
	body   io.ReadCloser
	reader *bufio.Reader

	accumulator strings.Builder
	fragments   int
	final       *GenerateResponse
	err         error

	closeOnce sync.Once
}

var _ inference.Fragments = (*StreamReader)(nil)

// NewStreamReader creates a new stream reader over r. Close closes r when
// it is an io.ReadCloser.
func NewStreamReader(r io.Reader) *StreamReader {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return &StreamReader{
		body:   rc,
		reader: bufio.NewReader(rc),
	}
}

// Next returns the next non-empty fragment. After the final chunk it
// returns io.EOF; Usage is valid from then on.
func (s *StreamReader) Next(ctx context.Context) (string, error) {
	for {
		if s.err != nil {
			return "", s.err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		chunk, err := s.readChunk()
		if err != nil {
			s.err = err
			return "", err
		}
		if chunk == nil {
			continue
		}
		if chunk.Done {
			s.final = chunk
			s.err = io.EOF
			if chunk.Response == "" {
				return "", io.EOF
			}
		}
		if chunk.Response == "" {
			continue
		}

		s.accumulator.WriteString(chunk.Response)
		s.fragments++
		return chunk.Response, nil
	}
}

// readChunk reads and parses a single line. It returns (nil, nil) for
// blank or malformed lines.
func (s *StreamReader) readChunk() (*GenerateResponse, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		if len(bytes.TrimSpace(line)) == 0 {
			if err == io.EOF {
				return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "stream ended before completion"}
			}
			return nil, transportError(err)
		}
		// Process a final line that lacks the newline.
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var response GenerateResponse
	if err := json.Unmarshal(line, &response); err != nil {
		// Skip malformed lines
		return nil, nil
	}
	if response.Error != "" {
		return nil, classifyMessage(response.Error)
	}
	return &response, nil
}

// Close releases the underlying response body. Safe to call more than once.
func (s *StreamReader) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

// Usage reports the counters of the final chunk. CompletionTokens falls
// back to zero when the server did not report eval_count.
func (s *StreamReader) Usage() inference.Usage {
	if s.final == nil {
		return inference.Usage{}
	}
	return inference.Usage{
		PromptTokens:     s.final.PromptEvalCount,
		CompletionTokens: s.final.EvalCount,
		StopReason:       s.final.DoneReason,
	}
}

// GetAccumulated returns all text received so far.
func (s *StreamReader) GetAccumulated() string {
	return s.accumulator.String()
}

// Fragments returns the number of non-empty fragments received.
func (s *StreamReader) Fragments() int {
	return s.fragments
}

// Stats returns the server timings of the final chunk, or nil before it
// has arrived.
func (s *StreamReader) Stats() *StreamStats {
	if s.final == nil {
		return nil
	}
	return &StreamStats{
		TotalDuration:      time.Duration(s.final.TotalDuration),
		LoadDuration:       time.Duration(s.final.LoadDuration),
		PromptEvalDuration: time.Duration(s.final.PromptEvalDuration),
		EvalDuration:       time.Duration(s.final.EvalDuration),
		PromptTokens:       s.final.PromptEvalCount,
		CompletionTokens:   s.final.EvalCount,
		TokensPerSecond:    s.final.TokensPerSecond(),
	}
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds the timings the server reported for a generation.
type StreamStats struct {
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration

	PromptTokens     int
	CompletionTokens int

	TokensPerSecond float64
}
