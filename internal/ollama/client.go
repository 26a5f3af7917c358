// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same Type, so errors.Is works against
// the sentinels below.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Type != ErrTypeUnknown
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeModelNotFound
	ErrTypeContextExceeded
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning      = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrModelNotFound   = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
	ErrContextExceeded = &ClientError{Type: ErrTypeContextExceeded, Message: "context window exceeded"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434).
	// An explicit IPv4 address avoids IPv6 localhost resolution issues on Windows.
	BaseURL string

	// Timeout for non-streaming requests, including the warm load of a
	// large model (default: 300s).
	Timeout time.Duration

	// KeepAlive is how long the server keeps a model resident after the
	// last request, in Ollama duration syntax (default: "30m").
	KeepAlive string

	// AutoStart launches `ollama serve` when the server is not reachable.
	AutoStart bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   "http://127.0.0.1:11434",
		Timeout:   300 * time.Second,
		KeepAlive: "30m",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	// streamClient has no overall timeout; streams and blob uploads are
	// bounded by the request context instead.
	streamClient *http.Client
	log          logrus.FieldLogger
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.KeepAlive == "" {
		config.KeepAlive = defaults.KeepAlive
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		log:          discardLogger(),
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *ClientConfig {
	return c.config
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &ClientError{
			Type:    ErrTypeConnection,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}
	return nil
}

// EnsureRunning checks if Ollama is running and, when AutoStart is set,
// starts it if not.
func (c *Client) EnsureRunning(ctx context.Context) error {
	err := c.CheckRunning(ctx)
	if err == nil || !c.config.AutoStart || !IsNotRunning(err) {
		return err
	}
	return c.startOllamaProcess(ctx)
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all models known to the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, "failed to list models")
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return result.Models, nil
}

// Show retrieves information about a specific model. It returns
// ErrModelNotFound when the server does not know the model.
func (c *Client) Show(ctx context.Context, name string) (*ShowModelResponse, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/show", ShowModelRequest{Model: name})
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, "failed to show model")
	}

	var result ShowModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return &result, nil
}

// ModelExists reports whether the server knows the model.
func (c *Client) ModelExists(ctx context.Context, name string) (bool, error) {
	_, err := c.Show(ctx, name)
	if err == nil {
		return true, nil
	}
	if IsModelNotFound(err) {
		return false, nil
	}
	return false, err
}

// HasBlob reports whether a blob with the given digest ("sha256:<hex>")
// is already stored on the server.
func (c *Client) HasBlob(ctx context.Context, digest string) (bool, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodHead, "/api/blobs/"+digest, nil)
	if err != nil {
		return false, err
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to check blob: " + resp.Status}
	}
}

// PushBlob uploads r as the blob with the given digest.
func (c *Client) PushBlob(ctx context.Context, digest string, r io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/blobs/"+digest, r)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return responseError(resp, "failed to upload model file")
	}
	return nil
}

// Create registers a model built from previously pushed blobs.
func (c *Client) Create(ctx context.Context, req CreateModelRequest) error {
	req.Stream = false
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/create", req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return responseError(resp, "failed to create model")
	}

	var result CreateModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if result.Status != "" && result.Status != "success" {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "unexpected create status: " + result.Status}
	}
	return nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate sends a non-streaming generate request. With an empty prompt the
// server only loads (or, with keep_alive 0, unloads) the model.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, "generate request failed")
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if result.Error != "" {
		return nil, classifyMessage(result.Error)
	}
	return &result, nil
}

// GenerateStream starts a streaming generate request. The caller owns the
// returned reader and must Close it.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (*StreamReader, error) {
	req.Stream = true
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer drainAndClose(resp.Body)
		return nil, responseError(resp, "generate request failed")
	}
	return NewStreamReader(resp.Body), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// IsModelNotFound checks if the error indicates a model was not found.
func IsModelNotFound(err error) bool {
	return errors.Is(err, ErrModelNotFound)
}

// IsNotRunning checks if the error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	return errors.Is(err, ErrNotRunning)
}

// IsTimeout checks if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsContextExceeded checks if the prompt did not fit the context window.
func IsContextExceeded(err error) bool {
	return errors.Is(err, ErrContextExceeded)
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	return resp, nil
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
}

// responseError turns a non-2xx response into a ClientError, using the
// server's error body when it has one.
func responseError(resp *http.Response, msg string) error {
	var ollamaErr OllamaError
	if resp.Request == nil || resp.Request.Method != http.MethodHead {
		_ = json.NewDecoder(resp.Body).Decode(&ollamaErr)
	}
	if resp.StatusCode == http.StatusNotFound {
		cause := error(nil)
		if ollamaErr.Error != "" {
			cause = errors.New(ollamaErr.Error)
		}
		return &ClientError{Type: ErrTypeModelNotFound, Message: "model not found", Cause: cause}
	}
	if ollamaErr.Error != "" {
		ce := classifyMessage(ollamaErr.Error)
		ce.Message = msg + ": " + ce.Message
		return ce
	}
	return &ClientError{Type: ErrTypeInvalidResponse, Message: msg + ": " + resp.Status}
}

func classifyMessage(msg string) *ClientError {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"):
		return &ClientError{Type: ErrTypeModelNotFound, Message: msg}
	case strings.Contains(lower, "context") && (strings.Contains(lower, "exceed") || strings.Contains(lower, "too long")):
		return &ClientError{Type: ErrTypeContextExceeded, Message: msg}
	default:
		return &ClientError{Type: ErrTypeInvalidResponse, Message: msg}
	}
}

// drainAndClose drains and closes a response body so the connection can
// be reused.
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	_ = r.Close()
}
