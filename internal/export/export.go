// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/storage"
	"github.com/jeranaias/nanochat/internal/util"
)

// ErrUnknownFormat is returned by ForFormat for an unsupported name.
var ErrUnknownFormat = errors.New("unknown export format")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Document is one conversation with its messages in order.
type Document struct {
	Conversation *model.Conversation `json:"conversation"`
	Messages     []model.Message     `json:"messages"`
}

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format.
	Export(doc *Document) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Reader is the part of *storage.Store that Load needs.
type Reader interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// Load reads a conversation and its messages.
func Load(ctx context.Context, r Reader, conversationID string) (*Document, error) {
	conv, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := r.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &Document{Conversation: conv, Messages: msgs}, nil
}

var _ Reader = (*storage.Store)(nil)

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is where ExportToFile writes. Default: current directory.
	OutputDir string

	// IncludeMetadata adds the model, creation time and message count.
	IncludeMetadata bool

	// Theme for HTML export ("light" or "dark"). Default: "dark".
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:       ".",
		IncludeMetadata: true,
		Theme:           "dark",
	}
}

// Formats lists the names ForFormat accepts.
func Formats() []string {
	return []string{"md", "json", "html"}
}

// ForFormat returns the exporter for name: md/markdown, json or html.
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "md", "markdown":
		return MarkdownExporter{}, nil
	case "json":
		return JSONExporter{}, nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w %q (want %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile writes doc to a new file in opts.OutputDir named after the
// conversation title and the current time. It returns the file path.
func ExportToFile(doc *Document, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(doc.Conversation.DisplayTitle()),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// any platform and caps the length at 50 runes.
func sanitizeFilename(s string) string {
	s = util.TruncateRunesNoEllipsis(s, 50)

	replacer := map[rune]rune{
		'/':  '-',
		'\\': '-',
		':':  '-',
		'*':  '-',
		'?':  '-',
		'"':  '-',
		'<':  '-',
		'>':  '-',
		'|':  '-',
		' ':  '_',
		'\t': '_',
		'\n': '_',
		'\r': '_',
	}

	result := make([]rune, 0, len(s))
	for _, r := range s {
		if replacement, found := replacer[r]; found {
			result = append(result, replacement)
		} else if r < 32 || r == 127 {
			result = append(result, '-')
		} else {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}

// =============================================================================
// MARKDOWN AND JSON
// =============================================================================

// MarkdownExporter renders the document storage.ExportMarkdown produces.
type MarkdownExporter struct{}

// Export converts a conversation to Markdown.
func (MarkdownExporter) Export(doc *Document) ([]byte, error) {
	if doc == nil || doc.Conversation == nil {
		return nil, errors.New("conversation is nil")
	}
	return []byte(storage.FormatMarkdown(doc.Conversation, doc.Messages)), nil
}

func (MarkdownExporter) FileExtension() string { return ".md" }
func (MarkdownExporter) MimeType() string      { return "text/markdown" }

// JSONExporter writes the document as indented JSON.
type JSONExporter struct{}

// Export converts a conversation to JSON.
func (JSONExporter) Export(doc *Document) ([]byte, error) {
	if doc == nil || doc.Conversation == nil {
		return nil, errors.New("conversation is nil")
	}
	if doc.Messages == nil {
		doc = &Document{Conversation: doc.Conversation, Messages: []model.Message{}}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func (JSONExporter) FileExtension() string { return ".json" }
func (JSONExporter) MimeType() string      { return "application/json" }
