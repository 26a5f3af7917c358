// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nanochat/internal/logging"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/storage"
)

func testDoc() *Document {
	conv := model.NewConversation("Go <generics>", "")
	conv.CreatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	user := model.NewUserMessage(conv.ID, "Show me `any`")
	reply := model.NewMessage(conv.ID, model.RoleAssistant,
		"Sure:\n\n```go\nfunc F[T any](v T) T { return v }\n```\n\nDone & dusted.", model.StatusCompleted)
	reply.SetMetrics(12, 1500)
	failed := model.NewErrorMessage(conv.ID, "Error: engine crashed")

	return &Document{Conversation: conv, Messages: []model.Message{*user, *reply, *failed}}
}

func TestForFormat(t *testing.T) {
	for name, ext := range map[string]string{"": ".md", "md": ".md", "Markdown": ".md", "json": ".json", ".html": ".html"} {
		e, err := ForFormat(name, nil)
		require.NoError(t, err, name)
		require.Equal(t, ext, e.FileExtension())
	}

	_, err := ForFormat("pdf", nil)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestMarkdownExporter_MatchesStorage(t *testing.T) {
	doc := testDoc()
	out, err := MarkdownExporter{}.Export(doc)
	require.NoError(t, err)
	require.Equal(t, storage.FormatMarkdown(doc.Conversation, doc.Messages), string(out))
}

func TestJSONExporter(t *testing.T) {
	doc := testDoc()
	out, err := JSONExporter{}.Export(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, doc.Conversation.ID, decoded.Conversation.ID)
	require.Len(t, decoded.Messages, 3)
	require.Equal(t, 12, *decoded.Messages[1].TokenCount)

	empty, err := JSONExporter{}.Export(&Document{Conversation: doc.Conversation})
	require.NoError(t, err)
	require.Contains(t, string(empty), `"messages": []`)
}

func TestHTMLExporter(t *testing.T) {
	out, err := NewHTMLExporter(&Options{IncludeMetadata: true, Theme: "light"}).Export(testDoc())
	require.NoError(t, err)
	page := string(out)

	require.Contains(t, page, "<title>Go &lt;generics&gt;</title>")
	require.Contains(t, page, `<body class="light">`)
	require.Contains(t, page, "<code>any</code>")
	require.Contains(t, page, `<div class="lang">go</div>`)
	require.Contains(t, page, "func F[T any](v T) T { return v }")
	require.Contains(t, page, "Done &amp; dusted.")
	require.Contains(t, page, `class="message assistant"`)
	require.Contains(t, page, `class="message assistant error"`)
	require.Contains(t, page, "12 tokens · 1.5s · 8.0 tok/s")
	require.NotContains(t, page, "<generics>")
}

func TestHTMLExporter_NilDocument(t *testing.T) {
	_, err := NewHTMLExporter(nil).Export(nil)
	require.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "a-b_c-d", sanitizeFilename("a/b c:d"))
	require.Equal(t, "conversation", sanitizeFilename(""))
	require.Len(t, []rune(sanitizeFilename(strings.Repeat("é", 80))), 50)
}

func TestLoadAndExportToFile(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conv := model.NewConversation("Trip plan", "")
	require.NoError(t, store.CreateConversation(ctx, conv))
	require.NoError(t, store.AddMessage(ctx, model.NewUserMessage(conv.ID, "Where to?")))

	doc, err := Load(ctx, store, conv.ID)
	require.NoError(t, err)
	require.Len(t, doc.Messages, 1)

	dir := filepath.Join(t.TempDir(), "out")
	path, err := ExportToFile(doc, JSONExporter{}, &Options{OutputDir: dir})
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))
	require.True(t, strings.HasPrefix(filepath.Base(path), "conversation_Trip_plan_"))
	require.Equal(t, ".json", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Where to?")

	_, err = Load(ctx, store, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
