// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/nanochat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to one HTML page with embedded CSS.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(doc *Document) ([]byte, error) {
	if doc == nil || doc.Conversation == nil {
		return nil, errors.New("conversation is nil")
	}
	conv := doc.Conversation
	title := html.EscapeString(conv.DisplayTitle())

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	sb.WriteString("<meta name=\"generator\" content=\"nanochat\">\n")
	sb.WriteString(pageCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s\">\n<div class=\"container\">\n", theme)

	fmt.Fprintf(&sb, "<header><h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		sb.WriteString("<div class=\"meta\">")
		fmt.Fprintf(&sb, "<span>Created %s</span>", conv.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(&sb, "<span>%d messages</span>", len(doc.Messages))
		sb.WriteString("</div>\n")
	}
	sb.WriteString("</header>\n<main>\n")

	for i := range doc.Messages {
		sb.WriteString(e.renderMessage(&doc.Messages[i]))
	}

	sb.WriteString("</main>\n</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string { return "text/html" }

func (e *HTMLExporter) renderMessage(msg *model.Message) string {
	class := string(msg.Role)
	if msg.Status == model.StatusError {
		class += " error"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<div class=\"message %s\">\n", class)
	fmt.Fprintf(&sb, "<div class=\"role\">%s <span class=\"time\">%s</span></div>\n",
		html.EscapeString(msg.Role.DisplayName()), msg.Timestamp.Format("15:04"))
	fmt.Fprintf(&sb, "<div class=\"content\">%s</div>\n", formatContent(msg.Content))
	if e.options.IncludeMetadata && msg.TokenCount != nil && msg.DurationMs != nil {
		fmt.Fprintf(&sb, "<div class=\"stats\">%d tokens · %.1fs · %.1f tok/s</div>\n",
			*msg.TokenCount, float64(*msg.DurationMs)/1000, msg.TokensPerSecond())
	}
	sb.WriteString("</div>\n")
	return sb.String()
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

var (
	codeBlockRe  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
)

// formatContent escapes content and turns fenced code blocks, inline code
// and blank-line separated paragraphs into HTML.
func formatContent(content string) string {
	var sb strings.Builder
	rest := content
	for {
		loc := codeBlockRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			sb.WriteString(formatProse(rest))
			break
		}
		sb.WriteString(formatProse(rest[:loc[0]]))
		lang := rest[loc[2]:loc[3]]
		code := strings.TrimRight(rest[loc[4]:loc[5]], "\n")
		if lang != "" {
			fmt.Fprintf(&sb, "<div class=\"lang\">%s</div>", html.EscapeString(lang))
		}
		fmt.Fprintf(&sb, "<pre><code>%s</code></pre>\n", html.EscapeString(code))
		rest = rest[loc[1]:]
	}
	return sb.String()
}

func formatProse(s string) string {
	var sb strings.Builder
	for _, para := range strings.Split(s, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		escaped := html.EscapeString(para)
		escaped = inlineCodeRe.ReplaceAllString(escaped, "<code>$1</code>")
		escaped = strings.ReplaceAll(escaped, "\n", "<br>\n")
		fmt.Fprintf(&sb, "<p>%s</p>\n", escaped)
	}
	return sb.String()
}

const pageCSS = `<style>
body { margin: 0; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.55; }
body.dark { background: #18181b; color: #fafafa; }
body.light { background: #fafafa; color: #18181b; }
.container { max-width: 860px; margin: 0 auto; padding: 24px; }
header h1 { margin-bottom: 4px; }
.meta span { margin-right: 16px; opacity: 0.7; font-size: 0.9em; }
.message { border-radius: 8px; padding: 12px 16px; margin: 16px 0; }
.dark .message.user { background: #164e63; }
.dark .message.assistant { background: #27272a; }
.light .message.user { background: #cffafe; }
.light .message.assistant { background: #f4f4f5; }
.message.error { border-left: 4px solid #e11d48; }
.role { font-weight: bold; margin-bottom: 6px; }
.time, .stats { font-weight: normal; opacity: 0.6; font-size: 0.85em; }
pre { background: rgba(0, 0, 0, 0.35); padding: 12px; border-radius: 6px; overflow-x: auto; }
code { font-family: "JetBrains Mono", Menlo, Consolas, monospace; }
.lang { font-size: 0.8em; opacity: 0.6; margin-top: 8px; }
</style>
`
