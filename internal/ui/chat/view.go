// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/ui/styles"
	"github.com/jeranaias/nanochat/internal/util"
)

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	input := m.theme.InputBox
	if m.sending || m.chat.IsGenerating() {
		input = m.theme.InputDisabled
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderStatus(),
		input.Width(max(m.width-2, 10)).Render(m.input.View()),
		m.theme.Dim.Render(HelpLine(m.keys.ShortHelp())),
	)
}

func (m Model) renderHeader() string {
	title := model.DefaultTitle
	if conv := m.chat.Conversation(); conv != nil {
		title = conv.DisplayTitle()
	}
	brand := m.theme.HeaderTitle.Render("nanochat")
	room := max(m.width-lipgloss.Width(brand)-5, 0)
	return m.theme.Header.Width(m.width).Render(brand + "  " + util.TruncateWidth(util.SingleLine(title), room))
}

func (m Model) renderStatus() string {
	text := inference.Describe(m.state)
	switch m.state.(type) {
	case inference.Loading, inference.Generating:
		return m.theme.StatusBusy.Render(m.spinner.View() + " " + text + "  (Esc to stop)")
	case inference.Failed:
		return m.theme.StatusError.Render(text)
	}
	if m.sending {
		return m.theme.StatusBusy.Render(m.spinner.View() + " Sending...")
	}
	return m.theme.StatusBar.Render(text)
}

// refresh rebuilds the conversation view from the orchestrator snapshot.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation())
	if atBottom || m.values.AutoScroll {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderConversation() string {
	msgs := m.chat.Messages()
	blocks := make([]string, 0, len(msgs)+1)
	if len(msgs) == 0 {
		blocks = append(blocks, m.theme.Dim.Render("Ask anything. /help lists commands."))
	}
	for _, msg := range msgs {
		blocks = append(blocks, m.renderMessage(msg))
	}
	if m.notice != "" {
		if m.noticeError {
			blocks = append(blocks, styles.RenderError(m.notice))
		} else {
			blocks = append(blocks, m.theme.Dim.Render(m.notice))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg model.Message) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	case model.RoleAssistant:
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
	default:
		label = m.theme.SystemLabel.Render(msg.Role.DisplayName())
	}

	width := max(m.width-4, 10)
	var body string
	switch {
	case msg.Status == model.StatusError:
		body = m.theme.ErrorText.Width(width).Render(msg.Content)
	case msg.Content == "" && msg.IsInFlight():
		body = m.theme.Dim.PaddingLeft(2).Render("...")
	case msg.IsAssistant() && msg.Status == model.StatusCompleted && m.markdown:
		body = m.renderMarkdown(msg)
	default:
		body = m.theme.MessageBody.Width(width).Render(msg.Content)
	}

	out := label + "\n" + body
	if stats := m.metricsLine(msg); stats != "" {
		out += "\n" + m.theme.Metrics.Render(stats)
	}
	return out
}

// metricsLine shows the token count and generation time of a completed
// reply, as far as the settings ask for them.
func (m *Model) metricsLine(msg model.Message) string {
	if !msg.IsAssistant() || msg.Status != model.StatusCompleted {
		return ""
	}
	var parts []string
	if m.values.ShowTokenCount && msg.TokenCount != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", *msg.TokenCount))
	}
	if m.values.ShowGenerationTime && msg.DurationMs != nil {
		parts = append(parts, fmt.Sprintf("%.1fs", float64(*msg.DurationMs)/1000))
		if tps := msg.TokensPerSecond(); tps > 0 {
			parts = append(parts, fmt.Sprintf("%.1f tok/s", tps))
		}
	}
	return strings.Join(parts, " · ")
}

// renderMarkdown renders a completed reply with glamour. Results are
// cached per message until the width changes; a render failure falls back
// to plain text.
func (m *Model) renderMarkdown(msg model.Message) string {
	width := max(m.width-4, 10)
	if m.renderer == nil || m.renderedWidth != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			m.log.WithError(err).Debug("markdown renderer unavailable")
			m.markdown = false
			return m.theme.MessageBody.Width(width).Render(msg.Content)
		}
		m.renderer = r
		m.renderedWidth = width
		m.rendered = make(map[string]string)
	}

	if out, ok := m.rendered[msg.ID]; ok {
		return out
	}
	out, err := m.renderer.Render(msg.Content)
	if err != nil {
		return m.theme.MessageBody.Width(width).Render(msg.Content)
	}
	out = strings.Trim(out, "\n")
	m.rendered[msg.ID] = out
	return out
}
