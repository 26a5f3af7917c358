// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"strings"

	"github.com/jeranaias/nanochat/internal/model"
)

// Prompt is a rendered prompt plus the stop strings that end the reply.
type Prompt struct {
	Text    string
	Stop    []string
	Dialect Dialect
}

// Render turns messages into a single prompt in dialect d, in conversation
// order, ending with the assistant opener. A blank systemPrompt is treated
// as absent. Messages with role system go to the dialect's system slot;
// roles the dialect does not know are written as bare content.
func Render(messages []model.Message, systemPrompt string, d Dialect) Prompt {
	var b strings.Builder
	sys := strings.TrimSpace(systemPrompt) != ""

	switch d {
	case Llama2:
		renderLlama2(&b, messages, systemPrompt, sys)
	case Llama3:
		renderLlama3(&b, messages, systemPrompt, sys)
	case Alpaca:
		renderAlpaca(&b, messages, systemPrompt, sys)
	case Vicuna:
		renderVicuna(&b, messages, systemPrompt, sys)
	case Mistral:
		renderMistral(&b, messages, systemPrompt, sys)
	case Raw:
		renderRaw(&b, messages, systemPrompt, sys)
	default:
		d = ChatML
		renderChatML(&b, messages, systemPrompt, sys)
	}

	return Prompt{Text: b.String(), Stop: StopMarkers(d), Dialect: d}
}

func renderChatML(b *strings.Builder, msgs []model.Message, system string, hasSystem bool) {
	turn := func(role, content string) {
		b.WriteString("<|im_start|>")
		b.WriteString(role)
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("<|im_end|>\n")
	}
	if hasSystem {
		turn("system", system)
	}
	for _, m := range msgs {
		switch m.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleSystem:
			turn(string(m.Role), m.Content)
		default:
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString(AssistantOpener(ChatML))
}

func renderLlama3(b *strings.Builder, msgs []model.Message, system string, hasSystem bool) {
	turn := func(role, content string) {
		b.WriteString("<|start_header_id|>")
		b.WriteString(role)
		b.WriteString("<|end_header_id|>\n\n")
		b.WriteString(content)
		b.WriteString("<|eot_id|>")
	}
	b.WriteString("<|begin_of_text|>")
	if hasSystem {
		turn("system", system)
	}
	for _, m := range msgs {
		switch m.Role {
		case model.RoleUser, model.RoleAssistant, model.RoleSystem:
			turn(string(m.Role), m.Content)
		default:
			b.WriteString(m.Content)
		}
	}
	b.WriteString(AssistantOpener(Llama3))
}

// renderLlama2 writes "<s>[INST] <<SYS>>...<</SYS>> user [/INST] reply </s>"
// turns. System text waits for the next [INST] block so it is never lost.
func renderLlama2(b *strings.Builder, msgs []model.Message, system string, hasSystem bool) {
	var pendingSys []string
	if hasSystem {
		pendingSys = append(pendingSys, system)
	}
	instOpen := false
	awaitingReply := false

	open := func() {
		if !instOpen {
			b.WriteString("<s>[INST] ")
			instOpen = true
		}
		if len(pendingSys) > 0 {
			b.WriteString("<<SYS>>\n")
			b.WriteString(strings.Join(pendingSys, "\n\n"))
			b.WriteString("\n<</SYS>>\n\n")
			pendingSys = nil
		}
	}
	closeInst := func() {
		b.WriteString(AssistantOpener(Llama2))
		instOpen = false
		awaitingReply = true
	}

	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			pendingSys = append(pendingSys, m.Content)
		case model.RoleUser:
			open()
			b.WriteString(m.Content)
			closeInst()
		case model.RoleAssistant:
			if instOpen || !awaitingReply {
				open()
				closeInst()
			}
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString(" </s>")
			awaitingReply = false
		default:
			b.WriteString(m.Content)
			awaitingReply = false
		}
	}
	if !awaitingReply || len(pendingSys) > 0 {
		open()
		closeInst()
	}
}

// renderMistral folds system text into the front of the next user turn.
func renderMistral(b *strings.Builder, msgs []model.Message, system string, hasSystem bool) {
	var pendingSys []string
	if hasSystem {
		pendingSys = append(pendingSys, system)
	}
	awaitingReply := false

	inst := func(content string, withContent bool) {
		parts := pendingSys
		if withContent {
			parts = append(parts, content)
		}
		b.WriteString("[INST] ")
		b.WriteString(strings.Join(parts, "\n\n"))
		b.WriteString(AssistantOpener(Mistral))
		pendingSys = nil
		awaitingReply = true
	}

	b.WriteString("<s>")
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			pendingSys = append(pendingSys, m.Content)
		case model.RoleUser:
			inst(m.Content, true)
		case model.RoleAssistant:
			b.WriteString(m.Content)
			b.WriteString("</s>")
			awaitingReply = false
		default:
			b.WriteString(m.Content)
			awaitingReply = false
		}
	}
	if !awaitingReply || len(pendingSys) > 0 {
		inst("", false)
	}
}

func renderAlpaca(b *strings.Builder, msgs []model.Message, system string, hasSystem bool) {
	section := func(header, content string) {
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	if hasSystem {
		section("### System:", system)
	}
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem:
			section("### System:", m.Content)
		case model.RoleUser:
			section("### Instruction:", m.Content)
		case model.RoleAssistant:
			section("### Response:", m.Content)
		default:
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		}
	}
	b.WriteString(AssistantOpener(Alpaca))
}

func renderVicuna(b *strings.Builder, msgs []model.Message, system string, hasSystem bool) {
	if hasSystem {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, m := range msgs {
		switch m.Role {
		case model.RoleUser:
			b.WriteString("USER: ")
		case model.RoleAssistant:
			b.WriteString("ASSISTANT: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString(AssistantOpener(Vicuna))
}

func renderRaw(b *strings.Builder, msgs []model.Message, system string, hasSystem bool) {
	if hasSystem {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, m := range msgs {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
}
