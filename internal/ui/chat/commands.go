// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/nanochat/internal/gguf"
)

// SlashCommand is a parsed "/name args" line.
type SlashCommand struct {
	Name string
	Args []string
}

// ParseSlashCommand splits a "/name arg..." line. ok is false for plain
// chat text. A doubled slash sends the text with one slash removed.
func ParseSlashCommand(line string) (cmd SlashCommand, text string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return SlashCommand{}, line, false
	}
	if strings.HasPrefix(line, "//") {
		return SlashCommand{}, line[1:], false
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return SlashCommand{}, line, false
	}
	return SlashCommand{Name: strings.ToLower(fields[0]), Args: fields[1:]}, "", true
}

const slashHelp = `/load <model>   Load a model by name, ID or path
/unload         Unload the current model
/models         List the model library
/new            Start a new conversation
/clear          Clear the screen (the conversation stays saved)
/stop           Stop the running reply (same as Esc)
/help           Show this help
/quit           Exit`

// runSlash executes cmd. Long-running commands return a tea.Cmd so the UI
// keeps drawing while they work.
func (m *Model) runSlash(cmd SlashCommand) tea.Cmd {
	switch cmd.Name {
	case "quit", "exit", "q":
		return m.quit()

	case "stop":
		if !m.chat.IsGenerating() {
			m.setNotice("Nothing is generating.", false)
			return nil
		}
		m.chat.Stop()
		return nil

	case "help", "?":
		m.setNotice(slashHelp, false)
		return nil

	case "new":
		return m.newConversationCmd()

	case "clear":
		if err := m.chat.ClearConversation(); err != nil {
			m.setNotice(err.Error(), true)
			return nil
		}
		m.clearNotice()
		m.refresh()
		return nil

	case "models":
		return m.listModelsCmd()

	case "load", "model":
		if len(cmd.Args) == 0 {
			m.setNotice("usage: /load <model>", true)
			return nil
		}
		return m.loadModelCmd(strings.Join(cmd.Args, " "))

	case "unload":
		return m.unloadCmd()

	default:
		m.setNotice(fmt.Sprintf("Unknown command /%s (try /help)", cmd.Name), true)
		return nil
	}
}

func (m *Model) newConversationCmd() tea.Cmd {
	o, ctx := m.chat, m.ctx
	return func() tea.Msg {
		if _, err := o.NewConversation(ctx, ""); err != nil {
			return noticeErr(err)
		}
		return NoticeMsg{Text: "Started a new conversation."}
	}
}

func (m *Model) listModelsCmd() tea.Cmd {
	lib, ctx := m.library, m.ctx
	current := m.engine.ModelPath()
	return func() tea.Msg {
		models, err := lib.List(ctx, true)
		if err != nil {
			return noticeErr(err)
		}
		if len(models) == 0 {
			return NoticeMsg{Text: "No models. Import one with: nanochat import <file.gguf>"}
		}
		var b strings.Builder
		b.WriteString("Models:")
		for _, mdl := range models {
			marker := "  "
			if mdl.Path == current {
				marker = "* "
			}
			size := ""
			if mdl.FileSize != nil {
				size = gguf.FormatSize(*mdl.FileSize)
			}
			fmt.Fprintf(&b, "\n%s%s  %s", marker, mdl.Name, size)
		}
		return NoticeMsg{Text: b.String()}
	}
}

func (m *Model) loadModelCmd(ref string) tea.Cmd {
	lib, ctx := m.library, m.ctx
	m.setNotice("Loading "+ref+"...", false)
	return func() tea.Msg {
		entry, err := lib.Find(ctx, ref)
		if err != nil {
			return noticeErr(err)
		}
		if _, err := lib.Load(ctx, entry.ID); err != nil {
			return noticeErr(fmt.Errorf("load %s: %w", entry.Name, err))
		}
		return NoticeMsg{Text: "Loaded " + entry.Name + "."}
	}
}

func (m *Model) unloadCmd() tea.Cmd {
	lib, ctx := m.library, m.ctx
	if !m.engine.IsLoaded() {
		m.setNotice("No model loaded.", false)
		return nil
	}
	return func() tea.Msg {
		if err := lib.Unload(ctx); err != nil {
			return noticeErr(err)
		}
		return NoticeMsg{Text: "Model unloaded."}
	}
}

// loadStartupModel loads ref, or the selected model when ref is empty.
func loadStartupModel(ctx context.Context, m *Model, ref string) tea.Cmd {
	if ref != "" {
		return m.loadModelCmd(ref)
	}
	lib := m.library
	return func() tea.Msg {
		entry, err := lib.Selected(ctx)
		if err != nil {
			return noticeErr(err)
		}
		if entry == nil {
			return NoticeMsg{Text: "No model selected. Use /models and /load <model>."}
		}
		if _, err := lib.Load(ctx, entry.ID); err != nil {
			return noticeErr(fmt.Errorf("load %s: %w", entry.Name, err))
		}
		return NoticeMsg{Text: "Loaded " + entry.Name + "."}
	}
}
