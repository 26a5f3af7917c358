// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/storage"
)

func TestLoadConversation(t *testing.T) {
	h := newHarness(t, "tiny.gguf")
	ctx := context.Background()

	h.backend.push(fixed([]string{"first"}, nil))
	require.NoError(t, h.orch.Send(ctx, "one"))
	h.orch.Wait()
	firstID := h.orch.Conversation().ID

	require.NoError(t, h.orch.ClearConversation())
	require.Nil(t, h.orch.Conversation())
	require.Empty(t, h.orch.Messages())

	h.backend.push(fixed([]string{"second"}, nil))
	require.NoError(t, h.orch.Send(ctx, "two"))
	h.orch.Wait()
	require.NotEqual(t, firstID, h.orch.Conversation().ID)

	require.NoError(t, h.orch.LoadConversation(ctx, firstID))
	msgs := h.orch.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "one", msgs[0].Content)
	require.Equal(t, "first", msgs[1].Content)

	err := h.orch.LoadConversation(ctx, "missing")
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestConversationOps_RejectedWhileGenerating(t *testing.T) {
	h := newHarness(t, "tiny.gguf")
	ctx := context.Background()
	h.backend.push(live())

	require.NoError(t, h.orch.Send(ctx, "Hello"))
	convID := h.orch.Conversation().ID
	reply := h.lastMessage()

	_, err := h.orch.NewConversation(ctx, "")
	require.ErrorIs(t, err, ErrGenerating)
	require.ErrorIs(t, h.orch.LoadConversation(ctx, convID), ErrGenerating)
	require.ErrorIs(t, h.orch.ClearConversation(), ErrGenerating)
	require.ErrorIs(t, h.orch.DeleteConversation(ctx, convID), ErrGenerating)
	require.ErrorIs(t, h.orch.DeleteMessage(ctx, reply.ID), ErrGenerating)

	h.orch.Stop()
	h.orch.Wait()

	require.NoError(t, h.orch.DeleteMessage(ctx, reply.ID))
	require.Len(t, h.orch.Messages(), 1)
}

func TestDeleteMessage(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	require.NoError(t, h.orch.Send(ctx, "Hello"))
	msgs := h.orch.Messages()
	require.Len(t, msgs, 2)

	require.NoError(t, h.orch.DeleteMessage(ctx, msgs[1].ID))
	require.Len(t, h.orch.Messages(), 1)

	stored, err := h.store.ListMessages(ctx, h.orch.Conversation().ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, msgs[0].ID, stored[0].ID)
}

func TestDeleteConversation(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	require.NoError(t, h.orch.Send(ctx, "Hello"))
	convID := h.orch.Conversation().ID

	other, err := h.orch.NewConversation(ctx, "Other")
	require.NoError(t, err)

	// Deleting a conversation that is not current keeps the view.
	require.NoError(t, h.orch.DeleteConversation(ctx, convID))
	require.Equal(t, other.ID, h.orch.Conversation().ID)
	_, err = h.store.GetConversation(ctx, convID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, h.orch.DeleteConversation(ctx, other.ID))
	require.Nil(t, h.orch.Conversation())
}

func TestArchiveAndList(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	a, err := h.orch.NewConversation(ctx, "Alpha")
	require.NoError(t, err)
	b, err := h.orch.NewConversation(ctx, "Beta")
	require.NoError(t, err)

	require.NoError(t, h.orch.ArchiveConversation(ctx, a.ID, true))

	visible, err := h.orch.Conversations(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	require.Equal(t, b.ID, visible[0].ID)

	all, err := h.orch.Conversations(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// The current conversation's flag follows the store.
	require.NoError(t, h.orch.ArchiveConversation(ctx, b.ID, true))
	require.True(t, h.orch.Conversation().Archived)
	require.NoError(t, h.orch.ArchiveConversation(ctx, b.ID, false))
	require.False(t, h.orch.Conversation().Archived)
}

func TestNewConversation_CarriesSelectedModel(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	conv, err := h.orch.NewConversation(ctx, "Pinned")
	require.NoError(t, err)
	require.Nil(t, conv.ModelID)
	require.Equal(t, "Pinned", conv.Title)
	require.Equal(t, model.DefaultTitle, model.NewConversation("", "").Title)
}
