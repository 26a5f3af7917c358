// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"

	"github.com/jeranaias/nanochat/internal/model"
)

// busy reports whether the current conversation is in use by Send or a
// generation task. Callers hold o.mu.
func (o *Orchestrator) busy() bool {
	return o.sending || o.generating
}

// NewConversation creates an empty conversation and makes it current.
func (o *Orchestrator) NewConversation(ctx context.Context, title string) (*model.Conversation, error) {
	o.mu.Lock()
	if o.busy() {
		o.mu.Unlock()
		return nil, ErrGenerating
	}
	o.mu.Unlock()

	conv := model.NewConversation(title, o.settings.SelectedModelID())
	if err := o.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.conv = conv
	o.messages = nil
	o.throughput = 0
	o.mu.Unlock()
	o.notify()

	c := *conv
	return &c, nil
}

// LoadConversation makes a stored conversation current.
func (o *Orchestrator) LoadConversation(ctx context.Context, id string) error {
	o.mu.Lock()
	if o.busy() {
		o.mu.Unlock()
		return ErrGenerating
	}
	o.mu.Unlock()

	conv, err := o.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := o.store.ListMessages(ctx, id)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.conv = conv
	o.messages = msgs
	o.throughput = 0
	o.mu.Unlock()
	o.notify()
	return nil
}

// ClearConversation drops the current conversation from view. The next
// Send starts a new one. Nothing is deleted.
func (o *Orchestrator) ClearConversation() error {
	o.mu.Lock()
	if o.busy() {
		o.mu.Unlock()
		return ErrGenerating
	}
	o.conv = nil
	o.messages = nil
	o.throughput = 0
	o.mu.Unlock()
	o.notify()
	return nil
}

// DeleteMessage deletes one message of the current conversation. The
// reply being generated cannot be deleted.
func (o *Orchestrator) DeleteMessage(ctx context.Context, id string) error {
	o.mu.Lock()
	if o.generating {
		for _, m := range o.messages {
			if m.ID == id && m.IsInFlight() {
				o.mu.Unlock()
				return fmt.Errorf("message %s: %w", id, ErrGenerating)
			}
		}
	}
	o.mu.Unlock()

	if err := o.store.DeleteMessage(ctx, id); err != nil {
		return err
	}

	o.mu.Lock()
	for i := range o.messages {
		if o.messages[i].ID == id {
			o.messages = append(o.messages[:i], o.messages[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
	o.notify()
	return nil
}

// DeleteConversation deletes a conversation and its messages. Deleting the
// current one clears the view.
func (o *Orchestrator) DeleteConversation(ctx context.Context, id string) error {
	o.mu.Lock()
	current := o.conv != nil && o.conv.ID == id
	if current && o.busy() {
		o.mu.Unlock()
		return ErrGenerating
	}
	o.mu.Unlock()

	if err := o.store.DeleteConversation(ctx, id); err != nil {
		return err
	}

	o.mu.Lock()
	if o.conv != nil && o.conv.ID == id {
		o.conv = nil
		o.messages = nil
	}
	o.mu.Unlock()
	o.notify()
	return nil
}

// ArchiveConversation sets or clears the archived flag of a conversation.
func (o *Orchestrator) ArchiveConversation(ctx context.Context, id string, archived bool) error {
	if err := o.store.SetArchived(ctx, id, archived); err != nil {
		return err
	}
	o.mu.Lock()
	if o.conv != nil && o.conv.ID == id {
		o.conv.Archived = archived
	}
	o.mu.Unlock()
	o.notify()
	return nil
}

// Conversations lists conversations, most recently updated first. Archived
// ones are included only when asked for.
func (o *Orchestrator) Conversations(ctx context.Context, includeArchived bool) ([]model.Conversation, error) {
	if includeArchived {
		return o.store.ListConversations(ctx, nil)
	}
	archived := false
	return o.store.ListConversations(ctx, &archived)
}
