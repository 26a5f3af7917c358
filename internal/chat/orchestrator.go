// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nanochat/internal/inference"
	"github.com/jeranaias/nanochat/internal/model"
	"github.com/jeranaias/nanochat/internal/prompt"
)

// NoModelMessage is the content of the error reply to a send with nothing
// loaded.
const NoModelMessage = "Error: No model loaded. Please load a model first."

// ErrGenerating is returned by conversation operations that would pull the
// conversation out from under a running generation.
var ErrGenerating = errors.New("a generation is in progress")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Store is the persistence the orchestrator needs. *storage.Store satisfies
// it.
type Store interface {
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ListConversations(ctx context.Context, archived *bool) ([]model.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	SetArchived(ctx context.Context, id string, archived bool) error
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, status model.Status) error
	UpdateMessageMetrics(ctx context.Context, id string, tokens int, durationMs int64) error
	DeleteMessage(ctx context.Context, id string) error
}

// Engine is the inference session. *inference.Service satisfies it.
type Engine interface {
	IsLoaded() bool
	ModelPath() string
	State() inference.State
	Generate(ctx context.Context, prompt string, cfg inference.SamplingConfig) (*inference.Stream, error)
	StopGeneration()
}

// Settings supplies sampling defaults and the system prompt. Values are
// read once per generation. *settings.Store satisfies it.
type Settings interface {
	Sampling() inference.SamplingConfig
	SystemPrompt() string
	SelectedModelID() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithDialect forces a prompt dialect instead of guessing it from the
// loaded model's file name.
func WithDialect(d prompt.Dialect) Option {
	return func(o *Orchestrator) { o.dialect = &d }
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator drives one conversation: it persists user turns, runs a
// generation per turn in the background, and streams the growing reply
// into storage and into a view copy of the conversation.
//
// At most one generation runs at a time. All methods are safe for
// concurrent use.
type Orchestrator struct {
	store    Store
	engine   Engine
	settings Settings
	log      logrus.FieldLogger
	dialect  *prompt.Dialect

	mu         sync.Mutex
	conv       *model.Conversation
	messages   []model.Message
	sending    bool
	generating bool
	throughput float64
	cancel     context.CancelFunc
	done       chan struct{}

	updates chan struct{}
}

// New creates an orchestrator with no current conversation.
func New(store Store, engine Engine, settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		engine:   engine,
		settings: settings,
		updates:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	return o
}

// Updates delivers a signal after every observable change. Signals
// coalesce: a slow reader sees one pending signal, then reads the
// snapshot getters.
func (o *Orchestrator) Updates() <-chan struct{} {
	return o.updates
}

func (o *Orchestrator) notify() {
	select {
	case o.updates <- struct{}{}:
	default:
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Messages returns a copy of the current conversation's messages.
func (o *Orchestrator) Messages() []model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Conversation returns a copy of the current conversation, or nil.
func (o *Orchestrator) Conversation() *model.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conv == nil {
		return nil
	}
	c := *o.conv
	return &c
}

// IsGenerating reports whether a generation task is running.
func (o *Orchestrator) IsGenerating() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generating
}

// Throughput is the tokens/s of the running or last generation.
func (o *Orchestrator) Throughput() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.throughput
}

// InferenceState is the engine's current state.
func (o *Orchestrator) InferenceState() inference.State {
	return o.engine.State()
}

// =============================================================================
// SEND / GENERATE
// =============================================================================

// Send submits a user turn. Blank text, or text sent while a generation is
// running, is ignored. A conversation titled after the text is created if
// none is current. The user message is persisted before Send starts the
// reply; the reply itself is produced in the background. Only a failure to
// persist is returned; generation failures become message state.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	o.mu.Lock()
	if o.sending || o.generating {
		o.mu.Unlock()
		return nil
	}
	o.sending = true
	conv := o.conv
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.sending = false
		o.mu.Unlock()
	}()

	if conv == nil {
		conv = model.NewConversation(model.TruncateTitle(text), o.settings.SelectedModelID())
		if err := o.store.CreateConversation(ctx, conv); err != nil {
			return err
		}
		o.mu.Lock()
		o.conv = conv
		o.messages = nil
		o.mu.Unlock()
		o.log.WithField("conversation", conv.ID).Debug("conversation created")
	}

	user := model.NewUserMessage(conv.ID, text)
	if err := o.store.AddMessage(ctx, user); err != nil {
		return err
	}
	o.appendMessage(*user)

	return o.generateResponse(ctx, conv.ID)
}

// generateResponse answers the current conversation. With no model loaded
// it records one error reply and leaves the generating flag alone.
// Otherwise it records a pending reply and starts the generation task.
func (o *Orchestrator) generateResponse(ctx context.Context, convID string) error {
	if !o.engine.IsLoaded() {
		msg := model.NewErrorMessage(convID, NoModelMessage)
		if err := o.store.AddMessage(ctx, msg); err != nil {
			return err
		}
		o.appendMessage(*msg)
		return nil
	}

	history := o.history()
	pending := model.NewPendingAssistantMessage(convID)
	if err := o.store.AddMessage(ctx, pending); err != nil {
		return err
	}

	// The task outlives the caller's context; only Stop cancels it.
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	o.mu.Lock()
	o.messages = append(o.messages, *pending)
	o.generating = true
	o.throughput = 0
	o.cancel = cancel
	o.done = done
	o.mu.Unlock()
	o.notify()

	go o.run(taskCtx, cancel, done, pending.ID, history)
	return nil
}

// history is the completed part of the view, in order.
func (o *Orchestrator) history() []model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Message, 0, len(o.messages))
	for _, m := range o.messages {
		if m.Status == model.StatusCompleted {
			out = append(out, m)
		}
	}
	return out
}

func (o *Orchestrator) dialectFor(path string) prompt.Dialect {
	if o.dialect != nil {
		return *o.dialect
	}
	return prompt.SelectDialect(filepath.Base(path))
}

// run is the generation task.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, msgID string, history []model.Message) {
	defer close(done)
	defer cancel()
	defer func() {
		o.mu.Lock()
		o.generating = false
		o.cancel = nil
		o.mu.Unlock()
		o.notify()
	}()

	// Writes must land even while the task is being cancelled.
	wctx := context.WithoutCancel(ctx)

	path := o.engine.ModelPath()
	d := o.dialectFor(path)
	p := prompt.Render(history, o.settings.SystemPrompt(), d)
	cfg := o.settings.Sampling()
	cfg.Stop = append(cfg.Stop, p.Stop...)

	log := o.log.WithFields(logrus.Fields{"message": msgID, "dialect": d.String()})
	log.WithField("model", filepath.Base(path)).Debug("generation started")

	stream, err := o.engine.Generate(ctx, p.Text, cfg)
	if err != nil {
		if stopped(ctx, err) {
			log.Debug("generation stopped before start")
			return
		}
		o.fail(wctx, log, msgID, err)
		return
	}
	defer stream.Close()

	var acc strings.Builder
	for {
		frag, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stopped(ctx, err) {
				log.WithField("tokens", stream.Tokens()).Info("generation stopped")
				return
			}
			o.fail(wctx, log, msgID, err)
			return
		}

		acc.WriteString(frag)
		content := acc.String()
		if err := o.store.UpdateMessageContent(wctx, msgID, content, model.StatusStreaming); err != nil {
			o.fail(wctx, log, msgID, err)
			return
		}
		tps := inference.TokensPerSecond(stream.Tokens(), stream.Elapsed())
		o.updateMessage(msgID, func(m *model.Message) {
			m.Content = content
			m.Status = model.StatusStreaming
		})
		o.mu.Lock()
		o.throughput = tps
		o.mu.Unlock()
		o.notify()
	}

	o.finalize(wctx, log, msgID, acc.String(), stream)
}

// finalize marks the reply completed and records its metrics and, on the
// first exchange, the conversation title.
func (o *Orchestrator) finalize(ctx context.Context, log logrus.FieldLogger, msgID, content string, stream *inference.Stream) {
	if err := o.store.UpdateMessageContent(ctx, msgID, content, model.StatusCompleted); err != nil {
		o.fail(ctx, log, msgID, err)
		return
	}

	tokens := stream.Usage().CompletionTokens
	if tokens <= 0 {
		tokens = stream.Tokens()
	}
	elapsed := stream.Elapsed()
	durationMs := elapsed.Milliseconds()

	o.updateMessage(msgID, func(m *model.Message) {
		m.Content = content
		m.Status = model.StatusCompleted
		m.SetMetrics(tokens, durationMs)
	})
	o.mu.Lock()
	o.throughput = inference.TokensPerSecond(tokens, elapsed)
	o.mu.Unlock()

	if err := o.store.UpdateMessageMetrics(ctx, msgID, tokens, durationMs); err != nil {
		log.WithError(err).Warn("failed to store generation metrics")
	}

	o.maybeTitle(ctx, log)
	log.WithFields(logrus.Fields{"tokens": tokens, "elapsed": elapsed}).Info("generation completed")
	o.notify()
}

// maybeTitle titles the conversation after its first user message once
// the first reply is in.
func (o *Orchestrator) maybeTitle(ctx context.Context, log logrus.FieldLogger) {
	o.mu.Lock()
	if o.conv == nil || len(o.messages) > 2 {
		o.mu.Unlock()
		return
	}
	convID := o.conv.ID
	var first string
	for _, m := range o.messages {
		if m.IsUser() {
			first = m.Content
			break
		}
	}
	o.mu.Unlock()
	if first == "" {
		return
	}

	title := model.TruncateTitle(first)
	if err := o.store.UpdateConversationTitle(ctx, convID, title); err != nil {
		log.WithError(err).Warn("failed to update conversation title")
		return
	}
	o.mu.Lock()
	if o.conv != nil && o.conv.ID == convID {
		o.conv.Title = title
	}
	o.mu.Unlock()
}

// fail turns the reply into an error message carrying err.
func (o *Orchestrator) fail(ctx context.Context, log logrus.FieldLogger, msgID string, err error) {
	log.WithError(err).Warn("generation failed")
	content := "Error: " + err.Error()
	if serr := o.store.UpdateMessageContent(ctx, msgID, content, model.StatusError); serr != nil {
		log.WithError(serr).Error("failed to store error reply")
	}
	o.updateMessage(msgID, func(m *model.Message) {
		m.Content = content
		m.Status = model.StatusError
	})
	o.notify()
}

// stopped reports whether err is the result of Stop rather than a failure.
func stopped(ctx context.Context, err error) bool {
	if errors.Is(err, inference.ErrStopped) {
		return true
	}
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

// Stop halts the running generation cooperatively and cancels its task.
// The reply keeps whatever content and status it last reached. Stop
// returns at once; Wait blocks until the task has exited.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	o.engine.StopGeneration()
	cancel()
}

// Wait blocks until the current generation task, if any, has exited.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) appendMessage(m model.Message) {
	o.mu.Lock()
	o.messages = append(o.messages, m)
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) updateMessage(id string, fn func(*model.Message)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.messages {
		if o.messages[i].ID == id {
			fn(&o.messages[i])
			return
		}
	}
}
