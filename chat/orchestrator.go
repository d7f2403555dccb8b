// Package chat drives a provider stream to completion for one chat
// turn: it composes prompts, opens the vendor stream, forwards content
// to the UI transport in arrival order, checkpoints partial state at a
// fixed cadence, and finalizes token usage and cost.
package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"raider/model"
	"raider/prompt"
)

// Defaults for the orchestrator options.
const (
	// DefaultCheckpointCadence bounds crash loss to at most this many
	// chunks of the in-flight answer.
	DefaultCheckpointCadence = 100

	// DefaultRequestTimeout bounds one whole vendor stream.
	DefaultRequestTimeout = 5 * time.Minute
)

// ConversationStore is the durable keyed storage consumed by the
// orchestrator. Operations are atomic with respect to each other for a
// given document key.
type ConversationStore interface {
	UpsertConversation(key model.DocumentKey, conv *model.Conversation) error
	Conversation(key model.DocumentKey, conversationID string) (*model.Conversation, error)
	RemoveConversation(key model.DocumentKey, conversationID string) error
}

// ProviderSource resolves provider adapters; implemented by
// provider.Registry.
type ProviderSource interface {
	Get(id string) model.Provider
	Active() model.Provider
}

// Transport is the push channel to the UI: zero or more content chunks
// per pending message id, then exactly one terminal payload equal to the
// turn's terminate string.
type Transport interface {
	Send(channelID, payload string)
}

// Options tune the orchestrator. Zero values take the defaults.
type Options struct {
	CheckpointCadence int
	RequestTimeout    time.Duration
}

// Orchestrator runs chat turns. Safe for concurrent use; at most one
// turn may be in flight per conversation id.
type Orchestrator struct {
	providers ProviderSource
	store     ConversationStore
	transport Transport
	composer  *prompt.Composer
	cadence   int
	timeout   time.Duration

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func NewOrchestrator(providers ProviderSource, store ConversationStore, transport Transport, composer *prompt.Composer, opts Options) *Orchestrator {
	if opts.CheckpointCadence <= 0 {
		opts.CheckpointCadence = DefaultCheckpointCadence
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Orchestrator{
		providers: providers,
		store:     store,
		transport: transport,
		composer:  composer,
		cadence:   opts.CheckpointCadence,
		timeout:   opts.RequestTimeout,
		inflight:  make(map[string]chan struct{}),
	}
}

// usageAccumulator tracks per-stream token totals, monotonically
// increasing until the stream completes.
type usageAccumulator struct {
	prompt     int
	cached     int
	completion int
}

func (u *usageAccumulator) add(usage model.Usage) {
	u.prompt += usage.PromptTokens
	u.cached += usage.CachedTokens
	u.completion += usage.CompletionTokens
}

// StartChatCompletion begins one chat turn. It returns the conversation
// synchronously — including the pending loading assistant message so the
// UI can render immediately — while the answer streams to the transport
// on the pending message's channel, terminated by the message's unique
// terminate string.
func (o *Orchestrator) StartChatCompletion(ctx context.Context, req model.ChatRequest) (*model.Conversation, error) {
	if strings.TrimSpace(req.UserInput) == "" {
		return nil, &model.ConfigError{Reason: "user input is empty"}
	}

	p, err := o.resolveProvider(req.ProviderID)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	done, err := o.acquire(conversationID)
	if err != nil {
		return nil, err
	}
	release := func() {
		o.mu.Lock()
		delete(o.inflight, conversationID)
		o.mu.Unlock()
		close(done)
	}

	conv, err := o.loadOrCreate(req, conversationID, p)
	if err != nil {
		release()
		return nil, err
	}

	composed, err := o.composer.Compose(prompt.Context{
		UserInput:       req.UserInput,
		HighlightedText: req.HighlightedText,
		FullText:        req.FullText,
		TokenLength:     req.TokenLength,
		PageText:        req.PageText,
		HighlightedPage: req.HighlightedPage,
	})
	if err != nil {
		release()
		return nil, err
	}

	settings := p.Settings()
	modelID := settings.SelectedModel
	if modelID == "" {
		modelID = p.DefaultModel()
	}
	conv.Metadata = model.ConversationMetadata{ModelName: modelID, Provider: p.ID()}

	// The canonical message list for the vendor call: the implicit
	// system message, all prior turns, then the new user message. The
	// persisted list drops the system message to save space.
	systemMessage := model.Message{
		ID:      uuid.New().String(),
		Role:    model.RoleSystem,
		Content: composed.SystemPrompt,
	}
	userMessage := newUserMessage(composed.UserPrompt, req)

	wireMessages := make([]model.Message, 0, len(conv.Messages)+2)
	wireMessages = append(wireMessages, systemMessage)
	wireMessages = append(wireMessages, conv.Messages...)
	wireMessages = append(wireMessages, userMessage)

	newMsgID := uuid.New().String()
	terminateString := "__TERMINATE_" + uuid.New().String() + "__"
	pending := model.Message{
		ID:              newMsgID,
		Role:            model.RoleAssistant,
		IsLoading:       true,
		TerminateString: terminateString,
	}

	conv.Messages = append(conv.Messages, userMessage, pending)

	if err := o.store.UpsertConversation(req.Document, conv); err != nil {
		log.Printf("chat: failed to persist new turn: %v", err)
	}

	turn := &streamTurn{
		provider:        p,
		modelID:         modelID,
		messages:        wireMessages,
		conversation:    conv.Clone(),
		documentKey:     req.Document,
		pendingID:       newMsgID,
		terminateString: terminateString,
	}
	go func() {
		defer release()
		o.runStream(ctx, turn)
	}()

	return conv.Clone(), nil
}

// Wait returns a channel closed when the conversation's in-flight turn
// finishes. An idle conversation yields an already-closed channel.
func (o *Orchestrator) Wait(conversationID string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if done, ok := o.inflight[conversationID]; ok {
		return done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// DeleteConversation removes a conversation by id.
func (o *Orchestrator) DeleteConversation(key model.DocumentKey, conversationID string) error {
	return o.store.RemoveConversation(key, conversationID)
}

func (o *Orchestrator) resolveProvider(providerID string) (model.Provider, error) {
	if providerID != "" {
		p := o.providers.Get(providerID)
		if p == nil {
			return nil, &model.ConfigError{Provider: providerID, Reason: "unknown provider"}
		}
		return p, nil
	}
	p := o.providers.Active()
	if p == nil {
		return nil, &model.ConfigError{Reason: "no provider registered"}
	}
	return p, nil
}

// acquire reserves the conversation for one turn; a second turn while
// one is streaming is rejected with BusyError and touches no state.
func (o *Orchestrator) acquire(conversationID string) (chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[conversationID]; busy {
		return nil, &model.BusyError{ConversationID: conversationID}
	}
	done := make(chan struct{})
	o.inflight[conversationID] = done
	return done, nil
}

func (o *Orchestrator) loadOrCreate(req model.ChatRequest, conversationID string, p model.Provider) (*model.Conversation, error) {
	if req.ConversationID == "" {
		return &model.Conversation{
			ID:        conversationID,
			Messages:  []model.Message{},
			Timestamp: time.Now().UTC(),
		}, nil
	}

	conv, err := o.store.Conversation(req.Document, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, &model.ConfigError{Reason: "conversation not found: " + conversationID}
	}
	return conv, nil
}

// newUserMessage builds the outgoing user turn. With images attached the
// body becomes a block list: the rendered prompt as a text block plus
// one image block per attachment.
func newUserMessage(renderedPrompt string, req model.ChatRequest) model.Message {
	msg := model.Message{
		ID:              uuid.New().String(),
		Role:            model.RoleUser,
		DisplayContent:  req.UserInput,
		HighlightedText: req.HighlightedText,
		HighlightID:     req.HighlightID,
	}

	if len(req.Images) == 0 {
		msg.Content = renderedPrompt
		return msg
	}

	blocks := []model.ContentBlock{{Kind: model.BlockText, Text: renderedPrompt}}
	for _, img := range req.Images {
		mime, data := splitDataURL(img.Base64)
		blocks = append(blocks, model.ContentBlock{
			Kind:     model.BlockImage,
			Data:     data,
			MimeType: mime,
		})
	}
	msg.Blocks = blocks
	return msg
}

type streamTurn struct {
	provider        model.Provider
	modelID         string
	messages        []model.Message
	conversation    *model.Conversation
	documentKey     model.DocumentKey
	pendingID       string
	terminateString string
}

// runStream pulls the vendor stream to completion in a single sequential
// loop: chunk order to the transport and checkpoint order to the store
// are both preserved by construction.
func (o *Orchestrator) runStream(ctx context.Context, turn *streamTurn) {
	sctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	handle, err := turn.provider.OpenStream(sctx, turn.messages, turn.modelID)
	if err != nil {
		o.failStream(turn, err)
		return
	}

	var usage usageAccumulator
	var fullResponse strings.Builder

	for i := 0; ; i++ {
		chunk, done, err := handle.Next(sctx)
		if err != nil {
			o.failStream(turn, err)
			return
		}
		if done {
			break
		}

		if chunk.Content != "" {
			o.transport.Send(turn.pendingID, chunk.Content)
			fullResponse.WriteString(chunk.Content)
		}
		usage.add(chunk.Usage)

		// Checkpoint every Nth chunk so a crash loses at most one
		// cadence window of the answer. Synchronous within this loop:
		// an older partial never overwrites a newer one.
		if i > 0 && i%o.cadence == 0 {
			o.checkpoint(turn, fullResponse.String())
		}
	}

	cost := turn.provider.EstimateCost(
		usage.prompt-usage.cached,
		usage.completion,
		usage.cached,
		turn.modelID,
	)

	o.transport.Send(turn.pendingID, turn.terminateString)

	conv := turn.conversation
	setAssistantMessage(conv, turn.pendingID, model.Message{
		ID:      turn.pendingID,
		Role:    model.RoleAssistant,
		Content: fullResponse.String(),
	})
	conv.Tokens = &model.TokenTotals{
		Prompt:      usage.prompt,
		CachedInput: usage.cached,
		Completion:  usage.completion,
	}
	conv.TotalCost += cost

	if err := o.store.UpsertConversation(turn.documentKey, conv); err != nil {
		log.Printf("chat: final persist failed for conversation %s: %v", conv.ID, err)
	}
}

// checkpoint durably records the partial answer. Failures are logged and
// non-fatal: the stream continues and the next checkpoint retries.
func (o *Orchestrator) checkpoint(turn *streamTurn, partial string) {
	conv := turn.conversation
	setAssistantMessage(conv, turn.pendingID, model.Message{
		ID:        turn.pendingID,
		Role:      model.RoleAssistant,
		Content:   partial,
		IsLoading: true,
	})
	if err := o.store.UpsertConversation(turn.documentKey, conv); err != nil {
		log.Printf("chat: checkpoint failed for conversation %s: %v", conv.ID, err)
	}
}

// failStream finalizes a failed turn: the error is pushed as content so
// the message bubble shows it instead of a spinner, the terminate string
// unblocks listeners, and an error-content assistant message is
// persisted so history is never left truncated mid-stream.
func (o *Orchestrator) failStream(turn *streamTurn, cause error) {
	log.Printf("chat: stream failed for conversation %s: %v", turn.conversation.ID, cause)

	o.transport.Send(turn.pendingID, "\n\nError: "+cause.Error())
	o.transport.Send(turn.pendingID, turn.terminateString)

	conv := turn.conversation
	setAssistantMessage(conv, turn.pendingID, model.Message{
		ID:      turn.pendingID,
		Role:    model.RoleAssistant,
		Content: "Error: " + cause.Error(),
	})
	if err := o.store.UpsertConversation(turn.documentKey, conv); err != nil {
		log.Printf("chat: failed to persist error state for conversation %s: %v", conv.ID, err)
	}
}

// setAssistantMessage replaces the pending assistant message in place,
// appending if it is somehow absent.
func setAssistantMessage(conv *model.Conversation, pendingID string, msg model.Message) {
	for i := range conv.Messages {
		if conv.Messages[i].ID == pendingID {
			conv.Messages[i] = msg
			return
		}
	}
	conv.Messages = append(conv.Messages, msg)
}
