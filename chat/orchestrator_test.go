package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"raider/model"
	"raider/prompt"
	"raider/provider/testutil"
)

// memStore is an in-memory ConversationStore recording every upsert.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]*model.Conversation
	upserts []*model.Conversation
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*model.Conversation)}
}

func (s *memStore) UpsertConversation(key model.DocumentKey, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := conv.Clone()
	s.byID[conv.ID] = clone
	s.upserts = append(s.upserts, clone)
	return nil
}

func (s *memStore) Conversation(key model.DocumentKey, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.byID[conversationID]; ok {
		return conv.Clone(), nil
	}
	return nil, nil
}

func (s *memStore) RemoveConversation(key model.DocumentKey, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, conversationID)
	return nil
}

func (s *memStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func (s *memStore) stored(id string) *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.byID[id]; ok {
		return conv.Clone()
	}
	return nil
}

// recordingTransport captures every Send in arrival order.
type recordingTransport struct {
	mu     sync.Mutex
	events []sendEvent
}

type sendEvent struct {
	channel string
	payload string
}

func (t *recordingTransport) Send(channelID, payload string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, sendEvent{channel: channelID, payload: payload})
}

func (t *recordingTransport) all() []sendEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sendEvent, len(t.events))
	copy(out, t.events)
	return out
}

// providerSource wraps a single mock provider.
type providerSource struct {
	provider model.Provider
}

func (s *providerSource) Get(id string) model.Provider {
	if s.provider != nil && s.provider.ID() == id {
		return s.provider
	}
	return nil
}

func (s *providerSource) Active() model.Provider { return s.provider }

func newTestOrchestrator(p model.Provider, opts Options) (*Orchestrator, *memStore, *recordingTransport) {
	store := newMemStore()
	transport := &recordingTransport{}
	composer := prompt.NewComposer(prompt.Defaults())
	orch := NewOrchestrator(&providerSource{provider: p}, store, transport, composer, opts)
	return orch, store, transport
}

func waitForTurn(t *testing.T, orch *Orchestrator, conversationID string) {
	t.Helper()
	select {
	case <-orch.Wait(conversationID):
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish in time")
	}
}

func TestStartChatCompletionStreamsAndPersists(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return testutil.NewTextStream("Hello", ", ", "world"), nil
	}

	orch, store, transport := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}

	// Synchronous return carries the pending assistant message.
	last := conv.Messages[len(conv.Messages)-1]
	if !last.IsLoading || last.Role != model.RoleAssistant {
		t.Errorf("expected pending assistant message, got %+v", last)
	}
	if !strings.HasPrefix(last.TerminateString, "__TERMINATE_") || !strings.HasSuffix(last.TerminateString, "__") {
		t.Errorf("malformed terminate string: %q", last.TerminateString)
	}

	waitForTurn(t, orch, conv.ID)

	events := transport.all()
	if len(events) != 4 {
		t.Fatalf("expected 3 content events + terminate, got %d: %+v", len(events), events)
	}
	for _, ev := range events {
		if ev.channel != last.ID {
			t.Errorf("event on channel %q, want %q", ev.channel, last.ID)
		}
	}
	got := events[0].payload + events[1].payload + events[2].payload
	if got != "Hello, world" {
		t.Errorf("content out of order: %q", got)
	}
	if events[3].payload != last.TerminateString {
		t.Errorf("final payload = %q, want terminate string", events[3].payload)
	}

	stored := store.stored(conv.ID)
	if stored == nil {
		t.Fatal("conversation not persisted")
	}
	final := stored.Messages[len(stored.Messages)-1]
	if final.Content != "Hello, world" || final.IsLoading {
		t.Errorf("final assistant message = %+v", final)
	}
	for _, msg := range stored.Messages {
		if msg.Role == model.RoleSystem {
			t.Error("system message must not be persisted")
		}
	}
	if len(stored.Messages) != 2 {
		t.Errorf("expected user + assistant, got %d messages", len(stored.Messages))
	}
}

func TestWireMessagesStartWithSystem(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	orch, _, _ := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "what is Go?"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	if len(mock.LastMessages) != 2 {
		t.Fatalf("expected system + user on the wire, got %d", len(mock.LastMessages))
	}
	if mock.LastMessages[0].Role != model.RoleSystem {
		t.Errorf("first wire message role = %s, want system", mock.LastMessages[0].Role)
	}
	if !strings.Contains(mock.LastMessages[1].Content, "what is Go?") {
		t.Errorf("user prompt missing input: %q", mock.LastMessages[1].Content)
	}
}

func TestCheckpointCadence(t *testing.T) {
	contents := make([]string, 25)
	for i := range contents {
		contents[i] = "x"
	}
	mock := testutil.NewMockProvider("mock")
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return testutil.NewTextStream(contents...), nil
	}

	orch, store, _ := newTestOrchestrator(mock, Options{CheckpointCadence: 10})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "go"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	// Initial write + checkpoints at chunks 10 and 20 + final write.
	if got := store.upsertCount(); got != 4 {
		t.Errorf("upsert count = %d, want 4", got)
	}

	// Each successive persisted partial extends the previous one.
	var prev string
	for _, up := range store.upserts {
		last := up.Messages[len(up.Messages)-1]
		if !strings.HasPrefix(last.Content, prev) {
			t.Errorf("checkpoint %q does not extend %q", last.Content, prev)
		}
		prev = last.Content
	}
	if prev != strings.Repeat("x", 25) {
		t.Errorf("final content = %q", prev)
	}
}

func TestBusyConversationRejected(t *testing.T) {
	release := make(chan struct{})
	stream := testutil.NewTextStream("slow")
	stream.Release = release

	mock := testutil.NewMockProvider("mock")
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return stream, nil
	}

	orch, store, _ := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "first"})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}

	before := store.stored(conv.ID)

	_, err = orch.StartChatCompletion(context.Background(), model.ChatRequest{
		ConversationID: conv.ID,
		UserInput:      "second",
	})
	var busy *model.BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected BusyError, got %v", err)
	}
	if busy.ConversationID != conv.ID {
		t.Errorf("BusyError.ConversationID = %q, want %q", busy.ConversationID, conv.ID)
	}

	// The rejected turn must not touch the conversation.
	after := store.stored(conv.ID)
	if len(after.Messages) != len(before.Messages) {
		t.Errorf("message count changed: %d → %d", len(before.Messages), len(after.Messages))
	}

	close(release)
	waitForTurn(t, orch, conv.ID)

	// Once idle the conversation accepts a new turn.
	if _, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{
		ConversationID: conv.ID,
		UserInput:      "third",
	}); err != nil {
		t.Fatalf("turn after release: %v", err)
	}
	waitForTurn(t, orch, conv.ID)
}

func TestStreamErrorPersistsErrorMessage(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return testutil.NewTextStream("partial").FailWith(&model.StreamReadError{
			Provider: "mock",
			Err:      errors.New("connection reset"),
		}), nil
	}

	orch, store, transport := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	events := transport.all()
	if len(events) < 3 {
		t.Fatalf("expected content, error and terminate events, got %+v", events)
	}
	errEvent := events[len(events)-2]
	if !strings.HasPrefix(errEvent.payload, "\n\nError: ") {
		t.Errorf("error payload = %q", errEvent.payload)
	}
	if !isTerminate(events[len(events)-1].payload) {
		t.Errorf("last payload is not a terminate string: %q", events[len(events)-1].payload)
	}

	stored := store.stored(conv.ID)
	final := stored.Messages[len(stored.Messages)-1]
	if !strings.HasPrefix(final.Content, "Error: ") || final.IsLoading {
		t.Errorf("persisted error message = %+v", final)
	}
}

func TestOpenStreamFailureReported(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return nil, &model.ProviderError{Provider: "mock", Err: errors.New("401 unauthorized")}
	}

	orch, store, transport := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	events := transport.all()
	if len(events) != 2 {
		t.Fatalf("expected error + terminate, got %+v", events)
	}
	if !strings.Contains(events[0].payload, "401 unauthorized") {
		t.Errorf("error payload = %q", events[0].payload)
	}

	stored := store.stored(conv.ID)
	final := stored.Messages[len(stored.Messages)-1]
	if !strings.HasPrefix(final.Content, "Error: ") {
		t.Errorf("persisted message = %+v", final)
	}
}

func TestRequestTimeoutFailsTurn(t *testing.T) {
	// The stream blocks forever; only the request timeout can end it.
	stream := testutil.NewTextStream("never delivered")
	stream.Release = make(chan struct{})

	mock := testutil.NewMockProvider("mock")
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return stream, nil
	}

	orch, store, transport := newTestOrchestrator(mock, Options{RequestTimeout: 20 * time.Millisecond})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	events := transport.all()
	if len(events) != 2 {
		t.Fatalf("expected error + terminate, got %+v", events)
	}
	if !strings.HasPrefix(events[0].payload, "\n\nError: ") {
		t.Errorf("error payload = %q", events[0].payload)
	}
	if !isTerminate(events[1].payload) {
		t.Errorf("last payload is not a terminate string: %q", events[1].payload)
	}

	// A timed-out turn finalizes as failed, never as a completed answer.
	stored := store.stored(conv.ID)
	final := stored.Messages[len(stored.Messages)-1]
	if !strings.HasPrefix(final.Content, "Error: ") || final.IsLoading {
		t.Errorf("persisted message after timeout = %+v", final)
	}
	if stored.TotalCost != 0 {
		t.Errorf("timed-out turn must not be priced, TotalCost = %v", stored.TotalCost)
	}
}

func TestUsageAndCostAccounting(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.CostTable = map[string]float64{"mock-model": 2.0}
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return testutil.NewScriptedStream(
			model.StreamChunk{Content: "a", Usage: model.Usage{PromptTokens: 100, CachedTokens: 40}},
			model.StreamChunk{Content: "b", Usage: model.Usage{CompletionTokens: 50}},
		), nil
	}

	orch, store, _ := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	stored := store.stored(conv.ID)
	if stored.Tokens == nil {
		t.Fatal("tokens not recorded")
	}
	if stored.Tokens.Prompt != 100 || stored.Tokens.CachedInput != 40 || stored.Tokens.Completion != 50 {
		t.Errorf("tokens = %+v", stored.Tokens)
	}

	// Mock prices completion tokens only: 50 * 2.0 / 1e6.
	want := 50 * 2.0 / 1_000_000
	if diff := stored.TotalCost - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("TotalCost = %v, want %v", stored.TotalCost, want)
	}
}

func TestValidationErrors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		mock := testutil.NewMockProvider("mock")
		orch, _, _ := newTestOrchestrator(mock, Options{})

		_, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "   "})
		var cfgErr *model.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %v", err)
		}
	})

	t.Run("provider not ready", func(t *testing.T) {
		mock := testutil.NewMockProvider("mock")
		mock.ValidateFunc = func() error {
			return &model.ConfigError{Provider: "mock", Reason: "no API key"}
		}
		orch, _, transport := newTestOrchestrator(mock, Options{})

		_, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "hi"})
		var cfgErr *model.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %v", err)
		}
		if mock.OpenCalls != 0 {
			t.Error("validation failure must not open a stream")
		}
		if len(transport.all()) != 0 {
			t.Error("validation failure must not emit transport events")
		}
	})

	t.Run("unknown provider override", func(t *testing.T) {
		mock := testutil.NewMockProvider("mock")
		orch, _, _ := newTestOrchestrator(mock, Options{})

		_, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{
			UserInput:  "hi",
			ProviderID: "nope",
		})
		var cfgErr *model.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %v", err)
		}
	})

	t.Run("unknown conversation id", func(t *testing.T) {
		mock := testutil.NewMockProvider("mock")
		orch, _, _ := newTestOrchestrator(mock, Options{})

		_, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{
			ConversationID: "missing",
			UserInput:      "hi",
		})
		if err == nil {
			t.Error("expected error for unknown conversation id")
		}
	})
}

func TestMultiTurnHistoryOnWire(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	mock.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return testutil.NewTextStream("answer"), nil
	}

	orch, _, _ := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "first question"})
	if err != nil {
		t.Fatalf("turn one: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	if _, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{
		ConversationID: conv.ID,
		UserInput:      "second question",
	}); err != nil {
		t.Fatalf("turn two: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	// system + user1 + assistant1 + user2
	if len(mock.LastMessages) != 4 {
		t.Fatalf("wire message count = %d, want 4", len(mock.LastMessages))
	}
	if mock.LastMessages[0].Role != model.RoleSystem {
		t.Errorf("first wire message role = %s", mock.LastMessages[0].Role)
	}
	if mock.LastMessages[2].Content != "answer" {
		t.Errorf("history assistant content = %q", mock.LastMessages[2].Content)
	}
}

func TestImagesBecomeBlocks(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	orch, _, _ := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{
		UserInput: "what is in this picture?",
		Images: []model.ImageAttachment{
			{ID: "img-1", Base64: "data:image/jpeg;base64,AAAA"},
		},
	})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	userMsg := mock.LastMessages[len(mock.LastMessages)-1]
	if !userMsg.Multimodal() || !userMsg.HasImages() {
		t.Fatalf("expected multimodal user message, got %+v", userMsg)
	}
	var img model.ContentBlock
	for _, b := range userMsg.Blocks {
		if b.Kind == model.BlockImage {
			img = b
		}
	}
	if img.MimeType != "image/jpeg" || img.Data != "AAAA" {
		t.Errorf("image block = %+v", img)
	}
}

func TestDeleteConversation(t *testing.T) {
	mock := testutil.NewMockProvider("mock")
	orch, store, _ := newTestOrchestrator(mock, Options{})

	conv, err := orch.StartChatCompletion(context.Background(), model.ChatRequest{UserInput: "hi"})
	if err != nil {
		t.Fatalf("StartChatCompletion: %v", err)
	}
	waitForTurn(t, orch, conv.ID)

	if err := orch.DeleteConversation(model.DocumentKey{}, conv.ID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if store.stored(conv.ID) != nil {
		t.Error("conversation still present after delete")
	}
}

func isTerminate(payload string) bool {
	return strings.HasPrefix(payload, "__TERMINATE_") && strings.HasSuffix(payload, "__")
}
