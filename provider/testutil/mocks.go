// Package testutil provides mock implementations of the provider
// contracts for orchestrator and registry tests.
package testutil

import (
	"context"
	"errors"
	"sync"

	"raider/model"
)

// stopErr mirrors the adapters' contract for a context stop between
// pulls: cancellation drains gracefully, an expired deadline fails the
// turn with a ProviderError.
func stopErr(providerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.ProviderError{Provider: providerID, Err: err}
	}
	return nil
}

// MockProvider implements model.Provider for testing.
type MockProvider struct {
	// Configurable responses
	ProviderID     string
	Name           string
	Model          string
	ValidateFunc   func() error
	ListModelsFunc func(ctx context.Context) ([]model.ModelInfo, error)
	OpenStreamFunc func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error)
	CostTable      map[string]float64 // modelID → output price per million

	mu       sync.Mutex
	settings model.ProviderSettings

	// Captured state
	LastMessages []model.Message
	LastModel    string
	OpenCalls    int
}

// NewMockProvider creates a mock provider with default implementations:
// always valid, one static model, streams nothing.
func NewMockProvider(id string) *MockProvider {
	m := &MockProvider{
		ProviderID: id,
		Name:       "Mock " + id,
		Model:      "mock-model",
		settings:   model.ProviderSettings{APIKey: "test-key", IsEnabled: true},
	}
	m.ListModelsFunc = func(ctx context.Context) ([]model.ModelInfo, error) {
		return []model.ModelInfo{{ID: m.Model, Name: m.Model, Provider: id}}, nil
	}
	m.OpenStreamFunc = func(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
		return NewScriptedStream(), nil
	}
	return m
}

func (m *MockProvider) ID() string           { return m.ProviderID }
func (m *MockProvider) DisplayName() string  { return m.Name }
func (m *MockProvider) DefaultModel() string { return m.Model }

func (m *MockProvider) Validate() error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc()
	}
	return nil
}

func (m *MockProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) OpenStream(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
	m.mu.Lock()
	m.LastMessages = messages
	m.LastModel = modelID
	m.OpenCalls++
	m.mu.Unlock()
	return m.OpenStreamFunc(ctx, messages, modelID)
}

func (m *MockProvider) EstimateCost(promptTokens, completionTokens, cachedTokens int, modelID string) float64 {
	price := m.CostTable[modelID]
	return float64(completionTokens) * price / 1_000_000
}

func (m *MockProvider) Settings() model.ProviderSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *MockProvider) ApplySettings(patch model.SettingsPatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.APIKey != nil {
		m.settings.APIKey = *patch.APIKey
	}
	if patch.SelectedModel != nil {
		m.settings.SelectedModel = *patch.SelectedModel
	}
	if patch.IsEnabled != nil {
		m.settings.IsEnabled = *patch.IsEnabled
	}
}

// ScriptedStream is a StreamHandle that replays a fixed chunk sequence,
// optionally ending with an error. It honors the idempotent-after-done
// contract and records over-pulls.
type ScriptedStream struct {
	mu        sync.Mutex
	chunks    []model.StreamChunk
	finalErr  error
	pos       int
	done      bool
	OverPulls int

	// Release, when non-nil, blocks each Next call until a value is
	// received; used to hold a stream open while asserting busy-guard
	// behavior.
	Release chan struct{}
}

func NewScriptedStream(chunks ...model.StreamChunk) *ScriptedStream {
	return &ScriptedStream{chunks: chunks}
}

// NewTextStream scripts one plain content chunk per string.
func NewTextStream(contents ...string) *ScriptedStream {
	chunks := make([]model.StreamChunk, len(contents))
	for i, c := range contents {
		chunks[i] = model.StreamChunk{Content: c}
	}
	return NewScriptedStream(chunks...)
}

// FailWith makes the stream return err after its scripted chunks.
func (s *ScriptedStream) FailWith(err error) *ScriptedStream {
	s.finalErr = err
	return s
}

func (s *ScriptedStream) Next(ctx context.Context) (model.StreamChunk, bool, error) {
	if s.Release != nil {
		select {
		case <-s.Release:
		case <-ctx.Done():
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return model.StreamChunk{}, true, stopErr("mock", ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		s.OverPulls++
		return model.StreamChunk{}, true, nil
	}
	if err := ctx.Err(); err != nil {
		s.done = true
		return model.StreamChunk{}, true, stopErr("mock", err)
	}
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, false, nil
	}

	s.done = true
	if s.finalErr != nil {
		return model.StreamChunk{}, true, s.finalErr
	}
	return model.StreamChunk{}, true, nil
}
