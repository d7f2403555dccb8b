package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"

	"raider/model"

	"github.com/ollama/ollama/api"
)

const (
	ollamaID           = "ollama"
	ollamaDefaultModel = "llama3.1:latest"
)

// OllamaProvider implements model.Provider against a local Ollama
// server. Local models are free, so the cost table is all zeros, and no
// API key is required. The Ollama client is callback-driven; a
// goroutine bridges its pushes into the pull-based StreamHandle.
type OllamaProvider struct {
	*settingsBox
	baseURL string
}

var ollamaCosts = CostTable{
	{ModelID: ollamaDefaultModel},
}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		settingsBox: newSettingsBox(),
		baseURL:     baseURL,
	}
}

func (p *OllamaProvider) ID() string           { return ollamaID }
func (p *OllamaProvider) DisplayName() string  { return "Ollama" }
func (p *OllamaProvider) DefaultModel() string { return ollamaDefaultModel }

// Validate always succeeds: a local server needs no API key.
// Reachability problems surface as ProviderError at stream time.
func (p *OllamaProvider) Validate() error { return nil }

func (p *OllamaProvider) client() (*api.Client, error) {
	parsed, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, &model.ConfigError{Provider: ollamaID, Reason: "invalid Ollama URL: " + err.Error()}
	}
	return api.NewClient(parsed, http.DefaultClient), nil
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	resp, err := client.List(ctx)
	if err != nil {
		return nil, &model.ProviderError{Provider: ollamaID, Err: err}
	}

	models := make([]model.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, model.ModelInfo{ID: m.Name, Name: m.Name, Provider: ollamaID})
	}
	return models, nil
}

func (p *OllamaProvider) OpenStream(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = ollamaDefaultModel
	}

	req := &api.ChatRequest{
		Model:    modelID,
		Messages: convertToOllamaMessages(messages),
		Stream:   func(b bool) *bool { return &b }(true),
	}

	events := make(chan ollamaEvent, 16)
	go func() {
		err := client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chunk := model.StreamChunk{Content: resp.Message.Content}
			if resp.Done {
				chunk.Usage.PromptTokens = resp.Metrics.PromptEvalCount
				chunk.Usage.CompletionTokens = resp.Metrics.EvalCount
			}
			select {
			case events <- ollamaEvent{chunk: chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			select {
			case events <- ollamaEvent{err: &model.ProviderError{Provider: ollamaID, Err: err}}:
			case <-ctx.Done():
			}
		}
		close(events)
	}()

	return &ollamaHandle{events: events}, nil
}

func (p *OllamaProvider) EstimateCost(promptTokens, completionTokens, cachedTokens int, modelID string) float64 {
	return ollamaCosts.Cost(promptTokens, completionTokens, cachedTokens, modelID)
}

type ollamaEvent struct {
	chunk model.StreamChunk
	err   error
}

type ollamaHandle struct {
	events <-chan ollamaEvent
	done   bool
}

func (h *ollamaHandle) Next(ctx context.Context) (model.StreamChunk, bool, error) {
	if h.done {
		return model.StreamChunk{}, true, nil
	}

	select {
	case <-ctx.Done():
		h.done = true
		return model.StreamChunk{}, true, ctxStopErr(ollamaID, ctx.Err())
	case ev, ok := <-h.events:
		if !ok {
			h.done = true
			return model.StreamChunk{}, true, nil
		}
		if ev.err != nil {
			h.done = true
			return model.StreamChunk{}, true, ev.err
		}
		return ev.chunk, false, nil
	}
}

func convertToOllamaMessages(messages []model.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		m := api.Message{
			Role:    msg.Role,
			Content: msg.TextContent(),
		}
		for _, b := range msg.Blocks {
			if b.Kind != model.BlockImage {
				continue
			}
			if data, err := base64.StdEncoding.DecodeString(b.Data); err == nil {
				m.Images = append(m.Images, api.ImageData(data))
			}
		}
		out = append(out, m)
	}
	return out
}
