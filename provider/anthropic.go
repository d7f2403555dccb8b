package provider

import (
	"context"
	"errors"

	"raider/model"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	anthropicsse "github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const (
	anthropicID           = "anthropic"
	anthropicDefaultModel = string(anthropic.ModelClaudeSonnet4_5_20250929)
)

// AnthropicProvider implements model.Provider using the official
// Anthropic Go SDK. Usage comes from the message_start and message_delta
// stream events, so no estimation is needed. All Claude models accept
// image blocks, so no vision substitution applies.
type AnthropicProvider struct {
	*settingsBox
	baseURL string
}

var anthropicCosts = CostTable{
	{ModelID: string(anthropic.ModelClaudeSonnet4_5_20250929), InputPerMillion: 3.0, OutputPerMillion: 15.0, CachedInputPerMillion: 0.3},
	{ModelID: string(anthropic.ModelClaude3_5Haiku20241022), InputPerMillion: 0.8, OutputPerMillion: 4.0, CachedInputPerMillion: 0.08},
	{ModelID: string(anthropic.ModelClaude_3_Opus_20240229), InputPerMillion: 15.0, OutputPerMillion: 75.0},
	{ModelID: string(anthropic.ModelClaude_3_Haiku_20240307), InputPerMillion: 0.25, OutputPerMillion: 1.25},
}

func NewAnthropicProvider(baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		settingsBox: newSettingsBox(),
		baseURL:     baseURL,
	}
}

func (p *AnthropicProvider) ID() string           { return anthropicID }
func (p *AnthropicProvider) DisplayName() string  { return "Anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return anthropicDefaultModel }

func (p *AnthropicProvider) Validate() error {
	if p.Settings().APIKey == "" {
		return &model.ConfigError{Provider: anthropicID, Reason: "API key not set, configure it in settings"}
	}
	return nil
}

// ListModels returns a curated catalog; Anthropic has no list endpoint.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]model.ModelInfo, 0, len(anthropicCosts))
	for _, entry := range anthropicCosts {
		out = append(out, model.ModelInfo{ID: entry.ModelID, Name: entry.ModelID, Provider: anthropicID})
	}
	return out, nil
}

func (p *AnthropicProvider) OpenStream(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = anthropicDefaultModel
	}

	client := anthropic.NewClient(
		option.WithBaseURL(p.baseURL),
		option.WithAPIKey(p.Settings().APIKey),
	)

	anthropicMessages, systemBlocks := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  anthropicMessages,
		MaxTokens: 4096,
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	stream := client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, &model.ProviderError{Provider: anthropicID, Err: err}
	}

	return &anthropicHandle{stream: stream}, nil
}

func (p *AnthropicProvider) EstimateCost(promptTokens, completionTokens, cachedTokens int, modelID string) float64 {
	return anthropicCosts.Cost(promptTokens, completionTokens, cachedTokens, modelID)
}

// anthropicHandle adapts the event stream to StreamHandle. message_start
// carries the prompt-side usage, content_block_delta the text,
// message_delta a cumulative output-token count that is converted into
// per-chunk deltas.
type anthropicHandle struct {
	stream     *anthropicsse.Stream[anthropic.MessageStreamEventUnion]
	done       bool
	lastOutput int
}

func (h *anthropicHandle) Next(ctx context.Context) (model.StreamChunk, bool, error) {
	if h.done {
		return model.StreamChunk{}, true, nil
	}
	if err := ctx.Err(); err != nil {
		h.done = true
		return model.StreamChunk{}, true, ctxStopErr(anthropicID, err)
	}

	if !h.stream.Next() {
		h.done = true
		if err := classifyStreamErr(anthropicID, h.stream.Err()); err != nil {
			var readErr *model.StreamReadError
			if errors.As(err, &readErr) {
				return model.StreamChunk{}, false, nil
			}
			return model.StreamChunk{}, true, err
		}
		return model.StreamChunk{}, true, nil
	}

	var chunk model.StreamChunk
	switch event := h.stream.Current().AsAny().(type) {
	case anthropic.MessageStartEvent:
		chunk.Usage.PromptTokens, chunk.Usage.CachedTokens = anthropicPromptUsage(event.Message.Usage)
	case anthropic.ContentBlockDeltaEvent:
		if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok {
			chunk.Content = delta.Text
		}
	case anthropic.MessageDeltaEvent:
		total := int(event.Usage.OutputTokens)
		chunk.Usage.CompletionTokens = total - h.lastOutput
		h.lastOutput = total
	}

	return chunk, false, nil
}

// anthropicPromptUsage normalizes the vendor's prompt accounting.
// Anthropic's input_tokens excludes cache reads, while the canonical
// convention counts prompt tokens cache-inclusive and reports cached
// tokens alongside, so cache reads are folded back in.
func anthropicPromptUsage(usage anthropic.Usage) (promptTokens, cachedTokens int) {
	return int(usage.InputTokens + usage.CacheReadInputTokens), int(usage.CacheReadInputTokens)
}

// convertToAnthropicMessages splits the canonical list into the
// messages array and the separate system parameter Anthropic expects.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})
		case model.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.TextContent())))
		default:
			if msg.Multimodal() {
				out = append(out, anthropic.NewUserMessage(convertAnthropicBlocks(msg.Blocks)...))
			} else {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}

	return out, systemBlocks
}

func convertAnthropicBlocks(blocks []model.ContentBlock) []anthropic.ContentBlockParamUnion {
	out := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case model.BlockText:
			out = append(out, anthropic.NewTextBlock(b.Text))
		case model.BlockImage:
			out = append(out, anthropic.NewImageBlockBase64(b.MimeType, b.Data))
		}
	}
	return out
}
