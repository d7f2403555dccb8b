package provider

import (
	"context"

	"raider/model"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	deepseekID           = "deepseek"
	deepseekDefaultModel = "deepseek-chat"
)

// DeepSeekProvider implements model.Provider against DeepSeek's
// OpenAI-compatible API, reusing the openai-go SDK with a custom base
// URL. The vendor does not report usage in-stream, so tokens are
// estimated deterministically at one per four characters.
type DeepSeekProvider struct {
	*settingsBox
	baseURL string
}

var deepseekCosts = CostTable{
	{ModelID: "deepseek-chat", InputPerMillion: 0.05, OutputPerMillion: 0.25},
	{ModelID: "deepseek-coder", InputPerMillion: 0.05, OutputPerMillion: 0.25},
}

var deepseekCatalog = []model.ModelInfo{
	{ID: "deepseek-chat", Name: "DeepSeek Chat", Provider: deepseekID},
	{ID: "deepseek-coder", Name: "DeepSeek Coder", Provider: deepseekID},
}

func NewDeepSeekProvider(baseURL string) *DeepSeekProvider {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	return &DeepSeekProvider{
		settingsBox: newSettingsBox(),
		baseURL:     baseURL,
	}
}

func (p *DeepSeekProvider) ID() string           { return deepseekID }
func (p *DeepSeekProvider) DisplayName() string  { return "DeepSeek" }
func (p *DeepSeekProvider) DefaultModel() string { return deepseekDefaultModel }

func (p *DeepSeekProvider) Validate() error {
	if p.Settings().APIKey == "" {
		return &model.ConfigError{Provider: deepseekID, Reason: "API key not set, configure it in settings"}
	}
	return nil
}

// ListModels returns the static catalog; DeepSeek has no list endpoint.
func (p *DeepSeekProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]model.ModelInfo, len(deepseekCatalog))
	copy(out, deepseekCatalog)
	return out, nil
}

func (p *DeepSeekProvider) OpenStream(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = deepseekDefaultModel
	}

	client := openai.NewClient(
		option.WithBaseURL(p.baseURL),
		option.WithAPIKey(p.Settings().APIKey),
	)

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(modelID),
		Messages:  convertToOpenAIMessages(flattenImages(messages)),
		MaxTokens: openai.Int(4096),
	}

	stream := client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, &model.ProviderError{Provider: deepseekID, Err: err}
	}

	return &sseHandle{
		providerID:     deepseekID,
		stream:         stream,
		estimateUsage:  true,
		promptEstimate: estimatePromptTokens(messages),
	}, nil
}

func (p *DeepSeekProvider) EstimateCost(promptTokens, completionTokens, cachedTokens int, modelID string) float64 {
	return deepseekCosts.Cost(promptTokens, completionTokens, cachedTokens, modelID)
}

// estimatePromptTokens approximates the prompt size from all message
// text, reported once on the first chunk.
func estimatePromptTokens(messages []model.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.TextContent())
	}
	return total
}

// flattenImages drops image blocks for vendors without any
// vision-capable model, keeping the text parts.
func flattenImages(messages []model.Message) []model.Message {
	out := make([]model.Message, len(messages))
	copy(out, messages)
	for i, m := range out {
		if m.HasImages() {
			out[i].Content = m.TextContent()
			out[i].Blocks = nil
		}
	}
	return out
}
