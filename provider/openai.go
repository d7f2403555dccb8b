package provider

import (
	"context"
	"strings"

	"raider/config"
	"raider/model"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openaiID           = "openai"
	openaiDefaultModel = "gpt-4o"
	// Model substituted when the request carries images but the selected
	// model has no vision capability.
	openaiVisionModel = "gpt-4o"
)

// OpenAIProvider implements model.Provider against the official OpenAI
// API using the openai-go SDK.
type OpenAIProvider struct {
	*settingsBox
	baseURL string
}

var openaiCosts = CostTable{
	{ModelID: "gpt-4o-mini", InputPerMillion: 0.15, OutputPerMillion: 0.6, CachedInputPerMillion: 0.075},
	{ModelID: "gpt-4o", InputPerMillion: 0.5, OutputPerMillion: 1.5, CachedInputPerMillion: 0.25},
	{ModelID: "gpt-4", InputPerMillion: 0.3, OutputPerMillion: 0.6},
	{ModelID: "gpt-3.5-turbo", InputPerMillion: 0.05, OutputPerMillion: 0.15},
}

// NewOpenAIProvider creates the OpenAI adapter. baseURL is optional and
// defaults to the public API endpoint.
func NewOpenAIProvider(baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		settingsBox: newSettingsBox(),
		baseURL:     baseURL,
	}
}

func (p *OpenAIProvider) ID() string           { return openaiID }
func (p *OpenAIProvider) DisplayName() string  { return "OpenAI" }
func (p *OpenAIProvider) DefaultModel() string { return openaiDefaultModel }

func (p *OpenAIProvider) Validate() error {
	if p.Settings().APIKey == "" {
		return &model.ConfigError{Provider: openaiID, Reason: "API key not set, configure it in settings"}
	}
	return nil
}

func (p *OpenAIProvider) client() openai.Client {
	return openai.NewClient(
		option.WithBaseURL(p.baseURL),
		option.WithAPIKey(p.Settings().APIKey),
	)
}

// ListModels queries the vendor catalog and filters to chat-capable GPT
// models.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	client := p.client()
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, &model.ProviderError{Provider: openaiID, Err: err}
	}

	models := make([]model.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		if !strings.Contains(m.ID, "gpt") {
			continue
		}
		models = append(models, model.ModelInfo{ID: m.ID, Name: m.ID, Provider: openaiID})
	}
	return models, nil
}

// OpenStream issues a streaming chat completion. Usage arrives on a
// trailing chunk via stream_options.include_usage, so no estimation is
// needed for this vendor.
func (p *OpenAIProvider) OpenStream(ctx context.Context, messages []model.Message, modelID string) (model.StreamHandle, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if modelID == "" {
		modelID = openaiDefaultModel
	}
	modelID = ensureOpenAIVision(messages, modelID)

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(modelID),
		Messages:  convertToOpenAIMessages(messages),
		MaxTokens: openai.Int(4096),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	client := p.client()
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, &model.ProviderError{Provider: openaiID, Err: err}
	}

	return &sseHandle{providerID: openaiID, stream: stream}, nil
}

func (p *OpenAIProvider) EstimateCost(promptTokens, completionTokens, cachedTokens int, modelID string) float64 {
	return openaiCosts.Cost(promptTokens, completionTokens, cachedTokens, modelID)
}

// ensureOpenAIVision substitutes a vision-capable model when any message
// carries image blocks; only the gpt-4o and gpt-4-vision families accept
// them.
func ensureOpenAIVision(messages []model.Message, modelID string) string {
	hasImages := false
	for _, m := range messages {
		if m.HasImages() {
			hasImages = true
			break
		}
	}
	if !hasImages {
		return modelID
	}
	if strings.Contains(modelID, "gpt-4o") || strings.Contains(modelID, "gpt-4-vision") {
		return modelID
	}
	if config.Debug && config.DebugLog != nil {
		config.DebugLog.Printf("[openai] model %s has no vision support, substituting %s", modelID, openaiVisionModel)
	}
	return openaiVisionModel
}

// convertToOpenAIMessages maps canonical messages onto the SDK's union
// params. Multimodal bodies become content-part arrays.
func convertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.TextContent()))
		default:
			if msg.Multimodal() {
				out = append(out, openai.UserMessage(convertOpenAIParts(msg.Blocks)))
			} else {
				out = append(out, openai.UserMessage(msg.Content))
			}
		}
	}
	return out
}

func convertOpenAIParts(blocks []model.ContentBlock) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case model.BlockText:
			parts = append(parts, openai.TextContentPart(b.Text))
		case model.BlockImage:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:" + b.MimeType + ";base64," + b.Data,
			}))
		}
	}
	return parts
}
