package model

import "context"

// Usage is the token accounting attached to a stream chunk. Vendors that
// omit usage in-stream report deterministic estimates instead of zeros.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	CachedTokens     int `json:"cachedTokens"`
}

// StreamChunk is one normalized increment of streamed assistant output.
type StreamChunk struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// StreamHandle is a pull-based stream of completion chunks.
//
// Contract: each Next call advances the underlying vendor stream by one
// element. Once Next has returned done=true it keeps returning done=true
// on every subsequent call — over-pulling never errors. Cancelling ctx
// makes the next Next call return done promptly so the caller can
// finalize with whatever partial content it has.
type StreamHandle interface {
	Next(ctx context.Context) (chunk StreamChunk, done bool, err error)
}

// ModelInfo describes one chat-capable model offered by a provider.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// ProviderSettings are the mutable, persisted per-provider settings.
type ProviderSettings struct {
	APIKey        string `json:"apiKey"`
	SelectedModel string `json:"selectedModel"`
	IsEnabled     bool   `json:"isEnabled"`
}

// SettingsPatch is a partial settings update. Nil fields are left
// untouched by ApplySettings — updates merge, never replace.
type SettingsPatch struct {
	APIKey        *string `json:"apiKey,omitempty"`
	SelectedModel *string `json:"selectedModel,omitempty"`
	IsEnabled     *bool   `json:"isEnabled,omitempty"`
}

// ProviderConfig is the registry's summary view of a provider. Models is
// always empty here; catalogs are fetched on demand via ListModels.
type ProviderConfig struct {
	ID          string           `json:"id"`
	DisplayName string           `json:"displayName"`
	Settings    ProviderSettings `json:"settings"`
	Models      []ModelInfo      `json:"models"`
}

// Provider abstracts one LLM vendor. One implementation exists per
// vendor; new vendors plug in by implementing this interface and
// registering with the ProviderRegistry — calling code never changes.
type Provider interface {
	// ID returns the stable provider identifier ("openai", "anthropic", ...).
	ID() string

	// DisplayName returns the human-readable vendor name.
	DisplayName() string

	// DefaultModel returns the model used when none is selected.
	DefaultModel() string

	// Validate reports whether the provider is usable for a chat turn.
	// Returns a *ConfigError when required settings (API key) are missing.
	Validate() error

	// ListModels returns the vendor's chat-capable models. Fails with a
	// *ConfigError when no API key is set; vendors without a list
	// endpoint return a static catalog.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// OpenStream issues the vendor call requesting incremental delivery
	// and returns a normalized pull-based stream. Network and auth
	// failures surface as *ProviderError.
	OpenStream(ctx context.Context, messages []Message, model string) (StreamHandle, error)

	// EstimateCost prices a completed turn in dollars from the vendor's
	// cost table. Unknown model ids fall back to the table's first entry
	// rather than failing; a missing price must never abort a finished
	// stream.
	EstimateCost(promptTokens, completionTokens, cachedTokens int, modelID string) float64

	// Settings returns a copy of the current settings.
	Settings() ProviderSettings

	// ApplySettings merges non-nil patch fields into the settings.
	ApplySettings(patch SettingsPatch)
}
