// Package provider implements the per-vendor adapters and the registry
// that owns them.
//
// Each vendor (OpenAI, Anthropic, DeepSeek, Ollama) gets one adapter
// implementing model.Provider; vendor wire formats never leak past this
// package. The Registry is the single lookup point the orchestrator
// uses, and owns the persisted settings lifecycle: load at startup, save
// on every mutation.
package provider

import (
	"log"
	"sync"

	"raider/model"
)

// DefaultProviderID is the fallback whenever the stored active id does
// not resolve to a registered adapter.
const DefaultProviderID = "openai"

// SettingsStore persists provider settings and the active-provider id.
// Implemented by the sqlite store; nil disables persistence (tests).
type SettingsStore interface {
	SaveProvider(cfg model.ProviderConfig) error
	Provider(id string) (*model.ProviderConfig, error)
	SaveActiveProvider(id string) error
	ActiveProvider() (string, error)
}

// Registry holds all registered provider adapters and tracks which one
// is active. All mutations are applied atomically with respect to
// concurrent reads.
type Registry struct {
	mu        sync.Mutex
	providers map[string]model.Provider
	order     []string
	activeID  string
	store     SettingsStore
}

func NewRegistry(store SettingsStore) *Registry {
	return &Registry{
		providers: make(map[string]model.Provider),
		activeID:  DefaultProviderID,
		store:     store,
	}
}

// NewDefaultRegistry builds a registry with every known vendor
// registered and persisted state loaded.
func NewDefaultRegistry(store SettingsStore) *Registry {
	r := NewRegistry(store)
	r.Register(NewOpenAIProvider(""))
	r.Register(NewAnthropicProvider(""))
	r.Register(NewDeepSeekProvider(""))
	r.Register(NewOllamaProvider(""))
	if err := r.Load(); err != nil {
		log.Printf("provider registry: failed to load persisted settings: %v", err)
	}
	return r
}

// Register adds an adapter. Idempotent: re-registering an id is a no-op.
func (r *Registry) Register(p model.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[p.ID()]; ok {
		return
	}
	r.providers[p.ID()] = p
	r.order = append(r.order, p.ID())
}

// Load restores persisted settings and the active id. Missing rows mean
// first run and are not errors.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		cfg, err := r.store.Provider(id)
		if err != nil {
			return err
		}
		if cfg == nil {
			continue
		}
		if box, ok := r.providers[id].(interface{ replace(model.ProviderSettings) }); ok {
			box.replace(cfg.Settings)
		}
	}

	active, err := r.store.ActiveProvider()
	if err != nil {
		return err
	}
	if active != "" {
		r.activeID = active
	}
	return nil
}

// Get returns the adapter for id, or nil when unregistered.
func (r *Registry) Get(id string) model.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.providers[id]
}

// Active returns the active adapter. Never nil: when the stored active
// id does not resolve, the default vendor's adapter is returned instead.
func (r *Registry) Active() model.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[r.activeID]; ok {
		return p
	}
	if p, ok := r.providers[DefaultProviderID]; ok {
		return p
	}
	if len(r.order) > 0 {
		return r.providers[r.order[0]]
	}
	return nil
}

// ActiveID returns the currently stored active provider id.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// SetActive switches the active provider. Returns false for an
// unregistered id. Activating a provider with no API key succeeds with a
// logged warning — activation is independent of readiness.
func (r *Registry) SetActive(id string) bool {
	r.mu.Lock()
	p, ok := r.providers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.activeID = id
	r.mu.Unlock()

	if err := p.Validate(); err != nil {
		log.Printf("warning: active provider %s is not ready: %v", id, err)
	}

	if r.store != nil {
		if err := r.store.SaveActiveProvider(id); err != nil {
			log.Printf("failed to persist active provider: %v", err)
		}
	}
	return true
}

// UpdateSettings merges the patch into the provider's settings and
// persists the merge result. Returns false for an unregistered id. The
// lock is held across merge and persist so concurrent updates cannot
// write their SaveProvider snapshots out of order.
func (r *Registry) UpdateSettings(id string, patch model.SettingsPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return false
	}

	p.ApplySettings(patch)

	if r.store != nil {
		cfg := model.ProviderConfig{
			ID:          p.ID(),
			DisplayName: p.DisplayName(),
			Settings:    p.Settings(),
		}
		if err := r.store.SaveProvider(cfg); err != nil {
			log.Printf("failed to persist settings for %s: %v", id, err)
		}
	}
	return true
}

// All returns the summary view of every registered provider in
// registration order. Models is always empty here; catalogs are fetched
// on demand via ListModels.
func (r *Registry) All() []model.ProviderConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ProviderConfig, 0, len(r.order))
	for _, id := range r.order {
		p := r.providers[id]
		out = append(out, model.ProviderConfig{
			ID:          p.ID(),
			DisplayName: p.DisplayName(),
			Settings:    p.Settings(),
			Models:      []model.ModelInfo{},
		})
	}
	return out
}
