package provider

import (
	"sync"

	"raider/model"
)

// settingsBox holds an adapter's mutable settings behind a mutex so
// registry mutations and concurrent reads never observe a torn update.
type settingsBox struct {
	mu       sync.Mutex
	settings model.ProviderSettings
}

func newSettingsBox() *settingsBox {
	return &settingsBox{settings: model.ProviderSettings{IsEnabled: true}}
}

// Settings returns a copy of the current settings.
func (b *settingsBox) Settings() model.ProviderSettings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings
}

// ApplySettings merges non-nil patch fields; untouched fields keep their
// current values.
func (b *settingsBox) ApplySettings(patch model.SettingsPatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if patch.APIKey != nil {
		b.settings.APIKey = *patch.APIKey
	}
	if patch.SelectedModel != nil {
		b.settings.SelectedModel = *patch.SelectedModel
	}
	if patch.IsEnabled != nil {
		b.settings.IsEnabled = *patch.IsEnabled
	}
}

// replace swaps in a full settings value (registry startup load).
func (b *settingsBox) replace(s model.ProviderSettings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = s
}
