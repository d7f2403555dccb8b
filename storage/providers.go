package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"raider/model"
)

// activeProviderRow is the reserved pseudo-id holding the active
// provider selection; it shares the providers table but never collides
// with a real vendor id.
const activeProviderRow = "active"

// SaveProvider persists a provider's display name and settings.
func (s *Store) SaveProvider(cfg model.ProviderConfig) error {
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return &model.PersistenceError{Op: "save provider", Err: err}
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO providers (id, name, settings, updated_at) VALUES (?, ?, ?, ?)`,
		cfg.ID, cfg.DisplayName, string(settings), time.Now().UTC(),
	)
	if err != nil {
		return &model.PersistenceError{Op: "save provider", Err: err}
	}
	return nil
}

// Provider returns the persisted config for id, or nil when absent
// (first run).
func (s *Store) Provider(id string) (*model.ProviderConfig, error) {
	var name, settings string
	err := s.db.QueryRow(
		`SELECT name, settings FROM providers WHERE id = ?`, id,
	).Scan(&name, &settings)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "get provider", Err: err}
	}

	cfg := model.ProviderConfig{ID: id, DisplayName: name, Models: []model.ModelInfo{}}
	if err := json.Unmarshal([]byte(settings), &cfg.Settings); err != nil {
		return nil, &model.PersistenceError{Op: "get provider", Err: err}
	}
	return &cfg, nil
}

// AllProviders returns every persisted provider config, excluding the
// reserved active row.
func (s *Store) AllProviders() ([]model.ProviderConfig, error) {
	rows, err := s.db.Query(
		`SELECT id, name, settings FROM providers WHERE id != ? ORDER BY id`,
		activeProviderRow,
	)
	if err != nil {
		return nil, &model.PersistenceError{Op: "list providers", Err: err}
	}
	defer rows.Close()

	var out []model.ProviderConfig
	for rows.Next() {
		var cfg model.ProviderConfig
		var settings string
		if err := rows.Scan(&cfg.ID, &cfg.DisplayName, &settings); err != nil {
			return nil, &model.PersistenceError{Op: "list providers", Err: err}
		}
		if err := json.Unmarshal([]byte(settings), &cfg.Settings); err != nil {
			return nil, &model.PersistenceError{Op: "list providers", Err: err}
		}
		cfg.Models = []model.ModelInfo{}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// SaveActiveProvider records which provider id is active.
func (s *Store) SaveActiveProvider(id string) error {
	settings, err := json.Marshal(map[string]string{"activeProviderId": id})
	if err != nil {
		return &model.PersistenceError{Op: "save active provider", Err: err}
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO providers (id, name, settings, updated_at) VALUES (?, ?, ?, ?)`,
		activeProviderRow, "Active Provider", string(settings), time.Now().UTC(),
	)
	if err != nil {
		return &model.PersistenceError{Op: "save active provider", Err: err}
	}
	return nil
}

// ActiveProvider returns the persisted active provider id, or "" when
// none has been stored yet.
func (s *Store) ActiveProvider() (string, error) {
	var settings string
	err := s.db.QueryRow(
		`SELECT settings FROM providers WHERE id = ?`, activeProviderRow,
	).Scan(&settings)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &model.PersistenceError{Op: "get active provider", Err: err}
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(settings), &payload); err != nil {
		return "", &model.PersistenceError{Op: "get active provider", Err: err}
	}
	return payload["activeProviderId"], nil
}
