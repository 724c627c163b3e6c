// Package store persists the panel's single durable object: the last-used
// stream settings. Backends share a tiny key-value contract; absence of a
// working store degrades to no persistence across restarts, never a hard
// failure.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"relaycast/internal/models"
)

// SettingsKey is the key the serialized configuration object lives under.
const SettingsKey = "panel/settings"

// ConfigStore is the key-value contract the panel needs from persistence.
type ConfigStore interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Noop discards writes and never finds keys. Installed when no backend is
// configured or a backend fails to open.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Close() error                                      { return nil }

// LoadSettings reads and decodes the persisted stream settings.
func LoadSettings(ctx context.Context, s ConfigStore) (models.StreamSettings, bool, error) {
	var settings models.StreamSettings
	raw, ok, err := s.Get(ctx, SettingsKey)
	if err != nil || !ok {
		return settings, false, err
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return settings, false, fmt.Errorf("decode persisted settings: %w", err)
	}
	return settings, true, nil
}

// SaveSettings encodes and stores the stream settings.
func SaveSettings(ctx context.Context, s ConfigStore, settings models.StreamSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.Set(ctx, SettingsKey, raw)
}
