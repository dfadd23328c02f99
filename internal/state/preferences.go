package state

import (
	"context"
	"encoding/json"
	"strings"
)

const PreferencesKey = "view:preferences"

// Preferences is the last symbol and view mode the chart was showing.
type Preferences struct {
	Symbol   string `json:"symbol"`
	ViewMode string `json:"view_mode"`
}

func LoadPreferences(ctx context.Context, store Store) (Preferences, bool, error) {
	if store == nil {
		return Preferences{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, PreferencesKey)
	if err != nil {
		return Preferences{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Preferences{}, false, nil
	}
	var prefs Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return Preferences{}, false, err
	}
	return prefs, true, nil
}

func SavePreferences(ctx context.Context, store Store, prefs Preferences) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return store.Set(ctx, PreferencesKey, string(payload))
}
