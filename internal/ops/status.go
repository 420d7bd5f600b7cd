package ops

import (
	"context"

	"github.com/hpungsan/flightrecorder/internal/config"
	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/platform"
)

// StatusOutput summarizes configuration, permission state, and the store.
type StatusOutput struct {
	ClipboardEnabled        bool   `json:"clipboard_enabled"`
	AccessibilityEnabled    bool   `json:"accessibility_enabled"`
	AccessibilityPermission bool   `json:"accessibility_permission"`
	PermissionInstructions  string `json:"permission_instructions,omitempty"`

	FiltersEnabled bool   `json:"filters_enabled"`
	PrivacyMode    string `json:"privacy_mode"`
	ExcludedApps   int    `json:"excluded_apps"`

	MaxCaptures int `json:"max_captures"`
	MaxAgeDays  int `json:"max_age_days"`

	Store *db.Stats `json:"store"`
}

// Status reports what the daemon would capture and what is already stored.
// perm may be nil when the platform has no permission model to query.
func Status(ctx context.Context, store *db.Store, cfg *config.Config, perm platform.Permission) (*StatusOutput, error) {
	st, err := store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	out := &StatusOutput{
		ClipboardEnabled:     cfg.Capture.ClipboardEnabled,
		AccessibilityEnabled: cfg.Capture.AccessibilityEnabled,
		FiltersEnabled:       cfg.Privacy.FiltersEnabled,
		PrivacyMode:          cfg.Privacy.Mode,
		ExcludedApps:         len(cfg.Privacy.ExcludedApps),
		MaxCaptures:          cfg.Storage.MaxCaptures,
		MaxAgeDays:           cfg.Storage.MaxAgeDays,
		Store:                st,
	}
	if perm != nil {
		out.AccessibilityPermission = perm.IsGranted()
		if !out.AccessibilityPermission {
			out.PermissionInstructions = perm.Instructions()
		}
	}
	return out, nil
}
