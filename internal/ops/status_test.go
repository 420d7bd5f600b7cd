package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/flightrecorder/internal/config"
	"github.com/hpungsan/flightrecorder/internal/platform/platformtest"
)

func TestStatus(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, seedCapture{content: "one", at: testBase})
	cfg := config.DefaultConfig()
	perm := platformtest.NewPermission(false)

	out, err := Status(context.Background(), store, cfg, perm)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !out.ClipboardEnabled || !out.AccessibilityEnabled {
		t.Errorf("monitors should be enabled by default: %+v", out)
	}
	if out.AccessibilityPermission {
		t.Error("permission should be reported as missing")
	}
	if out.PermissionInstructions != perm.Instructions() {
		t.Errorf("PermissionInstructions = %q", out.PermissionInstructions)
	}
	if out.PrivacyMode != "block" || out.ExcludedApps != len(cfg.Privacy.ExcludedApps) {
		t.Errorf("privacy summary = %q, %d", out.PrivacyMode, out.ExcludedApps)
	}
	if out.Store.TotalCaptures != 1 {
		t.Errorf("TotalCaptures = %d, want 1", out.Store.TotalCaptures)
	}

	perm.SetGranted(true)
	out, err = Status(context.Background(), store, cfg, perm)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !out.AccessibilityPermission || out.PermissionInstructions != "" {
		t.Errorf("granted permission reported as %+v", out)
	}

	if _, err := Status(context.Background(), store, cfg, nil); err != nil {
		t.Fatalf("Status with nil permission failed: %v", err)
	}
}
