package main

import (
	"context"
	"sync"
	"time"

	"github.com/hpungsan/flightrecorder/internal/config"
	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/logging"
	"github.com/hpungsan/flightrecorder/internal/monitor"
	"github.com/hpungsan/flightrecorder/internal/pipeline"
	"github.com/hpungsan/flightrecorder/internal/platform"
	"github.com/hpungsan/flightrecorder/internal/privacy"
	"github.com/hpungsan/flightrecorder/internal/retention"
)

// shutdownTimeout bounds the drain of queued captures on exit.
const shutdownTimeout = 10 * time.Second

// buildMonitors creates the monitors enabled in cfg.
func buildMonitors(cfg *config.Config, p *platform.Platform) []monitor.Monitor {
	var monitors []monitor.Monitor
	if cfg.Capture.ClipboardEnabled {
		monitors = append(monitors, monitor.NewClipboardMonitor(monitor.Config{
			PollInterval:     cfg.ClipboardInterval(),
			MinContentLength: cfg.Capture.MinContentLength,
			MaxContentLength: cfg.Capture.MaxContentLength,
		}, p.Clipboard, p.Apps, logging.New("clipboard")))
	}
	if cfg.Capture.AccessibilityEnabled {
		monitors = append(monitors, monitor.NewTextFieldMonitor(monitor.TextFieldConfig{
			Config: monitor.Config{
				PollInterval:     cfg.TextFieldInterval(),
				MinContentLength: cfg.Capture.MinContentLength,
				MaxContentLength: cfg.Capture.MaxContentLength,
			},
			SkipPasswordFields: cfg.Privacy.SkipPasswordFields,
		}, p.Fields, p.Permission, logging.New("text_field")))
	}
	return monitors
}

// runDaemon records until ctx is cancelled, then stops the monitors and
// drains queued captures into the store. Retention runs alongside.
//
// Monitors that fail to start are skipped; it is an error only when none start.
func runDaemon(ctx context.Context, store *db.Store, cfg *config.Config, p *platform.Platform) error {
	log := logging.New("daemon")

	monitors := buildMonitors(cfg, p)
	if len(monitors) == 0 {
		return errors.NewConfigInvalid("no monitors enabled: set capture.clipboard_enabled or capture.accessibility_enabled")
	}
	if cfg.Capture.KeystrokeFallbackEnabled {
		log.Warnf("keystroke fallback is not available; ignoring capture.keystroke_fallback_enabled")
	}

	filter := privacy.NewFilter(cfg.FilterConfig(), logging.New("privacy"))
	coord := pipeline.New(store, filter, pipeline.Options{
		ChannelSize: cfg.Capture.ChannelSize,
		Log:         logging.New("coordinator"),
	})
	for _, m := range monitors {
		if err := coord.Add(m); err != nil {
			return err
		}
	}

	if err := coord.StartAll(ctx); err != nil && !anyRunning(coord.Statuses()) {
		_ = coord.Shutdown(context.Background())
		return err
	}
	for _, st := range coord.Statuses() {
		if st.IsRunning {
			log.Infof("%s: %s", st.Type, st.Message)
		}
	}

	pruner := retention.New(store, cfg.RetentionPolicy(), logging.New("pruner"))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pruner.Run(ctx)
	}()

	log.Infof("recording to %s (session %s)", store.Path(), logging.SessionID())
	<-ctx.Done()
	log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := coord.Shutdown(shutdownCtx)
	wg.Wait()

	st := coord.Stats()
	log.Infof("session stored %d captures (%d duplicates, %d blocked, %d redacted, %d excluded, %d failed)",
		st.Stored, st.Duplicates, st.Blocked, st.Redacted, st.Excluded, st.Failed)
	return err
}

func anyRunning(statuses []monitor.Status) bool {
	for _, st := range statuses {
		if st.IsRunning {
			return true
		}
	}
	return false
}
