package monitor

import (
	"context"
	"time"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/logging"
	"github.com/hpungsan/flightrecorder/internal/platform"
)

// TextFieldConfig configures a TextFieldMonitor.
type TextFieldConfig struct {
	Config
	SkipPasswordFields bool
}

// DefaultTextFieldConfig returns a 2s poll that skips password fields.
func DefaultTextFieldConfig() TextFieldConfig {
	cfg := DefaultConfig()
	cfg.PollInterval = 2 * time.Second
	return TextFieldConfig{Config: cfg, SkipPasswordFields: true}
}

// TextFieldMonitor polls the focused text field through the accessibility layer.
type TextFieldMonitor struct {
	poller
	fields       platform.FieldReader
	perm         platform.Permission
	skipPassword bool
}

var _ Monitor = (*TextFieldMonitor)(nil)

// NewTextFieldMonitor creates a focused-field monitor.
func NewTextFieldMonitor(cfg TextFieldConfig, fields platform.FieldReader, perm platform.Permission, log *logging.Logger) *TextFieldMonitor {
	return &TextFieldMonitor{
		poller:       newPoller(TypeAccessibility, capture.TypeTextField, cfg.Config, nil, log),
		fields:       fields,
		perm:         perm,
		skipPassword: cfg.SkipPasswordFields,
	}
}

// Start launches the poll loop. It fails with PERMISSION_DENIED, without
// entering the running state, when accessibility access is not granted.
func (m *TextFieldMonitor) Start(ctx context.Context, out chan<- capture.Capture) error {
	if !m.perm.IsGranted() {
		m.log.Warnf("accessibility permission not granted; text field monitor not started")
		return errors.NewPermissionDenied(m.perm.Instructions())
	}
	m.launch(ctx, out, m.sample)
	return nil
}

func (m *TextFieldMonitor) sample(ctx context.Context) (observation, bool, error) {
	snap, err := m.fields.FocusedField(ctx)
	if err != nil {
		return observation{}, false, err
	}
	if snap == nil {
		return observation{}, false, nil
	}
	if snap.IsPassword && m.skipPassword {
		m.log.Debugf("skipping password field")
		return observation{}, false, nil
	}
	return observation{content: snap.Content, app: snap.SourceApp}, true, nil
}

// Status returns a snapshot of the monitor.
func (m *TextFieldMonitor) Status() Status {
	running := m.IsRunning()
	granted := m.perm.IsGranted()

	msg := "Monitoring focused text fields"
	switch {
	case !granted:
		msg = m.perm.Instructions()
	case !running:
		msg = m.idleMessage()
	}
	return Status{
		Type:          m.typ,
		IsRunning:     running,
		HasPermission: granted,
		CaptureCount:  m.CaptureCount(),
		Message:       msg,
	}
}
