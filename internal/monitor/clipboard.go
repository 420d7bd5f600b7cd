package monitor

import (
	"context"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/logging"
	"github.com/hpungsan/flightrecorder/internal/platform"
)

// ClipboardMonitor polls the clipboard.
type ClipboardMonitor struct {
	poller
	reader platform.ClipboardReader
}

var _ Monitor = (*ClipboardMonitor)(nil)

// NewClipboardMonitor creates a clipboard monitor. apps may be nil, in which
// case captures carry no source application.
func NewClipboardMonitor(cfg Config, reader platform.ClipboardReader, apps platform.AppResolver, log *logging.Logger) *ClipboardMonitor {
	return &ClipboardMonitor{
		poller: newPoller(TypeClipboard, capture.TypeClipboard, cfg, apps, log),
		reader: reader,
	}
}

// Start launches the poll loop. A second call while running only logs a warning.
func (m *ClipboardMonitor) Start(ctx context.Context, out chan<- capture.Capture) error {
	m.launch(ctx, out, m.sample)
	return nil
}

func (m *ClipboardMonitor) sample(context.Context) (observation, bool, error) {
	text, err := m.reader.ReadText()
	if err != nil {
		return observation{}, false, err
	}
	return observation{content: text}, true, nil
}

// Status returns a snapshot of the monitor.
func (m *ClipboardMonitor) Status() Status {
	running := m.IsRunning()
	msg := "Monitoring clipboard"
	if !running {
		msg = m.idleMessage()
	}
	return Status{
		Type:          m.typ,
		IsRunning:     running,
		HasPermission: true,
		CaptureCount:  m.CaptureCount(),
		Message:       msg,
	}
}
