// Package monitor polls text surfaces and emits a capture whenever the
// observed content changes.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/logging"
	"github.com/hpungsan/flightrecorder/internal/platform"
)

// MonitorType identifies a monitor.
type MonitorType string

const (
	TypeClipboard     MonitorType = "clipboard"
	TypeAccessibility MonitorType = "accessibility"
	// TypeKeystroke is reserved for a keystroke fallback monitor; none is implemented.
	TypeKeystroke MonitorType = "keystroke"
)

// ParseType converts a user-supplied monitor name to a MonitorType.
func ParseType(s string) (MonitorType, bool) {
	switch MonitorType(s) {
	case TypeClipboard, TypeAccessibility, TypeKeystroke:
		return MonitorType(s), true
	case "text_field", "textfield":
		return TypeAccessibility, true
	}
	return "", false
}

const (
	msgNotRunning = "Not running"
	msgStopped    = "Monitor stopped"
)

// Status is a point-in-time snapshot of a monitor.
type Status struct {
	Type          MonitorType `json:"type"`
	IsRunning     bool        `json:"is_running"`
	HasPermission bool        `json:"has_permission"`
	CaptureCount  uint64      `json:"capture_count"`
	Message       string      `json:"message"`
}

// Config holds the polling and content-length policy shared by all monitors.
type Config struct {
	PollInterval     time.Duration
	MinContentLength int
	MaxContentLength int
}

// DefaultConfig returns a 500ms poll with 1 byte to 1,000,000 bytes of content.
func DefaultConfig() Config {
	return Config{
		PollInterval:     500 * time.Millisecond,
		MinContentLength: 1,
		MaxContentLength: 1000000,
	}
}

// Monitor is a polling task bound to one text surface.
//
// Start launches the poll loop and returns immediately; captures are sent on
// out until Stop is called or ctx is cancelled. Sends block while out is full.
// A send blocked on a receiver that has gone away is released by Stop or by
// cancelling ctx, so the owner must not close out until Wait has returned.
type Monitor interface {
	Type() MonitorType
	Start(ctx context.Context, out chan<- capture.Capture) error
	// Stop is idempotent and does not wait for the loop to exit.
	Stop()
	// Wait blocks until the current run's loop has exited.
	Wait()
	IsRunning() bool
	Status() Status
}

// observation is one sample of a surface.
type observation struct {
	content string
	app     *string
}

// sampleFunc reads the surface. ok is false when there is nothing to capture.
type sampleFunc func(ctx context.Context) (obs observation, ok bool, err error)

// poller carries the run state shared by the monitor implementations.
// lastHash lives only in the loop goroutine and resets on every Start.
type poller struct {
	typ         MonitorType
	captureType capture.CaptureType
	cfg         Config
	log         *logging.Logger

	// apps resolves the foreground app for observations that carry none.
	apps platform.AppResolver

	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}

	running    atomic.Bool
	hasStopped atomic.Bool
	count      atomic.Uint64
}

func newPoller(typ MonitorType, ct capture.CaptureType, cfg Config, apps platform.AppResolver, log *logging.Logger) poller {
	if log == nil {
		log = logging.Discard()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return poller{
		typ:         typ,
		captureType: ct,
		cfg:         cfg,
		apps:        apps,
		log:         log,
	}
}

// Type returns the monitor type.
func (p *poller) Type() MonitorType {
	return p.typ
}

// IsRunning reports whether the poll loop is active.
func (p *poller) IsRunning() bool {
	return p.running.Load()
}

// CaptureCount returns the number of captures emitted since construction.
func (p *poller) CaptureCount() uint64 {
	return p.count.Load()
}

// launch starts the poll loop unless one is already running. A run that has
// been stopped but not yet exited is waited out and replaced.
func (p *poller) launch(parent context.Context, out chan<- capture.Capture, sample sampleFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		if p.runCtx.Err() == nil {
			p.log.Warnf("%s monitor already running", p.typ)
			return
		}
		// Stopped but the previous loop has not exited yet.
		<-p.done
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	p.runCtx = ctx
	p.cancel = cancel
	p.done = done
	p.running.Store(true)

	p.log.Infof("%s monitor started (interval %s)", p.typ, p.cfg.PollInterval)
	go p.loop(ctx, out, sample, done)
}

// Stop signals the loop to exit. Safe to call repeatedly and concurrently.
func (p *poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the most recent run has exited.
func (p *poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (p *poller) loop(ctx context.Context, out chan<- capture.Capture, sample sampleFunc, done chan struct{}) {
	defer close(done)
	defer func() {
		p.running.Store(false)
		p.hasStopped.Store(true)
		p.log.Infof("%s monitor stopped", p.typ)
	}()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var lastHash string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		obs, ok, err := sample(ctx)
		if err != nil {
			if errors.Is(err, platform.ErrPermissionDenied) {
				p.log.Warnf("%s monitor lost permission, stopping", p.typ)
				return
			}
			if ctx.Err() != nil {
				return
			}
			p.log.Debugf("%s sample failed: %v", p.typ, err)
			continue
		}
		if !ok {
			continue
		}

		content, ok := capture.ApplyLengthPolicy(obs.content, p.cfg.MinContentLength, p.cfg.MaxContentLength)
		if !ok {
			continue
		}

		hash := capture.Hash(content)
		if hash == lastHash {
			continue
		}
		lastHash = hash

		app := obs.app
		if app == nil && p.apps != nil {
			if name, found := p.apps.ForegroundApp(ctx); found {
				app = &name
			}
		}

		c := capture.Capture{
			Timestamp:   time.Now().UTC(),
			SourceApp:   app,
			Content:     content,
			ContentHash: hash,
			CaptureType: p.captureType,
		}

		select {
		case out <- c:
			p.count.Add(1)
			p.log.Debugf("%s captured %d bytes", p.typ, len(content))
		case <-ctx.Done():
			return
		}
	}
}

// idleMessage is the status message when the loop is not running.
func (p *poller) idleMessage() string {
	if p.hasStopped.Load() {
		return msgStopped
	}
	return msgNotRunning
}
