// Package pipeline fans captures in from the monitors, filters them, and
// writes the survivors to the store.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/logging"
	"github.com/hpungsan/flightrecorder/internal/monitor"
	"github.com/hpungsan/flightrecorder/internal/privacy"
)

// DefaultChannelSize is the fan-in channel capacity when none is configured.
const DefaultChannelSize = 100

// Store is the write side of the capture store.
type Store interface {
	Insert(ctx context.Context, c capture.Capture) (id int64, inserted bool, err error)
}

// Options configures a Coordinator.
type Options struct {
	// ChannelSize bounds the fan-in channel; a full channel blocks monitor sends.
	ChannelSize int
	Log         *logging.Logger
}

// Stats counts what happened to captures received from the monitors.
type Stats struct {
	Received   uint64 `json:"received"`
	Stored     uint64 `json:"stored"`
	Duplicates uint64 `json:"duplicates"`
	Blocked    uint64 `json:"blocked"`
	Redacted   uint64 `json:"redacted"`
	Excluded   uint64 `json:"excluded"`
	Failed     uint64 `json:"failed"`
}

// Coordinator owns the monitors and the single consumer that forwards their
// captures through the privacy filter to the store.
type Coordinator struct {
	store  Store
	filter *privacy.Filter
	log    *logging.Logger
	ch     chan capture.Capture

	mu           sync.Mutex
	monitors     []monitor.Monitor
	consumerDone chan struct{}
	closed       bool

	received, stored, duplicates, blocked, redacted, excluded, failed atomic.Uint64
}

// New creates a coordinator. A nil filter passes everything through.
func New(store Store, filter *privacy.Filter, opts Options) *Coordinator {
	if filter == nil {
		filter = privacy.NewFilter(privacy.FilterConfig{}, nil)
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	size := opts.ChannelSize
	if size < 1 {
		size = DefaultChannelSize
	}
	return &Coordinator{
		store:  store,
		filter: filter,
		log:    opts.Log,
		ch:     make(chan capture.Capture, size),
	}
}

// Add registers a monitor. Each monitor type may be registered once.
func (c *Coordinator) Add(m monitor.Monitor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("coordinator is shut down")
	}
	for _, existing := range c.monitors {
		if existing.Type() == m.Type() {
			return errors.NewInvalidRequest(fmt.Sprintf("monitor already registered: %s", m.Type()))
		}
	}
	c.monitors = append(c.monitors, m)
	return nil
}

// Filter returns the privacy filter, for runtime exclusion-list changes.
func (c *Coordinator) Filter() *privacy.Filter {
	return c.filter
}

// StartAll starts the consumer and every registered monitor.
// A monitor that fails to start (for example, missing permission) is logged
// and skipped; the others still start. The joined start errors are returned.
func (c *Coordinator) StartAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("coordinator is shut down")
	}
	c.startConsumerLocked()

	var errs []error
	for _, m := range c.monitors {
		if err := m.Start(ctx, c.ch); err != nil {
			c.log.Warnf("failed to start %s monitor: %v", m.Type(), err)
			errs = append(errs, fmt.Errorf("%s: %w", m.Type(), err))
		}
	}
	return stderrors.Join(errs...)
}

// Start starts one registered monitor.
func (c *Coordinator) Start(ctx context.Context, typ monitor.MonitorType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("coordinator is shut down")
	}
	m := c.findLocked(typ)
	if m == nil {
		return errors.NewMonitorNotFound(string(typ))
	}
	c.startConsumerLocked()
	return m.Start(ctx, c.ch)
}

// Stop stops one monitor and waits for its loop to exit.
func (c *Coordinator) Stop(typ monitor.MonitorType) error {
	c.mu.Lock()
	m := c.findLocked(typ)
	c.mu.Unlock()

	if m == nil {
		return errors.NewMonitorNotFound(string(typ))
	}
	m.Stop()
	m.Wait()
	return nil
}

// StopAll stops every monitor and waits for their loops to exit.
// The consumer keeps running so monitors can be started again.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	monitors := append([]monitor.Monitor(nil), c.monitors...)
	c.mu.Unlock()

	for _, m := range monitors {
		m.Stop()
	}
	for _, m := range monitors {
		m.Wait()
	}
}

// Shutdown stops all monitors, then drains the captures already queued into
// the store. It returns ctx.Err() if ctx ends before the drain completes.
// The coordinator cannot be restarted afterwards.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	// No Start can succeed once closed is set
	c.closed = true
	done := c.consumerDone
	c.mu.Unlock()

	c.StopAll()
	// Safe: every monitor loop has exited, so nothing sends on ch
	close(c.ch)

	if done == nil {
		return nil
	}
	select {
	case <-done:
		c.log.Infof("pipeline drained: %+v", c.Stats())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Statuses returns a status snapshot per monitor, in registration order.
func (c *Coordinator) Statuses() []monitor.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]monitor.Status, 0, len(c.monitors))
	for _, m := range c.monitors {
		out = append(out, m.Status())
	}
	return out
}

// Stats returns the pipeline counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Received:   c.received.Load(),
		Stored:     c.stored.Load(),
		Duplicates: c.duplicates.Load(),
		Blocked:    c.blocked.Load(),
		Redacted:   c.redacted.Load(),
		Excluded:   c.excluded.Load(),
		Failed:     c.failed.Load(),
	}
}

func (c *Coordinator) findLocked(typ monitor.MonitorType) monitor.Monitor {
	for _, m := range c.monitors {
		if m.Type() == typ {
			return m
		}
	}
	return nil
}

func (c *Coordinator) startConsumerLocked() {
	if c.consumerDone != nil {
		return
	}
	done := make(chan struct{})
	c.consumerDone = done
	go c.consume(done)
}

// consume runs until ch is closed. Store writes use a background context so
// captures queued before Shutdown are still written.
func (c *Coordinator) consume(done chan struct{}) {
	defer close(done)
	for cp := range c.ch {
		c.process(context.Background(), cp)
	}
}

// Outcome is what the pipeline did with one capture.
type Outcome string

const (
	OutcomeStored    Outcome = "stored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeExcluded  Outcome = "excluded"
	OutcomeFailed    Outcome = "failed"
)

// process filters one capture and writes it. Store errors fail only this capture.
func (c *Coordinator) process(ctx context.Context, cp capture.Capture) Outcome {
	c.received.Add(1)

	if app := cp.App(); app != "" && c.filter.IsAppExcluded(app) {
		c.excluded.Add(1)
		c.log.Debugf("dropped %s capture from excluded app %s", cp.CaptureType, app)
		return OutcomeExcluded
	}

	res := c.filter.Classify(cp.Content)
	switch res.Outcome {
	case privacy.Blocked:
		c.blocked.Add(1)
		c.log.Debugf("dropped %s capture: matched %s", cp.CaptureType, res.Pattern)
		return OutcomeBlocked
	case privacy.Redacted:
		cp.ReplaceContent(res.Content)
		c.redacted.Add(1)
		c.log.Debugf("redacted %s capture: %v", cp.CaptureType, res.Patterns)
	}

	id, inserted, err := c.store.Insert(ctx, cp)
	if err != nil {
		c.failed.Add(1)
		c.log.Errorf("failed to store %s capture: %v", cp.CaptureType, err)
		return OutcomeFailed
	}
	if !inserted {
		c.duplicates.Add(1)
		c.log.Debugf("skipped duplicate %s capture", cp.CaptureType)
		return OutcomeDuplicate
	}

	c.stored.Add(1)
	c.log.Debugf("stored %s capture %d (%d bytes)", cp.CaptureType, id, len(cp.Content))
	return OutcomeStored
}
