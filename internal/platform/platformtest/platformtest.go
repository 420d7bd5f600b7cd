// Package platformtest provides in-memory platform capabilities for tests.
package platformtest

import (
	"context"
	"sync"

	"github.com/hpungsan/flightrecorder/internal/platform"
)

var (
	_ platform.ClipboardReader = (*Clipboard)(nil)
	_ platform.ClipboardWriter = (*Clipboard)(nil)
	_ platform.AppResolver     = StaticApp("")
	_ platform.FieldReader     = (*Fields)(nil)
	_ platform.Permission      = (*Permission)(nil)
)

// Clipboard is an in-memory clipboard.
type Clipboard struct {
	mu   sync.Mutex
	text string
	err  error
}

// NewClipboard returns a clipboard holding text.
func NewClipboard(text string) *Clipboard {
	return &Clipboard{text: text}
}

// Set replaces the clipboard text, as if the user copied it.
func (c *Clipboard) Set(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
}

// Fail makes subsequent reads return err until Fail(nil).
func (c *Clipboard) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// ReadText implements platform.ClipboardReader.
func (c *Clipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.text, nil
}

// WriteText implements platform.ClipboardWriter.
func (c *Clipboard) WriteText(text string) error {
	c.Set(text)
	return nil
}

// StaticApp always reports the same foreground application. An empty name reports none.
type StaticApp string

// ForegroundApp implements platform.AppResolver.
func (a StaticApp) ForegroundApp(context.Context) (string, bool) {
	return string(a), a != ""
}

// Fields serves a settable focused field.
type Fields struct {
	mu   sync.Mutex
	snap *platform.FieldSnapshot
	err  error
}

// Set replaces the focused field. nil means nothing has focus.
func (f *Fields) Set(snap *platform.FieldSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
}

// Fail makes subsequent reads return err until Fail(nil).
func (f *Fields) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// FocusedField implements platform.FieldReader.
func (f *Fields) FocusedField(context.Context) (*platform.FieldSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.snap == nil {
		return nil, nil
	}
	cp := *f.snap
	return &cp, nil
}

// Permission is a settable permission.
type Permission struct {
	mu      sync.Mutex
	granted bool
}

// NewPermission returns a permission in the given state.
func NewPermission(granted bool) *Permission {
	return &Permission{granted: granted}
}

// SetGranted changes the permission state.
func (p *Permission) SetGranted(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = granted
}

// IsGranted implements platform.Permission.
func (p *Permission) IsGranted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

// Request implements platform.Permission. It never changes the state.
func (p *Permission) Request() bool {
	return p.IsGranted()
}

// Instructions implements platform.Permission.
func (p *Permission) Instructions() string {
	return "grant accessibility access in system settings"
}
