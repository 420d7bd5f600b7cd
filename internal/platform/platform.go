// Package platform wraps the OS capabilities the monitors sample: the
// clipboard, the frontmost application, the focused text field, and the
// accessibility permission that guards it.
package platform

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

var (
	// ErrPermissionDenied is returned by FieldReader when accessibility access is missing or revoked.
	ErrPermissionDenied = errors.New("accessibility permission denied")

	// ErrUnsupported is returned when the current OS has no implementation.
	ErrUnsupported = errors.New("not supported on this platform")
)

// ClipboardReader reads the current clipboard text.
type ClipboardReader interface {
	ReadText() (string, error)
}

// ClipboardWriter replaces the clipboard text.
type ClipboardWriter interface {
	WriteText(text string) error
}

// AppResolver reports the frontmost application. ok is false when it cannot be determined.
type AppResolver interface {
	ForegroundApp(ctx context.Context) (name string, ok bool)
}

// FieldSnapshot is the content of the focused text input.
type FieldSnapshot struct {
	Content    string
	SourceApp  *string
	IsPassword bool
}

// FieldReader reads the focused text field. It returns (nil, nil) when
// nothing readable has focus and ErrPermissionDenied when access is missing.
type FieldReader interface {
	FocusedField(ctx context.Context) (*FieldSnapshot, error)
}

// Permission is the OS accessibility permission.
type Permission interface {
	IsGranted() bool
	// Request is best-effort and may only open a settings surface.
	Request() bool
	Instructions() string
}

// Platform bundles the capabilities for the running OS.
type Platform struct {
	Clipboard       ClipboardReader
	ClipboardWriter ClipboardWriter
	Apps            AppResolver
	Fields          FieldReader
	Permission      Permission
}

// Default returns the implementations for the running OS.
func Default() *Platform {
	cb := SystemClipboard{}
	return &Platform{
		Clipboard:       cb,
		ClipboardWriter: cb,
		Apps:            newAppResolver(execRunner),
		Fields:          newFieldReader(execRunner),
		Permission:      newPermission(execRunner),
	}
}

// runner executes an external command and returns stdout and stderr.
type runner func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

func execRunner(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// trimmedName returns s trimmed, with ok false when nothing is left.
func trimmedName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
