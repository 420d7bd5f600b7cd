package capture

import (
	"fmt"
	"strings"
	"time"
)

// CaptureType identifies the surface a capture was taken from.
type CaptureType string

const (
	TypeClipboard CaptureType = "clipboard"
	TypeTextField CaptureType = "text_field"
	// TypeKeystroke is reserved for a keystroke fallback mode; nothing emits it yet.
	TypeKeystroke CaptureType = "keystroke"
)

// KnownTypes lists every valid capture type in declaration order.
var KnownTypes = []CaptureType{TypeClipboard, TypeTextField, TypeKeystroke}

// String implements fmt.Stringer.
func (t CaptureType) String() string {
	return string(t)
}

// ParseType converts a user-supplied name to a CaptureType.
// Matching is case-insensitive and tolerates "text-field" and "textfield".
func ParseType(s string) (CaptureType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clipboard":
		return TypeClipboard, nil
	case "text_field", "text-field", "textfield":
		return TypeTextField, nil
	case "keystroke":
		return TypeKeystroke, nil
	}
	return "", fmt.Errorf("unknown capture type %q (expected clipboard, text_field, or keystroke)", s)
}

// Capture is a single observed piece of text.
type Capture struct {
	// ID is assigned by the store on insert; nil before persistence
	ID *int64

	// Timestamp is when the content was detected (UTC)
	Timestamp time.Time

	// SourceApp is the foreground application at detection time, when known
	SourceApp *string

	// Content is the captured text after the length policy was applied
	Content string

	// ContentHash is Hash(Content); always the hash of the stored text
	ContentHash string

	// CaptureType is the surface the text came from
	CaptureType CaptureType

	// CreatedAt is when the row was written; zero before persistence
	CreatedAt time.Time
}

// New builds a capture stamped with the current UTC time.
func New(t CaptureType, content string, sourceApp *string) Capture {
	return Capture{
		Timestamp:   time.Now().UTC(),
		SourceApp:   sourceApp,
		Content:     content,
		ContentHash: Hash(content),
		CaptureType: t,
	}
}

// ReplaceContent swaps the content and recomputes the hash so the pair stays consistent.
func (c *Capture) ReplaceContent(content string) {
	c.Content = content
	c.ContentHash = Hash(content)
}

// App returns the source application name, or "" when unknown.
func (c *Capture) App() string {
	if c.SourceApp == nil {
		return ""
	}
	return *c.SourceApp
}
