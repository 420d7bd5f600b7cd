package platform

import "github.com/atotto/clipboard"

// SystemClipboard reads and writes the OS clipboard.
// On Linux it needs xclip, xsel, or wl-clipboard on PATH.
type SystemClipboard struct{}

// ReadText returns the clipboard text.
func (SystemClipboard) ReadText() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnsupported
	}
	return clipboard.ReadAll()
}

// WriteText replaces the clipboard text.
func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return clipboard.WriteAll(text)
}
