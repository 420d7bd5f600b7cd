package capture

// ApplyLengthPolicy enforces the configured content bounds.
//
// Content shorter than minLen bytes is rejected before any truncation, so a
// configuration with minLen > maxLen rejects everything it cannot truncate.
// Content longer than maxLen bytes is cut to a byte prefix of maxLen; the cut
// is not rune-aware. A maxLen of zero or less disables truncation.
func ApplyLengthPolicy(content string, minLen, maxLen int) (string, bool) {
	if len(content) < minLen {
		return "", false
	}
	if maxLen > 0 && len(content) > maxLen {
		return content[:maxLen], true
	}
	return content, true
}
