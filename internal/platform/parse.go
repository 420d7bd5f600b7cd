package platform

import "strings"

// parseFocusedField decodes "app\nsubrole\nvalue" as printed by the focused
// field script. Empty output or an empty value means nothing readable has focus.
// Only the single newline the script appends is removed; the value keeps its own.
func parseFocusedField(out string) *FieldSnapshot {
	out = strings.TrimSuffix(out, "\n")
	parts := strings.SplitN(out, "\n", 3)
	if len(parts) < 3 {
		return nil
	}

	value := parts[2]
	if strings.TrimSpace(value) == "" {
		return nil
	}

	snap := &FieldSnapshot{
		Content:    value,
		IsPassword: strings.TrimSpace(parts[1]) == "AXSecureTextField",
	}
	if app, ok := trimmedName(parts[0]); ok {
		snap.SourceApp = &app
	}
	return snap
}
