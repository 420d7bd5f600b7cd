//go:build darwin

package platform

import (
	"context"
	"strings"
)

const frontmostAppScript = `tell application "System Events" to get name of first process whose frontmost is true`

const focusedFieldScript = `tell application "System Events"
	set frontApp to first process whose frontmost is true
	set appName to name of frontApp
	try
		set el to value of attribute "AXFocusedUIElement" of frontApp
		set sub to ""
		try
			set sub to value of attribute "AXSubrole" of el
		end try
		set v to value of attribute "AXValue" of el
		if v is missing value then return ""
		return appName & linefeed & sub & linefeed & (v as text)
	end try
end tell
return ""`

const uiScriptingCheck = `tell application "System Events" to get UI elements enabled`

const accessibilitySettingsURL = "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility"

const permissionInstructions = `To enable focused text field capture:

1. Open System Settings (System Preferences before macOS Ventura)
2. Go to Privacy & Security > Accessibility
3. Click the lock icon to make changes if needed
4. Find 'fliterec' in the list and enable it
5. If 'fliterec' is not listed, click '+' and add it

After granting permission, restart the fliterec daemon.`

type osascriptApps struct {
	run runner
}

func newAppResolver(run runner) AppResolver {
	return osascriptApps{run: run}
}

func (a osascriptApps) ForegroundApp(ctx context.Context) (string, bool) {
	out, _, err := a.run(ctx, "osascript", "-e", frontmostAppScript)
	if err != nil {
		return "", false
	}
	return trimmedName(out)
}

type osascriptFields struct {
	run runner
}

func newFieldReader(run runner) FieldReader {
	return osascriptFields{run: run}
}

func (f osascriptFields) FocusedField(ctx context.Context) (*FieldSnapshot, error) {
	out, stderr, err := f.run(ctx, "osascript", "-e", focusedFieldScript)
	if err != nil {
		if isAssistiveAccessError(stderr) {
			return nil, ErrPermissionDenied
		}
		// Non-zero exits are common when the focused app has no scriptable UI.
		return nil, nil
	}
	return parseFocusedField(out), nil
}

func isAssistiveAccessError(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "assistive access") || strings.Contains(s, "-25211") || strings.Contains(s, "-1719")
}

type macPermission struct {
	run runner
}

func newPermission(run runner) Permission {
	return macPermission{run: run}
}

func (p macPermission) IsGranted() bool {
	out, _, err := p.run(context.Background(), "osascript", "-e", uiScriptingCheck)
	return err == nil && strings.TrimSpace(out) == "true"
}

func (p macPermission) Request() bool {
	_, _, err := p.run(context.Background(), "open", accessibilitySettingsURL)
	return err == nil
}

func (p macPermission) Instructions() string {
	return permissionInstructions
}
