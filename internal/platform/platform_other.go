//go:build !darwin

package platform

import "context"

const permissionInstructions = `Focused text field capture is only available on macOS.
Clipboard capture works on this platform; disable capture.accessibility_enabled to silence this message.`

// xdotoolApps resolves the active window's class name on X11.
type xdotoolApps struct {
	run runner
}

func newAppResolver(run runner) AppResolver {
	return xdotoolApps{run: run}
}

func (a xdotoolApps) ForegroundApp(ctx context.Context) (string, bool) {
	out, _, err := a.run(ctx, "xdotool", "getactivewindow", "getwindowclassname")
	if err != nil {
		return "", false
	}
	return trimmedName(out)
}

type unsupportedFields struct{}

func newFieldReader(runner) FieldReader {
	return unsupportedFields{}
}

func (unsupportedFields) FocusedField(context.Context) (*FieldSnapshot, error) {
	return nil, ErrPermissionDenied
}

type unsupportedPermission struct{}

func newPermission(runner) Permission {
	return unsupportedPermission{}
}

func (unsupportedPermission) IsGranted() bool      { return false }
func (unsupportedPermission) Request() bool        { return false }
func (unsupportedPermission) Instructions() string { return permissionInstructions }
