//go:build !windows

package wailshost

// cursorPosition is unavailable off Windows; callers fall back to centered
// placement.
func cursorPosition() (int, int, bool) {
	return 0, 0, false
}

// setTaskbarPresence is a no-op where hide-to-tray does not manage a
// taskbar button.
func setTaskbarPresence(string, bool) error {
	return nil
}
