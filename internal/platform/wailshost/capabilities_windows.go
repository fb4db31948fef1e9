//go:build windows

package wailshost

import "gemdesk/internal/platform"

// hostCapabilities on Windows: RegisterHotKey is dependable, the tray flow
// manages the taskbar button, and windows can draw the shell's own chrome.
func hostCapabilities() platform.Capabilities {
	return platform.Capabilities{
		GlobalShortcuts: true,
		TaskbarToggle:   true,
		FramelessChrome: true,
	}
}
