//go:build !windows

package wailshost

import "gemdesk/internal/platform"

// hostCapabilities off Windows: no OS shortcut registrar is wired, the
// taskbar/dock entry stays put, and windows keep their native frame.
func hostCapabilities() platform.Capabilities {
	return platform.Capabilities{}
}
