//go:build !windows

package procutil

import "os/exec"

// HideWindow is a no-op outside Windows; there is no console to hide.
func HideWindow(_ *exec.Cmd) {}
