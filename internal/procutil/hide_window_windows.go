//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
)

// HideWindow marks cmd to start without a console window. Fields already
// present on SysProcAttr are preserved.
func HideWindow(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}
