package main

import (
	"fmt"
	"log/slog"

	"gemdesk/internal/ipc"
)

// handleActivation serves one request from the activation endpoint: a second
// launch forwarding its argv, gemdeskctl, or a shell integration poking the
// running instance.
func (a *App) handleActivation(req ipc.Request) ipc.Response {
	slog.Debug("[activate] request", "op", req.Op)
	switch req.Op {
	case ipc.OpActivate:
		if a.windows == nil {
			return activationUnavailable()
		}
		a.windows.RestoreFromTray()
		return ipc.Response{OK: true}
	case ipc.OpQuickEntry:
		if a.windows == nil {
			return activationUnavailable()
		}
		a.windows.ToggleQuickEntry(a.requestContext())
		return ipc.Response{OK: true}
	case ipc.OpOpenSettings:
		if a.broker == nil {
			return activationUnavailable()
		}
		a.broker.OpenSettings(a.requestContext(), req.Args["tab"])
		return ipc.Response{OK: true}
	case ipc.OpPing:
		return ipc.Response{OK: true, Result: appVersion}
	default:
		return ipc.Response{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func activationUnavailable() ipc.Response {
	return ipc.Response{Error: "shell is still starting"}
}
