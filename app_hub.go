package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gemdesk/internal/broker"
	"gemdesk/internal/platform"
	"gemdesk/internal/platform/wailshost"
)

// Request ops auxiliary window pages send over the window hub. The bridge
// bound in child processes forwards to these; the dispatcher routes them
// into the broker exactly like the main page's direct calls.
const (
	reqThemeGet             = "theme.get"
	reqThemeSet             = "theme.set"
	reqAlwaysOnTopGet       = "alwaysOnTop.get"
	reqAlwaysOnTopSet       = "alwaysOnTop.set"
	reqHotkeysGet           = "hotkeys.get"
	reqHotkeySetEnabled     = "hotkeys.setEnabled"
	reqHotkeySetAccelerator = "hotkeys.setAccelerator"
	reqOpenSettings         = "app.openSettings"
	reqOpenSignIn           = "app.openSignIn"
	reqVersion              = "app.version"
	reqQuickEntrySubmit     = "quickEntry.submit"
	reqQuickEntryHide       = "quickEntry.hide"
	reqQuickEntryCancel     = "quickEntry.cancel"
)

type themeSetArgs struct {
	Preference string `json:"preference"`
}

type alwaysOnTopSetArgs struct {
	Enabled bool `json:"enabled"`
}

type hotkeyEnabledArgs struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type hotkeyAcceleratorArgs struct {
	ID          string `json:"id"`
	Accelerator string `json:"accelerator"`
}

type openSettingsArgs struct {
	Tab string `json:"tab,omitempty"`
}

type quickEntrySubmitArgs struct {
	Text string `json:"text"`
}

type signInResult struct {
	Completed bool `json:"completed"`
}

type versionResult struct {
	Version string `json:"version"`
}

// handleHubCall serves one forwarded UI request from a child process. It
// runs on a hub dispatch goroutine, so blocking ops (sign-in waits for the
// auth window) do not stall the connection.
func (a *App) handleHubCall(role, op string, payload json.RawMessage) (any, error) {
	slog.Debug("[shell] forwarded request", "role", role, "op", op)
	if a.broker == nil {
		return nil, errors.New("shell core unavailable")
	}

	switch op {
	case reqThemeGet:
		return a.broker.GetTheme(), nil
	case reqThemeSet:
		var args themeSetArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		a.broker.SetTheme(args.Preference)
		return nil, nil
	case reqAlwaysOnTopGet:
		return broker.AlwaysOnTopState{Enabled: a.broker.GetAlwaysOnTop()}, nil
	case reqAlwaysOnTopSet:
		var args alwaysOnTopSetArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		a.broker.SetAlwaysOnTop(args.Enabled)
		return nil, nil
	case reqHotkeysGet:
		return a.broker.GetHotkeys(), nil
	case reqHotkeySetEnabled:
		var args hotkeyEnabledArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		a.broker.SetHotkeyEnabled(args.ID, args.Enabled)
		return nil, nil
	case reqHotkeySetAccelerator:
		var args hotkeyAcceleratorArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		a.broker.SetHotkeyAccelerator(args.ID, args.Accelerator)
		return nil, nil
	case reqOpenSettings:
		var args openSettingsArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		a.broker.OpenSettings(a.requestContext(), args.Tab)
		return nil, nil
	case reqOpenSignIn:
		completed, err := a.broker.OpenSignIn(a.requestContext())
		if err != nil {
			return nil, err
		}
		return signInResult{Completed: completed}, nil
	case reqVersion:
		return versionResult{Version: appVersion}, nil
	case reqQuickEntrySubmit:
		var args quickEntrySubmitArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		a.broker.QuickEntrySubmit(args.Text)
		return nil, nil
	case reqQuickEntryHide:
		a.broker.QuickEntryHide()
		return nil, nil
	case reqQuickEntryCancel:
		a.broker.QuickEntryCancel()
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown request op %q", op)
	}
}

// handleHubEvent routes child lifecycle events: the toolkit claims its own
// window-level events (blur), the ready announcement triggers the state
// push that brings a fresh page up to date.
func (a *App) handleHubEvent(role, op string, payload json.RawMessage) {
	if a.toolkit != nil && a.toolkit.HandleChildEvent(role, op, payload) {
		return
	}
	switch op {
	case wailshost.EventWindowReady:
		a.pushStateTo(role)
	default:
		slog.Debug("[shell] unrouted child event", "role", role, "op", op)
	}
}

func (a *App) handleHubDisconnect(role string) {
	if a.toolkit != nil {
		a.toolkit.HandleRoleDisconnected(role)
	}
}

func (a *App) pushStateTo(role string) {
	if a.broker == nil || a.windows == nil {
		return
	}
	h := a.windows.Handle(platform.Role(role))
	if h == nil {
		return
	}
	a.broker.PushStateTo(h)
}

// requestContext is the context forwarded requests run under. Falls back
// to Background for the window before the runtime exists, which only tests
// exercise.
func (a *App) requestContext() context.Context {
	if ctx := a.runtimeContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
