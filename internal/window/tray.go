package window

import (
	"log/slog"

	"gemdesk/internal/events"
	"gemdesk/internal/platform"
)

// HideToTray hides the main window (dropping its taskbar presence where
// the platform uses one) and closes the settings and auth windows, which
// are transient relative to main.
func (r *Registry) HideToTray() {
	if main := r.Handle(platform.RoleMain); main != nil {
		if err := main.Hide(); err != nil {
			slog.Warn("[window] hide to tray failed", "error", err)
		}
		if r.caps.TaskbarToggle {
			if err := main.SetSkipTaskbar(true); err != nil {
				slog.Warn("[window] taskbar toggle failed", "error", err)
			}
		}
	}

	for _, role := range []platform.Role{platform.RoleSettings, platform.RoleAuth} {
		if h := r.Handle(role); h != nil {
			if err := h.Close(); err != nil && err != ErrWindowDestroyed {
				slog.Warn("[window] transient window close failed", "role", role, "error", err)
			}
		}
	}
	slog.Info("[window] hidden to tray")
}

// RestoreFromTray brings the main window back: taskbar presence first,
// then show, unminimize and raise.
func (r *Registry) RestoreFromTray() {
	main := r.Handle(platform.RoleMain)
	if main == nil {
		slog.Warn("[window] restore requested but main window is gone")
		return
	}
	if r.caps.TaskbarToggle {
		if err := main.SetSkipTaskbar(false); err != nil {
			slog.Warn("[window] taskbar restore failed", "error", err)
		}
	}
	if err := main.Focus(); err != nil {
		slog.Warn("[window] restore focus failed", "error", err)
	}
}

// HandleMainCloseRequested implements the close-to-tray state machine.
// Returns true to cancel the close (the window hides to tray instead);
// once BeginQuit has run, the close proceeds.
func (r *Registry) HandleMainCloseRequested() bool {
	if r.quitting.Load() {
		return false
	}
	r.HideToTray()
	return true
}

// BeginQuit flips the one-shot quitting flag and closes the auxiliary
// windows. Call immediately before application shutdown; after this the
// main window close proceeds for real.
func (r *Registry) BeginQuit() {
	if r.quitting.Swap(true) {
		return
	}
	slog.Info("[window] quit sequence started")
	for _, role := range []platform.Role{platform.RoleSettings, platform.RoleQuickEntry, platform.RoleAuth} {
		if h := r.Handle(role); h != nil {
			if err := h.Close(); err != nil && err != ErrWindowDestroyed {
				slog.Warn("[window] close on quit failed", "role", role, "error", err)
			}
		}
	}
}

// Quitting reports whether the quit sequence has started.
func (r *Registry) Quitting() bool {
	return r.quitting.Load()
}

// ToggleMainVisible shows or hides the main window (the global shortcut
// action). Overlapping toggles are dropped while one is in flight.
func (r *Registry) ToggleMainVisible() {
	if !r.toggleMainBusy.CompareAndSwap(false, true) {
		slog.Debug("[window] main toggle already in flight")
		return
	}
	defer r.toggleMainBusy.Store(false)

	main := r.Handle(platform.RoleMain)
	if main == nil {
		slog.Warn("[window] main toggle requested but main window is gone")
		return
	}
	if main.Visible() {
		r.HideToTray()
	} else {
		r.RestoreFromTray()
	}
}

// SetAlwaysOnTop applies the always-on-top flag to the main window and
// announces actual changes. Idempotent.
func (r *Registry) SetAlwaysOnTop(enabled bool) {
	r.mu.Lock()
	if r.alwaysOnTop == enabled {
		r.mu.Unlock()
		return
	}
	r.alwaysOnTop = enabled
	main := r.slots[platform.RoleMain].handle
	r.mu.Unlock()

	if main != nil && !main.Destroyed() {
		if err := main.SetAlwaysOnTop(enabled); err != nil {
			slog.Warn("[window] always-on-top apply failed", "enabled", enabled, "error", err)
		}
	}
	r.aotChanged.Publish(events.AlwaysOnTopChanged{Enabled: enabled})
}

// ToggleAlwaysOnTop flips the always-on-top flag (menu and shortcut
// action).
func (r *Registry) ToggleAlwaysOnTop() {
	r.mu.Lock()
	next := !r.alwaysOnTop
	r.mu.Unlock()
	r.SetAlwaysOnTop(next)
}

// AlwaysOnTop reports the current flag.
func (r *Registry) AlwaysOnTop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alwaysOnTop
}
