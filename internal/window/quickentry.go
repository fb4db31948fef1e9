package window

import (
	"context"
	"log/slog"

	"gemdesk/internal/platform"
)

// ToggleQuickEntry shows the quick entry window if hidden or absent and
// hides it if visible. The window is re-placed near the pointer on every
// show. Overlapping toggles are dropped while one is in flight.
func (r *Registry) ToggleQuickEntry(ctx context.Context) {
	if !r.toggleQuickBusy.CompareAndSwap(false, true) {
		slog.Debug("[window] quick entry toggle already in flight")
		return
	}
	defer r.toggleQuickBusy.Store(false)

	if h := r.Handle(platform.RoleQuickEntry); h != nil {
		if h.Visible() {
			r.hideQuickEntry()
			return
		}
		if x, y, centered := r.quickEntryPosition(); !centered {
			if err := h.SetPosition(x, y); err != nil {
				slog.Warn("[window] quick entry placement failed", "error", err)
			}
		}
		if err := h.Focus(); err != nil {
			slog.Warn("[window] quick entry show failed", "error", err)
		}
		return
	}

	if _, err := r.OpenOrFocus(ctx, platform.RoleQuickEntry, OpenOptions{}); err != nil {
		slog.Error("[window] quick entry open failed", "error", err)
	}
}

// hideQuickEntry hides the quick entry window; also the focus-loss
// handler.
func (r *Registry) hideQuickEntry() {
	h := r.Handle(platform.RoleQuickEntry)
	if h == nil {
		return
	}
	if err := h.Hide(); err != nil && err != ErrWindowDestroyed {
		slog.Warn("[window] quick entry hide failed", "error", err)
	}
}

// HideQuickEntry hides the quick entry window (submit and cancel paths).
func (r *Registry) HideQuickEntry() {
	r.hideQuickEntry()
}
