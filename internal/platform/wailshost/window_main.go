package wailshost

import (
	"context"
	"encoding/json"
	"sync"

	"gemdesk/internal/platform"
)

// mainWindow adapts the process's own Wails window to platform.Window. The
// runtime owns the native handle and only exposes minimise state, so shown
// versus hidden is tracked here; every transition flows through this
// adapter.
type mainWindow struct {
	ctx   context.Context
	title string

	onClosed   func()
	closedOnce sync.Once

	mu      sync.Mutex
	visible bool
	closed  bool
}

func newMainWindow(ctx context.Context, params platform.WindowParams) *mainWindow {
	return &mainWindow{
		ctx:      ctx,
		title:    params.Title,
		onClosed: params.OnClosed,
		visible:  true,
	}
}

// applyParams shapes the running window to the requested parameters. The
// options passed to wails.Run cover most of this already; re-applying keeps
// the window honest when the two drift.
func (w *mainWindow) applyParams(params platform.WindowParams) {
	if params.Title != "" {
		runtimeWindowSetTitleFn(w.ctx, params.Title)
	}
	if params.Width > 0 && params.Height > 0 {
		runtimeWindowSetSizeFn(w.ctx, params.Width, params.Height)
	}
	if params.MinWidth > 0 && params.MinHeight > 0 {
		runtimeWindowSetMinSizeFn(w.ctx, params.MinWidth, params.MinHeight)
	}
	if params.Centered {
		runtimeWindowCenterFn(w.ctx)
	} else if params.X != 0 || params.Y != 0 {
		runtimeWindowSetPositionFn(w.ctx, params.X, params.Y)
	}
	if params.AlwaysOnTop {
		runtimeWindowSetAlwaysOnTopFn(w.ctx, true)
	}
	if params.URL != "" {
		runtimeWindowExecJSFn(w.ctx, navigateScript(params.URL))
	}
	runtimeWindowShowFn(w.ctx)
}

func (w *mainWindow) Role() platform.Role { return platform.RoleMain }

func (w *mainWindow) Show() error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowShowFn(w.ctx)
	w.setVisible(true)
	return nil
}

func (w *mainWindow) Hide() error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowHideFn(w.ctx)
	w.setVisible(false)
	return nil
}

// Focus raises the window: shown, restored from the taskbar if minimised.
func (w *mainWindow) Focus() error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowShowFn(w.ctx)
	runtimeWindowUnminimiseFn(w.ctx)
	w.setVisible(true)
	return nil
}

// Close quits the hosting Wails application. The main window and the
// process share a lifetime.
func (w *mainWindow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWindowDestroyed
	}
	w.mu.Unlock()

	runtimeQuitFn(w.ctx)
	w.fireClosed()
	return nil
}

func (w *mainWindow) Visible() bool {
	w.mu.Lock()
	visible := w.visible && !w.closed
	w.mu.Unlock()
	if !visible {
		return false
	}
	// Minimise state lives in the OS; read it outside the lock.
	return !runtimeWindowIsMinimisedFn(w.ctx)
}

// Minimize sends the window to the taskbar. The shown flag is untouched:
// minimised is an OS substate that Visible reads live.
func (w *mainWindow) Minimize() error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowMinimiseFn(w.ctx)
	return nil
}

func (w *mainWindow) ToggleMaximize() error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowToggleMaximiseFn(w.ctx)
	return nil
}

func (w *mainWindow) IsMaximized() (bool, error) {
	if err := w.guard(); err != nil {
		return false, err
	}
	return runtimeWindowIsMaximisedFn(w.ctx), nil
}

func (w *mainWindow) Navigate(url string) error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowExecJSFn(w.ctx, navigateScript(url))
	return nil
}

func (w *mainWindow) SetAlwaysOnTop(enabled bool) error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowSetAlwaysOnTopFn(w.ctx, enabled)
	return nil
}

func (w *mainWindow) SetPosition(x, y int) error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeWindowSetPositionFn(w.ctx, x, y)
	return nil
}

func (w *mainWindow) SetSkipTaskbar(skip bool) error {
	if err := w.guard(); err != nil {
		return err
	}
	return setTaskbarPresence(w.title, skip)
}

func (w *mainWindow) Emit(event string, payload any) error {
	if err := w.guard(); err != nil {
		return err
	}
	runtimeEventsEmitFn(w.ctx, event, payload)
	return nil
}

func (w *mainWindow) guard() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errWindowDestroyed
	}
	return nil
}

func (w *mainWindow) setVisible(visible bool) {
	w.mu.Lock()
	w.visible = visible
	w.mu.Unlock()
}

// fireClosed runs the close callback exactly once and retires the window.
func (w *mainWindow) fireClosed() {
	w.mu.Lock()
	w.closed = true
	w.visible = false
	cb := w.onClosed
	w.mu.Unlock()
	w.closedOnce.Do(func() {
		if cb != nil {
			cb()
		}
	})
}

// navigateScript builds the statement that points the hosted page at a new
// location. json.Marshal yields a correctly quoted JS string literal.
func navigateScript(target string) string {
	quoted, err := json.Marshal(target)
	if err != nil {
		quoted = []byte(`""`)
	}
	return "window.location.replace(" + string(quoted) + ");"
}
