package window

import (
	"context"
	"errors"
	"sync"

	"gemdesk/internal/platform"
)

// ErrWindowDestroyed is returned by Handle operations after the underlying
// native window is gone.
var ErrWindowDestroyed = errors.New("window: window is destroyed")

// Handle is the registry's reference to one live window. A destroyed
// handle is never reused; the registry clears its slot and hands out a new
// handle on the next open.
type Handle struct {
	role platform.Role

	mu        sync.Mutex
	win       platform.Window
	destroyed bool
	authDone  bool

	closedCh chan struct{}
}

func newHandle(role platform.Role) *Handle {
	return &Handle{role: role, closedCh: make(chan struct{})}
}

// Role reports which slot this handle belongs to.
func (h *Handle) Role() platform.Role { return h.role }

// Destroyed reports whether the native window is gone.
func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Visible reports whether the window is currently shown. Always false once
// destroyed.
func (h *Handle) Visible() bool {
	h.mu.Lock()
	win, destroyed := h.win, h.destroyed
	h.mu.Unlock()
	if destroyed || win == nil {
		return false
	}
	return win.Visible()
}

// WaitClosed blocks until the window is destroyed or ctx ends.
func (h *Handle) WaitClosed(ctx context.Context) error {
	select {
	case <-h.closedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) setWindow(win platform.Window) {
	h.mu.Lock()
	h.win = win
	h.mu.Unlock()
}

// markDestroyed flips the handle into its terminal state. Returns true on
// the first call only.
func (h *Handle) markDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		return false
	}
	h.destroyed = true
	close(h.closedCh)
	return true
}

func (h *Handle) markAuthCompleted() {
	h.mu.Lock()
	h.authDone = true
	h.mu.Unlock()
}

// AuthCompleted reports whether a sign-in flow hosted by this window
// reached an internal destination before the window closed. Meaningful
// for auth handles only.
func (h *Handle) AuthCompleted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authDone
}

// op runs fn against the live window. The window reference is captured
// under the handle lock, but fn runs outside it: remote windows do network
// sends that must not block Visible/Destroyed readers.
func (h *Handle) op(fn func(platform.Window) error) error {
	h.mu.Lock()
	win, destroyed := h.win, h.destroyed
	h.mu.Unlock()
	if destroyed || win == nil {
		return ErrWindowDestroyed
	}
	return fn(win)
}

func (h *Handle) Show() error  { return h.op(platform.Window.Show) }
func (h *Handle) Hide() error  { return h.op(platform.Window.Hide) }
func (h *Handle) Focus() error { return h.op(platform.Window.Focus) }
func (h *Handle) Close() error { return h.op(platform.Window.Close) }

func (h *Handle) Minimize() error       { return h.op(platform.Window.Minimize) }
func (h *Handle) ToggleMaximize() error { return h.op(platform.Window.ToggleMaximize) }

func (h *Handle) IsMaximized() (bool, error) {
	var maximized bool
	err := h.op(func(w platform.Window) error {
		var opErr error
		maximized, opErr = w.IsMaximized()
		return opErr
	})
	return maximized, err
}

func (h *Handle) Navigate(url string) error {
	return h.op(func(w platform.Window) error { return w.Navigate(url) })
}

func (h *Handle) SetAlwaysOnTop(enabled bool) error {
	return h.op(func(w platform.Window) error { return w.SetAlwaysOnTop(enabled) })
}

func (h *Handle) SetPosition(x, y int) error {
	return h.op(func(w platform.Window) error { return w.SetPosition(x, y) })
}

func (h *Handle) SetSkipTaskbar(skip bool) error {
	return h.op(func(w platform.Window) error { return w.SetSkipTaskbar(skip) })
}

// Emit delivers a broadcast event to this window's UI surface.
func (h *Handle) Emit(event string, payload any) error {
	return h.op(func(w platform.Window) error { return w.Emit(event, payload) })
}
