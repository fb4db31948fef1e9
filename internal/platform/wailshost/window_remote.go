package wailshost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"gemdesk/internal/hub"
	"gemdesk/internal/platform"
)

// closeCallTimeout bounds the close handshake with a child. The child exits
// as part of handling the call, so a slow reply usually means it is already
// tearing down.
const closeCallTimeout = 5 * time.Second

// remoteWindow drives a window hosted by a child process. Commands travel
// as hub calls; destruction is observed as the child's connection dropping.
// Visibility is cached on this side: every transition is initiated here, so
// the cache cannot drift while the child lives.
type remoteWindow struct {
	role platform.Role
	hub  *hub.Server
	proc *os.Process

	hideOnFocusLoss bool
	onClosed        func()
	onFocusLost     func()
	closedOnce      sync.Once

	mu      sync.Mutex
	visible bool
	closed  bool
}

func (w *remoteWindow) Role() platform.Role { return w.role }

func (w *remoteWindow) Show() error {
	if err := w.call(opShow, nil); err != nil {
		return err
	}
	w.setVisible(true)
	return nil
}

func (w *remoteWindow) Hide() error {
	if err := w.call(opHide, nil); err != nil {
		return err
	}
	w.setVisible(false)
	return nil
}

func (w *remoteWindow) Focus() error {
	if err := w.call(opFocus, nil); err != nil {
		return err
	}
	w.setVisible(true)
	return nil
}

// Close asks the child to exit. The child's disconnect fires the close
// callback, so success here only means the request was delivered or the
// child is already gone.
func (w *remoteWindow) Close() error {
	if w.isClosed() {
		return errWindowDestroyed
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeCallTimeout)
	defer cancel()
	_, err := w.hub.Call(ctx, string(w.role), opClose, nil)
	if err == nil || errors.Is(err, hub.ErrNotConnected) {
		return nil
	}
	if !w.hub.Connected(string(w.role)) {
		// The child dropped while replying; exactly what was asked for.
		return nil
	}

	// The child is connected but unresponsive. Kill the process so the
	// disconnect path still retires the window.
	slog.Warn("[host] close call failed, killing child", "role", w.role, "error", err)
	if w.proc != nil {
		if killErr := w.proc.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			return fmt.Errorf("wailshost: close %s window: %w", w.role, errors.Join(err, killErr))
		}
	}
	return nil
}

func (w *remoteWindow) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible && !w.closed
}

func (w *remoteWindow) Minimize() error {
	if err := w.call(opMinimize, nil); err != nil {
		return err
	}
	w.setVisible(false)
	return nil
}

func (w *remoteWindow) ToggleMaximize() error {
	return w.call(opToggleMaximize, nil)
}

func (w *remoteWindow) IsMaximized() (bool, error) {
	if w.isClosed() {
		return false, errWindowDestroyed
	}
	raw, err := w.hub.Call(context.Background(), string(w.role), opIsMaximized, nil)
	if err != nil {
		return false, err
	}
	var state maximizedPayload
	if err := json.Unmarshal(raw, &state); err != nil {
		return false, fmt.Errorf("wailshost: decode %s reply: %w", opIsMaximized, err)
	}
	return state.Maximized, nil
}

func (w *remoteWindow) Navigate(url string) error {
	return w.call(opNavigate, navigatePayload{URL: url})
}

func (w *remoteWindow) SetAlwaysOnTop(enabled bool) error {
	return w.call(opSetAlwaysOnTop, enabledPayload{Enabled: enabled})
}

func (w *remoteWindow) SetPosition(x, y int) error {
	return w.call(opSetPosition, positionPayload{X: x, Y: y})
}

func (w *remoteWindow) SetSkipTaskbar(skip bool) error {
	return w.call(opSetSkipTaskbar, skipTaskbarPayload{Skip: skip})
}

// Emit forwards an event to the child's page. Fire-and-forget: page events
// carry no reply.
func (w *remoteWindow) Emit(event string, payload any) error {
	if w.isClosed() {
		return errWindowDestroyed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wailshost: marshal %s payload: %w", event, err)
	}
	return w.hub.Notify(string(w.role), opEmit, emitPayload{Event: event, Payload: data})
}

func (w *remoteWindow) call(op string, payload any) error {
	if w.isClosed() {
		return errWindowDestroyed
	}
	_, err := w.hub.Call(context.Background(), string(w.role), op, payload)
	return err
}

// handleDisconnected retires the window after its process dropped off the
// hub and fires the close callback exactly once.
func (w *remoteWindow) handleDisconnected() {
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

// handleBlurred relays a focus-loss report to the owner. Only meaningful
// for hide-on-focus-loss windows.
func (w *remoteWindow) handleBlurred() {
	w.mu.Lock()
	relevant := w.hideOnFocusLoss && !w.closed
	cb := w.onFocusLost
	w.mu.Unlock()
	if relevant && cb != nil {
		cb()
	}
}

func (w *remoteWindow) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *remoteWindow) setVisible(visible bool) {
	w.mu.Lock()
	w.visible = visible
	w.mu.Unlock()
}
