// Package events provides typed publish/subscribe topics for in-process
// coordination between the shell registries and the message broker.
//
// Each Topic carries exactly one payload type, so subscriber signatures are
// checked at compile time. Publish delivers synchronously on the caller's
// goroutine in subscription order; subscribers must not block.
package events

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Topic is a typed fan-out point. The zero value is ready to use.
type Topic[T any] struct {
	mu   sync.Mutex
	subs []func(T)
}

// Subscribe registers fn to receive every subsequent Publish. Subscriptions
// cannot be removed; topics live as long as the process.
func (t *Topic[T]) Subscribe(fn func(T)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

// Publish delivers v to every subscriber in subscription order. A panicking
// subscriber is recovered and logged; remaining subscribers still run.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	subs := make([]func(T), len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, fn := range subs {
		deliver(fn, v)
	}
}

func deliver[T any](fn func(T), v T) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("[events] subscriber panicked",
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(v)
}

// AlwaysOnTopChanged announces a change of the main window's always-on-top
// flag, regardless of which surface (tray, hotkey, request) initiated it.
type AlwaysOnTopChanged struct {
	Enabled bool
}

// HotkeyEnabledChanged announces that a hotkey was enabled or disabled.
type HotkeyEnabledChanged struct {
	ID      string
	Enabled bool
}

// HotkeyAcceleratorChanged announces a rebind of a hotkey accelerator.
type HotkeyAcceleratorChanged struct {
	ID          string
	Accelerator string
}

// AuthWindowClosed announces that the authentication window was destroyed,
// either by the user or by the sign-in auto-close path.
type AuthWindowClosed struct {
	// Completed is true when the window closed because navigation reached an
	// internal destination (sign-in finished), false for manual close.
	Completed bool
}
