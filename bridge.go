package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gemdesk/internal/broker"
	"gemdesk/internal/hotkeys"
	"gemdesk/internal/platform/wailshost"
)

// signInForwardTimeout bounds a forwarded sign-in request. The shell blocks
// until the authentication window closes, which is user-paced.
const signInForwardTimeout = 10 * time.Minute

// Bridge is the bound API surface of a child window process. Window chrome
// ops run against the local Wails runtime; everything else is forwarded over
// the hub to the shell core, so child pages see the same surface the main
// page gets from App.
type Bridge struct {
	child *wailshost.ChildWindow

	mu         sync.Mutex
	runtimeCtx context.Context
}

func newBridge(child *wailshost.ChildWindow) *Bridge {
	return &Bridge{child: child}
}

func (b *Bridge) startup(ctx context.Context) {
	b.mu.Lock()
	b.runtimeCtx = ctx
	b.mu.Unlock()
}

func (b *Bridge) callCtx() context.Context {
	b.mu.Lock()
	ctx := b.runtimeCtx
	b.mu.Unlock()
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// forward sends one request to the shell and decodes its reply into T.
func forward[T any](b *Bridge, ctx context.Context, op string, payload any) (T, error) {
	var out T
	raw, err := b.child.Forward(ctx, op, payload)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s reply: %w", op, err)
	}
	return out, nil
}

func (b *Bridge) forwardNoReply(op string, payload any) error {
	_, err := b.child.Forward(b.callCtx(), op, payload)
	return err
}

// ----- local window chrome -----

// WindowMinimize minimises this child window.
func (b *Bridge) WindowMinimize() {
	b.mu.Lock()
	ctx := b.runtimeCtx
	b.mu.Unlock()
	if ctx != nil {
		runtimeWindowMinimiseFn(ctx)
	}
}

// WindowToggleMaximize toggles this child window between maximised and
// restored.
func (b *Bridge) WindowToggleMaximize() {
	b.mu.Lock()
	ctx := b.runtimeCtx
	b.mu.Unlock()
	if ctx != nil {
		runtimeWindowToggleMaximiseFn(ctx)
	}
}

// WindowIsMaximized reports this child window's maximised state.
func (b *Bridge) WindowIsMaximized() bool {
	b.mu.Lock()
	ctx := b.runtimeCtx
	b.mu.Unlock()
	if ctx == nil {
		return false
	}
	return runtimeWindowIsMaximisedFn(ctx)
}

// WindowClose closes this child window by quitting its process. The shell
// notices the hub connection drop and updates its registry.
func (b *Bridge) WindowClose() {
	b.mu.Lock()
	ctx := b.runtimeCtx
	b.mu.Unlock()
	if ctx != nil {
		runtimeQuitFn(ctx)
	}
}

// ----- forwarded shell operations -----

// GetTheme returns the shell's theme state.
func (b *Bridge) GetTheme() (broker.ThemeState, error) {
	return forward[broker.ThemeState](b, b.callCtx(), reqThemeGet, nil)
}

// SetTheme stores a theme preference.
func (b *Bridge) SetTheme(preference string) error {
	return b.forwardNoReply(reqThemeSet, themeSetArgs{Preference: preference})
}

// GetAlwaysOnTop reports whether the main window is pinned.
func (b *Bridge) GetAlwaysOnTop() (bool, error) {
	state, err := forward[broker.AlwaysOnTopState](b, b.callCtx(), reqAlwaysOnTopGet, nil)
	return state.Enabled, err
}

// SetAlwaysOnTop pins or unpins the main window.
func (b *Bridge) SetAlwaysOnTop(enabled bool) error {
	return b.forwardNoReply(reqAlwaysOnTopSet, alwaysOnTopSetArgs{Enabled: enabled})
}

// GetHotkeys returns the state of every shortcut, keyed by action id.
func (b *Bridge) GetHotkeys() (map[string]hotkeys.State, error) {
	return forward[map[string]hotkeys.State](b, b.callCtx(), reqHotkeysGet, nil)
}

// SetHotkeyEnabled turns one shortcut on or off.
func (b *Bridge) SetHotkeyEnabled(id string, enabled bool) error {
	return b.forwardNoReply(reqHotkeySetEnabled, hotkeyEnabledArgs{ID: id, Enabled: enabled})
}

// SetHotkeyAccelerator rebinds one shortcut.
func (b *Bridge) SetHotkeyAccelerator(id, accelerator string) error {
	return b.forwardNoReply(reqHotkeySetAccelerator, hotkeyAcceleratorArgs{ID: id, Accelerator: accelerator})
}

// OpenSettings opens or focuses the settings window on the given tab.
func (b *Bridge) OpenSettings(tab string) error {
	return b.forwardNoReply(reqOpenSettings, openSettingsArgs{Tab: tab})
}

// OpenSignIn asks the shell to run the sign-in flow and blocks until the
// authentication window closes.
func (b *Bridge) OpenSignIn() (bool, error) {
	ctx, cancel := context.WithTimeout(b.callCtx(), signInForwardTimeout)
	defer cancel()
	res, err := forward[signInResult](b, ctx, reqOpenSignIn, nil)
	return res.Completed, err
}

// QuickEntrySubmit hands quick-entry text to the shell for delivery to the
// main window.
func (b *Bridge) QuickEntrySubmit(text string) error {
	return b.forwardNoReply(reqQuickEntrySubmit, quickEntrySubmitArgs{Text: text})
}

// QuickEntryHide hides the quick-entry panel without submitting.
func (b *Bridge) QuickEntryHide() error {
	return b.forwardNoReply(reqQuickEntryHide, nil)
}

// QuickEntryCancel discards pending quick-entry text and hides the panel.
func (b *Bridge) QuickEntryCancel() error {
	return b.forwardNoReply(reqQuickEntryCancel, nil)
}

// AppVersion returns the shell's version string.
func (b *Bridge) AppVersion() (string, error) {
	res, err := forward[versionResult](b, b.callCtx(), reqVersion, nil)
	return res.Version, err
}
