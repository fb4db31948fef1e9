package main

import (
	"errors"

	"gemdesk/internal/broker"
	"gemdesk/internal/hotkeys"
)

// Bound preference and action surface for the main window page. Auxiliary
// windows reach the same operations through the hub bridge; both paths end
// in the broker so state changes broadcast identically.

// GetTheme returns the persisted theme preference and the theme actually in
// effect after resolving "system".
func (a *App) GetTheme() broker.ThemeState {
	if a.broker == nil {
		return broker.ThemeState{}
	}
	return a.broker.GetTheme()
}

// SetTheme stores a theme preference ("light", "dark" or "system") and
// broadcasts the change to every live window.
func (a *App) SetTheme(preference string) {
	if a.broker != nil {
		a.broker.SetTheme(preference)
	}
}

// GetAlwaysOnTop reports whether the main window is pinned above other
// windows.
func (a *App) GetAlwaysOnTop() bool {
	return a.broker != nil && a.broker.GetAlwaysOnTop()
}

// SetAlwaysOnTop pins or unpins the main window and persists the choice.
func (a *App) SetAlwaysOnTop(enabled bool) {
	if a.broker != nil {
		a.broker.SetAlwaysOnTop(enabled)
	}
}

// GetHotkeys returns the current state of every shortcut, keyed by action
// id.
func (a *App) GetHotkeys() map[string]hotkeys.State {
	if a.broker == nil {
		return map[string]hotkeys.State{}
	}
	return a.broker.GetHotkeys()
}

// SetHotkeyEnabled turns one shortcut on or off and persists the choice.
func (a *App) SetHotkeyEnabled(id string, enabled bool) {
	if a.broker != nil {
		a.broker.SetHotkeyEnabled(id, enabled)
	}
}

// SetHotkeyAccelerator rebinds one shortcut and persists the choice.
// Invalid accelerators are dropped and the previous binding stays active.
func (a *App) SetHotkeyAccelerator(id, accelerator string) {
	if a.broker != nil {
		a.broker.SetHotkeyAccelerator(id, accelerator)
	}
}

// OpenSettings opens (or focuses) the settings window on the given tab. An
// empty tab keeps the window's current tab.
func (a *App) OpenSettings(tab string) {
	if a.broker != nil {
		a.broker.OpenSettings(a.requestContext(), tab)
	}
}

// OpenSignIn opens the authentication window and blocks until it closes.
// It returns true when the sign-in flow reached the product surface, false
// when the user dismissed the window.
func (a *App) OpenSignIn() (bool, error) {
	if a.broker == nil {
		return false, errors.New("shell core unavailable")
	}
	return a.broker.OpenSignIn(a.requestContext())
}

// QuickEntrySubmit forwards quick-entry text to the main window and hides
// the quick-entry panel.
func (a *App) QuickEntrySubmit(text string) {
	if a.broker != nil {
		a.broker.QuickEntrySubmit(text)
	}
}

// QuickEntryHide hides the quick-entry panel without submitting.
func (a *App) QuickEntryHide() {
	if a.broker != nil {
		a.broker.QuickEntryHide()
	}
}

// QuickEntryCancel discards the pending quick-entry text and hides the
// panel.
func (a *App) QuickEntryCancel() {
	if a.broker != nil {
		a.broker.QuickEntryCancel()
	}
}

// AppVersion returns the shell's version string for the about tab.
func (a *App) AppVersion() string {
	return appVersion
}

// ConsumeStartupWarnings returns the warnings collected before the frontend
// was ready and clears them. The page polls this once after load; delivery
// is pull-based so warnings raised before the event bus exists are not
// lost.
func (a *App) ConsumeStartupWarnings() []string {
	return a.consumeStartupWarnings()
}
