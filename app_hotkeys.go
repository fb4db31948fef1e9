package main

import "gemdesk/internal/hotkeys"

// Shortcut action ids. Global actions are OS-registered; application
// actions live in the menu and fire only while a shell window is focused.
const (
	actionToggleMain   = "toggle-main"
	actionQuickEntry   = "quick-entry"
	actionOpenSettings = "open-settings"
	actionAlwaysOnTop  = "always-on-top"
	actionReload       = "reload"
)

func defaultHotkeySpecs() []hotkeys.Spec {
	return []hotkeys.Spec{
		{ID: actionToggleMain, Scope: hotkeys.ScopeGlobal, Enabled: true, Accelerator: "Ctrl+Alt+G"},
		{ID: actionQuickEntry, Scope: hotkeys.ScopeGlobal, Enabled: true, Accelerator: "Ctrl+Alt+Space"},
		{ID: actionOpenSettings, Scope: hotkeys.ScopeApplication, Enabled: true, Accelerator: "Ctrl+,"},
		{ID: actionAlwaysOnTop, Scope: hotkeys.ScopeApplication, Enabled: true, Accelerator: "Ctrl+Alt+T"},
		{ID: actionReload, Scope: hotkeys.ScopeApplication, Enabled: true, Accelerator: "Ctrl+R"},
	}
}

// hotkeyActions binds shortcut ids to their effect. The closures resolve
// collaborator fields at trigger time; triggers cannot fire before the
// collaborators exist (OS registration and menu install both happen later
// in startup).
func (a *App) hotkeyActions() map[string]func() {
	return map[string]func(){
		actionToggleMain: func() {
			a.windows.ToggleMainVisible()
		},
		actionQuickEntry: func() {
			a.windows.ToggleQuickEntry(a.runtimeContext())
		},
		actionOpenSettings: func() {
			a.broker.OpenSettings(a.runtimeContext(), "")
		},
		actionAlwaysOnTop: func() {
			a.broker.SetAlwaysOnTop(!a.broker.GetAlwaysOnTop())
		},
		actionReload: func() {
			if ctx := a.runtimeContext(); ctx != nil {
				runtimeWindowReloadFn(ctx)
			}
		},
	}
}
