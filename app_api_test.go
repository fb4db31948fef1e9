package main

import (
	"context"
	"testing"

	"gemdesk/internal/broker"
	"gemdesk/internal/platform"
	"gemdesk/internal/proxy"
)

// --- titlebar window controls ----------------------------------------------

func TestWindowCloseHidesMainToTray(t *testing.T) {
	origQuit := runtimeQuitFn
	t.Cleanup(func() { runtimeQuitFn = origQuit })

	quitCalled := false
	runtimeQuitFn = func(context.Context) { quitCalled = true }

	env := newTestApp(t)
	env.app.setRuntimeContext(context.Background())
	main := env.openWindow(t, platform.RoleMain)

	env.app.WindowClose()

	if main.Visible() {
		t.Fatal("main window still visible after titlebar close")
	}
	if quitCalled {
		t.Fatal("titlebar close quit the shell instead of hiding to tray")
	}
}

func TestWindowCloseProceedsDuringQuit(t *testing.T) {
	origQuit := runtimeQuitFn
	t.Cleanup(func() { runtimeQuitFn = origQuit })

	quitCalled := false
	runtimeQuitFn = func(context.Context) { quitCalled = true }

	env := newTestApp(t)
	env.app.setRuntimeContext(context.Background())
	env.openWindow(t, platform.RoleMain)
	env.app.windows.BeginQuit()

	env.app.WindowClose()

	if !quitCalled {
		t.Fatal("titlebar close did not reach runtime quit during shutdown")
	}
}

func TestWindowChromeForwardsToRuntime(t *testing.T) {
	origMin := runtimeWindowMinimiseFn
	origToggle := runtimeWindowToggleMaximiseFn
	origMax := runtimeWindowIsMaximisedFn
	t.Cleanup(func() {
		runtimeWindowMinimiseFn = origMin
		runtimeWindowToggleMaximiseFn = origToggle
		runtimeWindowIsMaximisedFn = origMax
	})

	var minimised, toggled bool
	runtimeWindowMinimiseFn = func(context.Context) { minimised = true }
	runtimeWindowToggleMaximiseFn = func(context.Context) { toggled = true }
	runtimeWindowIsMaximisedFn = func(context.Context) bool { return true }

	app := NewApp()
	app.setRuntimeContext(context.Background())

	app.WindowMinimize()
	app.WindowToggleMaximize()

	if !minimised {
		t.Fatal("WindowMinimize did not reach the runtime")
	}
	if !toggled {
		t.Fatal("WindowToggleMaximize did not reach the runtime")
	}
	if !app.WindowIsMaximized() {
		t.Fatal("WindowIsMaximized did not reach the runtime")
	}
}

func TestWindowChromeWithoutRuntimeContext(t *testing.T) {
	app := NewApp()

	// None of these may panic before startup wires the runtime context.
	app.WindowMinimize()
	app.WindowToggleMaximize()
	app.WindowClose()

	if app.WindowIsMaximized() {
		t.Fatal("WindowIsMaximized() = true without a runtime context")
	}
}

// --- content URL -------------------------------------------------------------

func TestGetMainContentURLWithoutProxy(t *testing.T) {
	app := NewApp()
	if got := app.GetMainContentURL(); got != geminiAppURL {
		t.Fatalf("GetMainContentURL() = %q, want the direct origin %q", got, geminiAppURL)
	}
}

func TestGetMainContentURLUsesEmbeddingProxy(t *testing.T) {
	prx, err := proxy.New(proxy.Options{})
	if err != nil {
		t.Fatalf("proxy.New: %v", err)
	}
	if err := prx.Start(t.Context()); err != nil {
		t.Fatalf("proxy.Start: %v", err)
	}
	t.Cleanup(func() { _ = prx.Stop() })

	app := NewApp()
	app.proxy = prx

	want := prx.BaseURL() + "/p/gemini.google.com/app"
	if got := app.GetMainContentURL(); got != want {
		t.Fatalf("GetMainContentURL() = %q, want %q", got, want)
	}
}

func TestGetMainContentURLFallsBackWhenProxyNotServing(t *testing.T) {
	prx, err := proxy.New(proxy.Options{})
	if err != nil {
		t.Fatalf("proxy.New: %v", err)
	}

	app := NewApp()
	app.proxy = prx

	// RewriteURL fails before Start; the page gets the direct origin.
	if got := app.GetMainContentURL(); got != geminiAppURL {
		t.Fatalf("GetMainContentURL() = %q, want fallback %q", got, geminiAppURL)
	}
}

func TestContentLayoutOffsetsBelowTitlebar(t *testing.T) {
	app := NewApp()

	got := app.ContentLayout(1000, 800, 1.25)
	want := platform.Bounds{X: 0, Y: 40, Width: 1000, Height: 760}
	if got != want {
		t.Fatalf("ContentLayout(1000, 800, 1.25) = %+v, want %+v", got, want)
	}
}

// --- bound preference surface ------------------------------------------------

func TestBoundAPIBeforeStartup(t *testing.T) {
	app := NewApp()

	if got := app.GetTheme(); got != (broker.ThemeState{}) {
		t.Fatalf("GetTheme() = %+v, want zero state before startup", got)
	}
	if app.GetAlwaysOnTop() {
		t.Fatal("GetAlwaysOnTop() = true before startup")
	}
	hk := app.GetHotkeys()
	if hk == nil || len(hk) != 0 {
		t.Fatalf("GetHotkeys() = %v, want empty non-nil map", hk)
	}

	// Mutators must be safe no-ops before the broker exists.
	app.SetTheme("dark")
	app.SetAlwaysOnTop(true)
	app.SetHotkeyEnabled(actionToggleMain, false)
	app.SetHotkeyAccelerator(actionToggleMain, "Ctrl+Shift+G")
	app.OpenSettings("general")
	app.QuickEntrySubmit("hello")
	app.QuickEntryHide()
	app.QuickEntryCancel()

	if _, err := app.OpenSignIn(); err == nil {
		t.Fatal("OpenSignIn() succeeded before startup")
	}
}

func TestThemeRoundTripThroughBoundAPI(t *testing.T) {
	env := newTestApp(t)

	env.app.SetTheme("light")
	if got := env.app.GetTheme(); got.Preference != "light" || got.EffectiveTheme != "light" {
		t.Fatalf("GetTheme() = %+v, want light/light", got)
	}

	// "system" resolves through the toolkit's reported theme (dark in tests).
	env.app.SetTheme("system")
	if got := env.app.GetTheme(); got.Preference != "system" || got.EffectiveTheme != "dark" {
		t.Fatalf("GetTheme() = %+v, want system/dark", got)
	}
}

func TestAlwaysOnTopAppliesToMainWindow(t *testing.T) {
	env := newTestApp(t)
	main := env.openWindow(t, platform.RoleMain)

	env.app.SetAlwaysOnTop(true)

	if !env.app.GetAlwaysOnTop() {
		t.Fatal("GetAlwaysOnTop() = false after SetAlwaysOnTop(true)")
	}
	if !main.isAlwaysOnTop() {
		t.Fatal("main window not pinned after SetAlwaysOnTop(true)")
	}
	if main.countEmits("alwaysontop:changed") == 0 {
		t.Fatal("pin change was not broadcast to the main window")
	}
}

func TestConsumeStartupWarningsPullsOnce(t *testing.T) {
	app := NewApp()
	app.addStartupWarning("the content proxy failed to start")

	got := app.ConsumeStartupWarnings()
	if len(got) != 1 || got[0] != "the content proxy failed to start" {
		t.Fatalf("ConsumeStartupWarnings() = %v", got)
	}
	if again := app.ConsumeStartupWarnings(); len(again) != 0 {
		t.Fatalf("repeat ConsumeStartupWarnings() = %v, want empty", again)
	}
}
