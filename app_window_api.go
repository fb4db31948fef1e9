package main

import (
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"gemdesk/internal/platform"
)

// geminiAppURL is the document the main window's content frame embeds.
const geminiAppURL = "https://gemini.google.com/app"

// Seams for Wails window-chrome calls so the API can be exercised headless.
var (
	runtimeWindowMinimiseFn       = runtime.WindowMinimise
	runtimeWindowToggleMaximiseFn = runtime.WindowToggleMaximise
	runtimeWindowIsMaximisedFn    = runtime.WindowIsMaximised
)

// WindowMinimize minimises the main window. Bound for the custom titlebar.
func (a *App) WindowMinimize() {
	if ctx := a.runtimeContext(); ctx != nil {
		runtimeWindowMinimiseFn(ctx)
	}
}

// WindowToggleMaximize switches the main window between maximised and
// restored, mirroring the native titlebar double-click.
func (a *App) WindowToggleMaximize() {
	if ctx := a.runtimeContext(); ctx != nil {
		runtimeWindowToggleMaximiseFn(ctx)
	}
}

// WindowIsMaximized reports the main window's maximised state so the
// titlebar can swap its restore/maximise glyph.
func (a *App) WindowIsMaximized() bool {
	ctx := a.runtimeContext()
	if ctx == nil {
		return false
	}
	return runtimeWindowIsMaximisedFn(ctx)
}

// WindowClose is the titlebar close button. Outside of an explicit quit it
// hides the main window to the tray; once shutdown has begun it lets the
// close proceed.
func (a *App) WindowClose() {
	if a.windows != nil && a.windows.HandleMainCloseRequested() {
		return
	}
	if ctx := a.runtimeContext(); ctx != nil {
		runtimeQuitFn(ctx)
	}
}

// GetMainContentURL returns the URL the main window's content frame loads:
// the proxied product origin when the embed proxy is up, the direct origin
// otherwise. The direct origin refuses to render in a frame, but it is the
// honest fallback when the proxy could not start.
func (a *App) GetMainContentURL() string {
	if a.proxy == nil {
		return geminiAppURL
	}
	rewritten, err := a.proxy.RewriteURL(geminiAppURL)
	if err != nil {
		slog.Warn("[shell] content URL rewrite failed, serving origin directly", "error", err)
		return geminiAppURL
	}
	return rewritten
}

// ContentLayout computes the physical-pixel region left for page content
// below the custom titlebar, given the window's physical size and DPI scale.
// The shell owns the titlebar height; pages derive their layout from this
// instead of restating the constant.
func (a *App) ContentLayout(width, height int, scale float64) platform.Bounds {
	return platform.ContentBounds(width, height, scale, platform.TitlebarHeight)
}
