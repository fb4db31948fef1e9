// Package wailshost implements platform.Toolkit on Wails v2.
//
// Wails binds one webview window per process, so the toolkit splits roles
// across processes: the process that owns the Toolkit hosts the main window
// in-process, and every other role is a child process of the same
// executable, created in that role and driven over the window hub. A child
// whose hub connection drops is treated as destroyed; a child that loses
// its shell exits on its own.
//
// The Wails runtime functions are bound through package-level variables so
// tests can run window logic without a webview.
package wailshost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"gemdesk/internal/hub"
	"gemdesk/internal/platform"
)

var (
	runtimeWindowShowFn           = runtime.WindowShow
	runtimeWindowHideFn           = runtime.WindowHide
	runtimeWindowMinimiseFn       = runtime.WindowMinimise
	runtimeWindowUnminimiseFn     = runtime.WindowUnminimise
	runtimeWindowIsMinimisedFn    = runtime.WindowIsMinimised
	runtimeWindowToggleMaximiseFn = runtime.WindowToggleMaximise
	runtimeWindowIsMaximisedFn    = runtime.WindowIsMaximised
	runtimeWindowSetAlwaysOnTopFn = runtime.WindowSetAlwaysOnTop
	runtimeWindowSetPositionFn    = runtime.WindowSetPosition
	runtimeWindowCenterFn         = runtime.WindowCenter
	runtimeWindowSetTitleFn       = runtime.WindowSetTitle
	runtimeWindowSetSizeFn        = runtime.WindowSetSize
	runtimeWindowSetMinSizeFn     = runtime.WindowSetMinSize
	runtimeWindowExecJSFn         = runtime.WindowExecJS
	runtimeEventsEmitFn           = runtime.EventsEmit
	runtimeEventsOnFn             = runtime.EventsOn
	runtimeBrowserOpenURLFn       = runtime.BrowserOpenURL
	runtimeQuitFn                 = runtime.Quit
)

// errWindowDestroyed reports an operation on a window whose native half is
// gone. The registry maps it to its own destroyed-window error.
var errWindowDestroyed = errors.New("wailshost: window destroyed")

// Options configures the Toolkit.
type Options struct {
	// Hub transports window commands to child processes and carries their
	// lifecycle events back. Required.
	Hub *hub.Server

	// ExecutablePath is the binary spawned for child window roles.
	// Defaults to the running executable.
	ExecutablePath string
}

// Toolkit drives native windows for the shell. Safe for concurrent use.
type Toolkit struct {
	hub     *hub.Server
	exePath string

	mu      sync.Mutex
	ctx     context.Context
	main    *mainWindow
	remotes map[platform.Role]*remoteWindow
}

// New builds a Toolkit. The runtime context must be supplied later via
// SetRuntimeContext before the main window can be created.
func New(opts Options) (*Toolkit, error) {
	if opts.Hub == nil {
		return nil, errors.New("wailshost: hub server is required")
	}
	exePath := opts.ExecutablePath
	if exePath == "" {
		resolved, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("wailshost: resolve executable: %w", err)
		}
		exePath = resolved
	}
	return &Toolkit{
		hub:     opts.Hub,
		exePath: exePath,
		remotes: make(map[platform.Role]*remoteWindow),
	}, nil
}

// SetRuntimeContext hands the Wails runtime context to the toolkit. Call it
// from the application's OnStartup hook before any window work.
func (t *Toolkit) SetRuntimeContext(ctx context.Context) {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()
}

// RuntimeContext returns the Wails runtime context, nil before startup.
func (t *Toolkit) RuntimeContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx
}

// CreateWindow builds a native window for role. The main role adopts this
// process's own Wails window; every other role spawns a child process and
// returns a remote window driving it over the hub.
func (t *Toolkit) CreateWindow(ctx context.Context, role platform.Role, params platform.WindowParams) (platform.Window, error) {
	if role == platform.RoleMain {
		return t.createMainWindow(params)
	}
	return t.createRemoteWindow(ctx, role, params)
}

func (t *Toolkit) createMainWindow(params platform.WindowParams) (platform.Window, error) {
	runtimeCtx := t.RuntimeContext()
	if runtimeCtx == nil {
		return nil, errors.New("wailshost: main window requires the runtime context (startup hook not reached)")
	}

	w := newMainWindow(runtimeCtx, params)
	w.applyParams(params)

	t.mu.Lock()
	t.main = w
	t.mu.Unlock()
	return w, nil
}

func (t *Toolkit) createRemoteWindow(ctx context.Context, role platform.Role, params platform.WindowParams) (platform.Window, error) {
	proc, err := t.spawnChild(ctx, role, params)
	if err != nil {
		return nil, err
	}

	w := &remoteWindow{
		role:            role,
		hub:             t.hub,
		proc:            proc,
		visible:         true,
		hideOnFocusLoss: params.HideOnFocusLoss,
		onClosed:        params.OnClosed,
		onFocusLost:     params.OnFocusLost,
	}
	t.mu.Lock()
	t.remotes[role] = w
	t.mu.Unlock()

	slog.Info("[host] child window ready", "role", role, "pid", proc.Pid)
	return w, nil
}

// OpenExternal hands a URL to the OS default browser.
func (t *Toolkit) OpenExternal(url string) error {
	ctx := t.RuntimeContext()
	if ctx == nil {
		return errors.New("wailshost: browser open requires the runtime context")
	}
	runtimeBrowserOpenURLFn(ctx, url)
	return nil
}

// CursorPosition reports the pointer location in virtual-screen
// coordinates.
func (t *Toolkit) CursorPosition() (int, int, bool) {
	return cursorPosition()
}

// Capabilities reports what this platform supports.
func (t *Toolkit) Capabilities() platform.Capabilities {
	return hostCapabilities()
}

// HostCapabilities reports the platform capabilities without a Toolkit.
// main consults it before the Wails application exists, when it has to fix
// the main window's chrome.
func HostCapabilities() platform.Capabilities {
	return hostCapabilities()
}

// SystemTheme reports the OS-level appearance preference, "light" or
// "dark".
func (t *Toolkit) SystemTheme() string {
	return systemTheme()
}

// NotifyMainClosed marks the in-process main window destroyed and fires its
// close callback. Call it from the application shutdown hook, which is
// where Wails reports the native teardown.
func (t *Toolkit) NotifyMainClosed() {
	t.mu.Lock()
	w := t.main
	t.mu.Unlock()
	if w != nil {
		w.fireClosed()
	}
}

// HandleRoleDisconnected routes a hub disconnect to the affected remote
// window: a dropped connection is the child's destruction signal. Wire it
// to the hub server's OnDisconnect.
func (t *Toolkit) HandleRoleDisconnected(role string) {
	key := platform.Role(role)
	t.mu.Lock()
	w := t.remotes[key]
	delete(t.remotes, key)
	t.mu.Unlock()
	if w == nil {
		return
	}
	slog.Info("[host] child window disconnected", "role", role)
	w.handleDisconnected()
}

// HandleChildEvent consumes window-level events arriving from child
// processes over the hub. It reports whether the event was one of the
// toolkit's own; anything else is the caller's to route.
func (t *Toolkit) HandleChildEvent(role, op string, _ json.RawMessage) bool {
	switch op {
	case eventWindowBlurred:
		t.mu.Lock()
		w := t.remotes[platform.Role(role)]
		t.mu.Unlock()
		if w != nil {
			w.handleBlurred()
		}
		return true
	default:
		return false
	}
}
