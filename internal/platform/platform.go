// Package platform abstracts the host window toolkit behind small
// interfaces so the orchestration core (window registry, hotkeys, broker)
// never talks to the toolkit directly. Production code provides a Wails
// backed implementation; tests provide fakes.
package platform

import "context"

// Role identifies the purpose a window serves. The shell manages a small
// fixed set of roles; at most one live window exists per role.
type Role string

const (
	RoleMain       Role = "main"
	RoleSettings   Role = "settings"
	RoleQuickEntry Role = "quick-entry"
	RoleAuth       Role = "auth"
)

// Valid reports whether r is one of the known window roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMain, RoleSettings, RoleQuickEntry, RoleAuth:
		return true
	}
	return false
}

// WindowParams describes a window at creation time. Zero values mean
// "toolkit default"; callbacks may be nil.
type WindowParams struct {
	Title  string
	URL    string
	Width  int
	Height int

	MinWidth  int
	MinHeight int

	// X/Y position the window at explicit screen coordinates when
	// Centered is false. Used for the quick-entry near-pointer placement.
	X        int
	Y        int
	Centered bool

	Frameless   bool
	AlwaysOnTop bool

	// HideOnFocusLoss asks the toolkit to report focus loss so the owner
	// can hide the window (quick-entry behavior).
	HideOnFocusLoss bool

	// OnClosed fires once when the native window is destroyed, whether by
	// user action, a Close call, or the hosting process exiting.
	OnClosed func()

	// OnFocusLost fires when the window loses input focus. Only delivered
	// when HideOnFocusLoss is set.
	OnFocusLost func()
}

// Window is a live native window. All methods are safe to call from any
// goroutine; operations on an already destroyed window return an error
// rather than acting on a stale surface.
type Window interface {
	Role() Role

	Show() error
	Hide() error
	// Focus raises the window: show, unminimize, bring to front.
	Focus() error
	// Close destroys the native window. OnClosed still fires exactly once.
	Close() error

	Visible() bool

	Minimize() error
	ToggleMaximize() error
	IsMaximized() (bool, error)

	// Navigate points the window's content at a new URL (settings tab
	// switching, auth flow start).
	Navigate(url string) error

	SetAlwaysOnTop(enabled bool) error

	// SetPosition moves the window to explicit screen coordinates.
	SetPosition(x, y int) error

	// SetSkipTaskbar removes or restores the window's taskbar presence.
	// A no-op on platforms whose tray model does not use it.
	SetSkipTaskbar(skip bool) error

	// Emit delivers a named event with a JSON-serializable payload to the
	// window's UI surface. Broadcast sends go through here.
	Emit(event string, payload any) error
}

// Toolkit is the window system the shell runs on.
type Toolkit interface {
	// CreateWindow constructs a native window for role and returns once
	// the window is ready to receive Emit and Navigate calls. The caller
	// (window registry) enforces the one-window-per-role invariant;
	// CreateWindow just builds.
	CreateWindow(ctx context.Context, role Role, params WindowParams) (Window, error)

	// OpenExternal hands a URL to the OS default browser.
	OpenExternal(url string) error

	// CursorPosition reports the pointer location in physical screen
	// coordinates. ok is false when the platform cannot answer; callers
	// fall back to centered placement.
	CursorPosition() (x, y int, ok bool)

	Capabilities() Capabilities
}

// Capabilities captures platform-conditional behavior as injected data so
// the core stays free of runtime OS checks and tests can exercise every
// combination.
type Capabilities struct {
	// GlobalShortcuts is true when OS-level shortcut registration is
	// reliable. False on Wayland sessions, where registration is skipped
	// with a warning instead of attempted.
	GlobalShortcuts bool

	// TaskbarToggle is true when hiding to tray should also remove the
	// window's taskbar button.
	TaskbarToggle bool

	// FramelessChrome is true when windows use the shell's own titlebar
	// instead of the system frame.
	FramelessChrome bool
}
