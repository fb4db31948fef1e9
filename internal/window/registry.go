// Package window owns the lifecycle of the shell's window roles: creation
// with singleton enforcement per role, the navigation/popup security
// policy, tray hide/restore, and the quit sequence. It talks to the native
// toolkit only through platform.Toolkit.
package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"gemdesk/internal/events"
	"gemdesk/internal/platform"
)

// Window sizes in logical pixels. Quick entry is a small floating strip;
// the rest are conventional windows.
const (
	mainWidth      = 1280
	mainHeight     = 800
	mainMinWidth   = 800
	mainMinHeight  = 600
	settingsWidth  = 900
	settingsHeight = 650
	quickWidth     = 640
	quickHeight    = 180
	authWidth      = 520
	authHeight     = 680
)

// roleOrder fixes iteration order for broadcasts and shutdown.
var roleOrder = []platform.Role{
	platform.RoleMain,
	platform.RoleSettings,
	platform.RoleQuickEntry,
	platform.RoleAuth,
}

// slot is the per-role arena entry: at most one live handle, plus an
// in-flight marker so rapid repeated opens share one construction.
type slot struct {
	handle   *Handle
	creating chan struct{}
}

// OpenOptions carries per-open parameters.
type OpenOptions struct {
	// SettingsTab selects a settings sub-view. Applied as a query
	// parameter on creation and as an event on focus.
	SettingsTab string
}

// Options configures a Registry.
type Options struct {
	Toolkit platform.Toolkit

	// ContentURL maps a role to its content source (dev server or packaged
	// assets), chosen once by the host environment.
	ContentURL func(role platform.Role) string

	// AuthContentURL maps a sign-in target URL to the URL the auth window
	// actually loads (the embedding proxy form). Defaults to identity.
	AuthContentURL func(target string) string

	// LocalHosts lists host[:port] values owned by the shell itself, in
	// addition to loopback, file and wails origins. Navigation to them is
	// always allowed (self-reload).
	LocalHosts []string

	// AlwaysOnTopChanged and AuthClosed receive lifecycle events. Nil
	// topics are created.
	AlwaysOnTopChanged *events.Topic[events.AlwaysOnTopChanged]
	AuthClosed         *events.Topic[events.AuthWindowClosed]
}

// Registry tracks one window per role. All methods are safe for concurrent
// use.
type Registry struct {
	toolkit platform.Toolkit
	caps    platform.Capabilities

	contentURL     func(platform.Role) string
	authContentURL func(string) string
	localHosts     map[string]struct{}

	mu    sync.Mutex
	slots map[platform.Role]*slot

	alwaysOnTop bool

	// quitting is one-shot: set immediately before shutdown begins. While
	// false, a main window close request turns into hide-to-tray.
	quitting atomic.Bool

	toggleMainBusy  atomic.Bool
	toggleQuickBusy atomic.Bool

	aotChanged *events.Topic[events.AlwaysOnTopChanged]
	authClosed *events.Topic[events.AuthWindowClosed]
}

// NewRegistry validates opts and builds an empty registry. No windows are
// created until OpenOrFocus.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Toolkit == nil {
		return nil, errors.New("window: toolkit is required")
	}
	if opts.ContentURL == nil {
		return nil, errors.New("window: content URL resolver is required")
	}

	r := &Registry{
		toolkit:        opts.Toolkit,
		caps:           opts.Toolkit.Capabilities(),
		contentURL:     opts.ContentURL,
		authContentURL: opts.AuthContentURL,
		localHosts:     make(map[string]struct{}, len(opts.LocalHosts)),
		slots:          make(map[platform.Role]*slot, len(roleOrder)),
		aotChanged:     opts.AlwaysOnTopChanged,
		authClosed:     opts.AuthClosed,
	}
	if r.authContentURL == nil {
		r.authContentURL = func(target string) string { return target }
	}
	if r.aotChanged == nil {
		r.aotChanged = &events.Topic[events.AlwaysOnTopChanged]{}
	}
	if r.authClosed == nil {
		r.authClosed = &events.Topic[events.AuthWindowClosed]{}
	}
	for _, host := range opts.LocalHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			r.localHosts[host] = struct{}{}
		}
	}
	for _, role := range roleOrder {
		r.slots[role] = &slot{}
	}
	return r, nil
}

// AlwaysOnTopChanged returns the topic announcing always-on-top changes.
func (r *Registry) AlwaysOnTopChanged() *events.Topic[events.AlwaysOnTopChanged] {
	return r.aotChanged
}

// AuthClosed returns the topic announcing auth window destruction.
func (r *Registry) AuthClosed() *events.Topic[events.AuthWindowClosed] {
	return r.authClosed
}

// OpenOrFocus returns the live handle for role, creating the window on
// first use and focusing it afterwards. Rapid repeated calls share a single
// construction; two callers always end up with the same handle.
func (r *Registry) OpenOrFocus(ctx context.Context, role platform.Role, opts OpenOptions) (*Handle, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("window: invalid role %q", role)
	}

	for {
		r.mu.Lock()
		s := r.slots[role]
		if h := s.handle; h != nil && !h.Destroyed() {
			r.mu.Unlock()
			r.focusExisting(h, opts)
			return h, nil
		}
		if s.creating != nil {
			wait := s.creating
			r.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		done := make(chan struct{})
		s.creating = done
		r.mu.Unlock()

		return r.create(ctx, role, r.roleParams(role, opts), done)
	}
}

// create constructs the native window and publishes the handle into the
// slot. done is the in-flight marker handed out by OpenOrFocus.
func (r *Registry) create(ctx context.Context, role platform.Role, params platform.WindowParams, done chan struct{}) (*Handle, error) {
	h := newHandle(role)
	params.OnClosed = func() { r.handleWindowClosed(role, h) }
	if role == platform.RoleQuickEntry {
		params.OnFocusLost = func() { r.hideQuickEntry() }
	}

	win, err := r.toolkit.CreateWindow(ctx, role, params)

	r.mu.Lock()
	s := r.slots[role]
	s.creating = nil
	if err != nil {
		r.mu.Unlock()
		close(done)
		return nil, fmt.Errorf("window: create %s window: %w", role, err)
	}
	h.setWindow(win)
	if h.Destroyed() {
		// The window died while constructing; OnClosed already fired.
		r.mu.Unlock()
		close(done)
		return nil, fmt.Errorf("window: %s window closed during construction", role)
	}
	s.handle = h
	r.mu.Unlock()
	close(done)

	slog.Info("[window] created", "role", role)
	return h, nil
}

func (r *Registry) focusExisting(h *Handle, opts OpenOptions) {
	if err := h.Focus(); err != nil {
		slog.Warn("[window] focus failed", "role", h.Role(), "error", err)
		return
	}
	if h.Role() == platform.RoleSettings && opts.SettingsTab != "" {
		if err := h.Emit("settings:tab", map[string]string{"tab": opts.SettingsTab}); err != nil {
			slog.Warn("[window] settings tab event failed", "tab", opts.SettingsTab, "error", err)
		}
	}
}

// handleWindowClosed is the single destruction path: marks the handle,
// clears the slot when it still holds this handle, and announces auth
// closure.
func (r *Registry) handleWindowClosed(role platform.Role, h *Handle) {
	first := h.markDestroyed()

	r.mu.Lock()
	s := r.slots[role]
	if s.handle == h {
		s.handle = nil
	}
	r.mu.Unlock()

	if !first {
		return
	}
	slog.Info("[window] closed", "role", role)
	if role == platform.RoleAuth {
		r.authClosed.Publish(events.AuthWindowClosed{Completed: h.AuthCompleted()})
	}
}

// Handle returns the live handle for role, or nil.
func (r *Registry) Handle(role platform.Role) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.slots[role].handle
	if h == nil || h.Destroyed() {
		return nil
	}
	return h
}

// LiveWindows returns every live, non-destroyed handle in fixed role order.
func (r *Registry) LiveWindows() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Handle
	for _, role := range roleOrder {
		if h := r.slots[role].handle; h != nil && !h.Destroyed() {
			out = append(out, h)
		}
	}
	return out
}

func (r *Registry) roleParams(role platform.Role, opts OpenOptions) platform.WindowParams {
	switch role {
	case platform.RoleMain:
		return platform.WindowParams{
			Title:       "GemDesk",
			URL:         r.contentURL(role),
			Width:       mainWidth,
			Height:      mainHeight,
			MinWidth:    mainMinWidth,
			MinHeight:   mainMinHeight,
			Centered:    true,
			Frameless:   r.caps.FramelessChrome,
			AlwaysOnTop: r.AlwaysOnTop(),
		}
	case platform.RoleSettings:
		return platform.WindowParams{
			Title:     "GemDesk Settings",
			URL:       settingsURL(r.contentURL(role), opts.SettingsTab),
			Width:     settingsWidth,
			Height:    settingsHeight,
			MinWidth:  700,
			MinHeight: 500,
			Centered:  true,
			Frameless: r.caps.FramelessChrome,
		}
	case platform.RoleQuickEntry:
		params := platform.WindowParams{
			Title:           "GemDesk Quick Entry",
			URL:             r.contentURL(role),
			Width:           quickWidth,
			Height:          quickHeight,
			Frameless:       true,
			AlwaysOnTop:     true,
			HideOnFocusLoss: true,
		}
		params.X, params.Y, params.Centered = r.quickEntryPosition()
		return params
	default: // platform.RoleAuth; URL is set by OpenAuth.
		return platform.WindowParams{
			Title:    "Sign in",
			Width:    authWidth,
			Height:   authHeight,
			Centered: true,
		}
	}
}

// settingsURL appends the requested sub-view as a query parameter.
func settingsURL(base, tab string) string {
	if tab == "" {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("tab", tab)
	u.RawQuery = q.Encode()
	return u.String()
}
