package main

import (
	"context"
	"sync"
	"testing"

	"gemdesk/internal/broker"
	"gemdesk/internal/hotkeys"
	"gemdesk/internal/platform"
	"gemdesk/internal/settings"
	"gemdesk/internal/window"
)

// --- fakes ----------------------------------------------------------------

type emittedEvent struct {
	event   string
	payload any
}

type fakeWindow struct {
	role     platform.Role
	params   platform.WindowParams
	onClosed func()

	mu          sync.Mutex
	visible     bool
	alwaysOnTop bool
	emits       []emittedEvent
}

func (w *fakeWindow) Role() platform.Role { return w.role }

func (w *fakeWindow) Show() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
	return nil
}

func (w *fakeWindow) Hide() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = false
	return nil
}

func (w *fakeWindow) Focus() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
	return nil
}

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	w.visible = false
	cb := w.onClosed
	w.onClosed = nil
	w.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (w *fakeWindow) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *fakeWindow) Minimize() error            { return nil }
func (w *fakeWindow) ToggleMaximize() error      { return nil }
func (w *fakeWindow) IsMaximized() (bool, error) { return false, nil }
func (w *fakeWindow) Navigate(string) error      { return nil }
func (w *fakeWindow) SetPosition(int, int) error { return nil }
func (w *fakeWindow) SetSkipTaskbar(bool) error  { return nil }

func (w *fakeWindow) SetAlwaysOnTop(enabled bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alwaysOnTop = enabled
	return nil
}

func (w *fakeWindow) Emit(event string, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emits = append(w.emits, emittedEvent{event: event, payload: payload})
	return nil
}

func (w *fakeWindow) isAlwaysOnTop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alwaysOnTop
}

func (w *fakeWindow) countEmits(event string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.emits {
		if e.event == event {
			n++
		}
	}
	return n
}

type fakeToolkit struct {
	mu      sync.Mutex
	windows map[platform.Role]*fakeWindow
}

func newFakeToolkit() *fakeToolkit {
	return &fakeToolkit{windows: make(map[platform.Role]*fakeWindow)}
}

func (tk *fakeToolkit) CreateWindow(_ context.Context, role platform.Role, params platform.WindowParams) (platform.Window, error) {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	w := &fakeWindow{
		role:        role,
		params:      params,
		onClosed:    params.OnClosed,
		visible:     true,
		alwaysOnTop: params.AlwaysOnTop,
	}
	tk.windows[role] = w
	return w, nil
}

func (tk *fakeToolkit) OpenExternal(string) error        { return nil }
func (tk *fakeToolkit) CursorPosition() (int, int, bool) { return 0, 0, false }

func (tk *fakeToolkit) Capabilities() platform.Capabilities {
	return platform.Capabilities{GlobalShortcuts: true, TaskbarToggle: true, FramelessChrome: true}
}

func (tk *fakeToolkit) window(role platform.Role) *fakeWindow {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.windows[role]
}

// recordingRegistrar tracks which shortcut ids the OS would currently hold.
type recordingRegistrar struct {
	mu         sync.Mutex
	registered map[string]string
}

func newRecordingRegistrar() *recordingRegistrar {
	return &recordingRegistrar{registered: make(map[string]string)}
}

func (r *recordingRegistrar) Register(id string, binding hotkeys.Binding, _ func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[id] = binding.Normalized()
	return nil
}

func (r *recordingRegistrar) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registered, id)
	return nil
}

func (r *recordingRegistrar) Name() string { return "recording" }

func (r *recordingRegistrar) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered)
}

// --- environment ------------------------------------------------------------

type appTestEnv struct {
	app       *App
	toolkit   *fakeToolkit
	store     settings.Store
	registrar *recordingRegistrar
}

// newTestApp builds an App with its core collaborators wired to fakes, the
// state startup leaves behind minus the Wails runtime and the servers.
func newTestApp(t *testing.T) *appTestEnv {
	t.Helper()

	toolkit := newFakeToolkit()
	app := NewApp()

	windows, err := window.NewRegistry(window.Options{
		Toolkit:    toolkit,
		ContentURL: app.roleContentURL,
	})
	if err != nil {
		t.Fatalf("window.NewRegistry: %v", err)
	}

	registrar := newRecordingRegistrar()
	keys, err := hotkeys.New(hotkeys.Options{
		Specs:        defaultHotkeySpecs(),
		Actions:      app.hotkeyActions(),
		Registrar:    registrar,
		Capabilities: toolkit.Capabilities(),
	})
	if err != nil {
		t.Fatalf("hotkeys.New: %v", err)
	}

	store := settings.NewMemory()
	core, err := broker.New(broker.Options{
		Store:       store,
		Windows:     windows,
		Hotkeys:     keys,
		SystemTheme: func() string { return "dark" },
	})
	if err != nil {
		t.Fatalf("broker.New: %v", err)
	}

	app.store = store
	app.windows = windows
	app.hotkeys = keys
	app.broker = core
	return &appTestEnv{app: app, toolkit: toolkit, store: store, registrar: registrar}
}

func (env *appTestEnv) openWindow(t *testing.T, role platform.Role) *fakeWindow {
	t.Helper()
	if _, err := env.app.windows.OpenOrFocus(t.Context(), role, window.OpenOptions{}); err != nil {
		t.Fatalf("OpenOrFocus(%s): %v", role, err)
	}
	return env.toolkit.window(role)
}
