package wailshost

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"gemdesk/internal/events"
	"gemdesk/internal/hotkeys"
)

var (
	runtimeMenuSetApplicationMenuFn    = runtime.MenuSetApplicationMenu
	runtimeMenuUpdateApplicationMenuFn = runtime.MenuUpdateApplicationMenu
)

// MenuOptions wires the application menu to the shortcut registry and shell
// actions.
type MenuOptions struct {
	// Hotkeys supplies accelerator state and executes entry actions.
	// Required.
	Hotkeys *hotkeys.Registry

	// Shortcut ids backing the accelerated entries.
	QuickEntryAction   string
	OpenSettingsAction string
	AlwaysOnTopAction  string
	ReloadAction       string

	// AlwaysOnTop supplies the checkbox state at build time.
	AlwaysOnTop func() bool
	// AlwaysOnTopChanged triggers a rebuild so the checkbox follows the
	// shell state no matter where a toggle came from.
	AlwaysOnTopChanged *events.Topic[events.AlwaysOnTopChanged]

	OnAbout func()
	OnQuit  func()
}

// AppMenu renders the main window's menu bar from live shortcut state.
// Entries route through the shortcut registry, so a menu click and its
// accelerator share one code path; accelerator hints appear only while the
// backing shortcut is enabled, but the entry itself stays clickable.
type AppMenu struct {
	opts MenuOptions

	mu  sync.Mutex
	ctx context.Context
}

// NewAppMenu builds the menu and subscribes to every state change that
// affects its rendering. Rebuilds are dropped until Install supplies the
// runtime context.
func NewAppMenu(opts MenuOptions) (*AppMenu, error) {
	if opts.Hotkeys == nil {
		return nil, errors.New("wailshost: hotkey registry is required")
	}
	m := &AppMenu{opts: opts}
	opts.Hotkeys.EnabledChanged().Subscribe(func(events.HotkeyEnabledChanged) { m.refresh() })
	opts.Hotkeys.AcceleratorChanged().Subscribe(func(events.HotkeyAcceleratorChanged) { m.refresh() })
	if opts.AlwaysOnTopChanged != nil {
		opts.AlwaysOnTopChanged.Subscribe(func(events.AlwaysOnTopChanged) { m.refresh() })
	}
	return m, nil
}

// Install applies the menu to the running window and keeps it current from
// then on. Call it from the main process's startup hook.
func (m *AppMenu) Install(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.refresh()
}

func (m *AppMenu) refresh() {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		return
	}
	runtimeMenuSetApplicationMenuFn(ctx, m.build())
	runtimeMenuUpdateApplicationMenuFn(ctx)
}

func (m *AppMenu) build() *menu.Menu {
	states := m.opts.Hotkeys.Snapshot()

	root := menu.NewMenu()

	file := root.AddSubmenu("File")
	file.AddText("Quick Entry", m.accelerator(states, m.opts.QuickEntryAction), m.action(m.opts.QuickEntryAction))
	file.AddText("Settings…", m.accelerator(states, m.opts.OpenSettingsAction), m.action(m.opts.OpenSettingsAction))
	file.AddSeparator()
	file.AddText("Quit GemDesk", keys.CmdOrCtrl("q"), func(*menu.CallbackData) { invoke(m.opts.OnQuit) })

	view := root.AddSubmenu("View")
	view.AddText("Reload", m.accelerator(states, m.opts.ReloadAction), m.action(m.opts.ReloadAction))
	pinned := false
	if m.opts.AlwaysOnTop != nil {
		pinned = m.opts.AlwaysOnTop()
	}
	view.AddCheckbox("Always on Top", pinned, m.accelerator(states, m.opts.AlwaysOnTopAction), m.action(m.opts.AlwaysOnTopAction))

	help := root.AddSubmenu("Help")
	help.AddText("About GemDesk", nil, func(*menu.CallbackData) { invoke(m.opts.OnAbout) })

	return root
}

// action routes a menu click through the shortcut registry.
func (m *AppMenu) action(id string) menu.Callback {
	return func(*menu.CallbackData) {
		m.opts.Hotkeys.ExecuteAction(id)
	}
}

func (m *AppMenu) accelerator(states map[string]hotkeys.State, id string) *keys.Accelerator {
	state, ok := states[id]
	if !ok || !state.Enabled {
		return nil
	}
	accel, err := acceleratorFromSpec(state.Accelerator)
	if err != nil {
		slog.Warn("[menu] accelerator unusable", "id", id, "accelerator", state.Accelerator, "error", err)
		return nil
	}
	return accel
}

// acceleratorFromSpec converts a canonical accelerator string into the menu
// key binding. Menu key names are lowercase.
func acceleratorFromSpec(spec string) (*keys.Accelerator, error) {
	binding, err := hotkeys.ParseAccelerator(spec)
	if err != nil {
		return nil, err
	}
	tokens := strings.Split(binding.Normalized(), "+")
	accel := &keys.Accelerator{Key: strings.ToLower(tokens[len(tokens)-1])}
	for _, token := range tokens[:len(tokens)-1] {
		switch token {
		case "Ctrl":
			accel.Modifiers = append(accel.Modifiers, keys.ControlKey)
		case "Alt":
			accel.Modifiers = append(accel.Modifiers, keys.OptionOrAltKey)
		case "Shift":
			accel.Modifiers = append(accel.Modifiers, keys.ShiftKey)
		case "Win":
			// wails v2 ships SuperKey commented out; "super" is its documented value.
			accel.Modifiers = append(accel.Modifiers, keys.Modifier("super"))
		}
	}
	return accel, nil
}
