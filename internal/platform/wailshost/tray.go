package wailshost

import (
	"log/slog"
	"sync"

	"github.com/energye/systray"

	"gemdesk/internal/events"
)

// TrayOptions wires the tray icon's menu entries to shell actions. Nil
// callbacks leave the matching entry inert.
type TrayOptions struct {
	Tooltip string

	// AlwaysOnTop supplies the initial checkbox state.
	AlwaysOnTop func() bool
	// AlwaysOnTopChanged keeps the checkbox in step with the shell state.
	AlwaysOnTopChanged *events.Topic[events.AlwaysOnTopChanged]

	OnToggleMain     func()
	OnQuickEntry     func()
	OnOpenSettings   func()
	OnSetAlwaysOnTop func(bool)
	OnQuit           func()
}

// Tray owns the notification-area icon and its menu. The checkbox state
// follows the shell's always-on-top events; clicking it only requests a
// change and the resulting event flips the checkmark, so the tray can never
// disagree with the shell.
type Tray struct {
	opts TrayOptions

	stopOnce sync.Once

	mu         sync.Mutex
	aotItem    *systray.MenuItem
	aotChecked bool
}

// NewTray builds the tray and subscribes to state changes immediately, so
// updates published before the icon finishes appearing are not lost.
func NewTray(opts TrayOptions) *Tray {
	t := &Tray{opts: opts}
	if opts.AlwaysOnTop != nil {
		t.aotChecked = opts.AlwaysOnTop()
	}
	if opts.AlwaysOnTopChanged != nil {
		opts.AlwaysOnTopChanged.Subscribe(func(e events.AlwaysOnTopChanged) {
			t.setAlwaysOnTopChecked(e.Enabled)
		})
	}
	return t
}

// Start brings the icon up. systray.Run blocks until Quit, so it gets its
// own goroutine.
func (t *Tray) Start() {
	go systray.Run(t.onReady, t.onExit)
}

// Stop removes the icon. Safe to call more than once.
func (t *Tray) Stop() {
	t.stopOnce.Do(systray.Quit)
}

func (t *Tray) onReady() {
	systray.SetIcon(trayIconBytes())
	if t.opts.Tooltip != "" {
		systray.SetTooltip(t.opts.Tooltip)
	}

	toggle := systray.AddMenuItem("Show/Hide", "Show or hide the main window")
	toggle.Click(func() { invoke(t.opts.OnToggleMain) })

	quickEntry := systray.AddMenuItem("Quick Entry", "Open the quick entry bar")
	quickEntry.Click(func() { invoke(t.opts.OnQuickEntry) })

	settings := systray.AddMenuItem("Settings…", "Open settings")
	settings.Click(func() { invoke(t.opts.OnOpenSettings) })

	systray.AddSeparator()

	t.mu.Lock()
	aot := systray.AddMenuItemCheckbox("Always on Top",
		"Keep the main window above other windows", t.aotChecked)
	t.aotItem = aot
	t.mu.Unlock()
	aot.Click(func() {
		// The checkbox does not toggle itself: this requests the inverse
		// of the displayed state and the shell's change event flips the
		// checkmark.
		if t.opts.OnSetAlwaysOnTop != nil {
			t.opts.OnSetAlwaysOnTop(!aot.Checked())
		}
	})

	systray.AddSeparator()

	quit := systray.AddMenuItem("Quit GemDesk", "Quit GemDesk")
	quit.Click(func() { invoke(t.opts.OnQuit) })

	// Left click toggles the main window; right click opens the menu.
	systray.SetOnClick(func(systray.IMenu) { invoke(t.opts.OnToggleMain) })
	systray.SetOnRClick(func(m systray.IMenu) {
		if m != nil {
			if err := m.ShowMenu(); err != nil {
				slog.Warn("[tray] menu open failed", "error", err)
			}
		}
	})
}

func (t *Tray) onExit() {
	slog.Debug("[tray] exited")
}

func (t *Tray) setAlwaysOnTopChecked(checked bool) {
	t.mu.Lock()
	t.aotChecked = checked
	item := t.aotItem
	t.mu.Unlock()
	if item == nil {
		return
	}
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func invoke(fn func()) {
	if fn != nil {
		fn()
	}
}
