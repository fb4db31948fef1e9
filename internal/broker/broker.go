// Package broker is the single entry point for state requests from any
// window surface: theme, always-on-top, hotkey configuration, and the
// settings / sign-in / quick entry flows. Every mutation takes one path —
// validate, persist, apply to the owning collaborator, recompute derived
// state, broadcast to every live window — whether it arrived from a window,
// the tray menu, or a shortcut. Invalid input is logged and dropped; the
// requester is never handed an error for it.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gemdesk/internal/events"
	"gemdesk/internal/hotkeys"
	"gemdesk/internal/platform"
	"gemdesk/internal/settings"
	"gemdesk/internal/window"
)

// Theme preferences a window may request. ThemeSystem defers to the
// operating system.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Store keys. Hotkey state is keyed per shortcut id, see hotkeyEnabledKey
// and hotkeyAcceleratorKey.
const (
	keyTheme       = "theme"
	keyAlwaysOnTop = "alwaysOnTop"
)

// Events broadcast to window UI surfaces.
const (
	eventThemeChanged       = "theme:changed"
	eventAlwaysOnTopChanged = "alwaysontop:changed"
	eventHotkeysChanged     = "hotkeys:changed"
	eventQuickEntrySubmit   = "quickentry:submit"
)

// maxQuickEntryBytes bounds a quick entry prompt. Longer submissions are
// invalid input and dropped outright.
const maxQuickEntryBytes = 8192

// defaultSignInURL is where the sign-in window starts. The window closes
// itself once navigation reaches an internal page.
const defaultSignInURL = "https://accounts.google.com/ServiceLogin?continue=https%3A%2F%2Fgemini.google.com%2Fapp"

// allowedSettingsTabs are the sub-views the settings UI renders. The empty
// tab opens the window on whatever view it last showed.
var allowedSettingsTabs = map[string]struct{}{
	"":        {},
	"general": {},
	"hotkeys": {},
	"about":   {},
}

// ThemeState pairs the stored preference with the theme windows actually
// render.
type ThemeState struct {
	Preference     string `json:"preference"`
	EffectiveTheme string `json:"effectiveTheme"`
}

// AlwaysOnTopState is the alwaysontop:changed payload.
type AlwaysOnTopState struct {
	Enabled bool `json:"enabled"`
}

// quickEntrySubmission is the quickentry:submit payload delivered to the
// main window.
type quickEntrySubmission struct {
	Text string `json:"text"`
}

// Options configures a Broker. Store, Windows and Hotkeys are required.
type Options struct {
	Store   settings.Store
	Windows *window.Registry
	Hotkeys *hotkeys.Registry

	// SystemTheme reports the operating system theme, "dark" or "light".
	// Nil, or any other return value, resolves the system preference to
	// light.
	SystemTheme func() string

	// SignInURL overrides where the sign-in window starts.
	SignInURL string
}

// Broker owns the persist+broadcast path. Changes initiated by the
// collaborators themselves (tray toggle, menu item, shortcut) arrive
// through their change topics and take the same path as window requests.
type Broker struct {
	store   settings.Store
	windows *window.Registry
	hotkeys *hotkeys.Registry

	systemTheme func() string
	signInURL   string

	// mu serializes persist+broadcast sequences so every broadcast carries
	// the state most recently persisted, even under concurrent mutations.
	mu sync.Mutex
}

// New wires a Broker to its collaborators and subscribes to their change
// topics. Call LoadPersisted afterwards to apply stored preferences.
func New(opts Options) (*Broker, error) {
	if opts.Store == nil {
		return nil, errors.New("broker: settings store is required")
	}
	if opts.Windows == nil {
		return nil, errors.New("broker: window registry is required")
	}
	if opts.Hotkeys == nil {
		return nil, errors.New("broker: hotkey registry is required")
	}

	b := &Broker{
		store:       opts.Store,
		windows:     opts.Windows,
		hotkeys:     opts.Hotkeys,
		systemTheme: opts.SystemTheme,
		signInURL:   opts.SignInURL,
	}
	if b.signInURL == "" {
		b.signInURL = defaultSignInURL
	}

	b.windows.AlwaysOnTopChanged().Subscribe(b.onAlwaysOnTopChanged)
	b.hotkeys.EnabledChanged().Subscribe(b.onHotkeyEnabledChanged)
	b.hotkeys.AcceleratorChanged().Subscribe(b.onHotkeyAcceleratorChanged)
	return b, nil
}

// LoadPersisted applies stored preferences to the collaborators. Call once
// at startup, before hotkey OS registration, so the registration set
// reflects the stored enabled flags. Unreadable or invalid values are
// logged and skipped; the declared defaults stand.
func (b *Broker) LoadPersisted() {
	if v, ok := b.lookup(keyAlwaysOnTop); ok {
		if enabled, err := strconv.ParseBool(v); err == nil {
			b.windows.SetAlwaysOnTop(enabled)
		} else {
			slog.Warn("[broker] ignoring stored always-on-top flag", "value", v)
		}
	}

	for _, id := range b.hotkeys.IDs() {
		if v, ok := b.lookup(hotkeyAcceleratorKey(id)); ok {
			if err := b.hotkeys.SetAccelerator(id, v); err != nil {
				slog.Warn("[broker] ignoring stored accelerator", "id", id, "value", v, "error", err)
			}
		}
		if v, ok := b.lookup(hotkeyEnabledKey(id)); ok {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				slog.Warn("[broker] ignoring stored hotkey enabled flag", "id", id, "value", v)
				continue
			}
			if err := b.hotkeys.SetEnabled(id, enabled); err != nil {
				slog.Warn("[broker] stored hotkey enabled flag not applied", "id", id, "error", err)
			}
		}
	}
}

// --- theme ------------------------------------------------------------

// GetTheme reports the stored preference and the effective theme. A store
// failure or corrupt value falls back to the system preference rather than
// surfacing an error.
func (b *Broker) GetTheme() ThemeState {
	preference := ThemeSystem
	if v, ok := b.lookup(keyTheme); ok {
		if validTheme(v) {
			preference = v
		} else {
			slog.Warn("[broker] ignoring stored theme", "value", v)
		}
	}
	return ThemeState{Preference: preference, EffectiveTheme: b.effectiveTheme(preference)}
}

// SetTheme stores a new preference and announces the resulting state to
// every live window. Unknown preferences are logged and dropped: the store
// keeps its previous value and nothing is broadcast.
func (b *Broker) SetTheme(preference string) {
	if !validTheme(preference) {
		slog.Warn("[broker] rejected theme preference", "preference", preference)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persist(keyTheme, preference)
	b.broadcastLocked(eventThemeChanged, ThemeState{
		Preference:     preference,
		EffectiveTheme: b.effectiveTheme(preference),
	})
}

// effectiveTheme maps a preference to the theme windows render.
func (b *Broker) effectiveTheme(preference string) string {
	if preference != ThemeSystem {
		return preference
	}
	if b.systemTheme != nil {
		if t := b.systemTheme(); t == ThemeDark || t == ThemeLight {
			return t
		}
	}
	return ThemeLight
}

func validTheme(preference string) bool {
	switch preference {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// --- always-on-top ----------------------------------------------------

// GetAlwaysOnTop reports the live pin state. The window registry is the
// authority once LoadPersisted has run.
func (b *Broker) GetAlwaysOnTop() bool {
	return b.windows.AlwaysOnTop()
}

// SetAlwaysOnTop applies the pin state through the window registry. The
// registry announces actual changes on its topic, which is where this
// broker persists and broadcasts; an idempotent request therefore writes
// and announces nothing.
func (b *Broker) SetAlwaysOnTop(enabled bool) {
	b.windows.SetAlwaysOnTop(enabled)
}

func (b *Broker) onAlwaysOnTopChanged(ev events.AlwaysOnTopChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persist(keyAlwaysOnTop, strconv.FormatBool(ev.Enabled))
	b.broadcastLocked(eventAlwaysOnTopChanged, AlwaysOnTopState{Enabled: ev.Enabled})
}

// --- hotkeys ------------------------------------------------------------

// GetHotkeys reports the full shortcut table keyed by id.
func (b *Broker) GetHotkeys() map[string]hotkeys.State {
	return b.hotkeys.Snapshot()
}

// SetHotkeyEnabled flips one shortcut on or off. Unknown ids are logged
// and dropped. Persistence and broadcast ride the registry's change topic,
// so a request that changes nothing stays silent.
func (b *Broker) SetHotkeyEnabled(id string, enabled bool) {
	if err := b.hotkeys.SetEnabled(id, enabled); err != nil {
		slog.Warn("[broker] rejected hotkey enable request", "id", id, "error", err)
	}
}

// SetHotkeyAccelerator rebinds one shortcut. Unknown ids and unparseable
// accelerators are logged and dropped.
func (b *Broker) SetHotkeyAccelerator(id, accelerator string) {
	if err := b.hotkeys.SetAccelerator(id, accelerator); err != nil {
		slog.Warn("[broker] rejected hotkey accelerator request",
			"id", id, "accelerator", accelerator, "error", err)
	}
}

func (b *Broker) onHotkeyEnabledChanged(ev events.HotkeyEnabledChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persist(hotkeyEnabledKey(ev.ID), strconv.FormatBool(ev.Enabled))
	b.broadcastLocked(eventHotkeysChanged, b.hotkeys.Snapshot())
}

func (b *Broker) onHotkeyAcceleratorChanged(ev events.HotkeyAcceleratorChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persist(hotkeyAcceleratorKey(ev.ID), ev.Accelerator)
	b.broadcastLocked(eventHotkeysChanged, b.hotkeys.Snapshot())
}

func hotkeyEnabledKey(id string) string     { return "hotkey." + id + ".enabled" }
func hotkeyAcceleratorKey(id string) string { return "hotkey." + id + ".accelerator" }

// --- window flows -------------------------------------------------------

// OpenSettings opens or focuses the settings window on the requested tab.
// Unknown tabs are invalid input: logged and dropped without opening.
func (b *Broker) OpenSettings(ctx context.Context, tab string) {
	if _, ok := allowedSettingsTabs[tab]; !ok {
		slog.Warn("[broker] rejected settings tab", "tab", tab)
		return
	}
	if _, err := b.windows.OpenOrFocus(ctx, platform.RoleSettings, window.OpenOptions{SettingsTab: tab}); err != nil {
		slog.Error("[broker] open settings failed", "error", err)
	}
}

// OpenSignIn opens the sign-in window and blocks until it closes, whether
// automatically on reaching an internal page or because the user abandoned
// it. Reports whether sign-in completed.
func (b *Broker) OpenSignIn(ctx context.Context) (bool, error) {
	h, err := b.windows.OpenAuth(ctx, b.signInURL)
	if err != nil {
		return false, err
	}
	if err := h.WaitClosed(ctx); err != nil {
		return false, err
	}
	return h.AuthCompleted(), nil
}

// QuickEntrySubmit forwards a prompt to the main window, dismisses the
// quick entry strip and brings the main window forward so the response is
// visible. A blank prompt dismisses without forwarding; oversized input is
// dropped outright.
func (b *Broker) QuickEntrySubmit(text string) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > maxQuickEntryBytes {
		slog.Warn("[broker] dropped oversized quick entry submission", "bytes", len(trimmed))
		return
	}
	if trimmed == "" {
		b.windows.HideQuickEntry()
		return
	}

	main := b.windows.Handle(platform.RoleMain)
	if main == nil {
		slog.Warn("[broker] quick entry submitted with no main window")
		b.windows.HideQuickEntry()
		return
	}
	if err := main.Emit(eventQuickEntrySubmit, quickEntrySubmission{Text: trimmed}); err != nil {
		slog.Warn("[broker] quick entry delivery failed", "error", err)
	}
	b.windows.HideQuickEntry()
	b.windows.RestoreFromTray()
}

// QuickEntryHide dismisses the quick entry strip; the UI keeps its draft.
func (b *Broker) QuickEntryHide() {
	b.windows.HideQuickEntry()
}

// QuickEntryCancel dismisses the strip after the UI has discarded its
// draft.
func (b *Broker) QuickEntryCancel() {
	slog.Debug("[broker] quick entry cancelled")
	b.windows.HideQuickEntry()
}

// --- broadcast ----------------------------------------------------------

// PushStateTo delivers the full current state to one window. Used when a
// window finishes loading and needs to catch up on broadcasts it missed.
func (b *Broker) PushStateTo(h *window.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendTo(h, eventThemeChanged, b.GetTheme())
	b.sendTo(h, eventAlwaysOnTopChanged, AlwaysOnTopState{Enabled: b.windows.AlwaysOnTop()})
	b.sendTo(h, eventHotkeysChanged, b.hotkeys.Snapshot())
}

// broadcastLocked delivers one event to every live window. Send failures
// are isolated per recipient: one unreachable window never blocks the
// rest.
func (b *Broker) broadcastLocked(event string, payload any) {
	for _, h := range b.windows.LiveWindows() {
		b.sendTo(h, event, payload)
	}
}

func (b *Broker) sendTo(h *window.Handle, event string, payload any) {
	if err := h.Emit(event, payload); err != nil {
		slog.Warn("[broker] broadcast delivery failed", "event", event, "role", h.Role(), "error", err)
	}
}

// --- store access -------------------------------------------------------

// persist writes one key to the durable store. A write failure is logged
// and the in-memory change stands: the broadcast still goes out so windows
// track the live state.
func (b *Broker) persist(key, value string) {
	if err := b.store.Set(key, value); err != nil {
		slog.Error("[broker] persist failed", "key", key, "error", err)
	}
}

// lookup reads one key, mapping storage failures to absence.
func (b *Broker) lookup(key string) (string, bool) {
	v, ok, err := b.store.Get(key)
	if err != nil {
		slog.Error("[broker] settings read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}
