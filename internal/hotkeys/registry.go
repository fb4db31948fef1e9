// Package hotkeys keeps the shell's keyboard shortcuts consistent across
// three surfaces: the configured state, the OS-level registration set
// (Global scope), and the application menu (Application scope). Global
// shortcuts go through a Registrar; Application shortcuts are only recorded
// and announced for the menu collaborator.
package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"gemdesk/internal/events"
	"gemdesk/internal/platform"
)

// Scope splits shortcuts into OS-registered and application-menu tiers.
type Scope int

const (
	// ScopeGlobal shortcuts are registered with the operating system and
	// fire regardless of application focus.
	ScopeGlobal Scope = iota
	// ScopeApplication shortcuts live in the application menu and are
	// never registered with the OS.
	ScopeApplication
)

func (s Scope) String() string {
	if s == ScopeGlobal {
		return "global"
	}
	return "application"
}

// Spec declares one logical shortcut action.
type Spec struct {
	ID          string
	Scope       Scope
	Enabled     bool
	Accelerator string
}

// State is the externally visible state of one shortcut, as broadcast to
// windows.
type State struct {
	Scope       string `json:"scope"`
	Enabled     bool   `json:"enabled"`
	Accelerator string `json:"accelerator"`
	// Registered reports whether the OS currently holds the shortcut.
	// Always false for application scope.
	Registered bool `json:"registered"`
}

// record pairs a Spec with its OS bookkeeping. registeredAccelerator is
// the accelerator string the OS currently holds, nil when unregistered; it
// may lag Spec.Accelerator while a change is being applied.
type record struct {
	spec                  Spec
	registeredAccelerator *string
}

// Options configures a Registry.
type Options struct {
	// Specs declare the known shortcuts with their defaults. IDs must be
	// unique and accelerators parseable.
	Specs []Spec
	// Actions binds shortcut ids to their effect. Triggers for ids
	// without an action are logged and dropped.
	Actions map[string]func()
	// Registrar performs OS-level registration for ScopeGlobal specs.
	Registrar Registrar
	// Capabilities gates OS registration; when GlobalShortcuts is false
	// every registration attempt is skipped with a warning.
	Capabilities platform.Capabilities
	// DisableGlobal skips OS registration regardless of capabilities
	// (configuration escape hatch).
	DisableGlobal bool

	// EnabledChanged and AcceleratorChanged receive an event per actual
	// state change, whatever initiated it. Nil topics are created.
	EnabledChanged     *events.Topic[events.HotkeyEnabledChanged]
	AcceleratorChanged *events.Topic[events.HotkeyAcceleratorChanged]
}

// Registry owns the shortcut table. All methods are safe for concurrent
// use. Invariant: a record claims an OS registration only when the
// Registrar call succeeded.
type Registry struct {
	mu      sync.Mutex
	records map[string]*record
	order   []string

	actions   map[string]func()
	registrar Registrar

	skipOS     bool
	skipReason string

	enabledChanged     *events.Topic[events.HotkeyEnabledChanged]
	acceleratorChanged *events.Topic[events.HotkeyAcceleratorChanged]
}

// New builds a Registry from its declared shortcuts. No OS registration
// happens here; call RegisterAll once persisted state has been applied.
func New(opts Options) (*Registry, error) {
	if opts.Registrar == nil {
		return nil, errors.New("hotkeys: registrar is required")
	}

	r := &Registry{
		records:            make(map[string]*record, len(opts.Specs)),
		actions:            make(map[string]func(), len(opts.Actions)),
		registrar:          opts.Registrar,
		enabledChanged:     opts.EnabledChanged,
		acceleratorChanged: opts.AcceleratorChanged,
	}
	if r.enabledChanged == nil {
		r.enabledChanged = &events.Topic[events.HotkeyEnabledChanged]{}
	}
	if r.acceleratorChanged == nil {
		r.acceleratorChanged = &events.Topic[events.HotkeyAcceleratorChanged]{}
	}

	switch {
	case opts.DisableGlobal:
		r.skipOS = true
		r.skipReason = "disabled by configuration"
	case !opts.Capabilities.GlobalShortcuts:
		r.skipOS = true
		r.skipReason = "platform reports unreliable global shortcuts"
	}

	for _, spec := range opts.Specs {
		if spec.ID == "" {
			return nil, errors.New("hotkeys: spec with empty id")
		}
		if _, dup := r.records[spec.ID]; dup {
			return nil, fmt.Errorf("hotkeys: duplicate spec id %q", spec.ID)
		}
		binding, err := ParseAccelerator(spec.Accelerator)
		if err != nil {
			return nil, fmt.Errorf("hotkeys: spec %q: %w", spec.ID, err)
		}
		spec.Accelerator = binding.Normalized()
		r.records[spec.ID] = &record{spec: spec}
		r.order = append(r.order, spec.ID)
	}

	for id, action := range opts.Actions {
		if _, known := r.records[id]; !known {
			return nil, fmt.Errorf("hotkeys: action bound to unknown id %q", id)
		}
		r.actions[id] = action
	}

	return r, nil
}

// EnabledChanged returns the topic announcing enabled-state changes.
func (r *Registry) EnabledChanged() *events.Topic[events.HotkeyEnabledChanged] {
	return r.enabledChanged
}

// AcceleratorChanged returns the topic announcing accelerator changes.
func (r *Registry) AcceleratorChanged() *events.Topic[events.HotkeyAcceleratorChanged] {
	return r.acceleratorChanged
}

// Known reports whether id names a declared shortcut.
func (r *Registry) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[id]
	return ok
}

// IDs returns the declared shortcut ids in declaration order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SetEnabled flips a shortcut on or off. Idempotent: a call that does not
// change state has no side effects and emits no event. For Global scope the
// OS registration follows the enabled state; OS failures are logged and
// leave the shortcut recorded as enabled but unregistered.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("hotkeys: unknown hotkey id %q", id)
	}
	if rec.spec.Enabled == enabled {
		r.mu.Unlock()
		return nil
	}
	rec.spec.Enabled = enabled
	if rec.spec.Scope == ScopeGlobal {
		if enabled {
			r.registerLocked(rec)
		} else {
			r.unregisterLocked(rec)
		}
	}
	r.mu.Unlock()

	r.enabledChanged.Publish(events.HotkeyEnabledChanged{ID: id, Enabled: enabled})
	return nil
}

// SetAccelerator rebinds a shortcut. Idempotent on the normalized form.
// For Global scope: a currently registered shortcut releases the old
// accelerator first and re-registers the new one only while still enabled;
// an unregistered one only updates the record.
func (r *Registry) SetAccelerator(id, accelerator string) error {
	binding, err := ParseAccelerator(accelerator)
	if err != nil {
		return fmt.Errorf("hotkeys: %w", err)
	}
	normalized := binding.Normalized()

	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("hotkeys: unknown hotkey id %q", id)
	}
	if rec.spec.Accelerator == normalized {
		r.mu.Unlock()
		return nil
	}
	if rec.spec.Scope == ScopeGlobal {
		wasRegistered := rec.registeredAccelerator != nil
		if wasRegistered {
			r.unregisterLocked(rec)
		}
		rec.spec.Accelerator = normalized
		if wasRegistered && rec.spec.Enabled {
			r.registerLocked(rec)
		}
	} else {
		rec.spec.Accelerator = normalized
	}
	r.mu.Unlock()

	r.acceleratorChanged.Publish(events.HotkeyAcceleratorChanged{ID: id, Accelerator: normalized})
	return nil
}

// RegisterAll registers every enabled Global shortcut that is not already
// held. Skipped entirely, with one warning, when OS registration is
// disabled or the platform cannot do it reliably.
func (r *Registry) RegisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.skipOS {
		slog.Warn("[hotkey] global shortcut registration skipped", "reason", r.skipReason)
		return
	}
	for _, id := range r.order {
		rec := r.records[id]
		if rec.spec.Scope != ScopeGlobal || !rec.spec.Enabled {
			continue
		}
		r.registerLocked(rec)
	}
}

// UnregisterAll releases every OS registration and clears the bookkeeping.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		rec := r.records[id]
		if rec.spec.Scope == ScopeGlobal {
			r.unregisterLocked(rec)
		}
	}
}

// ExecuteAction runs the action bound to id directly, bypassing OS
// registration. Panics in the action are recovered and logged, never
// propagated; OS trigger callbacks and programmatic triggers share this
// path.
func (r *Registry) ExecuteAction(id string) {
	r.mu.Lock()
	action, ok := r.actions[id]
	r.mu.Unlock()
	if !ok {
		slog.Warn("[hotkey] no action bound", "id", id)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[hotkey] action panicked",
				"id", id, "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	action()
}

// Snapshot returns the current state of every shortcut keyed by id.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.records))
	for id, rec := range r.records {
		out[id] = State{
			Scope:       rec.spec.Scope.String(),
			Enabled:     rec.spec.Enabled,
			Accelerator: rec.spec.Accelerator,
			Registered:  rec.registeredAccelerator != nil,
		}
	}
	return out
}

// registerLocked attempts one OS registration for rec. Failure is logged
// and leaves the record unregistered; there are no retries.
func (r *Registry) registerLocked(rec *record) {
	if rec.registeredAccelerator != nil {
		return
	}
	if r.skipOS {
		slog.Warn("[hotkey] skipping OS registration", "id", rec.spec.ID, "reason", r.skipReason)
		return
	}
	binding, err := ParseAccelerator(rec.spec.Accelerator)
	if err != nil {
		slog.Warn("[hotkey] invalid accelerator on record", "id", rec.spec.ID, "error", err)
		return
	}

	id := rec.spec.ID
	if err := r.registrar.Register(id, binding, func() { r.ExecuteAction(id) }); err != nil {
		slog.Warn("[hotkey] OS registration failed (another process may hold the accelerator)",
			"id", id, "accelerator", binding.Normalized(), "registrar", r.registrar.Name(), "error", err)
		return
	}

	held := binding.Normalized()
	rec.registeredAccelerator = &held
	slog.Info("[hotkey] registered", "id", id, "accelerator", held)
}

// unregisterLocked releases rec's OS registration. The bookkeeping clears
// even when the OS call fails: the failure is logged and the shortcut is
// treated as released rather than left claiming a registration.
func (r *Registry) unregisterLocked(rec *record) {
	if rec.registeredAccelerator == nil {
		return
	}
	held := *rec.registeredAccelerator
	rec.registeredAccelerator = nil

	if err := r.registrar.Unregister(rec.spec.ID); err != nil {
		slog.Warn("[hotkey] OS unregistration failed",
			"id", rec.spec.ID, "accelerator", held, "error", err)
		return
	}
	slog.Info("[hotkey] unregistered", "id", rec.spec.ID, "accelerator", held)
}
