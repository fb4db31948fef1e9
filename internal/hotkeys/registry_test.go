package hotkeys

import (
	"errors"
	"sync"
	"testing"

	"gemdesk/internal/events"
	"gemdesk/internal/platform"
)

// fakeRegistrar records registration traffic and can fail selected ids.
type fakeRegistrar struct {
	mu              sync.Mutex
	held            map[string]string
	triggers        map[string]func()
	failIDs         map[string]error
	registerCalls   int
	unregisterCalls int
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		held:     make(map[string]string),
		triggers: make(map[string]func()),
		failIDs:  make(map[string]error),
	}
}

func (f *fakeRegistrar) Name() string { return "fake" }

func (f *fakeRegistrar) Register(id string, binding Binding, onTrigger func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if err, ok := f.failIDs[id]; ok {
		return err
	}
	f.held[id] = binding.Normalized()
	f.triggers[id] = onTrigger
	return nil
}

func (f *fakeRegistrar) Unregister(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregisterCalls++
	delete(f.held, id)
	delete(f.triggers, id)
	return nil
}

func (f *fakeRegistrar) heldAccel(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	accel, ok := f.held[id]
	return accel, ok
}

func (f *fakeRegistrar) trigger(id string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers[id]
}

func (f *fakeRegistrar) calls() (registers, unregisters int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls, f.unregisterCalls
}

func capsWithGlobals() platform.Capabilities {
	return platform.Capabilities{GlobalShortcuts: true}
}

func testSpecs() []Spec {
	return []Spec{
		{ID: "toggle-main", Scope: ScopeGlobal, Enabled: false, Accelerator: "Ctrl+Alt+G"},
		{ID: "quick-entry", Scope: ScopeGlobal, Enabled: true, Accelerator: "Ctrl+Alt+Space"},
		{ID: "open-settings", Scope: ScopeApplication, Enabled: true, Accelerator: "Ctrl+,"},
	}
}

// newTestRegistry builds a registry with the test specs on a platform that
// supports global shortcuts.
func newTestRegistry(t *testing.T, reg Registrar, opts Options) *Registry {
	t.Helper()
	if opts.Registrar == nil {
		opts.Registrar = reg
	}
	if opts.Specs == nil {
		opts.Specs = testSpecs()
	}
	opts.Capabilities = capsWithGlobals()
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestSetEnabledRegistersAndUnregisters(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	if err := r.SetEnabled("toggle-main", true); err != nil {
		t.Fatalf("SetEnabled(true): %v", err)
	}
	if accel, ok := fake.heldAccel("toggle-main"); !ok || accel != "Ctrl+Alt+G" {
		t.Fatalf("after enable: held = (%q, %v), want (\"Ctrl+Alt+G\", true)", accel, ok)
	}
	if !r.Snapshot()["toggle-main"].Registered {
		t.Fatal("snapshot does not report the shortcut as registered")
	}

	if err := r.SetEnabled("toggle-main", false); err != nil {
		t.Fatalf("SetEnabled(false): %v", err)
	}
	if _, ok := fake.heldAccel("toggle-main"); ok {
		t.Fatal("after disable: OS still holds the shortcut")
	}
	if r.Snapshot()["toggle-main"].Registered {
		t.Fatal("snapshot still reports the shortcut as registered")
	}
}

func TestSetEnabledIdempotent(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	var eventCount int
	var mu sync.Mutex
	r.EnabledChanged().Subscribe(func(events.HotkeyEnabledChanged) {
		mu.Lock()
		eventCount++
		mu.Unlock()
	})

	if err := r.SetEnabled("toggle-main", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	registersAfterFirst, _ := fake.calls()

	if err := r.SetEnabled("toggle-main", true); err != nil {
		t.Fatalf("SetEnabled (repeat): %v", err)
	}
	registersAfterSecond, _ := fake.calls()

	if registersAfterSecond != registersAfterFirst {
		t.Fatalf("repeat SetEnabled touched the registrar: %d -> %d calls",
			registersAfterFirst, registersAfterSecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if eventCount != 1 {
		t.Fatalf("eventCount = %d, want 1", eventCount)
	}
}

func TestSetAcceleratorWhileRegisteredSwapsOSBinding(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})
	r.RegisterAll() // quick-entry is enabled by default

	if accel, _ := fake.heldAccel("quick-entry"); accel != "Ctrl+Alt+SPACE" {
		t.Fatalf("precondition: held = %q, want \"Ctrl+Alt+SPACE\"", accel)
	}

	if err := r.SetAccelerator("quick-entry", "Ctrl+Shift+Q"); err != nil {
		t.Fatalf("SetAccelerator: %v", err)
	}

	accel, ok := fake.heldAccel("quick-entry")
	if !ok {
		t.Fatal("shortcut no longer held after accelerator change")
	}
	if accel != "Ctrl+Shift+Q" {
		t.Fatalf("OS holds %q, want \"Ctrl+Shift+Q\"", accel)
	}
	state := r.Snapshot()["quick-entry"]
	if state.Accelerator != "Ctrl+Shift+Q" || !state.Registered {
		t.Fatalf("snapshot = %+v, want accelerator \"Ctrl+Shift+Q\" registered", state)
	}
}

func TestSetAcceleratorWhileUnregisteredUpdatesRecordOnly(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	// toggle-main starts disabled, so nothing is registered.
	if err := r.SetAccelerator("toggle-main", "Ctrl+Shift+M"); err != nil {
		t.Fatalf("SetAccelerator: %v", err)
	}

	registers, unregisters := fake.calls()
	if registers != 0 || unregisters != 0 {
		t.Fatalf("registrar touched for unregistered shortcut: %d registers, %d unregisters",
			registers, unregisters)
	}
	state := r.Snapshot()["toggle-main"]
	if state.Accelerator != "Ctrl+Shift+M" || state.Registered {
		t.Fatalf("snapshot = %+v, want new accelerator, unregistered", state)
	}
}

func TestSetAcceleratorNoOpOnSameNormalizedForm(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	var eventCount int
	var mu sync.Mutex
	r.AcceleratorChanged().Subscribe(func(events.HotkeyAcceleratorChanged) {
		mu.Lock()
		eventCount++
		mu.Unlock()
	})

	// "ctrl+alt+g" normalizes to the configured "Ctrl+Alt+G".
	if err := r.SetAccelerator("toggle-main", "ctrl+alt+g"); err != nil {
		t.Fatalf("SetAccelerator: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if eventCount != 0 {
		t.Fatalf("eventCount = %d, want 0 for unchanged accelerator", eventCount)
	}
}

func TestRegistrationFailureLeavesUnregistered(t *testing.T) {
	fake := newFakeRegistrar()
	fake.failIDs["toggle-main"] = errors.New("hotkey already in use")
	r := newTestRegistry(t, fake, Options{})

	// OS failure is logged, not surfaced.
	if err := r.SetEnabled("toggle-main", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	state := r.Snapshot()["toggle-main"]
	if !state.Enabled {
		t.Fatal("enabled flag lost on registration failure")
	}
	if state.Registered {
		t.Fatal("bookkeeping claims a registration the OS refused")
	}
}

func TestAcceleratorChangeAfterFailedRegistrationUpdatesRecordOnly(t *testing.T) {
	fake := newFakeRegistrar()
	fake.failIDs["toggle-main"] = errors.New("hotkey already in use")
	r := newTestRegistry(t, fake, Options{})

	if err := r.SetEnabled("toggle-main", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	registersBefore, _ := fake.calls()

	if err := r.SetAccelerator("toggle-main", "Ctrl+Shift+M"); err != nil {
		t.Fatalf("SetAccelerator: %v", err)
	}
	registersAfter, _ := fake.calls()
	if registersAfter != registersBefore {
		t.Fatalf("accelerator change on unregistered shortcut attempted registration: %d -> %d",
			registersBefore, registersAfter)
	}
}

func TestRegisterAllRegistersEnabledGlobals(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	r.RegisterAll()

	if _, ok := fake.heldAccel("quick-entry"); !ok {
		t.Fatal("enabled global shortcut not registered")
	}
	if _, ok := fake.heldAccel("toggle-main"); ok {
		t.Fatal("disabled global shortcut was registered")
	}
	if _, ok := fake.heldAccel("open-settings"); ok {
		t.Fatal("application-scope shortcut was registered with the OS")
	}

	// Idempotent: a second pass does not re-register held shortcuts.
	registersBefore, _ := fake.calls()
	r.RegisterAll()
	registersAfter, _ := fake.calls()
	if registersAfter != registersBefore {
		t.Fatalf("second RegisterAll re-registered: %d -> %d", registersBefore, registersAfter)
	}
}

func TestRegisterAllSkippedWhenDisabledByConfig(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{DisableGlobal: true})

	r.RegisterAll()

	if registers, _ := fake.calls(); registers != 0 {
		t.Fatalf("RegisterAll touched the registrar %d times despite DisableGlobal", registers)
	}
}

func TestRegisterAllSkippedWithoutCapability(t *testing.T) {
	fake := newFakeRegistrar()
	r, err := New(Options{
		Registrar:    fake,
		Specs:        testSpecs(),
		Capabilities: platform.Capabilities{GlobalShortcuts: false},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.RegisterAll()
	if err := r.SetEnabled("toggle-main", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	if registers, _ := fake.calls(); registers != 0 {
		t.Fatalf("registrar called %d times on a platform without global shortcuts", registers)
	}
	// The enabled flag is still recorded for broadcast and future sessions.
	if !r.Snapshot()["toggle-main"].Enabled {
		t.Fatal("enabled flag not recorded")
	}
}

func TestApplicationScopeNeverTouchesOS(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	var enabledEvents []events.HotkeyEnabledChanged
	var accelEvents []events.HotkeyAcceleratorChanged
	var mu sync.Mutex
	r.EnabledChanged().Subscribe(func(e events.HotkeyEnabledChanged) {
		mu.Lock()
		enabledEvents = append(enabledEvents, e)
		mu.Unlock()
	})
	r.AcceleratorChanged().Subscribe(func(e events.HotkeyAcceleratorChanged) {
		mu.Lock()
		accelEvents = append(accelEvents, e)
		mu.Unlock()
	})

	if err := r.SetEnabled("open-settings", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := r.SetAccelerator("open-settings", "Ctrl+Shift+,"); err != nil {
		t.Fatalf("SetAccelerator: %v", err)
	}

	registers, unregisters := fake.calls()
	if registers != 0 || unregisters != 0 {
		t.Fatalf("application scope reached the registrar: %d registers, %d unregisters",
			registers, unregisters)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(enabledEvents) != 1 || enabledEvents[0].ID != "open-settings" || enabledEvents[0].Enabled {
		t.Fatalf("enabledEvents = %+v, want one disable event for open-settings", enabledEvents)
	}
	if len(accelEvents) != 1 || accelEvents[0].Accelerator != "Ctrl+Shift+," {
		t.Fatalf("accelEvents = %+v, want one change to \"Ctrl+Shift+,\"", accelEvents)
	}
}

func TestUnregisterAllClearsBookkeeping(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})
	r.RegisterAll()

	r.UnregisterAll()

	if _, ok := fake.heldAccel("quick-entry"); ok {
		t.Fatal("OS still holds a shortcut after UnregisterAll")
	}
	for id, state := range r.Snapshot() {
		if state.Registered {
			t.Fatalf("shortcut %q still marked registered", id)
		}
	}
}

func TestExecuteActionRunsBoundAction(t *testing.T) {
	fake := newFakeRegistrar()
	ran := make(chan string, 1)
	r := newTestRegistry(t, fake, Options{
		Actions: map[string]func(){
			"toggle-main": func() { ran <- "toggle-main" },
		},
	})

	r.ExecuteAction("toggle-main")

	select {
	case id := <-ran:
		if id != "toggle-main" {
			t.Fatalf("action reported id %q", id)
		}
	default:
		t.Fatal("bound action did not run")
	}
}

func TestExecuteActionRecoversPanic(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{
		Actions: map[string]func(){
			"toggle-main": func() { panic("action exploded") },
		},
	})

	// Must not propagate.
	r.ExecuteAction("toggle-main")
}

func TestExecuteActionUnknownIDIsDropped(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	r.ExecuteAction("no-such-action")
}

func TestOSTriggerInvokesAction(t *testing.T) {
	fake := newFakeRegistrar()
	ran := make(chan struct{}, 1)
	r := newTestRegistry(t, fake, Options{
		Actions: map[string]func(){
			"quick-entry": func() { ran <- struct{}{} },
		},
	})
	r.RegisterAll()

	trigger := fake.trigger("quick-entry")
	if trigger == nil {
		t.Fatal("no trigger captured for quick-entry")
	}
	trigger()

	select {
	case <-ran:
	default:
		t.Fatal("OS trigger did not reach the bound action")
	}
}

func TestNewValidation(t *testing.T) {
	fake := newFakeRegistrar()

	tests := []struct {
		name string
		opts Options
	}{
		{
			name: "nil registrar",
			opts: Options{Specs: testSpecs()},
		},
		{
			name: "duplicate id",
			opts: Options{
				Registrar: fake,
				Specs: []Spec{
					{ID: "a", Scope: ScopeGlobal, Accelerator: "Ctrl+A"},
					{ID: "a", Scope: ScopeGlobal, Accelerator: "Ctrl+B"},
				},
			},
		},
		{
			name: "empty id",
			opts: Options{
				Registrar: fake,
				Specs:     []Spec{{Scope: ScopeGlobal, Accelerator: "Ctrl+A"}},
			},
		},
		{
			name: "unparseable accelerator",
			opts: Options{
				Registrar: fake,
				Specs:     []Spec{{ID: "a", Scope: ScopeGlobal, Accelerator: "NotAKey"}},
			},
		},
		{
			name: "action for unknown id",
			opts: Options{
				Registrar: fake,
				Specs:     []Spec{{ID: "a", Scope: ScopeGlobal, Accelerator: "Ctrl+A"}},
				Actions:   map[string]func(){"b": func() {}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Fatal("New succeeded, want error")
			}
		})
	}
}

func TestUnknownIDErrors(t *testing.T) {
	fake := newFakeRegistrar()
	r := newTestRegistry(t, fake, Options{})

	if err := r.SetEnabled("bogus", true); err == nil {
		t.Fatal("SetEnabled(unknown) succeeded, want error")
	}
	if err := r.SetAccelerator("bogus", "Ctrl+A"); err == nil {
		t.Fatal("SetAccelerator(unknown) succeeded, want error")
	}
	if r.Known("bogus") {
		t.Fatal("Known(unknown) = true")
	}
	if !r.Known("toggle-main") {
		t.Fatal("Known(toggle-main) = false")
	}
}
