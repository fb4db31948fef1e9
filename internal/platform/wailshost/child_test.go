package wailshost

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"gemdesk/internal/hub"
	"gemdesk/internal/platform"
)

// --- spec decoding ----------------------------------------------------------

func setWindowSpec(t *testing.T, spec childWindowSpec) {
	t.Helper()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("marshal spec: %v", err)
	}
	t.Setenv(envWindowSpec, string(raw))
}

func TestNewChildWindowReadsSpecFromEnvironment(t *testing.T) {
	setWindowSpec(t, childWindowSpec{
		Title:           "GemDesk Quick Entry",
		URL:             "/quick-entry.html",
		Width:           640,
		Height:          180,
		X:               200,
		Y:               300,
		Frameless:       true,
		AlwaysOnTop:     true,
		HideOnFocusLoss: true,
	})

	c, err := NewChildWindow(platform.RoleQuickEntry)
	if err != nil {
		t.Fatalf("NewChildWindow() returned error: %v", err)
	}
	if c.Role() != platform.RoleQuickEntry {
		t.Fatalf("Role() = %q, want %q", c.Role(), platform.RoleQuickEntry)
	}
	p := c.Params()
	if p.Title != "GemDesk Quick Entry" || p.Width != 640 || p.Height != 180 {
		t.Fatalf("params = %+v, want the spawned shape", p)
	}
	if p.X != 200 || p.Y != 300 {
		t.Fatalf("position = (%d,%d), want (200,300)", p.X, p.Y)
	}
	if !p.Frameless || !p.AlwaysOnTop || !p.HideOnFocusLoss {
		t.Fatalf("flags = %+v, want frameless, always-on-top, hide-on-focus-loss", p)
	}
}

func TestNewChildWindowRejectsBadRoles(t *testing.T) {
	setWindowSpec(t, childWindowSpec{Title: "x", Width: 100, Height: 100})

	if _, err := NewChildWindow(platform.RoleMain); err == nil {
		t.Fatal("NewChildWindow(main) succeeded, want error")
	}
	if _, err := NewChildWindow(platform.Role("popup")); err == nil {
		t.Fatal("NewChildWindow with unknown role succeeded, want error")
	}
}

func TestNewChildWindowRequiresSpec(t *testing.T) {
	t.Setenv(envWindowSpec, "")
	if _, err := NewChildWindow(platform.RoleSettings); err == nil {
		t.Fatal("NewChildWindow without spec succeeded, want error")
	}

	t.Setenv(envWindowSpec, "{not json")
	if _, err := NewChildWindow(platform.RoleSettings); err == nil {
		t.Fatal("NewChildWindow with garbage spec succeeded, want error")
	}
}

// --- command handling -------------------------------------------------------

func newTestChild(t *testing.T, params platform.WindowParams) *ChildWindow {
	t.Helper()
	c := &ChildWindow{role: platform.RoleSettings, params: params}
	c.mu.Lock()
	c.ctx = t.Context()
	c.mu.Unlock()
	return c
}

func TestChildHandleCallExecutesWindowOps(t *testing.T) {
	rec := stubRuntime(t)
	c := newTestChild(t, platform.WindowParams{Title: "GemDesk Settings"})

	if _, err := c.handleCall(opShow, nil); err != nil {
		t.Fatalf("handleCall(show) returned error: %v", err)
	}
	if !rec.has("show") {
		t.Fatalf("show never reached the runtime, calls: %v", rec.calls)
	}

	if _, err := c.handleCall(opFocus, nil); err != nil {
		t.Fatalf("handleCall(focus) returned error: %v", err)
	}
	if !rec.has("unminimise") {
		t.Fatalf("focus did not unminimise, calls: %v", rec.calls)
	}

	reply, err := c.handleCall(opIsMaximized, nil)
	if err != nil {
		t.Fatalf("handleCall(isMaximized) returned error: %v", err)
	}
	state, ok := reply.(maximizedPayload)
	if !ok {
		t.Fatalf("isMaximized reply type %T, want maximizedPayload", reply)
	}
	if state.Maximized {
		t.Fatal("isMaximized = true, want false from stub")
	}

	raw, _ := json.Marshal(navigatePayload{URL: "http://127.0.0.1:9999/settings?tab=hotkeys"})
	if _, err := c.handleCall(opNavigate, raw); err != nil {
		t.Fatalf("handleCall(navigate) returned error: %v", err)
	}
	if !strings.Contains(rec.js(), "settings?tab=hotkeys") {
		t.Fatalf("navigation script = %q, want the target url", rec.js())
	}

	raw, _ = json.Marshal(positionPayload{X: 15, Y: 25})
	if _, err := c.handleCall(opSetPosition, raw); err != nil {
		t.Fatalf("handleCall(setPosition) returned error: %v", err)
	}
	if !rec.has("setPosition(15,25)") {
		t.Fatalf("setPosition never reached the runtime, calls: %v", rec.calls)
	}

	if _, err := c.handleCall("window.explode", nil); err == nil {
		t.Fatal("unknown op succeeded, want error")
	}
	if _, err := c.handleCall(opNavigate, json.RawMessage("{bad")); err == nil {
		t.Fatal("navigate with garbage payload succeeded, want error")
	}
}

func TestChildHandleCallBeforeStartupFails(t *testing.T) {
	stubRuntime(t)
	c := &ChildWindow{role: platform.RoleSettings}

	if _, err := c.handleCall(opShow, nil); err == nil {
		t.Fatal("handleCall before startup succeeded, want error")
	}
}

func TestChildHandleEventForwardsEmitToPage(t *testing.T) {
	rec := stubRuntime(t)
	c := newTestChild(t, platform.WindowParams{})

	raw, _ := json.Marshal(emitPayload{
		Event:   "state:changed",
		Payload: json.RawMessage(`{"theme":"dark"}`),
	})
	c.handleEvent(opEmit, raw)

	name, data := rec.emitted()
	if name != "state:changed" {
		t.Fatalf("page event = %q, want state:changed", name)
	}
	if len(data) != 1 {
		t.Fatalf("page event carried %d values, want 1", len(data))
	}
	body, ok := data[0].(map[string]interface{})
	if !ok || body["theme"] != "dark" {
		t.Fatalf("page event payload = %v, want theme=dark", data[0])
	}
}

func TestChildDomReadyNavigatesOnce(t *testing.T) {
	rec := stubRuntime(t)
	c := newTestChild(t, platform.WindowParams{URL: "/settings.html"})

	c.DomReady(t.Context())
	if !strings.Contains(rec.js(), "/settings.html") {
		t.Fatalf("navigation script = %q, want the role page", rec.js())
	}
	c.DomReady(t.Context())
	if got := rec.count("execJS"); got != 1 {
		t.Fatalf("navigation ran %d times across repeated DomReady, want 1", got)
	}
}

// --- full startup against a live hub ----------------------------------------

func TestChildStartupConnectsAndFollowsHubLifetime(t *testing.T) {
	rec := stubRuntime(t)

	var mu sync.Mutex
	var events []string
	s := startHubServer(t, hub.ServerOptions{
		OnEvent: func(role, op string, _ json.RawMessage) {
			mu.Lock()
			events = append(events, role+"/"+op)
			mu.Unlock()
		},
	})
	t.Setenv(hub.EnvURL, s.URL())
	t.Setenv(hub.EnvToken, s.Token())
	setWindowSpec(t, childWindowSpec{
		Title:           "GemDesk Quick Entry",
		Width:           640,
		Height:          180,
		X:               50,
		Y:               60,
		HideOnFocusLoss: true,
	})

	c, err := NewChildWindow(platform.RoleQuickEntry)
	if err != nil {
		t.Fatalf("NewChildWindow() returned error: %v", err)
	}
	c.Startup(t.Context())
	t.Cleanup(func() { c.Shutdown(t.Context()) })

	if !waitForCondition(t, 2*time.Second, func() bool {
		return s.Connected(string(platform.RoleQuickEntry))
	}) {
		t.Fatal("child never connected to the hub")
	}
	if !rec.has("setPosition(50,60)") {
		t.Fatalf("startup never positioned the window, calls: %v", rec.calls)
	}
	if !rec.has("show") {
		t.Fatalf("startup never showed the window, calls: %v", rec.calls)
	}

	hasEvent := func(want string) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, e := range events {
				if e == want {
					return true
				}
			}
			return false
		}
	}

	c.DomReady(t.Context())
	if !waitForCondition(t, 2*time.Second, hasEvent("quick-entry/"+EventWindowReady)) {
		t.Fatal("ready announcement never reached the hub")
	}

	// The page reports focus loss; the child relays it to the shell.
	rec.fireListener(t, eventHostBlur)
	if !waitForCondition(t, 2*time.Second, hasEvent("quick-entry/"+eventWindowBlurred)) {
		t.Fatal("blur report never reached the hub")
	}

	// Shell gone: the child must take its window down.
	if err := s.Stop(); err != nil {
		t.Fatalf("hub Stop() returned error: %v", err)
	}
	if !waitForCondition(t, 2*time.Second, func() bool { return rec.has("quit") }) {
		t.Fatal("child never quit after losing the hub")
	}
}
