package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// waitForCondition polls fn every 10ms until it returns true or the timeout
// expires. Returns true if the condition was met, false on timeout.
func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if fn() {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}

func startTestServer(t *testing.T, opts ServerOptions) *Server {
	t.Helper()
	s := NewServer(opts)
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop() returned error: %v", err)
		}
	})
	return s
}

func dialTestClient(t *testing.T, s *Server, role string, onCall ClientCallHandler, onEvent ClientEventHandler) *Client {
	t.Helper()
	c, err := Dial(t.Context(), ClientOptions{
		URL:     s.URL(),
		Token:   s.Token(),
		Role:    role,
		OnCall:  onCall,
		OnEvent: onEvent,
	})
	if err != nil {
		t.Fatalf("Dial() returned error: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := c.Close(); closeErr != nil {
			t.Logf("Close() error: %v", closeErr)
		}
	})
	return c
}

func awaitRole(t *testing.T, s *Server, role string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.AwaitRole(ctx, role); err != nil {
		t.Fatalf("AwaitRole(%q) returned error: %v", role, err)
	}
}

// eventRecorder collects events for polling assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	role    string
	op      string
	payload string
}

func (r *eventRecorder) record(role, op string, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{role: role, op: op, payload: string(payload)})
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *eventRecorder) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return recordedEvent{}
	}
	return r.events[len(r.events)-1]
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestStartAndStop(t *testing.T) {
	s := NewServer(ServerOptions{})
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if s.URL() == "" {
		t.Fatal("URL() returned empty string after Start()")
	}
	if !strings.HasPrefix(s.URL(), "ws://127.0.0.1:") {
		t.Errorf("URL() = %q, want loopback ws URL", s.URL())
	}
	if s.Token() == "" {
		t.Fatal("Token() returned empty string, want generated token")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}
}

func TestStartDoubleCallReturnsError(t *testing.T) {
	s := startTestServer(t, ServerOptions{})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start() should return an error, got nil")
	}
}

func TestStopIdempotent(t *testing.T) {
	s := NewServer(ServerOptions{})
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop() returned error: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() returned error: %v", err)
	}
}

func TestStopClosesClients(t *testing.T) {
	s := startTestServer(t, ServerOptions{})
	c := dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client Done() after server stop")
	}
}

// ---------------------------------------------------------------------------
// Connection and handshake
// ---------------------------------------------------------------------------

func TestConnectedAndAwaitRole(t *testing.T) {
	s := startTestServer(t, ServerOptions{})

	if s.Connected("settings") {
		t.Fatal("Connected(settings) = true before any connection")
	}

	dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")

	if !s.Connected("settings") {
		t.Fatal("Connected(settings) = false after hello")
	}
	// AwaitRole on an already-connected role returns immediately.
	awaitRole(t, s, "settings")
}

func TestAwaitRoleContextCancelled(t *testing.T) {
	s := startTestServer(t, ServerOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.AwaitRole(ctx, "never-connects")
	if err == nil {
		t.Fatal("AwaitRole should return an error when the context ends, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AwaitRole error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBadTokenRejected(t *testing.T) {
	s := startTestServer(t, ServerOptions{})

	_, err := Dial(t.Context(), ClientOptions{URL: s.URL(), Token: "wrong", Role: "settings"})
	if err == nil {
		t.Fatal("Dial with a bad token should return an error, got nil")
	}
	if s.Connected("settings") {
		t.Fatal("Connected(settings) = true after rejected dial")
	}
}

func TestFirstFrameMustBeHello(t *testing.T) {
	s := startTestServer(t, ServerOptions{})

	header := http.Header{}
	header.Set(tokenHeader, s.Token())
	ws, _, err := websocket.DefaultDialer.Dial(s.URL(), header)
	if err != nil {
		t.Fatalf("raw dial returned error: %v", err)
	}
	defer func() {
		if closeErr := ws.Close(); closeErr != nil {
			t.Logf("ws.Close() error (expected): %v", closeErr)
		}
	}()

	// Send a call before the hello: the server must drop the connection.
	env := Envelope{Type: typeCall, ID: "x", Op: "window.show"}
	data, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		t.Fatalf("marshal envelope: %v", marshalErr)
	}
	if writeErr := ws.WriteMessage(websocket.TextMessage, data); writeErr != nil {
		t.Fatalf("WriteMessage returned error: %v", writeErr)
	}

	if setErr := ws.SetReadDeadline(time.Now().Add(2 * time.Second)); setErr != nil {
		t.Fatalf("SetReadDeadline failed: %v", setErr)
	}
	if _, _, readErr := ws.ReadMessage(); readErr == nil {
		t.Fatal("expected server to close connection after non-hello first frame")
	}
}

func TestDialRejectsMissingRole(t *testing.T) {
	s := startTestServer(t, ServerOptions{})
	if _, err := Dial(t.Context(), ClientOptions{URL: s.URL(), Token: s.Token()}); err == nil {
		t.Fatal("Dial without a role should return an error, got nil")
	}
}

func TestRoleReplacement(t *testing.T) {
	s := startTestServer(t, ServerOptions{})

	c1 := dialTestClient(t, s, "settings", func(op string, payload json.RawMessage) (any, error) {
		return "one", nil
	}, nil)
	awaitRole(t, s, "settings")

	dialTestClient(t, s, "settings", func(op string, payload json.RawMessage) (any, error) {
		return "two", nil
	}, nil)

	// The first client's connection is closed by the replacement.
	select {
	case <-c1.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replaced client's Done()")
	}

	if !s.Connected("settings") {
		t.Fatal("Connected(settings) = false after replacement")
	}

	raw, err := s.Call(context.Background(), "settings", "whoami", nil)
	if err != nil {
		t.Fatalf("Call after replacement returned error: %v", err)
	}
	var got string
	if jsonErr := json.Unmarshal(raw, &got); jsonErr != nil {
		t.Fatalf("unmarshal reply: %v", jsonErr)
	}
	if got != "two" {
		t.Errorf("reply = %q, want %q (call must route to the replacement connection)", got, "two")
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func TestServerCallReachesClient(t *testing.T) {
	s := startTestServer(t, ServerOptions{})

	var gotOp string
	var gotPayload string
	var mu sync.Mutex
	dialTestClient(t, s, "quickentry", func(op string, payload json.RawMessage) (any, error) {
		mu.Lock()
		gotOp = op
		gotPayload = string(payload)
		mu.Unlock()
		return map[string]bool{"visible": true}, nil
	}, nil)
	awaitRole(t, s, "quickentry")

	raw, err := s.Call(context.Background(), "quickentry", "window.show", map[string]string{"reason": "hotkey"})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}

	var reply struct {
		Visible bool `json:"visible"`
	}
	if jsonErr := json.Unmarshal(raw, &reply); jsonErr != nil {
		t.Fatalf("unmarshal reply: %v", jsonErr)
	}
	if !reply.Visible {
		t.Error("reply.Visible = false, want true")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOp != "window.show" {
		t.Errorf("client op = %q, want %q", gotOp, "window.show")
	}
	if !strings.Contains(gotPayload, `"hotkey"`) {
		t.Errorf("client payload = %q, want it to carry the call payload", gotPayload)
	}
}

func TestClientCallReachesServer(t *testing.T) {
	var gotRole, gotOp string
	var mu sync.Mutex
	s := startTestServer(t, ServerOptions{
		OnCall: func(role, op string, payload json.RawMessage) (any, error) {
			mu.Lock()
			gotRole = role
			gotOp = op
			mu.Unlock()
			return map[string]string{"theme": "dark"}, nil
		},
	})
	c := dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")

	raw, err := c.Call(context.Background(), "theme.get", nil)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	var reply struct {
		Theme string `json:"theme"`
	}
	if jsonErr := json.Unmarshal(raw, &reply); jsonErr != nil {
		t.Fatalf("unmarshal reply: %v", jsonErr)
	}
	if reply.Theme != "dark" {
		t.Errorf("reply.Theme = %q, want %q", reply.Theme, "dark")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotRole != "settings" {
		t.Errorf("server saw role %q, want %q", gotRole, "settings")
	}
	if gotOp != "theme.get" {
		t.Errorf("server saw op %q, want %q", gotOp, "theme.get")
	}
}

func TestCallToDisconnectedRole(t *testing.T) {
	s := startTestServer(t, ServerOptions{})
	if _, err := s.Call(context.Background(), "auth", "window.close", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Call to absent role error = %v, want ErrNotConnected", err)
	}
	if err := s.Notify("auth", "state", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Notify to absent role error = %v, want ErrNotConnected", err)
	}
}

func TestCallHandlerError(t *testing.T) {
	s := startTestServer(t, ServerOptions{
		OnCall: func(role, op string, payload json.RawMessage) (any, error) {
			return nil, errors.New("unknown hotkey id")
		},
	})
	c := dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")

	_, err := c.Call(context.Background(), "hotkeys.setEnabled", nil)
	if err == nil {
		t.Fatal("Call should return the handler error, got nil")
	}
	if !strings.Contains(err.Error(), "unknown hotkey id") {
		t.Errorf("error = %v, want it to carry the handler message", err)
	}
}

func TestCallHandlerPanicIsContained(t *testing.T) {
	var calls int
	var mu sync.Mutex
	s := startTestServer(t, ServerOptions{
		OnCall: func(role, op string, payload json.RawMessage) (any, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				panic("handler bug")
			}
			return "recovered", nil
		},
	})
	c := dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")

	_, err := c.Call(context.Background(), "theme.set", nil)
	if err == nil {
		t.Fatal("Call should fail when the handler panics, got nil")
	}
	if !strings.Contains(err.Error(), "internal error") {
		t.Errorf("error = %v, want internal error reply", err)
	}

	// The connection must survive the panic.
	raw, err := c.Call(context.Background(), "theme.set", nil)
	if err != nil {
		t.Fatalf("second Call returned error: %v", err)
	}
	var got string
	if jsonErr := json.Unmarshal(raw, &got); jsonErr != nil {
		t.Fatalf("unmarshal reply: %v", jsonErr)
	}
	if got != "recovered" {
		t.Errorf("second reply = %q, want %q", got, "recovered")
	}
}

func TestCallTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	s := startTestServer(t, ServerOptions{
		OnCall: func(role, op string, payload json.RawMessage) (any, error) {
			<-release
			return nil, nil
		},
	})
	c := dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Call(ctx, "slow.op", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Call error = %v, want context.DeadlineExceeded", err)
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func TestServerNotifyReachesClient(t *testing.T) {
	recorder := &eventRecorder{}
	s := startTestServer(t, ServerOptions{})
	dialTestClient(t, s, "main", nil, func(op string, payload json.RawMessage) {
		recorder.record("", op, payload)
	})
	awaitRole(t, s, "main")

	if err := s.Notify("main", "theme:changed", map[string]string{"preference": "dark"}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	if !waitForCondition(t, 2*time.Second, func() bool { return recorder.count() == 1 }) {
		t.Fatal("timed out waiting for client event")
	}
	last := recorder.last()
	if last.op != "theme:changed" {
		t.Errorf("event op = %q, want %q", last.op, "theme:changed")
	}
	if !strings.Contains(last.payload, `"dark"`) {
		t.Errorf("event payload = %q, want the broadcast state", last.payload)
	}
}

func TestClientNotifyReachesServer(t *testing.T) {
	recorder := &eventRecorder{}
	s := startTestServer(t, ServerOptions{
		OnEvent: func(role, op string, payload json.RawMessage) {
			recorder.record(role, op, payload)
		},
	})
	c := dialTestClient(t, s, "auth", nil, nil)
	awaitRole(t, s, "auth")

	if err := c.Notify("window:ready", nil); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	if !waitForCondition(t, 2*time.Second, func() bool { return recorder.count() == 1 }) {
		t.Fatal("timed out waiting for server event")
	}
	last := recorder.last()
	if last.role != "auth" {
		t.Errorf("event role = %q, want %q", last.role, "auth")
	}
	if last.op != "window:ready" {
		t.Errorf("event op = %q, want %q", last.op, "window:ready")
	}
}

// ---------------------------------------------------------------------------
// Disconnect handling
// ---------------------------------------------------------------------------

func TestOnDisconnectFires(t *testing.T) {
	recorder := &eventRecorder{}
	s := startTestServer(t, ServerOptions{
		OnDisconnect: func(role string) { recorder.record(role, "", nil) },
	})
	c := dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")

	if err := c.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	if !waitForCondition(t, 2*time.Second, func() bool { return recorder.count() == 1 }) {
		t.Fatal("timed out waiting for OnDisconnect")
	}
	if got := recorder.last().role; got != "settings" {
		t.Errorf("OnDisconnect role = %q, want %q", got, "settings")
	}
	if s.Connected("settings") {
		t.Fatal("Connected(settings) = true after disconnect")
	}
}

func TestOnDisconnectNotFiredOnReplacement(t *testing.T) {
	recorder := &eventRecorder{}
	s := startTestServer(t, ServerOptions{
		OnDisconnect: func(role string) { recorder.record(role, "", nil) },
	})

	c1 := dialTestClient(t, s, "settings", nil, nil)
	awaitRole(t, s, "settings")
	dialTestClient(t, s, "settings", nil, nil)

	select {
	case <-c1.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replaced client's Done()")
	}

	// Give the old pump's exit path time to run; it must not fire
	// OnDisconnect because the role is still connected.
	time.Sleep(100 * time.Millisecond)
	if got := recorder.count(); got != 0 {
		t.Fatalf("OnDisconnect fired %d times during replacement, want 0", got)
	}
	if !s.Connected("settings") {
		t.Fatal("Connected(settings) = false after replacement")
	}
}

func TestAbruptDisconnection(t *testing.T) {
	s := startTestServer(t, ServerOptions{})
	c := dialTestClient(t, s, "quickentry", nil, nil)
	awaitRole(t, s, "quickentry")

	// TCP-level close bypassing the WebSocket close handshake, as when a
	// child process crashes.
	if err := c.ws.UnderlyingConn().Close(); err != nil {
		t.Fatalf("UnderlyingConn().Close() returned error: %v", err)
	}

	if !waitForCondition(t, 2*time.Second, func() bool { return !s.Connected("quickentry") }) {
		t.Fatal("timed out waiting for server to clear crashed connection")
	}

	if _, err := s.Call(context.Background(), "quickentry", "window.hide", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Call after crash error = %v, want ErrNotConnected", err)
	}
}

// ---------------------------------------------------------------------------
// Environment handoff
// ---------------------------------------------------------------------------

func TestDialFromEnv(t *testing.T) {
	s := startTestServer(t, ServerOptions{})
	t.Setenv(EnvURL, s.URL())
	t.Setenv(EnvToken, s.Token())

	c, err := DialFromEnv(t.Context(), "settings", nil, nil)
	if err != nil {
		t.Fatalf("DialFromEnv returned error: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := c.Close(); closeErr != nil {
			t.Logf("Close() error: %v", closeErr)
		}
	})
	awaitRole(t, s, "settings")
}

func TestDialFromEnvMissingURL(t *testing.T) {
	t.Setenv(EnvURL, "")
	if _, err := DialFromEnv(t.Context(), "settings", nil, nil); err == nil {
		t.Fatal("DialFromEnv without the URL env should return an error, got nil")
	}
}
