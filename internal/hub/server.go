package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeDeadline is the maximum time allowed for a single WebSocket write to
// complete. 5 seconds is generous for localhost writes; a child process
// frozen longer than this is considered dead.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for any read activity
// (including pong responses) before considering the connection dead.
// 90 seconds allows for ~3 missed pings (pingInterval=30s) before timeout.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming WebSocket messages. Hub envelopes are
// small control JSON, typically under 1 KiB; 32 KiB leaves room for state
// broadcasts while preventing OOM from malformed payloads.
const maxReadMessageSize = 32 * 1024

// defaultCallTimeout bounds a Call whose context carries no deadline.
const defaultCallTimeout = 10 * time.Second

const shutdownTimeout = 5 * time.Second

// wsUpgrader is a package-level Upgrader to avoid repeated allocation per
// upgrade. CheckOrigin stays permissive: the server binds to 127.0.0.1
// only and every upgrade must present the per-run token, so an origin
// check would add nothing.
var wsUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 8 * 1024,
}

// ServerOptions configures the hub server.
type ServerOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	// 127.0.0.1 binding restricts access to the local machine.
	Addr string
	// Token authenticates connecting children. Empty means generate one;
	// read it back with Token.
	Token string
	// OnCall serves calls arriving from children (UI request forwarding).
	// Nil rejects every call.
	OnCall CallHandler
	// OnEvent consumes child events (lifecycle announcements). May be nil.
	OnEvent EventHandler
	// OnDisconnect fires when a role's connection drops without being
	// replaced. May be nil.
	OnDisconnect func(role string)
}

// roleConn is one child's connection.
//
// writeMu serializes WriteMessage calls on ws; gorilla/websocket does not
// support concurrent writes. Lock ordering: never hold Server.mu when
// acquiring writeMu's counterpart is not required (writes never take
// Server.mu), but never acquire writeMu while holding Server.mu.
type roleConn struct {
	role    string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Server is the main-process side of the hub: it accepts one connection
// per window role, replaces a role's connection on reconnect, and
// correlates call replies by envelope ID.
type Server struct {
	opts ServerOptions

	// mu protects conns, waiters, pending and stopped.
	mu      sync.RWMutex
	conns   map[string]*roleConn
	waiters map[string][]chan struct{}
	pending map[string]chan Envelope
	stopped bool

	listener net.Listener
	server   *http.Server
	url      string // "ws://127.0.0.1:<port>/hub", set after Start

	// closeOnce ensures Stop is idempotent. A stopped Server cannot be
	// reused; create a new one instead.
	closeOnce sync.Once
}

// NewServer creates a hub server. It is not listening until Start.
func NewServer(opts ServerOptions) *Server {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	if opts.Token == "" {
		opts.Token = uuid.NewString()
	}
	return &Server{
		opts:    opts,
		conns:   make(map[string]*roleConn),
		waiters: make(map[string][]chan struct{}),
		pending: make(map[string]chan Envelope),
	}
}

// Start begins listening. The context becomes the server's BaseContext;
// the server itself must be stopped explicitly via Stop.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return fmt.Errorf("hub: already started")
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("hub: listen: %w", err)
	}
	s.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	s.url = fmt.Sprintf("ws://127.0.0.1:%d/hub", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/hub", s.handleWS)

	s.server = &http.Server{
		Handler: mux,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := s.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("[hub] server error", "error", serveErr)
		}
	}()

	slog.Info("[hub] window hub started", "url", s.url)
	return nil
}

// Stop closes all child connections and shuts the server down. Pending
// calls fail immediately. Safe to call multiple times.
func (s *Server) Stop() error {
	var stopErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		conns := s.conns
		s.conns = make(map[string]*roleConn)
		pending := s.pending
		s.pending = make(map[string]chan Envelope)
		s.mu.Unlock()

		for _, rc := range conns {
			s.closeConn(rc.ws, "server stop")
		}
		for id, ch := range pending {
			ch <- Envelope{Type: typeReply, ID: id, OK: false, Error: "hub stopped"}
		}

		if s.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("hub: shutdown: %w", err)
			}
		}

		slog.Info("[hub] window hub stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL children should dial
// (e.g. "ws://127.0.0.1:54321/hub"). Empty before Start.
func (s *Server) URL() string {
	return s.url
}

// Token returns the token children must present.
func (s *Server) Token() string {
	return s.opts.Token
}

// Connected reports whether the given role currently has a live connection.
func (s *Server) Connected(role string) bool {
	s.mu.RLock()
	_, ok := s.conns[role]
	s.mu.RUnlock()
	return ok
}

// AwaitRole blocks until the given role connects or the context ends.
// Used after spawning a child process to wait for its hello.
func (s *Server) AwaitRole(ctx context.Context, role string) error {
	s.mu.Lock()
	if _, ok := s.conns[role]; ok {
		s.mu.Unlock()
		return nil
	}
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("hub: stopped while awaiting role %q", role)
	}
	ready := make(chan struct{})
	s.waiters[role] = append(s.waiters[role], ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub: awaiting role %q: %w", role, ctx.Err())
	}
}

// Call sends a request to the given role and waits for its reply. A
// context without a deadline gets defaultCallTimeout. The reply payload is
// returned raw for the caller to decode.
func (s *Server) Call(ctx context.Context, role, op string, payload any) (json.RawMessage, error) {
	rc := s.connForRole(role)
	if rc == nil {
		return nil, fmt.Errorf("hub: call %s to %q: %w", op, role, ErrNotConnected)
	}

	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	id := uuid.NewString()
	replyCh := make(chan Envelope, 1)
	s.mu.Lock()
	s.pending[id] = replyCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	env := Envelope{Type: typeCall, ID: id, Op: op, Payload: data}
	if writeErr := s.writeEnvelope(rc, env); writeErr != nil {
		return nil, fmt.Errorf("hub: call %s to %q: %w", op, role, writeErr)
	}

	select {
	case reply := <-replyCh:
		if !reply.OK {
			return nil, fmt.Errorf("hub: call %s to %q failed: %s", op, role, reply.Error)
		}
		return reply.Payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("hub: call %s to %q: %w", op, role, ctx.Err())
	}
}

// Notify sends a fire-and-forget event to the given role. Write failures
// close the connection and are returned so callers can log per recipient.
func (s *Server) Notify(role, op string, payload any) error {
	rc := s.connForRole(role)
	if rc == nil {
		return fmt.Errorf("hub: notify %s to %q: %w", op, role, ErrNotConnected)
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	env := Envelope{Type: typeEvent, Op: op, Payload: data}
	if writeErr := s.writeEnvelope(rc, env); writeErr != nil {
		return fmt.Errorf("hub: notify %s to %q: %w", op, role, writeErr)
	}
	return nil
}

func (s *Server) connForRole(role string) *roleConn {
	s.mu.RLock()
	rc := s.conns[role]
	s.mu.RUnlock()
	return rc
}

// handleWS authenticates and upgrades a child connection. The first frame
// must be a hello naming the child's role; afterwards the read pump routes
// calls, replies and events.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(tokenHeader) != s.opts.Token {
		slog.Warn("[hub] rejected connection with bad token", "remoteAddr", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[hub] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[hub] SetReadDeadline failed on new connection", "error", err)
		s.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	role, ok := s.readHello(conn)
	if !ok {
		s.closeConn(conn, "handshake failure")
		return
	}

	rc := &roleConn{role: role, ws: conn}
	s.register(rc)

	slog.Info("[hub] window connected", "role", role, "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go s.pingLoop(rc, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] hub read pump recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}

		close(pingDone)
		s.removeIfCurrent(rc, "read pump exit")
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[hub] read error", "role", role, "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if jsonErr := json.Unmarshal(msg, &env); jsonErr != nil {
			slog.Debug("[hub] invalid JSON from window", "role", role, "error", jsonErr)
			continue
		}

		switch env.Type {
		case typeCall:
			// Each call runs on its own goroutine: a handler may itself
			// call back into this same connection (e.g. a forwarded UI
			// request that hides the requesting window), which would
			// deadlock an inline dispatch.
			go s.dispatchCall(rc, env)
		case typeReply:
			s.routeReply(env)
		case typeEvent:
			go s.dispatchEvent(rc, env)
		default:
			slog.Debug("[hub] unknown envelope type", "role", role, "type", env.Type)
		}
	}
}

// readHello consumes the first frame and validates it as a role
// announcement.
func (s *Server) readHello(conn *websocket.Conn) (string, bool) {
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		slog.Warn("[hub] connection closed before hello", "error", err)
		return "", false
	}
	if msgType != websocket.TextMessage {
		slog.Warn("[hub] first frame is not text, dropping connection")
		return "", false
	}
	var env Envelope
	if jsonErr := json.Unmarshal(msg, &env); jsonErr != nil {
		slog.Warn("[hub] invalid hello", "error", jsonErr)
		return "", false
	}
	if env.Type != typeHello || !validRole(env.Role) {
		slog.Warn("[hub] expected hello with role, dropping connection", "type", env.Type, "role", env.Role)
		return "", false
	}
	return env.Role, true
}

// register installs rc as the connection for its role, replacing (and
// closing) any previous one, and releases AwaitRole waiters.
func (s *Server) register(rc *roleConn) {
	s.mu.Lock()
	old := s.conns[rc.role]
	s.conns[rc.role] = rc
	waiters := s.waiters[rc.role]
	delete(s.waiters, rc.role)
	s.mu.Unlock()

	if old != nil {
		// Replacement (child restart / reconnect): close the stale
		// connection outside the lock. Its read pump will see a non-current
		// conn and skip removal, so OnDisconnect does not fire.
		s.closeConn(old.ws, "replaced by new connection for role "+rc.role)
	}
	for _, ready := range waiters {
		close(ready)
	}
}

// removeIfCurrent clears the role slot only if rc is still the current
// connection for it (pointer identity; a replacement connection must not
// be clobbered by the old pump's exit). Fires OnDisconnect when cleared.
func (s *Server) removeIfCurrent(rc *roleConn, reason string) {
	s.mu.Lock()
	isCurrent := s.conns[rc.role] == rc
	if isCurrent {
		delete(s.conns, rc.role)
	}
	s.mu.Unlock()

	s.closeConn(rc.ws, reason)
	if !isCurrent {
		return
	}
	slog.Info("[hub] window disconnected", "role", rc.role, "reason", reason)
	if s.opts.OnDisconnect != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("[DEBUG-PANIC] hub OnDisconnect recovered", "panic", rec, "role", rc.role)
				}
			}()
			s.opts.OnDisconnect(rc.role)
		}()
	}
}

// closeConn closes a WebSocket connection. Double-close is expected when
// replacement, write failure and pump exit race; gorilla's Close is safe
// to call repeatedly, so failures are logged at Debug only.
func (s *Server) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[hub] connection close", "reason", reason, "error", closeErr)
	}
}

// dispatchCall runs the call handler and writes the reply. Handler panics
// become error replies: a bad forwarded request must not take the hub down.
func (s *Server) dispatchCall(rc *roleConn, env Envelope) {
	reply := Envelope{Type: typeReply, ID: env.ID}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("[DEBUG-PANIC] hub call handler recovered",
					"panic", rec,
					"op", env.Op,
					"role", rc.role,
					"stack", string(debug.Stack()),
				)
				reply.OK = false
				reply.Error = "internal error"
			}
		}()
		if s.opts.OnCall == nil {
			reply.Error = fmt.Sprintf("no handler for op %q", env.Op)
			return
		}
		result, err := s.opts.OnCall(rc.role, env.Op, env.Payload)
		if err != nil {
			reply.Error = err.Error()
			return
		}
		data, marshalErr := marshalPayload(result)
		if marshalErr != nil {
			slog.Warn("[hub] reply payload marshal failed", "op", env.Op, "error", marshalErr)
			reply.Error = "internal error"
			return
		}
		reply.OK = true
		reply.Payload = data
	}()

	if env.ID == "" {
		// Caller did not ask for a reply.
		return
	}
	if err := s.writeEnvelope(rc, reply); err != nil {
		slog.Warn("[hub] failed to write reply", "op", env.Op, "role", rc.role, "error", err)
	}
}

func (s *Server) dispatchEvent(rc *roleConn, env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] hub event handler recovered",
				"panic", rec,
				"op", env.Op,
				"role", rc.role,
				"stack", string(debug.Stack()),
			)
		}
	}()
	if s.opts.OnEvent == nil {
		slog.Debug("[hub] event dropped, no handler", "op", env.Op, "role", rc.role)
		return
	}
	s.opts.OnEvent(rc.role, env.Op, env.Payload)
}

// routeReply delivers a reply to the waiting Call. Late replies (the call
// timed out and removed its pending entry) are dropped silently.
func (s *Server) routeReply(env Envelope) {
	s.mu.Lock()
	ch, ok := s.pending[env.ID]
	if ok {
		delete(s.pending, env.ID)
	}
	s.mu.Unlock()
	if !ok {
		slog.Debug("[hub] reply for unknown call id", "id", env.ID)
		return
	}
	ch <- env
}

// writeEnvelope serializes and writes one envelope under the connection's
// write lock. Any write failure closes and removes the connection (write
// failure policy: the child must reconnect).
func (s *Server) writeEnvelope(rc *roleConn, env Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	rc.writeMu.Lock()
	if err := rc.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		rc.writeMu.Unlock()
		slog.Warn("[hub] SetWriteDeadline failed, closing connection", "role", rc.role, "error", err)
		s.removeIfCurrent(rc, "SetWriteDeadline failure")
		return err
	}
	writeErr := rc.ws.WriteMessage(websocket.TextMessage, data)
	if deadlineErr := rc.ws.SetWriteDeadline(time.Time{}); deadlineErr != nil {
		slog.Debug("[hub] clearing write deadline failed (non-fatal)", "error", deadlineErr)
	}
	rc.writeMu.Unlock()

	if writeErr != nil {
		slog.Warn("[hub] write failed, closing connection", "role", rc.role, "error", writeErr)
		s.removeIfCurrent(rc, "write error")
		return writeErr
	}
	return nil
}

// pingLoop sends periodic pings so dead children are detected within
// ~readDeadline. Exits when done closes or a ping fails.
func (s *Server) pingLoop(rc *roleConn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] hub pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			s.removeIfCurrent(rc, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rc.writeMu.Lock()
			if err := rc.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				rc.writeMu.Unlock()
				s.removeIfCurrent(rc, "ping SetWriteDeadline failure")
				return
			}
			pingErr := rc.ws.WriteMessage(websocket.PingMessage, nil)
			rc.writeMu.Unlock()

			if pingErr != nil {
				slog.Debug("[hub] ping failed, connection likely dead", "role", rc.role, "error", pingErr)
				s.removeIfCurrent(rc, "ping failure")
				return
			}
		}
	}
}
