package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const dialHandshakeTimeout = 10 * time.Second

// ClientCallHandler serves a call arriving from the main process (window
// commands: show, hide, navigate, close).
type ClientCallHandler func(op string, payload json.RawMessage) (any, error)

// ClientEventHandler consumes a broadcast event from the main process.
type ClientEventHandler func(op string, payload json.RawMessage)

// ClientOptions configures a hub client. URL, Token and Role are required.
type ClientOptions struct {
	URL     string
	Token   string
	Role    string
	OnCall  ClientCallHandler
	OnEvent ClientEventHandler
}

// Client is a child window process's connection to the main process's hub.
type Client struct {
	opts ClientOptions
	ws   *websocket.Conn

	// writeMu serializes WriteMessage calls (gorilla/websocket does not
	// support concurrent writes). Never acquire while holding mu.
	writeMu sync.Mutex

	// mu protects pending.
	mu      sync.Mutex
	pending map[string]chan Envelope

	// done closes when the connection drops for any reason; child
	// processes treat that as a signal to exit (orphan prevention).
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the hub, authenticates, announces the role, and starts
// the read pump.
func Dial(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("hub: dial: URL is required")
	}
	if !validRole(opts.Role) {
		return nil, fmt.Errorf("hub: dial: invalid role %q", opts.Role)
	}

	header := http.Header{}
	header.Set(tokenHeader, opts.Token)
	dialer := websocket.Dialer{HandshakeTimeout: dialHandshakeTimeout}
	ws, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("hub: dial %s: %w", opts.URL, err)
	}

	ws.SetReadLimit(maxReadMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("hub: dial: set read deadline: %w", err)
	}
	// The server pings; answer with a pong and extend our own deadline so
	// both sides detect a dead peer within ~readDeadline.
	ws.SetPingHandler(func(appData string) error {
		if err := ws.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return err
		}
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeDeadline))
	})

	c := &Client{
		opts:    opts,
		ws:      ws,
		pending: make(map[string]chan Envelope),
		done:    make(chan struct{}),
	}

	hello := Envelope{Type: typeHello, Role: opts.Role}
	if err := c.writeEnvelope(hello); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("hub: dial: send hello: %w", err)
	}

	go c.readPump()

	slog.Info("[hub] connected to window hub", "role", opts.Role, "url", opts.URL)
	return c, nil
}

// DialFromEnv connects using the endpoint the main process placed in this
// child's environment.
func DialFromEnv(ctx context.Context, role string, onCall ClientCallHandler, onEvent ClientEventHandler) (*Client, error) {
	url := os.Getenv(EnvURL)
	if url == "" {
		return nil, fmt.Errorf("hub: %s is not set (child processes must be spawned by the shell)", EnvURL)
	}
	return Dial(ctx, ClientOptions{
		URL:     url,
		Token:   os.Getenv(EnvToken),
		Role:    role,
		OnCall:  onCall,
		OnEvent: onEvent,
	})
}

// Close tears the connection down. Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if err := c.ws.Close(); err != nil {
			slog.Debug("[hub] client close", "error", err)
		}
	})
	return nil
}

// Done closes when the connection has dropped. The child's main goroutine
// selects on this to exit when the shell goes away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Call sends a request to the main process and waits for the reply. A
// context without a deadline gets defaultCallTimeout.
func (c *Client) Call(ctx context.Context, op string, payload any) (json.RawMessage, error) {
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
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("hub: call %s: connection closed", op)
	}
	c.pending[id] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	env := Envelope{Type: typeCall, ID: id, Op: op, Payload: data}
	if writeErr := c.writeEnvelope(env); writeErr != nil {
		return nil, fmt.Errorf("hub: call %s: %w", op, writeErr)
	}

	select {
	case reply := <-replyCh:
		if !reply.OK {
			return nil, fmt.Errorf("hub: call %s failed: %s", op, reply.Error)
		}
		return reply.Payload, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("hub: call %s: %w", op, ctx.Err())
	case <-c.done:
		return nil, fmt.Errorf("hub: call %s: connection closed", op)
	}
}

// Notify sends a fire-and-forget event to the main process.
func (c *Client) Notify(op string, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	env := Envelope{Type: typeEvent, Op: op, Payload: data}
	if writeErr := c.writeEnvelope(env); writeErr != nil {
		return fmt.Errorf("hub: notify %s: %w", op, writeErr)
	}
	return nil
}

// readPump routes inbound envelopes until the connection drops, then fails
// all pending calls and closes done.
func (c *Client) readPump() {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] hub client read pump recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}

		c.mu.Lock()
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()
		for id, ch := range pending {
			ch <- Envelope{Type: typeReply, ID: id, OK: false, Error: "connection closed"}
		}

		_ = c.Close()
		close(c.done)
		slog.Info("[hub] disconnected from window hub", "role", c.opts.Role)
	}()

	for {
		msgType, msg, readErr := c.ws.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[hub] client read error", "role", c.opts.Role, "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env Envelope
		if jsonErr := json.Unmarshal(msg, &env); jsonErr != nil {
			slog.Debug("[hub] invalid JSON from hub", "error", jsonErr)
			continue
		}

		switch env.Type {
		case typeCall:
			// Own goroutine: a window command handler may block on UI work
			// while the server keeps pinging and sending events.
			go c.dispatchCall(env)
		case typeReply:
			c.routeReply(env)
		case typeEvent:
			go c.dispatchEvent(env)
		default:
			slog.Debug("[hub] unknown envelope type from hub", "type", env.Type)
		}
	}
}

func (c *Client) dispatchCall(env Envelope) {
	reply := Envelope{Type: typeReply, ID: env.ID}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("[DEBUG-PANIC] hub client call handler recovered",
					"panic", rec,
					"op", env.Op,
					"stack", string(debug.Stack()),
				)
				reply.OK = false
				reply.Error = "internal error"
			}
		}()
		if c.opts.OnCall == nil {
			reply.Error = fmt.Sprintf("no handler for op %q", env.Op)
			return
		}
		result, err := c.opts.OnCall(env.Op, env.Payload)
		if err != nil {
			reply.Error = err.Error()
			return
		}
		data, marshalErr := marshalPayload(result)
		if marshalErr != nil {
			slog.Warn("[hub] client reply payload marshal failed", "op", env.Op, "error", marshalErr)
			reply.Error = "internal error"
			return
		}
		reply.OK = true
		reply.Payload = data
	}()

	if env.ID == "" {
		return
	}
	if err := c.writeEnvelope(reply); err != nil {
		slog.Warn("[hub] client failed to write reply", "op", env.Op, "error", err)
	}
}

func (c *Client) dispatchEvent(env Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] hub client event handler recovered",
				"panic", rec,
				"op", env.Op,
				"stack", string(debug.Stack()),
			)
		}
	}()
	if c.opts.OnEvent == nil {
		slog.Debug("[hub] client event dropped, no handler", "op", env.Op)
		return
	}
	c.opts.OnEvent(env.Op, env.Payload)
}

func (c *Client) routeReply(env Envelope) {
	c.mu.Lock()
	var ch chan Envelope
	if c.pending != nil {
		var ok bool
		ch, ok = c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
	}
	c.mu.Unlock()
	if ch == nil {
		slog.Debug("[hub] client reply for unknown call id", "id", env.ID)
		return
	}
	ch <- env
}

// writeEnvelope serializes and writes one envelope under the write lock.
// Write failures close the connection; the read pump notices and finishes
// cleanup.
func (c *Client) writeEnvelope(env Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		_ = c.Close()
		return err
	}
	writeErr := c.ws.WriteMessage(websocket.TextMessage, data)
	if deadlineErr := c.ws.SetWriteDeadline(time.Time{}); deadlineErr != nil {
		slog.Debug("[hub] client clearing write deadline failed (non-fatal)", "error", deadlineErr)
	}
	if writeErr != nil {
		_ = c.Close()
		return writeErr
	}
	return nil
}
