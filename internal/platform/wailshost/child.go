package wailshost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gemdesk/internal/hub"
	"gemdesk/internal/platform"
)

// ChildWindow is the child-process half of the remote window protocol. It
// hosts one Wails window, executes window commands arriving from the shell
// and forwards page requests back. Wire Startup, DomReady and Shutdown into
// the Wails application hooks of the child process.
type ChildWindow struct {
	role   platform.Role
	params platform.WindowParams

	mu     sync.Mutex
	ctx    context.Context
	client *hub.Client

	navOnce  sync.Once
	quitOnce sync.Once
}

// NewChildWindow reads the window spec the shell placed in the environment.
func NewChildWindow(role platform.Role) (*ChildWindow, error) {
	if !role.Valid() || role == platform.RoleMain {
		return nil, fmt.Errorf("wailshost: %q is not a child window role", role)
	}
	raw := os.Getenv(envWindowSpec)
	if raw == "" {
		return nil, fmt.Errorf("wailshost: %s not set (child windows must be spawned by the shell)", envWindowSpec)
	}
	var spec childWindowSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("wailshost: decode %s: %w", envWindowSpec, err)
	}
	return &ChildWindow{role: role, params: spec.params()}, nil
}

// Role returns the window role this process hosts.
func (c *ChildWindow) Role() platform.Role { return c.role }

// Params returns the window shape the shell requested, for building the
// Wails application options.
func (c *ChildWindow) Params() platform.WindowParams { return c.params }

// Startup positions and reveals the window, then connects to the shell.
// Call it from the Wails OnStartup hook. The window starts hidden so the
// first paint already has the right placement.
func (c *ChildWindow) Startup(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if !c.params.Centered && (c.params.X != 0 || c.params.Y != 0) {
		runtimeWindowSetPositionFn(ctx, c.params.X, c.params.Y)
	}
	runtimeWindowShowFn(ctx)

	if c.params.HideOnFocusLoss {
		runtimeEventsOnFn(ctx, eventHostBlur, func(...interface{}) {
			c.notifyBlurred()
		})
	}

	client, err := hub.DialFromEnv(ctx, string(c.role), c.handleCall, c.handleEvent)
	if err != nil {
		// Without the hub this window is an orphan no shell controls.
		slog.Error("[host] hub connect failed, exiting", "role", c.role, "error", err)
		c.quit()
		return
	}
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	go func() {
		<-client.Done()
		slog.Info("[host] hub connection gone, closing window", "role", c.role)
		c.quit()
	}()
}

// DomReady points the loaded page at the role's content and announces that
// the window can receive broadcasts. Call it from the Wails OnDomReady hook.
// Navigation waits for DomReady because script executed against a page still
// loading is silently dropped.
func (c *ChildWindow) DomReady(ctx context.Context) {
	if c.params.URL != "" {
		c.navOnce.Do(func() {
			runtimeWindowExecJSFn(ctx, navigateScript(c.params.URL))
		})
	}
	client := c.hubClient()
	if client == nil {
		return
	}
	if err := client.Notify(EventWindowReady, nil); err != nil {
		slog.Warn("[host] ready announcement failed", "role", c.role, "error", err)
	}
}

// Shutdown drops the hub connection. Call it from the Wails OnShutdown
// hook.
func (c *ChildWindow) Shutdown(context.Context) {
	if client := c.hubClient(); client != nil {
		_ = client.Close()
	}
}

// Forward sends a page-originated request to the shell core and returns the
// raw reply. The bound API surface of child processes sits on top of this.
func (c *ChildWindow) Forward(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	client := c.hubClient()
	if client == nil {
		return nil, errors.New("wailshost: not connected to the shell")
	}
	return client.Call(ctx, op, payload)
}

// handleCall executes one window command from the shell.
func (c *ChildWindow) handleCall(op string, payload json.RawMessage) (any, error) {
	ctx := c.runtimeContext()
	if ctx == nil {
		return nil, errors.New("window runtime not started")
	}

	switch op {
	case opShow:
		runtimeWindowShowFn(ctx)
	case opHide:
		runtimeWindowHideFn(ctx)
	case opFocus:
		runtimeWindowShowFn(ctx)
		runtimeWindowUnminimiseFn(ctx)
	case opMinimize:
		runtimeWindowMinimiseFn(ctx)
	case opToggleMaximize:
		runtimeWindowToggleMaximiseFn(ctx)
	case opIsMaximized:
		return maximizedPayload{Maximized: runtimeWindowIsMaximisedFn(ctx)}, nil
	case opClose:
		// Quit on a fresh goroutine so the reply goes out first.
		go c.quit()
	case opNavigate:
		var p navigatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		runtimeWindowExecJSFn(ctx, navigateScript(p.URL))
	case opSetAlwaysOnTop:
		var p enabledPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		runtimeWindowSetAlwaysOnTopFn(ctx, p.Enabled)
	case opSetPosition:
		var p positionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		runtimeWindowSetPositionFn(ctx, p.X, p.Y)
	case opSetSkipTaskbar:
		var p skipTaskbarPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", op, err)
		}
		return nil, setTaskbarPresence(c.params.Title, p.Skip)
	default:
		return nil, fmt.Errorf("unknown window op %q", op)
	}
	return nil, nil
}

// handleEvent consumes shell notifications addressed at this window's page.
func (c *ChildWindow) handleEvent(op string, payload json.RawMessage) {
	if op != opEmit {
		slog.Debug("[host] unhandled event", "role", c.role, "op", op)
		return
	}
	ctx := c.runtimeContext()
	if ctx == nil {
		return
	}
	var p emitPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		slog.Warn("[host] bad emit payload", "role", c.role, "error", err)
		return
	}
	var data any
	if len(p.Payload) > 0 {
		if err := json.Unmarshal(p.Payload, &data); err != nil {
			slog.Warn("[host] bad emit payload body", "role", c.role, "event", p.Event, "error", err)
			return
		}
	}
	runtimeEventsEmitFn(ctx, p.Event, data)
}

func (c *ChildWindow) notifyBlurred() {
	client := c.hubClient()
	if client == nil {
		return
	}
	if err := client.Notify(eventWindowBlurred, nil); err != nil {
		slog.Debug("[host] blur notify failed", "role", c.role, "error", err)
	}
}

func (c *ChildWindow) quit() {
	c.quitOnce.Do(func() {
		if ctx := c.runtimeContext(); ctx != nil {
			runtimeQuitFn(ctx)
			return
		}
		// Startup never ran; there is no runtime to unwind.
		os.Exit(1)
	})
}

func (c *ChildWindow) runtimeContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *ChildWindow) hubClient() *hub.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}
