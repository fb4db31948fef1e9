package wailshost

import "encoding/json"

// Hub operations the shell sends to child window processes. Each op maps
// onto one platform.Window method; the child executes it against its own
// Wails runtime and replies on the same connection.
const (
	opShow           = "window.show"
	opHide           = "window.hide"
	opFocus          = "window.focus"
	opClose          = "window.close"
	opMinimize       = "window.minimize"
	opToggleMaximize = "window.toggleMaximize"
	opIsMaximized    = "window.isMaximized"
	opNavigate       = "window.navigate"
	opSetAlwaysOnTop = "window.setAlwaysOnTop"
	opSetPosition    = "window.setPosition"
	opSetSkipTaskbar = "window.setSkipTaskbar"
	opEmit           = "window.emit"
)

// Events child processes send to the shell.
const (
	// EventWindowReady announces that the child's page finished loading
	// and can receive state broadcasts.
	EventWindowReady = "window:ready"

	// eventWindowBlurred reports focus loss. Only children created with
	// HideOnFocusLoss send it.
	eventWindowBlurred = "window:blurred"
)

// eventHostBlur is the in-page event the host page emits when its window
// loses focus. The child runtime forwards it to the shell as
// eventWindowBlurred.
const eventHostBlur = "host:blur"

// envWindowSpec carries the JSON-encoded window parameters from the shell
// to a spawned child process.
const envWindowSpec = "GEMDESK_WINDOW_SPEC"

type navigatePayload struct {
	URL string `json:"url"`
}

type positionPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type enabledPayload struct {
	Enabled bool `json:"enabled"`
}

type skipTaskbarPayload struct {
	Skip bool `json:"skip"`
}

type maximizedPayload struct {
	Maximized bool `json:"maximized"`
}

type emitPayload struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
