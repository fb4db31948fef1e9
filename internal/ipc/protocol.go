// Package ipc carries activation requests between GemDesk processes. A
// second launch, the gemdeskctl tool, or a shell integration sends one
// request over the per-user endpoint and the running shell reacts: restore
// the main window, toggle quick entry, open settings.
//
// The endpoint is a Named Pipe on Windows and a unix domain socket
// elsewhere; both use the same newline-delimited JSON framing.
package ipc

import (
	"encoding/json"
	"os"
	"os/user"
	"strings"

	"gemdesk/internal/userutil"
)

// Ops accepted by the activation endpoint. Anything else gets an error
// response.
const (
	// OpActivate restores and focuses the main window.
	OpActivate = "activate"
	// OpQuickEntry toggles the quick entry window.
	OpQuickEntry = "quick-entry"
	// OpOpenSettings opens or focuses the settings window. Args["tab"]
	// optionally selects a settings section.
	OpOpenSettings = "open-settings"
	// OpPing checks liveness; the response result carries the shell version.
	OpPing = "ping"
)

// Request is a single activation command.
type Request struct {
	Op   string            `json:"op"`
	Args map[string]string `json:"args,omitempty"`
}

// Response reports the outcome of a Request.
type Response struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result string `json:"result,omitempty"`
}

// Handler processes one activation request and returns its response.
type Handler interface {
	Handle(req Request) Response
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(req Request) Response

// Handle implements Handler.
func (f HandlerFunc) Handle(req Request) Response { return f(req) }

// KnownOp reports whether op names a supported activation operation.
func KnownOp(op string) bool {
	switch op {
	case OpActivate, OpQuickEntry, OpOpenSettings, OpPing:
		return true
	}
	return false
}

func sanitizeUsername(value string) string {
	return userutil.SanitizeUsername(value)
}

// currentUsername resolves the username used in per-user endpoint names.
func currentUsername() string {
	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return sanitizeUsername(username)
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Op = strings.TrimSpace(req.Op)
	if req.Args == nil {
		req.Args = map[string]string{}
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	err := json.Unmarshal(raw, &resp)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
