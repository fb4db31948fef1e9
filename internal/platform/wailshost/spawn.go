package wailshost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"gemdesk/internal/hub"
	"gemdesk/internal/platform"
	"gemdesk/internal/procutil"
)

// spawnReadyTimeout bounds how long a freshly spawned child may take to
// dial the hub. Webview bring-up dominates; 15 seconds covers cold starts.
const spawnReadyTimeout = 15 * time.Second

// childWindowSpec is the window shape handed to a child process through its
// environment. It mirrors platform.WindowParams minus the callbacks, which
// stay on the shell side.
type childWindowSpec struct {
	Title           string `json:"title"`
	URL             string `json:"url,omitempty"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	MinWidth        int    `json:"minWidth,omitempty"`
	MinHeight       int    `json:"minHeight,omitempty"`
	X               int    `json:"x,omitempty"`
	Y               int    `json:"y,omitempty"`
	Centered        bool   `json:"centered,omitempty"`
	Frameless       bool   `json:"frameless,omitempty"`
	AlwaysOnTop     bool   `json:"alwaysOnTop,omitempty"`
	HideOnFocusLoss bool   `json:"hideOnFocusLoss,omitempty"`
}

func specFromParams(params platform.WindowParams) childWindowSpec {
	return childWindowSpec{
		Title:           params.Title,
		URL:             params.URL,
		Width:           params.Width,
		Height:          params.Height,
		MinWidth:        params.MinWidth,
		MinHeight:       params.MinHeight,
		X:               params.X,
		Y:               params.Y,
		Centered:        params.Centered,
		Frameless:       params.Frameless,
		AlwaysOnTop:     params.AlwaysOnTop,
		HideOnFocusLoss: params.HideOnFocusLoss,
	}
}

func (s childWindowSpec) params() platform.WindowParams {
	return platform.WindowParams{
		Title:           s.Title,
		URL:             s.URL,
		Width:           s.Width,
		Height:          s.Height,
		MinWidth:        s.MinWidth,
		MinHeight:       s.MinHeight,
		X:               s.X,
		Y:               s.Y,
		Centered:        s.Centered,
		Frameless:       s.Frameless,
		AlwaysOnTop:     s.AlwaysOnTop,
		HideOnFocusLoss: s.HideOnFocusLoss,
	}
}

// spawnChild starts the shell executable in the given window role and waits
// for it to dial the hub. A child that never connects is killed: a window
// process without a shell connection can only leak.
func (t *Toolkit) spawnChild(ctx context.Context, role platform.Role, params platform.WindowParams) (*os.Process, error) {
	spec, err := json.Marshal(specFromParams(params))
	if err != nil {
		return nil, fmt.Errorf("wailshost: encode window spec: %w", err)
	}

	cmd := exec.Command(t.exePath, "-role="+string(role))
	cmd.Env = append(os.Environ(),
		hub.EnvURL+"="+t.hub.URL(),
		hub.EnvToken+"="+t.hub.Token(),
		envWindowSpec+"="+string(spec),
	)
	procutil.HideWindow(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("wailshost: spawn %s window process: %w", role, err)
	}
	slog.Info("[host] spawned child window process", "role", role, "pid", cmd.Process.Pid)

	// Reap the child whenever and however it exits.
	go func() {
		_ = cmd.Wait()
	}()

	awaitCtx, cancel := context.WithTimeout(ctx, spawnReadyTimeout)
	defer cancel()
	if err := t.hub.AwaitRole(awaitCtx, string(role)); err != nil {
		if killErr := cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			slog.Warn("[host] kill unresponsive child failed", "role", role, "error", killErr)
		}
		return nil, fmt.Errorf("wailshost: %s window process never connected: %w", role, err)
	}
	return cmd.Process, nil
}
