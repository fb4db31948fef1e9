package main

import (
	"context"
	"sync"
	"sync/atomic"

	"gemdesk/internal/broker"
	"gemdesk/internal/config"
	"gemdesk/internal/hotkeys"
	"gemdesk/internal/hub"
	"gemdesk/internal/ipc"
	"gemdesk/internal/platform/wailshost"
	"gemdesk/internal/proxy"
	"gemdesk/internal/settings"
	"gemdesk/internal/window"
)

// appVersion is reported by the activation ping op and the About dialog.
const appVersion = "0.1.0"

// App is the Wails-bound application service of the shell process. It owns
// every long-lived collaborator; auxiliary window processes reach the same
// collaborators through the window hub.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	//
	// Independent locks: do not assume ordering across these.
	//   cfgMu, ctxMu, startupWarnMu
	//
	// The collaborator fields below are written once during runShell /
	// startup before any concurrent reader starts (servers, tray, hotkeys
	// all start after assignment) and never reassigned; they are read
	// without a mutex.
	cfgMu              sync.RWMutex
	cfg                config.Config
	configPath         string
	startupWarnMu      sync.Mutex
	configLoadWarnings []string

	// Backend services.
	store      settings.Store
	proxy      *proxy.Server
	hub        *hub.Server
	toolkit    *wailshost.Toolkit
	windows    *window.Registry
	hotkeys    *hotkeys.Registry
	broker     *broker.Broker
	tray       *wailshost.Tray
	appMenu    *wailshost.AppMenu
	activation *ipc.Server
	cfgWatcher *config.Watcher

	// shuttingDown is set at the start of shutdown(); it makes a second
	// OnShutdown delivery (quit raced with a window close) a no-op.
	shuttingDown atomic.Bool
}

// NewApp creates the app service. Collaborators are wired in startup once
// the Wails runtime context exists.
func NewApp() *App {
	return &App{}
}
