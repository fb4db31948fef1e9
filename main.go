package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"gemdesk/internal/ipc"
	"gemdesk/internal/platform"
	"gemdesk/internal/platform/wailshost"
	"gemdesk/internal/singleinstance"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	initLogging()

	role := flag.String("role", "", "window role hosted by this process (set by the shell when spawning auxiliary windows)")
	flag.Parse()

	if *role != "" {
		runChildWindow(*role)
		return
	}
	runShell()
}

// runShell is the primary process: shell core, main window, tray, hotkeys.
func runShell() {
	app := NewApp()
	// Boot config loads before Wails because StartHidden is fixed at Run
	// time. Load failures degrade to defaults and surface as warnings.
	app.loadBootConfig()
	cfg := app.getConfigSnapshot()

	// Single-instance check BEFORE any Wails/WebView2 initialization. Two
	// simultaneous shells would fight over the activation endpoint and the
	// settings store.
	mutexLock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		slog.Info("[single] another instance is already running, forwarding activation")
		if _, sendErr := ipc.Send("", ipc.Request{Op: ipc.OpActivate}); sendErr != nil {
			slog.Warn("[single] activation forward failed", "error", sendErr)
		}
		return
	}
	if err != nil {
		// Lock creation failed for an unexpected reason. Continue startup
		// without the guard rather than refuse to launch.
		slog.Warn("[single] instance lock failed, proceeding unguarded", "error", err)
	}
	if mutexLock != nil {
		defer func() {
			if releaseErr := mutexLock.Release(); releaseErr != nil {
				slog.Warn("[single] instance lock release failed", "error", releaseErr)
			}
		}()
	}

	err = wails.Run(&options.App{
		Title:       "GemDesk",
		Width:       1280,
		Height:      800,
		MinWidth:    800,
		MinHeight:   600,
		Frameless:   wailshost.HostCapabilities().FramelessChrome,
		StartHidden: cfg.StartHidden,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 18, G: 18, B: 24, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		OnBeforeClose:    app.beforeClose,
		Bind: []any{
			app,
		},
	})
	if err != nil {
		slog.Error("[shell] wails run failed", "error", err)
	}
}

// runChildWindow hosts one auxiliary window in this process, driven by the
// shell over the hub. The window spec arrives in the environment; the hub
// address and token do too.
func runChildWindow(role string) {
	child, err := wailshost.NewChildWindow(platform.Role(role))
	if err != nil {
		slog.Error("[host] child window init failed", "role", role, "error", err)
		os.Exit(1)
	}
	params := child.Params()
	bridge := newBridge(child)

	err = wails.Run(&options.App{
		Title:         params.Title,
		Width:         params.Width,
		Height:        params.Height,
		MinWidth:      params.MinWidth,
		MinHeight:     params.MinHeight,
		Frameless:     params.Frameless,
		AlwaysOnTop:   params.AlwaysOnTop,
		DisableResize: child.Role() == platform.RoleQuickEntry,
		// Hidden until Startup has positioned the window, so the first
		// paint already has the right placement.
		StartHidden: true,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 18, G: 18, B: 24, A: 1},
		OnStartup: func(ctx context.Context) {
			bridge.startup(ctx)
			child.Startup(ctx)
		},
		OnDomReady: child.DomReady,
		OnShutdown: child.Shutdown,
		Bind: []any{
			bridge,
		},
	})
	if err != nil {
		slog.Error("[host] wails run failed", "role", role, "error", err)
		os.Exit(1)
	}
}
