package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gemdesk/internal/broker"
	"gemdesk/internal/config"
	"gemdesk/internal/hotkeys"
	"gemdesk/internal/hub"
	"gemdesk/internal/ipc"
	"gemdesk/internal/platform"
	"gemdesk/internal/platform/wailshost"
	"gemdesk/internal/proxy"
	"gemdesk/internal/settings"
	"gemdesk/internal/window"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...interface{})
	Infof(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeLogger         appRuntimeLogger = wailsRuntimeLogger{}
	runtimeQuitFn                          = runtime.Quit
	runtimeWindowReloadFn                  = runtime.WindowReloadApp
	newOSRegistrarFn                       = hotkeys.NewOSRegistrar
	newSettingsStoreFn                     = func(path string) (settings.Store, error) { return settings.New(path) }
)

// logLevel backs the default slog handler so config edits can retune
// verbosity without rebuilding the logger.
var logLevel = new(slog.LevelVar)

func initLogging() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func (a *App) addStartupWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	a.startupWarnMu.Lock()
	a.configLoadWarnings = append(a.configLoadWarnings, trimmed)
	a.startupWarnMu.Unlock()
}

func (a *App) consumeStartupWarnings() []string {
	a.startupWarnMu.Lock()
	defer a.startupWarnMu.Unlock()
	warnings := a.configLoadWarnings
	a.configLoadWarnings = nil
	return warnings
}

// loadBootConfig resolves and loads the boot configuration. It runs before
// the Wails bootstrap because window options (start hidden) are fixed at
// Run time. Load failures are non-fatal by product decision: the shell
// starts with defaults and surfaces a warning instead.
func (a *App) loadBootConfig() {
	a.configPath = config.DefaultPath()
	for _, message := range config.ConsumeDefaultPathWarnings() {
		a.addStartupWarning(message)
	}

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
		a.addStartupWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		slog.Warn("[config] load failed, running with defaults", "path", a.configPath, "error", err)
	}
	a.setConfigSnapshot(cfg)
	logLevel.Set(config.ParseLogLevel(cfg.LogLevel))
}

func (a *App) startup(ctx context.Context) {
	setConsoleUTF8()
	a.setRuntimeContext(ctx)

	cfg := a.getConfigSnapshot()

	a.openSettingsStore(ctx, cfg)

	if err := a.buildCollaborators(ctx, cfg); err != nil {
		// Without the toolkit chain there is nothing to run; leave the bare
		// window up so the failure is at least visible.
		runtimeLogger.Errorf(ctx, "shell core failed to assemble: %v", err)
		a.addStartupWarning("GemDesk failed to start its core services. Error: " + err.Error())
		return
	}

	if a.proxy != nil {
		if err := a.proxy.Start(ctx); err != nil {
			runtimeLogger.Warningf(ctx, "embedding proxy failed to start: %v", err)
			a.addStartupWarning(
				"The content proxy failed to start. Gemini cannot be displayed. Error: " + err.Error(),
			)
			a.proxy = nil
		}
	}
	if err := a.hub.Start(ctx); err != nil {
		runtimeLogger.Warningf(ctx, "window hub failed to start: %v", err)
		a.addStartupWarning(
			"The window hub failed to start. Settings and quick entry windows are unavailable. Error: " + err.Error(),
		)
	}

	a.broker.LoadPersisted()

	if _, err := a.windows.OpenOrFocus(ctx, platform.RoleMain, window.OpenOptions{}); err != nil {
		runtimeLogger.Errorf(ctx, "main window adoption failed: %v", err)
	}
	if cfg.StartHidden {
		a.windows.HideToTray()
	}

	a.hotkeys.RegisterAll()
	a.installMenu(ctx)
	a.startTray()
	a.startActivationServer(ctx)
	a.watchConfig()

	runtimeLogger.Infof(ctx, "gemdesk %s ready (proxy %s, hub %s)", appVersion, a.proxyState(), a.hub.URL())
}

func (a *App) openSettingsStore(ctx context.Context, cfg config.Config) {
	path := filepath.Join(config.ResolveDataDir(cfg), "settings.db")
	store, err := newSettingsStoreFn(path)
	if err != nil {
		runtimeLogger.Warningf(ctx, "settings store unavailable: %v", err)
		a.addStartupWarning(
			"Preference storage failed to open; settings will not survive a restart. Error: " + err.Error(),
		)
		a.store = settings.NewMemory()
		return
	}
	a.store = store
}

// buildCollaborators assembles the core object graph. Nothing here starts
// serving: the servers start afterwards, which is also what makes the plain
// field writes safe (every reader goroutine is spawned later).
func (a *App) buildCollaborators(ctx context.Context, cfg config.Config) error {
	prx, err := proxy.New(proxy.Options{
		Port:      cfg.ProxyPort,
		UserAgent: cfg.UserAgent,
		Observer:  a.observeDocumentLoad,
	})
	if err != nil {
		runtimeLogger.Warningf(ctx, "embedding proxy unavailable: %v", err)
		a.addStartupWarning("The content proxy could not be created. Gemini cannot be displayed. Error: " + err.Error())
	} else {
		a.proxy = prx
	}

	a.hub = hub.NewServer(hub.ServerOptions{
		Addr:         hubListenAddr(cfg.HubPort),
		OnCall:       a.handleHubCall,
		OnEvent:      a.handleHubEvent,
		OnDisconnect: a.handleHubDisconnect,
	})

	toolkit, err := wailshost.New(wailshost.Options{Hub: a.hub})
	if err != nil {
		return fmt.Errorf("toolkit: %w", err)
	}
	toolkit.SetRuntimeContext(ctx)
	a.toolkit = toolkit

	windows, err := window.NewRegistry(window.Options{
		Toolkit:        toolkit,
		ContentURL:     a.roleContentURL,
		AuthContentURL: a.authContentURL,
		LocalHosts:     cfg.LocalHosts,
	})
	if err != nil {
		return fmt.Errorf("window registry: %w", err)
	}
	a.windows = windows

	shortcuts, err := hotkeys.New(hotkeys.Options{
		Specs:         defaultHotkeySpecs(),
		Actions:       a.hotkeyActions(),
		Registrar:     newOSRegistrarFn(),
		Capabilities:  toolkit.Capabilities(),
		DisableGlobal: cfg.DisableGlobalHotkeys,
	})
	if err != nil {
		return fmt.Errorf("hotkey registry: %w", err)
	}
	a.hotkeys = shortcuts

	core, err := broker.New(broker.Options{
		Store:       a.store,
		Windows:     windows,
		Hotkeys:     shortcuts,
		SystemTheme: toolkit.SystemTheme,
	})
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	a.broker = core
	return nil
}

func (a *App) installMenu(ctx context.Context) {
	appMenu, err := wailshost.NewAppMenu(wailshost.MenuOptions{
		Hotkeys:            a.hotkeys,
		QuickEntryAction:   actionQuickEntry,
		OpenSettingsAction: actionOpenSettings,
		AlwaysOnTopAction:  actionAlwaysOnTop,
		ReloadAction:       actionReload,
		AlwaysOnTop:        a.windows.AlwaysOnTop,
		AlwaysOnTopChanged: a.windows.AlwaysOnTopChanged(),
		OnAbout:            a.showAbout,
		OnQuit:             a.quit,
	})
	if err != nil {
		runtimeLogger.Warningf(ctx, "application menu unavailable: %v", err)
		return
	}
	a.appMenu = appMenu
	appMenu.Install(ctx)
}

func (a *App) startTray() {
	a.tray = wailshost.NewTray(wailshost.TrayOptions{
		Tooltip:            "GemDesk",
		AlwaysOnTop:        a.windows.AlwaysOnTop,
		AlwaysOnTopChanged: a.windows.AlwaysOnTopChanged(),
		OnToggleMain:       func() { a.hotkeys.ExecuteAction(actionToggleMain) },
		OnQuickEntry:       func() { a.hotkeys.ExecuteAction(actionQuickEntry) },
		OnOpenSettings:     func() { a.hotkeys.ExecuteAction(actionOpenSettings) },
		OnSetAlwaysOnTop:   func(enabled bool) { a.broker.SetAlwaysOnTop(enabled) },
		OnQuit:             a.quit,
	})
	a.tray.Start()
}

func (a *App) startActivationServer(ctx context.Context) {
	server := ipc.NewServer(ipc.DefaultEndpoint(), ipc.HandlerFunc(a.handleActivation))
	if err := server.Start(); err != nil {
		runtimeLogger.Warningf(ctx, "activation endpoint failed: %v", err)
		a.addStartupWarning(
			"The activation endpoint failed to start. A second launch cannot wake this instance. Error: " + err.Error(),
		)
		return
	}
	a.activation = server
}

func (a *App) watchConfig() {
	watcher, err := config.NewWatcher(a.configPath, a.applyConfigChange)
	if err != nil {
		slog.Warn("[config] watcher unavailable", "error", err)
		return
	}
	if err := watcher.Start(); err != nil {
		slog.Warn("[config] watcher failed to start", "error", err)
		return
	}
	a.cfgWatcher = watcher
}

// applyConfigChange reacts to an external edit of the config file. Log
// level and the global-shortcut gate apply live; server addresses and the
// data directory are fixed for the life of the process.
func (a *App) applyConfigChange(next config.Config) {
	prev := a.getConfigSnapshot()
	a.setConfigSnapshot(next)

	if next.LogLevel != prev.LogLevel {
		logLevel.Set(config.ParseLogLevel(next.LogLevel))
		slog.Info("[config] log level changed", "level", next.LogLevel)
	}
	if next.DisableGlobalHotkeys != prev.DisableGlobalHotkeys && a.hotkeys != nil {
		if next.DisableGlobalHotkeys {
			slog.Info("[config] global shortcuts disabled")
			a.hotkeys.UnregisterAll()
		} else {
			slog.Info("[config] global shortcuts re-enabled")
			a.hotkeys.RegisterAll()
		}
	}
	if next.ProxyPort != prev.ProxyPort || next.HubPort != prev.HubPort ||
		next.UserAgent != prev.UserAgent || next.DataDir != prev.DataDir {
		slog.Info("[config] server settings changed on disk, restart to apply")
	}
}

func (a *App) shutdown(_ context.Context) {
	if a.shuttingDown.Swap(true) {
		return
	}
	logCtx := a.runtimeContext()

	// Children are closed over the hub, so the hub must outlive BeginQuit.
	if a.windows != nil {
		a.windows.BeginQuit()
	}
	if a.hotkeys != nil {
		a.hotkeys.UnregisterAll()
	}
	if a.cfgWatcher != nil {
		a.cfgWatcher.Stop()
	}
	if a.activation != nil {
		if err := a.activation.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "activation endpoint stop failed: %v", err)
		}
	}
	if a.tray != nil {
		a.tray.Stop()
	}
	if a.hub != nil {
		if err := a.hub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "window hub stop failed: %v", err)
		}
	}
	if a.proxy != nil {
		if err := a.proxy.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "embedding proxy stop failed: %v", err)
		}
	}
	if a.toolkit != nil {
		a.toolkit.NotifyMainClosed()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "settings store close failed: %v", err)
		}
	}
}

// beforeClose implements close-to-tray: returning true cancels the native
// close and the main window hides instead. Once the quit sequence has
// started the close proceeds.
func (a *App) beforeClose(_ context.Context) bool {
	if a.windows == nil {
		return false
	}
	return a.windows.HandleMainCloseRequested()
}

// quit starts the real shutdown: the registry flips its quitting flag and
// closes the auxiliary windows while the hub is still up, then the Wails
// teardown runs.
func (a *App) quit() {
	if a.windows != nil {
		a.windows.BeginQuit()
	}
	if ctx := a.runtimeContext(); ctx != nil {
		runtimeQuitFn(ctx)
	}
}

func (a *App) showAbout() {
	ctx := a.runtimeContext()
	if ctx == nil || a.broker == nil {
		return
	}
	a.broker.OpenSettings(ctx, "about")
}

// observeDocumentLoad feeds the proxy's document reports into the auth
// window observer. The proxy can serve before the registry exists only in
// tests; production starts it afterwards.
func (a *App) observeDocumentLoad(target string, loadErr error) {
	if a.windows == nil {
		return
	}
	a.windows.ObserveAuthNavigation(target, loadErr)
}

// roleContentURL maps a window role to the page it loads. Main keeps the
// embedded index the Wails bootstrap already serves; auxiliary roles
// navigate to their own embedded pages once their DOM is up.
func (a *App) roleContentURL(role platform.Role) string {
	switch role {
	case platform.RoleSettings:
		return "/settings.html"
	case platform.RoleQuickEntry:
		return "/quick-entry.html"
	default:
		return ""
	}
}

// authContentURL routes a sign-in target through the embedding proxy so
// its navigations stay observable. Without a proxy the target loads
// directly and the auto-close on reaching Gemini degrades to manual close.
func (a *App) authContentURL(target string) string {
	if a.proxy == nil {
		return target
	}
	rewritten, err := a.proxy.RewriteURL(target)
	if err != nil {
		slog.Warn("[shell] sign-in target not embeddable, loading directly", "target", target, "error", err)
		return target
	}
	return rewritten
}

func (a *App) proxyState() string {
	if a.proxy == nil {
		return "off"
	}
	return a.proxy.BaseURL()
}

func hubListenAddr(port int) string {
	return "127.0.0.1:" + strconv.Itoa(port)
}
