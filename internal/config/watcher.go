package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gemdesk/internal/workerutil"
)

// debounceDelay coalesces the event bursts editors and atomic renames
// produce into a single reload.
const debounceDelay = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// result to a callback. The parent directory is watched rather than the
// file itself: atomic saves replace the file by rename, which would drop a
// direct file watch.
type Watcher struct {
	path     string
	onChange func(Config)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	started bool
}

// NewWatcher constructs a watcher for path. onChange runs on the watcher
// goroutine; keep it short or hand off.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config watcher: path required")
	}
	if onChange == nil {
		return nil, errors.New("config watcher: onChange required")
	}
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     filepath.Clean(absolutePath),
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. The config directory must exist (EnsureFile
// creates it).
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return errors.New("config watcher already started")
	}
	if w.ctx.Err() != nil {
		return errors.New("config watcher already stopped")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw
	w.started = true

	workerutil.RunWithPanicRecovery(w.ctx, "config-watcher", &w.wg, w.run, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return w.ctx.Err() != nil },
	})
	return nil
}

// Stop cancels the watch and waits for the watcher goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()

	w.cancel()
	if fsw != nil {
		if err := fsw.Close(); err != nil {
			slog.Warn("[WARN-CONFIG] failed to close fs watcher", "error", err)
		}
	}
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()
	if fsw == nil {
		return
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.matches(event) {
				continue
			}
			slog.Debug("[DEBUG-CONFIG] config file event", "op", event.Op.String(), "path", event.Name)
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

// matches reports whether the event refers to the watched config file with
// an op that changes its content. Atomic saves surface as Create (rename
// target), editors as Write.
func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(name, w.path)
	}
	return name == w.path
}

// reload loads the file and notifies. A parse failure skips notification:
// mid-edit states must not reset live configuration to defaults.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("[WARN-CONFIG] config reload skipped", "path", w.path, "error", err)
		return
	}
	slog.Info("[DEBUG-CONFIG] config reloaded from disk", "path", w.path)
	w.onChange(cfg)
}
