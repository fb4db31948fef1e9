package window

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"gemdesk/internal/domain"
	"gemdesk/internal/platform"
)

// OpenAuth opens the dedicated sign-in window loading target. At most one
// auth window exists: an existing one is closed first. The window shares
// the default browsing session so cookies set during sign-in are visible to
// the main window.
func (r *Registry) OpenAuth(ctx context.Context, target string) (*Handle, error) {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return nil, fmt.Errorf("window: empty auth url")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("window: invalid auth url %q: %w", target, err)
	}

	// At-most-one: close the previous window and wait for its slot to
	// clear before constructing the replacement.
	r.mu.Lock()
	existing := r.slots[platform.RoleAuth].handle
	r.mu.Unlock()
	if existing != nil && !existing.Destroyed() {
		slog.Info("[window] closing previous auth window")
		if err := existing.Close(); err != nil && err != ErrWindowDestroyed {
			slog.Warn("[window] previous auth window close failed", "error", err)
		}
		if err := existing.WaitClosed(ctx); err != nil {
			return nil, fmt.Errorf("window: previous auth window did not close: %w", err)
		}
	}

	for {
		r.mu.Lock()
		s := r.slots[platform.RoleAuth]
		if h := s.handle; h != nil && !h.Destroyed() {
			// Lost a race against a concurrent OpenAuth; reuse its window.
			r.mu.Unlock()
			if err := h.Navigate(r.authContentURL(trimmed)); err != nil {
				slog.Warn("[window] auth navigate failed", "error", err)
			}
			return h, nil
		}
		if s.creating != nil {
			wait := s.creating
			r.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		done := make(chan struct{})
		s.creating = done
		r.mu.Unlock()

		params := r.roleParams(platform.RoleAuth, OpenOptions{})
		params.URL = r.authContentURL(trimmed)
		slog.Info("[window] opening auth window", "target", trimmed)
		return r.create(ctx, platform.RoleAuth, params, done)
	}
}

// ObserveAuthNavigation feeds top-level navigation outcomes of the auth
// window back into the registry. A successful navigation to internal
// content means sign-in finished and the window auto-closes. Load failures
// leave the window open for a manual retry. Anything else is a no-op.
func (r *Registry) ObserveAuthNavigation(target string, loadErr error) {
	h := r.Handle(platform.RoleAuth)
	if h == nil {
		return
	}

	if loadErr != nil {
		slog.Warn("[window] auth navigation failed; leaving window open",
			"url", target, "error", loadErr)
		return
	}

	if domain.ClassifyURL(target) != domain.Internal {
		return
	}

	slog.Info("[window] sign-in reached internal content; closing auth window", "url", target)
	h.markAuthCompleted()
	if err := h.Close(); err != nil && err != ErrWindowDestroyed {
		slog.Warn("[window] auth window close failed", "error", err)
	}
}
