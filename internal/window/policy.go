package window

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strings"

	"gemdesk/internal/domain"
)

// PopupDecision is the outcome of a popup request.
type PopupDecision struct {
	// Allow permits the popup to open as an in-shell window.
	Allow bool
	// OpensAuth reports that the request was diverted into the auth
	// window instead of a popup.
	OpensAuth bool
}

// HandlePopupRequest classifies a popup target and decides its fate:
// OAuth hosts divert into the auth window (popup itself denied), internal
// hosts are allowed, http/https externals are handed to the system browser,
// and everything else is dropped silently. Unknown schemes never execute.
func (r *Registry) HandlePopupRequest(ctx context.Context, rawURL string) PopupDecision {
	switch domain.ClassifyURL(rawURL) {
	case domain.OAuth:
		if _, err := r.OpenAuth(ctx, rawURL); err != nil {
			slog.Error("[window] auth window for popup failed", "url", rawURL, "error", err)
		}
		return PopupDecision{Allow: false, OpensAuth: true}

	case domain.Internal:
		slog.Info("[window] popup allowed", "url", rawURL)
		return PopupDecision{Allow: true}

	default:
		u, err := url.Parse(strings.TrimSpace(rawURL))
		if err != nil {
			slog.Warn("[window] popup with unparsable url denied", "url", rawURL)
			return PopupDecision{Allow: false}
		}
		switch u.Scheme {
		case "http", "https":
			slog.Info("[window] popup handed to system browser", "url", rawURL)
			if err := r.toolkit.OpenExternal(rawURL); err != nil {
				slog.Warn("[window] system browser handoff failed", "url", rawURL, "error", err)
			}
		default:
			slog.Warn("[window] popup with unsupported scheme dropped", "scheme", u.Scheme, "url", rawURL)
		}
		return PopupDecision{Allow: false}
	}
}

// HandleNavigationRequest reports whether an in-place navigation may
// proceed. Internal and OAuth hosts are allowed; the shell's own content
// origins are always allowed (self-reload); everything else, including
// unparsable URLs, is blocked.
func (r *Registry) HandleNavigationRequest(rawURL string) bool {
	if r.isOwnContent(rawURL) {
		return true
	}
	switch domain.ClassifyURL(rawURL) {
	case domain.Internal, domain.OAuth:
		return true
	default:
		slog.Warn("[window] navigation blocked", "url", rawURL)
		return false
	}
}

// isOwnContent reports whether rawURL points at the shell's own content:
// file and wails origins, loopback addresses (embedded assets and the
// local proxy), and any configured extra hosts (dev server).
func (r *Registry) isOwnContent(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "file", "wails":
		return true
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}

	hostPort := host
	if port := u.Port(); port != "" {
		hostPort = net.JoinHostPort(host, port)
	}
	if _, ok := r.localHosts[hostPort]; ok {
		return true
	}
	_, ok := r.localHosts[host]
	return ok
}

// quickEntryPosition computes the near-pointer placement for the quick
// entry window. Falls back to centered when the pointer is unknown.
func (r *Registry) quickEntryPosition() (x, y int, centered bool) {
	cx, cy, ok := r.toolkit.CursorPosition()
	if !ok {
		return 0, 0, true
	}
	x = cx - quickWidth/2
	y = cy - quickHeight/2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y, false
}
