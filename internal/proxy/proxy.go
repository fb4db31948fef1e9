// Package proxy serves Internal and OAuth web content into the shell's
// windows over a loopback HTTP listener, stripping the response headers
// that would block embedding. Hosts outside the domain allow-lists fail
// closed, as do upstream fetch and TLS failures.
//
// The proxy owns the upstream session: cookies set during sign-in land in
// its jar and are replayed on every request, so the main surface and the
// auth window share one session.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"gemdesk/internal/domain"
)

const (
	// pathPrefix is the proxied-content namespace on the loopback listener:
	// /p/<host>/<upstream path>.
	pathPrefix = "/p/"

	upstreamTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxRedirectHops   = 10

	// maxRequestBodyBytes bounds proxied request bodies (form posts, XHR).
	maxRequestBodyBytes = 10 << 20 // 10MB
)

// strippedResponseHeaders are removed from upstream responses so the
// content can be embedded in the shell's windows. Set-Cookie is withheld
// too: the proxy's cookie jar owns the upstream session and loopback-scoped
// copies of google cookies would only confuse the webview.
var strippedResponseHeaders = []string{
	"X-Frame-Options",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"Set-Cookie",
}

// hopByHopResponseHeaders are connection-level headers that must not be
// relayed (RFC 7230 section 6.1).
var hopByHopResponseHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// forwardedRequestHeaders is the allow-list of client headers relayed
// upstream. Cookie is deliberately absent (the jar is authoritative), as
// are Origin/Referer (a loopback origin means nothing to the upstream).
var forwardedRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"User-Agent",
}

// Observer receives top-level document loads that went through the proxy:
// the final URL after redirects, or the original target plus the error
// when the fetch failed. Subresource requests are not reported.
type Observer func(target string, loadErr error)

// Options configures a proxy Server.
type Options struct {
	// Port to listen on; 0 auto-assigns.
	Port int
	// UserAgent, when non-empty, replaces the client UA on upstream
	// requests.
	UserAgent string
	// Observer is notified of document loads. May be nil.
	Observer Observer
}

// Server is the loopback embedding proxy.
type Server struct {
	opts     Options
	observer Observer
	client   *http.Client

	// hostAllowedFn and upstreamBaseFn are test seams; production uses the
	// domain allow-lists and https upstreams.
	hostAllowedFn  func(host string) bool
	upstreamBaseFn func(host string) string

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	baseURL  string

	// closeOnce ensures Stop is idempotent. A stopped server cannot be
	// reused; create a new one instead.
	closeOnce sync.Once
}

// New builds a proxy server. The cookie jar uses the public suffix list so
// upstream cookies scope exactly as a browser would scope them.
func New(opts Options) (*Server, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("proxy: cookie jar: %w", err)
	}

	s := &Server{
		opts:           opts,
		observer:       opts.Observer,
		hostAllowedFn:  defaultHostAllowed,
		upstreamBaseFn: defaultUpstreamBase,
	}
	s.client = &http.Client{
		Jar:     jar,
		Timeout: upstreamTimeout,
		// Redirects are followed inside the proxy so the jar captures every
		// hop of a sign-in chain, but each hop must stay on an allowed host.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirectHops {
				return fmt.Errorf("stopped after %d redirects", maxRedirectHops)
			}
			if !s.hostAllowedFn(req.URL.Hostname()) {
				return fmt.Errorf("redirect to disallowed host %q", req.URL.Hostname())
			}
			return nil
		},
	}
	return s, nil
}

func defaultHostAllowed(host string) bool {
	switch domain.Classify(host) {
	case domain.Internal, domain.OAuth:
		return true
	default:
		return false
	}
}

func defaultUpstreamBase(host string) string {
	return "https://" + host
}

// Start begins listening on 127.0.0.1. Loopback binding is the access
// boundary: nothing off-machine can reach the shared session.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("proxy: already started")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.opts.Port))
	if err != nil {
		return fmt.Errorf("proxy: listen: %w", err)
	}
	s.listener = ln
	s.baseURL = fmt.Sprintf("http://127.0.0.1:%d", ln.Addr().(*net.TCPAddr).Port)

	mux := http.NewServeMux()
	mux.HandleFunc(pathPrefix, s.handleProxy)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := s.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("[proxy] server error", "error", serveErr)
		}
	}()

	slog.Info("[proxy] embedding proxy started", "baseURL", s.baseURL)
	return nil
}

// Stop gracefully shuts the proxy down. Safe to call multiple times.
func (s *Server) Stop() error {
	var stopErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		server := s.server
		s.mu.Unlock()
		if server == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			stopErr = fmt.Errorf("proxy: shutdown: %w", err)
		}
		slog.Info("[proxy] embedding proxy stopped")
	})
	return stopErr
}

// BaseURL returns "http://127.0.0.1:<port>", or empty before Start.
func (s *Server) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// RewriteURL maps an upstream https URL onto the proxy's loopback form:
// https://host/path?q becomes http://127.0.0.1:<port>/p/host/path?q.
// The host must pass the domain allow-lists.
func (s *Server) RewriteURL(target string) (string, error) {
	base := s.BaseURL()
	if base == "" {
		return "", errors.New("proxy: not started")
	}
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf("proxy: parse target: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("proxy: only https targets can be embedded, got %q", target)
	}
	host := strings.ToLower(u.Host)
	if host == "" || !s.hostAllowedFn(u.Hostname()) {
		return "", fmt.Errorf("proxy: host %q not allowed", u.Host)
	}
	rewritten := base + pathPrefix + host + u.EscapedPath()
	if u.RawQuery != "" {
		rewritten += "?" + u.RawQuery
	}
	return rewritten, nil
}

// handleProxy fetches /p/<host>/<rest> from the upstream host, strips the
// embedding blockers, and relays status, headers and body.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	host, rest, ok := splitProxyPath(r.URL.EscapedPath())
	if !ok {
		http.NotFound(w, r)
		return
	}

	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	if !s.hostAllowedFn(hostname) {
		slog.Warn("[proxy] denied host", "host", host, "path", rest)
		http.Error(w, "host not allowed", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := s.upstreamBaseFn(host) + rest
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	isDocument := isDocumentRequest(r)

	body := io.Reader(nil)
	if r.Method == http.MethodPost {
		body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	}
	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		slog.Warn("[proxy] failed to build upstream request", "target", target, "error", err)
		http.Error(w, "invalid upstream request", http.StatusInternalServerError)
		return
	}
	copyRequestHeaders(outReq.Header, r.Header)
	if s.opts.UserAgent != "" {
		outReq.Header.Set("User-Agent", s.opts.UserAgent)
	}

	resp, err := s.client.Do(outReq)
	if err != nil {
		// Covers TLS failures, DNS errors and disallowed redirect hops:
		// all fail closed as a bad gateway.
		slog.Error("[proxy] upstream fetch failed", "target", target, "error", err)
		s.notifyObserver(isDocument, target, err)
		http.Error(w, "failed to fetch upstream", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Debug("[proxy] response copy interrupted", "target", target, "error", err)
	}

	s.notifyObserver(isDocument, finalURL(resp, target), nil)
	slog.Debug("[proxy] proxied", "target", target, "status", resp.StatusCode)
}

// notifyObserver reports a document load. Observer panics are contained:
// a misbehaving listener must not take the proxy handler down.
func (s *Server) notifyObserver(isDocument bool, target string, loadErr error) {
	if !isDocument || s.observer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[proxy] navigation observer panicked", "panic", rec, "target", target)
		}
	}()
	s.observer(target, loadErr)
}

// finalURL is the URL the response actually came from, after redirects.
func finalURL(resp *http.Response, fallback string) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return fallback
}

// isDocumentRequest reports whether the request is a top-level document
// navigation rather than a subresource fetch. Chromium-based webviews set
// Sec-Fetch-Dest; the Accept fallback covers older engines.
func isDocumentRequest(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest == "document"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// splitProxyPath splits "/p/<host>/<rest>" into host and "/<rest>".
func splitProxyPath(path string) (host, rest string, ok bool) {
	if !strings.HasPrefix(path, pathPrefix) {
		return "", "", false
	}
	trimmed := strings.TrimPrefix(path, pathPrefix)
	host, tail, _ := strings.Cut(trimmed, "/")
	if host == "" {
		return "", "", false
	}
	return strings.ToLower(host), "/" + tail, true
}

func copyRequestHeaders(dst, src http.Header) {
	for _, name := range forwardedRequestHeaders {
		if values := src.Values(name); len(values) > 0 {
			dst[http.CanonicalHeaderKey(name)] = values
		}
	}
}

func copyResponseHeaders(dst, src http.Header) {
	stripped := make(map[string]struct{}, len(strippedResponseHeaders)+len(hopByHopResponseHeaders))
	for _, name := range strippedResponseHeaders {
		stripped[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	for _, name := range hopByHopResponseHeaders {
		stripped[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	for name, values := range src {
		if _, skip := stripped[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		dst[http.CanonicalHeaderKey(name)] = values
	}
}
