//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var socketPathPattern = regexp.MustCompile(`^/[a-zA-Z0-9._/-]{1,200}\.sock$`)

// DefaultEndpoint returns the unix socket path to use. If the GEMDESK_IPC
// environment variable is set and passes pattern validation, its value is
// used; otherwise a per-user default is placed under XDG_RUNTIME_DIR, or
// the system temp directory when that is unset.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}

	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "gemdesk-"+currentUsername()+".sock")
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("GEMDESK_IPC"))
	if value == "" {
		return "", false
	}
	if !socketPathPattern.MatchString(value) {
		slog.Warn("[ipc] GEMDESK_IPC rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

// listenEndpoint binds a unix socket restricted to the current user. A
// stale socket file from a crashed process is removed first, but only when
// nothing is accepting on it.
func listenEndpoint(endpoint string) (net.Listener, error) {
	if err := removeStaleSocket(endpoint); err != nil {
		return nil, err
	}
	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return listener, nil
}

func removeStaleSocket(endpoint string) error {
	if _, err := os.Stat(endpoint); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	conn, err := net.DialTimeout("unix", endpoint, 250*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("endpoint %s is already in use", endpoint)
	}
	if err := os.Remove(endpoint); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func dialEndpoint(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}
