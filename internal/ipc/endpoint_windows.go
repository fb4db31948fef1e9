package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"regexp"
	"strings"
	"time"

	"github.com/Microsoft/go-winio"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\gemdesk-[a-z0-9._-]{1,128}$`)

const defaultPipePrefix = `\\.\pipe\gemdesk-`

// DefaultEndpoint returns the Named Pipe path to use. If the GEMDESK_IPC
// environment variable is set and passes pattern validation, its value is
// used; otherwise a per-user default is constructed from the current
// username.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}
	return defaultPipePrefix + currentUsername()
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("GEMDESK_IPC"))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] GEMDESK_IPC rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

// listenEndpoint creates a Named Pipe listener restricted to the current
// user. The DACL grants full access only to SYSTEM and the current user's
// SID, preventing other local users from connecting.
func listenEndpoint(endpoint string) (net.Listener, error) {
	securityDescriptor, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return winio.ListenPipe(endpoint, &winio.PipeConfig{
		SecurityDescriptor: securityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(maxRequestBytes),
		OutputBufferSize:   int32(maxResponseBytes),
	})
}

func dialEndpoint(endpoint string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(endpoint, &timeout)
}

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	sid := strings.TrimSpace(current.Uid)
	if sid == "" {
		return "", errors.New("current user SID is unavailable")
	}
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %s", sid)
	}
	// SDDL: D:P = protected DACL (no inheritance)
	// (A;;GA;;;SY) = full access for SYSTEM
	// (A;;GA;;;%s) = full access for current user SID
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
