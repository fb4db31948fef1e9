package ipc

import (
	"strings"
	"testing"
)

func TestDefaultEndpointHonorsTrustedEnvOverride(t *testing.T) {
	t.Setenv("GEMDESK_IPC", `\\.\pipe\gemdesk-ci_pipe`)

	if got := DefaultEndpoint(); got != `\\.\pipe\gemdesk-ci_pipe` {
		t.Fatalf("DefaultEndpoint() = %q, want trusted env override", got)
	}
}

func TestDefaultEndpointRejectsUntrustedEnvOverride(t *testing.T) {
	t.Setenv("GEMDESK_IPC", `\\.\pipe\other-app`)
	t.Setenv("USERNAME", "unit-tester")

	got := DefaultEndpoint()
	if got == `\\.\pipe\other-app` {
		t.Fatalf("DefaultEndpoint() unexpectedly accepted untrusted env override")
	}
	if !strings.HasPrefix(got, defaultPipePrefix) {
		t.Fatalf("DefaultEndpoint() = %q, want %q prefix", got, defaultPipePrefix)
	}
}

func TestDefaultEndpointSanitizesUsername(t *testing.T) {
	t.Setenv("GEMDESK_IPC", "")
	t.Setenv("USERNAME", "unit user!")

	got := DefaultEndpoint()
	want := `\\.\pipe\gemdesk-unit_user_`
	if got != want {
		t.Fatalf("DefaultEndpoint() = %q, want %q", got, want)
	}
}

func TestDefaultEndpointFallbackWhenUsernameEmpty(t *testing.T) {
	t.Setenv("GEMDESK_IPC", "")
	t.Setenv("USERNAME", "")

	got := DefaultEndpoint()

	// When USERNAME is empty, user.Current() may succeed (returning OS user)
	// or fail (returning "unknown" via sanitizeUsername fallback).
	// Either way the endpoint must have a non-empty suffix after the prefix.
	if !strings.HasPrefix(got, defaultPipePrefix) {
		t.Fatalf("DefaultEndpoint() = %q, want prefix %q", got, defaultPipePrefix)
	}
	suffix := strings.TrimPrefix(got, defaultPipePrefix)
	if suffix == "" {
		t.Fatalf("DefaultEndpoint() = %q, suffix after prefix must not be empty", got)
	}
}
