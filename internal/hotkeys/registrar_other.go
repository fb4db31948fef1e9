//go:build !windows

package hotkeys

import "log/slog"

type unsupportedRegistrar struct{}

// NewOSRegistrar returns a registrar that refuses every registration.
// Capability detection marks global shortcuts unavailable on these
// platforms, so the registry normally never calls Register here; refusing
// keeps the registered-state bookkeeping truthful if it does.
func NewOSRegistrar() Registrar {
	return unsupportedRegistrar{}
}

func (unsupportedRegistrar) Name() string { return "unsupported" }

func (unsupportedRegistrar) Register(id string, binding Binding, onTrigger func()) error {
	slog.Warn("[hotkey] global shortcuts are not supported on this platform",
		"id", id, "accelerator", binding.Normalized())
	return ErrUnsupportedPlatform
}

func (unsupportedRegistrar) Unregister(id string) error { return nil }
