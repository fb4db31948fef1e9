package hotkeys

import "errors"

// ErrUnsupportedPlatform is returned by the OS registrar on platforms
// without system-wide shortcut registration.
var ErrUnsupportedPlatform = errors.New("hotkeys: OS-level shortcut registration is not supported on this platform")

// Registrar is the OS-level shortcut registration surface. The registry
// never claims a shortcut is registered unless the Registrar call
// succeeded. Implementations must tolerate Unregister for ids that are not
// currently held.
type Registrar interface {
	// Register binds onTrigger to the accelerator system-wide. Exactly one
	// registration may be live per id; onTrigger runs on its own goroutine.
	Register(id string, binding Binding, onTrigger func()) error
	// Unregister releases the registration held for id, if any.
	Unregister(id string) error
	// Name identifies the implementation in logs.
	Name() string
}
