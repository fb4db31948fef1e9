//go:build windows

package wailshost

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL             = windows.NewLazySystemDLL("user32.dll")
	procGetCursorPos      = user32DLL.NewProc("GetCursorPos")
	procFindWindowW       = user32DLL.NewProc("FindWindowW")
	procGetWindowLongPtrW = user32DLL.NewProc("GetWindowLongPtrW")
	procSetWindowLongPtrW = user32DLL.NewProc("SetWindowLongPtrW")
)

const (
	gwlExStyle     = ^uintptr(19) // GWL_EXSTYLE, -20 as uintptr
	wsExToolWindow = 0x00000080
	wsExAppWindow  = 0x00040000
)

// winPoint mirrors the Win32 POINT struct.
type winPoint struct {
	x int32
	y int32
}

func cursorPosition() (int, int, bool) {
	var pt winPoint
	ret, _, _ := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if ret == 0 {
		return 0, 0, false
	}
	return int(pt.x), int(pt.y), true
}

// setTaskbarPresence toggles WS_EX_TOOLWINDOW on the native window with the
// given title, removing or restoring its taskbar button. Takes effect on
// the next show, which matches the hide-to-tray call order.
func setTaskbarPresence(title string, skip bool) error {
	if title == "" {
		return errors.New("wailshost: window title required for taskbar toggle")
	}
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return fmt.Errorf("wailshost: encode window title: %w", err)
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(titlePtr)))
	if hwnd == 0 {
		return fmt.Errorf("wailshost: no native window titled %q", title)
	}

	style, _, _ := procGetWindowLongPtrW.Call(hwnd, gwlExStyle)
	newStyle := style
	if skip {
		newStyle = (style | wsExToolWindow) &^ wsExAppWindow
	} else {
		newStyle = (style &^ wsExToolWindow) | wsExAppWindow
	}
	if newStyle == style {
		return nil
	}
	// The return value is the previous style and 0 is a legal previous
	// value, so it is not an error signal.
	procSetWindowLongPtrW.Call(hwnd, gwlExStyle, newStyle)
	return nil
}
