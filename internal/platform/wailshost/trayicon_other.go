//go:build !windows

package wailshost

// trayIconBytes returns the tray icon in the container the platform's tray
// implementation loads: PNG everywhere but Windows.
func trayIconBytes() []byte {
	return encodeTrayPNG(drawTrayIcon())
}
