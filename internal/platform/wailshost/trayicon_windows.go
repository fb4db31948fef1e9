//go:build windows

package wailshost

// trayIconBytes returns the tray icon in the container the platform's tray
// implementation loads: ICO on Windows.
func trayIconBytes() []byte {
	return encodeTrayICO(drawTrayIcon())
}
