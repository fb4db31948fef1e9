//go:build windows

package wailshost

import (
	"golang.org/x/sys/windows/registry"
)

const personalizeKey = `Software\Microsoft\Windows\CurrentVersion\Themes\Personalize`

// systemTheme reads the per-user app theme preference from the registry.
// Missing key or value means a pre-dark-mode Windows, which is light.
func systemTheme() string {
	k, err := registry.OpenKey(registry.CURRENT_USER, personalizeKey, registry.QUERY_VALUE)
	if err != nil {
		return "light"
	}
	defer k.Close()

	light, _, err := k.GetIntegerValue("AppsUseLightTheme")
	if err != nil {
		return "light"
	}
	if light == 0 {
		return "dark"
	}
	return "light"
}
