//go:build !windows

package wailshost

// systemTheme has no portable probe off Windows; assume light.
func systemTheme() string {
	return "light"
}
