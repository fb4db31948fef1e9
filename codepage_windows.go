//go:build windows

package main

import "golang.org/x/sys/windows"

// cpUTF8 is the Windows UTF-8 code page identifier.
const cpUTF8 = 65001

// setConsoleUTF8 switches the attached console to UTF-8 so structured log
// output survives non-ASCII prompt text and window titles.
func setConsoleUTF8() {
	kernel32 := windows.NewLazySystemDLL("kernel32.dll")
	kernel32.NewProc("SetConsoleOutputCP").Call(cpUTF8)
	kernel32.NewProc("SetConsoleCP").Call(cpUTF8)
}
