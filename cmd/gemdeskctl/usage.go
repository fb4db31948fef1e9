package main

import "fmt"

func printUsage() {
	fmt.Print(`gemdeskctl drives a running GemDesk instance.

Usage:
  gemdeskctl activate                   show and focus the main window
  gemdeskctl quick-entry                toggle the quick entry window
  gemdeskctl open-settings [--tab=tab]  open settings (general, hotkeys, about)
  gemdeskctl ping                       print the running shell's version
`)
}
