// gemdeskctl drives a running GemDesk instance over its activation
// endpoint: wake the main window, toggle quick entry, open settings. Shell
// integrations and launcher keybindings use it instead of poking at windows
// themselves.
package main

import (
	"fmt"
	"os"

	"gemdesk/internal/ipc"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return
	}

	req, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gemdeskctl: %v\n", err)
		printUsage()
		os.Exit(2)
	}

	resp, err := ipc.Send("", req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			fmt.Fprintln(os.Stderr, "gemdeskctl: no running GemDesk instance")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "gemdeskctl: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "gemdeskctl: %s\n", resp.Error)
		os.Exit(1)
	}
	if resp.Result != "" {
		fmt.Println(resp.Result)
	}
}
