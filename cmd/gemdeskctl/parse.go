package main

import (
	"flag"
	"fmt"
	"io"

	"gemdesk/internal/ipc"
)

// parseCommand maps a gemdeskctl invocation onto one activation request.
func parseCommand(args []string) (ipc.Request, error) {
	command, rest := args[0], args[1:]

	switch command {
	case "activate":
		if err := rejectExtraArgs(command, rest); err != nil {
			return ipc.Request{}, err
		}
		return ipc.Request{Op: ipc.OpActivate}, nil
	case "quick-entry":
		if err := rejectExtraArgs(command, rest); err != nil {
			return ipc.Request{}, err
		}
		return ipc.Request{Op: ipc.OpQuickEntry}, nil
	case "open-settings":
		return parseOpenSettings(rest)
	case "ping":
		if err := rejectExtraArgs(command, rest); err != nil {
			return ipc.Request{}, err
		}
		return ipc.Request{Op: ipc.OpPing}, nil
	default:
		return ipc.Request{}, fmt.Errorf("unknown command %q", command)
	}
}

func parseOpenSettings(rest []string) (ipc.Request, error) {
	fs := flag.NewFlagSet("open-settings", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	tab := fs.String("tab", "", "settings tab to open")
	if err := fs.Parse(rest); err != nil {
		return ipc.Request{}, fmt.Errorf("open-settings: %w", err)
	}
	if fs.NArg() != 0 {
		return ipc.Request{}, fmt.Errorf("open-settings: unexpected argument %q", fs.Arg(0))
	}

	req := ipc.Request{Op: ipc.OpOpenSettings}
	if *tab != "" {
		req.Args = map[string]string{"tab": *tab}
	}
	return req, nil
}

func rejectExtraArgs(command string, rest []string) error {
	if len(rest) != 0 {
		return fmt.Errorf("%s takes no arguments", command)
	}
	return nil
}
