package main

import (
	"fmt"
	"os"

	"mergeflow/internal/services"
)

// Exit codes: 1 for failed work, 2 for bad input or configuration, 130 when
// interrupted.
const (
	exitFailure   = 1
	exitUsage     = 2
	exitInterrupt = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	code := exitCode(err)
	if code != exitInterrupt {
		fmt.Fprintln(os.Stderr, "mergeflow:", err)
	}
	return code
}

func exitCode(err error) int {
	switch services.Kind(err) {
	case "cancelled":
		return exitInterrupt
	case "configuration", "validation":
		return exitUsage
	default:
		return exitFailure
	}
}
