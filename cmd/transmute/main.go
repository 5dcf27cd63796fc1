package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"transmute/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "transmute:", services.FailureMessage(err))
		}
		os.Exit(exitCode(err))
	}
}

// exitCode lets scripts tell bad input and missing routes apart from
// conversion failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return 2
	case errors.Is(err, services.ErrUnsupported):
		return 3
	default:
		return 1
	}
}
