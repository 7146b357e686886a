package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/matlock-dev/matlock/internal/cmd"
)

func main() {
	// Cancelling on a signal unwinds the running command, so deferred
	// releases give reserved sessions back before the process exits.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	cancel()
	if err == nil {
		return
	}

	// 'sessions exec' exits with the status of the command it ran
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		os.Exit(exitErr.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if hint := cmd.ErrorHint(err); hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
	os.Exit(1)
}
