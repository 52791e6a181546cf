package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"igpull/pkg/ui"
)

const (
	exitFailure   = 1
	exitInterrupt = 130
)

// exitError carries a specific exit code. Its message has already been
// shown to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	cmd := newRootCmd(out, errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return exitCode(ctx, err, errOut)
}

func exitCode(ctx context.Context, err error, errOut io.Writer) int {
	if err == nil {
		return 0
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		fmt.Fprintln(errOut, "interrupted")
		return exitInterrupt
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	ui.NewConsole(errOut, false, false).Error("Error", err)
	return exitFailure
}
