// Command ckdreg is the terminal client for the pediatric CKD registry.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/ckdreg/internal/cmd"
	"github.com/felixgeelhaar/ckdreg/internal/exitcode"
)

func main() {
	exitcode.Exit(run())
}

// run executes the command tree until it returns or SIGINT/SIGTERM arrives.
// An interrupt also cancels the session manager's in-flight identity fetch.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return report(ctx, cmd.ExecuteContext(ctx), os.Stderr)
}

// report prints err for the user and returns the process exit code.
// Registry error codes map through exitcode.DetermineExitCode.
func report(ctx context.Context, err error, stderr io.Writer) int {
	if err == nil {
		return exitcode.Success
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		fmt.Fprintln(stderr, "\nckdreg: interrupted")
		return exitcode.Interrupted
	}

	fmt.Fprintf(stderr, "ckdreg: %v\n", err)
	return exitcode.DetermineExitCode(err)
}
