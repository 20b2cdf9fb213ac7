package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/specsync/specsync/internal/cmd"
	"github.com/specsync/specsync/internal/exitcode"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		// Cancellation mid-sync is safe: the next run's
		// lookup-before-create pass resumes from true remote state
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\ncancelled, re-run sync to resume")
			exitcode.Exit(exitcode.Interrupted)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitcode.ExitWithError(err)
	}
	exitcode.Exit(exitcode.Success)
}
