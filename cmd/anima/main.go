// Command anima is the local companion: an HTTP server, an interactive chat
// and maintenance commands over one SQLite brain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, newStyles(os.Stderr).Error.Render("Error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}
