// Command dwh reloads the sales star schema from the OLTP source.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// Register every source reader and warehouse backend.
	_ "dwh/internal/source/all"
	_ "dwh/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
