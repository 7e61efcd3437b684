// Command fiberctl runs connectivity, duplicate, invalid-geometry and usage
// checks over fiber network layers stored as GeoJSON.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
