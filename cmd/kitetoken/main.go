package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tradingtool/kitetoken/cmd/kitetoken/commands"
)

// version can be set during build with -ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, version, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "\n  ERROR: %v\n", err)
		stop()
		os.Exit(1)
	}
}
