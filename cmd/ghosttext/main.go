// Summary: ghosttext CLI entrypoint; delegates to internal/ghosttextcli.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ghosttext/internal/ghosttextcli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := ghosttextcli.Execute(ctx, os.Args[1:], ghosttextcli.Options{})
	stop()
	if err != nil {
		os.Exit(1)
	}
}
