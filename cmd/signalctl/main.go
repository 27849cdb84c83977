package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"SignalProof-Chain/internal/cli"
	"SignalProof-Chain/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "signalctl:", err)
		os.Exit(1)
	}
	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "signalctl:", err)
		stop()
		os.Exit(1)
	}
}
