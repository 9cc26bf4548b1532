package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/ascii-chess/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ascii-chess:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	root := cli.Root(cli.IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	root.SetArgs(os.Args[1:])
	return root.ExecuteContext(ctx)
}
