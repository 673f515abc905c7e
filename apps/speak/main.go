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

	cli := &commandLine{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	if err := newRootCmd(cli).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		stop()
		os.Exit(1)
	}
}
