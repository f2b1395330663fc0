package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/stock-analysis/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewCommand()
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
