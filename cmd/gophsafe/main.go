package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophsafe/internal/config"
	"github.com/dmitrijs2005/gophsafe/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	log := logging.New(os.Stderr, cfg.LogLevel)

	if err := newRootCmd(cfg, log).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
