package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lk2023060901/zeus-host/pkg/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to the host config file (yaml)")
	flag.Parse()

	cfg, err := bootstrap.LoadConfigFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zeus-host: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, bootstrap.New(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "zeus-host: %+v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, b *bootstrap.Bootstrapper) error {
	defer b.Guard()
	return b.Initialize(ctx)
}
