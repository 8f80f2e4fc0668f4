package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rxh-go/rxh/internal/config"
	"github.com/rxh-go/rxh/internal/master"
	"github.com/rxh-go/rxh/internal/rxherr"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to the proxy's YAML configuration")
	proxyID := flag.String("proxy-id", "", "Forwarded header 'by' value; defaults to each listener's bound address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		// A malformed/invalid config is the operator's mistake, not an
		// environment failure (e.g. the file missing or unreadable);
		// exit 2 for the former, 1 for everything else.
		if rxherr.IsCategory(err, rxherr.Config) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	m := master.New(*cfg, *proxyID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Run(ctx); err != nil {
		log.Printf("rxh: %v", err)
		os.Exit(1)
	}
}
