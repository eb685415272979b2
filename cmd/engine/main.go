package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"predictcore/internal/cli"
	"predictcore/internal/config"
	"predictcore/internal/svc"
	"predictcore/pkg/confkit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	defaultConfigPath := confkit.MustProjectPath("etc/predictcore.yaml")
	configPath := flag.String("f", defaultConfigPath, "path to the engine's YAML config")
	dryRun := flag.Bool("dry-run", false, "force exchange.dry_run=true regardless of config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] load config %s: %v", *configPath, err)
	}
	if *dryRun {
		cfg.Exchange.DryRun = true
	}

	cli.LogConfigSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.NewServiceContext(ctx, cfg)
	if err != nil {
		log.Fatalf("[main] build service context: %v", err)
	}

	log.Println("[main] predictcore engine starting, press Ctrl+C to stop")

	done := make(chan struct{})
	go func() {
		sc.Loop.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	log.Println("[main] shutdown signal received, waiting for the scan loop to settle")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	select {
	case <-done:
		log.Println("[main] scan loop stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] shutdown timeout exceeded, forcing exit")
	}
}
