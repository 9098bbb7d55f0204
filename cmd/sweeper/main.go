// Command sweeper expires lapsed escrow wallets and cancels stale payment intents
// once, then exits. It is meant to be run from cron.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"ventureflow/internal/bootstrap"
	"ventureflow/internal/config"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "maximum run time")
	batch := flag.Int("batch", 0, "wallets and intents per batch (default ESCROW_SWEEP_BATCH)")
	flag.Parse()

	log.SetPrefix("[sweeper] ")
	config.LoadEnv()
	cfg := config.Load()
	if *batch > 0 {
		cfg.Escrow.SweepBatch = *batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialise application: %v", err)
	}
	defer app.Close()

	expired, cancelled, err := app.Sweep(ctx)
	log.Printf("expired %d wallets, cancelled %d payments", expired, cancelled)
	if err != nil {
		log.Printf("sweep failed: %v", err)
		app.Close()
		log.Fatal("exiting with errors")
	}
}
