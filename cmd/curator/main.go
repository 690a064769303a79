// Package main provides the entry point for the gene panel curator CLI.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/genepanel-curator/internal/setup"
)

func main() {
	cli, err := setup.NewCLI()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, aborting...")
		cancel()
	}()

	if err := cli.Run(ctx, os.Args[1:]); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}
