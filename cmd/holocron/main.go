package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	holocroncmd "github.com/docflowGM/holocron/internal/cmd/holocron"
)

// main starts the governance kernel and serves MCP on stdio.
func main() {
	cfg, err := holocroncmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[HOLOCRON] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := holocroncmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
