package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	auditctlcmd "github.com/docflowGM/holocron/internal/cmd/auditctl"
)

// main exports audit records or violations from a kernel database as JSON.
func main() {
	cfg, err := auditctlcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[AUDITCTL] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := auditctlcmd.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("export failed: %v", err)
	}
}
