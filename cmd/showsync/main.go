// Package main starts the show-state broadcast service and handles
// termination.
//
// The process is a transport adapter around participant light and pick
// state so every connected audience screen converges on the same snapshot.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	showsynccmd "github.com/louisbranch/showsync/internal/cmd/showsync"
)

func main() {
	cfg, err := showsynccmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SHOWSYNC] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := showsynccmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
