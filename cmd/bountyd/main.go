// Package main runs the bounty marketplace server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskforge/platform/internal/app/runtime"
	"github.com/taskforge/platform/internal/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if v := os.Getenv("TASKFORGE_CONFIG"); v != "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build runtime: %v", err)
	}

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
