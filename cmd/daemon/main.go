package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"clearline/go-engine/internal/app"
	"clearline/go-engine/internal/config"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	listen := flag.String("listen", "", "HTTP listen address override (optional)")
	journalPath := flag.String("journal", "", "SQLite journal path override (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("clearline-engine version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("clearline-engine failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *journalPath != "" {
		cfg.JournalBackend = "sqlite"
		cfg.JournalPath = *journalPath
	}

	logger := app.NewLogger(cfg.LogLevel)
	daemon, err := app.Build(cfg, logger, version)
	if err != nil {
		log.Fatalf("clearline-engine failed to initialize: %v", err)
	}

	log.Println("clearline-engine starting")
	if err := daemon.Run(ctx); err != nil {
		log.Fatalf("clearline-engine failed: %v", err)
	}
	log.Println("clearline-engine stopped")
}
