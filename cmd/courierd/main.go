package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/couriernet/courier/pkg/relay"
	"github.com/couriernet/courier/pkg/store"
)

func main() {
	configPath := flag.String("config", "~/.courier/courier.toml", "Path to config file")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	httpPort := flag.Int("port", 0, "Public WebSocket port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	fileConfig, err := relay.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config := fileConfig.ToServerConfig()

	if *httpPort != 0 {
		config.HTTPPort = *httpPort
	}

	databasePath := *dbPath
	if databasePath == "" {
		databasePath, err = fileConfig.GetDatabasePath()
		if err != nil {
			log.Fatalf("Failed to resolve database path: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(databasePath), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Storage unavailable at startup is fatal; the relay never runs in a
	// degraded mode.
	st, err := store.Open(databasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	server := relay.NewServer(st, config)
	if *debug {
		server.EnableDebugLogging()
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start relay: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down", sig)

	if err := server.Stop(); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}
