package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tada-core/internal/api"
	"tada-core/internal/config"
	"tada-core/internal/decoder"
	"tada-core/internal/delivery"
	"tada-core/internal/engine"
	"tada-core/internal/eventbus"
	"tada-core/internal/pipeline"
	"tada-core/internal/schema"
	"tada-core/internal/store"
	"tada-core/internal/stream"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting tada-core (%s)...", BuildCommit)
	log.Printf("RPC: %s", cfg.RPCURL)
	log.Printf("WS: %s", cfg.WSURL)
	log.Printf("API: %s", cfg.APIAddr)

	// Decoder layer: embedded schemas for every cataloged program.
	schemas, err := schema.Load()
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	registry, err := decoder.NewDefaultRegistry(schemas)
	if err != nil {
		log.Fatalf("Failed to build decoder registry: %v", err)
	}

	bus := eventbus.New()
	defer bus.Close()

	index := pipeline.NewIndex()
	dispatcher := delivery.NewDispatcher(bus)

	// Persistence is optional: without DB_URL the service runs with an
	// in-memory pipeline set managed purely through the API.
	var st *store.Store
	var deliveryLogs engine.DeliveryLogger
	if cfg.DatabaseURL != "" {
		st, err = store.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer st.Close()

		if os.Getenv("SKIP_MIGRATION") == "true" {
			log.Println("Database migration SKIPPED (SKIP_MIGRATION=true)")
		} else {
			log.Println("Running database migration...")
			if err := st.Migrate(context.Background()); err != nil {
				log.Fatalf("Migration failed: %v", err)
			}
		}
		deliveryLogs = st
	} else {
		log.Println("No DB_URL set; running without persistence")
	}

	eng := engine.New(registry, index, dispatcher, deliveryLogs)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if st != nil {
		syncer := store.NewSyncer(st, index, time.Duration(cfg.SyncIntervalSec)*time.Second)
		go syncer.Run(rootCtx)
	}

	source := stream.NewWSSource(cfg.RPCURL, cfg.WSURL, eng.HandleTransactionAsync)
	go func() {
		if err := source.Run(rootCtx); err != nil && rootCtx.Err() == nil {
			log.Printf("Stream source stopped: %v", err)
		}
	}()

	server := api.NewServer(eng, st, bus, api.Options{
		Addr:      cfg.APIAddr,
		JWTSecret: cfg.JWTSecret,
		RateRPS:   cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
	})
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown error: %v", err)
	}
	eng.Wait()
	log.Println("Bye.")
}
