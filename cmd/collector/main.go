package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beaconhq/beacon-collector/internal/config"
	"github.com/beaconhq/beacon-collector/internal/destinations"
	"github.com/beaconhq/beacon-collector/internal/enrichment"
	"github.com/beaconhq/beacon-collector/internal/migrations"
	"github.com/beaconhq/beacon-collector/internal/scoring"
	"github.com/beaconhq/beacon-collector/internal/server"
	"github.com/beaconhq/beacon-collector/internal/storage/postgres"
	"github.com/beaconhq/beacon-collector/internal/tracking"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "beacon.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config_path", *configPath)

	lookupTimeout, err := time.ParseDuration(cfg.Enrichment.LookupTimeout)
	if err != nil {
		slog.Error("Invalid enrichment lookup timeout", "value", cfg.Enrichment.LookupTimeout, "error", err)
		os.Exit(1)
	}
	deliveryTimeout, err := time.ParseDuration(cfg.Destinations.DeliveryTimeout)
	if err != nil {
		slog.Error("Invalid destination delivery timeout", "value", cfg.Destinations.DeliveryTimeout, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Enrichment (provider + classification-aware cache)
	var provider enrichment.Provider
	switch cfg.Enrichment.Provider {
	case "maxmind":
		mm, err := enrichment.NewMaxMindProvider(cfg.Enrichment.MaxMindDBPath)
		if err != nil {
			slog.Error("Failed to open MaxMind database", "path", cfg.Enrichment.MaxMindDBPath, "error", err)
			os.Exit(1)
		}
		defer mm.Close()
		provider = mm
	default:
		provider = enrichment.NewIPInfoProvider(cfg.Enrichment.IPInfoToken, lookupTimeout)
	}

	var cache enrichment.Cache
	if cfg.Enrichment.Cache == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Enrichment.RedisAddr,
			Password: cfg.Enrichment.RedisPassword,
			DB:       cfg.Enrichment.RedisDB,
		})
		defer rdb.Close()
		cache = enrichment.NewRedisCache(rdb)
		slog.Info("Enrichment cache initialized", "backend", "redis", "addr", cfg.Enrichment.RedisAddr)
	} else {
		cache = enrichment.NewMemoryCache()
		slog.Info("Enrichment cache initialized", "backend", "memory")
	}

	var consumerISPs []string
	if cfg.Enrichment.ConsumerISPFile != "" {
		consumerISPs, err = enrichment.LoadConsumerISPs(cfg.Enrichment.ConsumerISPFile)
		if err != nil {
			slog.Error("Failed to load consumer ISP patterns", "path", cfg.Enrichment.ConsumerISPFile, "error", err)
			os.Exit(1)
		}
		slog.Info("Loaded consumer ISP patterns", "count", len(consumerISPs))
	}

	enricher := enrichment.NewService(provider, cache, lookupTimeout, consumerISPs)

	// 4. Initialize Destinations and Scoring
	router := destinations.NewRouter(deliveryTimeout)

	scoringStore := postgres.NewScoringAdapter(dbAdapter.DB())
	engine := scoring.NewEngine(scoringStore)
	scoringAPI := scoring.NewAPI(scoringStore)

	// 5. Initialize Tracking (normalize, persist, fan out)
	normalizer := tracking.NewNormalizer(dbAdapter, enricher, cfg.Tracking.MaxPropertyBytes)
	trackingSvc := tracking.NewService(normalizer, dbAdapter, dbAdapter, router, engine, cfg.Server.MaxBodySizeMB)

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	trackingSvc.RegisterRoutes(srv.Engine)
	scoringAPI.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
