package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-map-sync/internal/adapter/backend"
	httpadapter "github.com/couchcryptid/hazard-map-sync/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hazard-map-sync/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-map-sync/internal/config"
	"github.com/couchcryptid/hazard-map-sync/internal/landmask"
	"github.com/couchcryptid/hazard-map-sync/internal/layers"
	"github.com/couchcryptid/hazard-map-sync/internal/locations"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
	"github.com/couchcryptid/hazard-map-sync/internal/pipeline"
	"github.com/couchcryptid/hazard-map-sync/internal/snapshot"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Snapshot fetching: backend client behind an in-process LRU and an
	// optional Redis tier.
	var store backend.Store
	if rc := backend.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); rc != nil {
		rs := backend.NewRedisStore(rc, cfg.RedisCacheTTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rs.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, continuing with memory cache only", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		store = rs
		defer rc.Close()
		logger.Info("redis snapshot cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisCacheTTL)
	}
	client := backend.NewClient(cfg.HazardAPIURL, cfg.HazardAPITimeout, logger)
	fetcher := backend.NewCachedFetcher(client, cfg.SnapshotCacheSize, store, metrics, logger)

	// Layer surface, optionally mirrored to Kafka for map clients.
	memory := layers.NewMemorySurface()
	var surface layers.Surface = memory
	var publisher *kafkaadapter.PublishingSurface
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, metrics, logger)
		publisher = kafkaadapter.NewPublishingSurface(memory, writer, clock, metrics, logger)
		surface = publisher
		logger.Info("layer events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaLayerTopic)
	} else {
		logger.Info("layer events disabled")
	}

	p := pipeline.New(pipeline.Deps{
		Orchestrator:  snapshot.New(fetcher, clock, metrics, logger),
		Registry:      layers.NewRegistry(surface, clock, logger),
		Emitter:       memory,
		LandMask:      landmask.New(logger),
		Locations:     locations.NewIndex(logger),
		Clock:         clock,
		Metrics:       metrics,
		Logger:        logger,
		BeforeLayerID: cfg.BeforeLayerID,
	})

	startup := pipeline.Startup{BoundaryDir: cfg.BoundaryDir}
	if cfg.LandMaskSource != "none" {
		startup.LandMask = landmask.SourceFromLocation(cfg.LandMaskSource, cfg.HazardAPITimeout)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, memory, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Load startup data and keep retrying the land mask.
	go func() {
		if err := p.Run(ctx, startup); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
