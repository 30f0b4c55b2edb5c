package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Hazard backend serving grid snapshots.
	HazardAPIURL      string
	HazardAPITimeout  time.Duration
	SnapshotCacheSize int

	// Optional shared snapshot cache; disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisCacheTTL time.Duration

	LandMaskSource string
	BoundaryDir    string
	BeforeLayerID  string

	// Layer mutation events for map clients.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaLayerTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	apiTimeout, err := parseDuration("HAZARD_API_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("REDIS_CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		HazardAPIURL:      sharedcfg.EnvOrDefault("HAZARD_API_URL", "http://localhost:8000"),
		HazardAPITimeout:  apiTimeout,
		SnapshotCacheSize: parseCacheSize(),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		RedisCacheTTL: cacheTTL,

		LandMaskSource: sharedcfg.EnvOrDefault("LAND_MASK_SOURCE", "data/land.geojson"),
		BoundaryDir:    sharedcfg.EnvOrDefault("BOUNDARY_DIR", "data/boundaries"),
		BeforeLayerID:  os.Getenv("BEFORE_LAYER_ID"),

		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaLayerTopic: sharedcfg.EnvOrDefault("KAFKA_LAYER_TOPIC", "map-layer-events"),
	}

	if cfg.HazardAPIURL == "" {
		return nil, errors.New("HAZARD_API_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parseCacheSize() int {
	if s := os.Getenv("SNAPSHOT_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 64
}
