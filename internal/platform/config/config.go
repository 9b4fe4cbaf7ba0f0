package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr string

	// PostgresURL selects the Postgres-backed docstore when non-empty;
	// otherwise the server runs on the in-memory store (dev mode).
	PostgresURL string

	Redis RedisConfig

	// KafkaBrokers enables the addendum fan-out stream when non-empty.
	KafkaBrokers  []string
	AddendumTopic string

	// JWTSigningKey verifies caller identity tokens.
	JWTSigningKey string
	// SupportSecretHash is the bcrypt hash of the support-channel secret.
	// Requests presenting the matching secret run with IsSupportRequest set.
	SupportSecretHash string

	// DefaultTimezone applies to offices that never declared one.
	DefaultTimezone string

	// GeocoderURL enables venue address resolution when non-empty.
	GeocoderURL string
}

// RedisConfig mirrors the platform redis client knobs.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TemplateCacheTTL bounds how stale a cached template definition may be.
var TemplateCacheTTL = 5 * time.Minute

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:              envOr("FIELDOPS_ADDR", ":8080"),
		PostgresURL:       os.Getenv("FIELDOPS_POSTGRES_URL"),
		JWTSigningKey:     envOr("FIELDOPS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SupportSecretHash: os.Getenv("FIELDOPS_SUPPORT_SECRET_HASH"),
		AddendumTopic:     envOr("FIELDOPS_ADDENDUM_TOPIC", "fieldops.addenda"),
		DefaultTimezone:   envOr("FIELDOPS_DEFAULT_TZ", "UTC"),
		GeocoderURL:       os.Getenv("FIELDOPS_GEOCODER_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("FIELDOPS_REDIS_URL"),
			PoolSize:     envIntOr("FIELDOPS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("FIELDOPS_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("FIELDOPS_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
