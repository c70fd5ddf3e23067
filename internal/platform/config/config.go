// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production
// deployments override via the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the service.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Blob     Blob
	Auth     Auth
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	AdminToken      string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// Postgres captures the relational store configuration. An empty URL selects
// the in-memory stores, which is how tests and local demos run.
type Postgres struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis captures token revocation store configuration. An empty URL disables
// revocation checks.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures audit relay configuration. Empty brokers disable the relay;
// audit events still land in the outbox and materialized table.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

// Blob captures evidence storage configuration. Backend is one of
// "memory", "fs", or "s3".
type Blob struct {
	Backend  string
	FSRoot   string
	S3Bucket string
	S3Region string
}

// Auth captures token issuance configuration.
type Auth struct {
	JWTSigningKey   string
	AccessTokenTTL  time.Duration
	MaxLoginFails   int
	LockoutDuration time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envOr("CONFORMA_ADDR", ":8080"),
			AdminToken:      os.Getenv("CONFORMA_ADMIN_TOKEN"),
			CORSOrigins:     splitList(envOr("CONFORMA_CORS_ORIGINS", "*")),
			ShutdownTimeout: envDuration("CONFORMA_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			URL:             os.Getenv("CONFORMA_POSTGRES_URL"),
			MaxOpenConns:    envInt("CONFORMA_POSTGRES_MAX_OPEN", 25),
			MaxIdleConns:    envInt("CONFORMA_POSTGRES_MAX_IDLE", 5),
			ConnMaxLifetime: envDuration("CONFORMA_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          os.Getenv("CONFORMA_REDIS_URL"),
			PoolSize:     envInt("CONFORMA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CONFORMA_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("CONFORMA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CONFORMA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CONFORMA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:    splitList(os.Getenv("CONFORMA_KAFKA_BROKERS")),
			AuditTopic: envOr("CONFORMA_AUDIT_TOPIC", "conforma.audit"),
		},
		Blob: Blob{
			Backend:  envOr("CONFORMA_BLOB_BACKEND", "memory"),
			FSRoot:   envOr("CONFORMA_BLOB_FS_ROOT", "./data/evidence"),
			S3Bucket: os.Getenv("CONFORMA_BLOB_S3_BUCKET"),
			S3Region: os.Getenv("CONFORMA_BLOB_S3_REGION"),
		},
		Auth: Auth{
			// Default is for development only; production must override.
			JWTSigningKey:   envOr("CONFORMA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			AccessTokenTTL:  envDuration("CONFORMA_ACCESS_TOKEN_TTL", time.Hour),
			MaxLoginFails:   envInt("CONFORMA_MAX_LOGIN_FAILS", 5),
			LockoutDuration: envDuration("CONFORMA_LOCKOUT_DURATION", 30*time.Minute),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
