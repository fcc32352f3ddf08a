package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the AgentGate gateway.
type Config struct {
	Port        int
	Version     string
	Embeddings  EmbeddingConfig
	Routing     RoutingConfig
	Sandbox     SandboxConfig
	Audit       AuditConfig
	Credentials CredentialConfig
	Telemetry   TelemetryConfig
}

type EmbeddingConfig struct {
	Provider   string // "local" or "ollama"
	Model      string
	Dimensions int
	CacheTTL   time.Duration
	OllamaURL  string
}

type RoutingConfig struct {
	SimilarityThreshold float64
	MinConfidence       float64
	MaxAlternatives     int
	Deadline            time.Duration
}

type SandboxConfig struct {
	Driver         string // "local" or "docker"
	MinInstances   int
	MaxInstances   int
	IdleTimeout    time.Duration
	WarmupInterval time.Duration
	DefaultTimeout time.Duration
}

type AuditConfig struct {
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
	Compression   bool
	Sink          string // "memory" or "clickhouse"
	ClickHouseDSN string
	ArchiveDir    string
}

type CredentialConfig struct {
	Backend     string // "static" or "postgres"
	DatabaseURL string
	CacheTTL    time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("GATE_PORT", 8080),
		Version: envStr("GATE_VERSION", "0.2.0"),
		Embeddings: EmbeddingConfig{
			Provider:   envStr("GATE_EMBEDDING_PROVIDER", "local"),
			Model:      envStr("GATE_EMBEDDING_MODEL", "hash-v1"),
			Dimensions: envInt("GATE_EMBEDDING_DIMENSIONS", 384),
			CacheTTL:   envMs("GATE_CACHE_TTL_MS", 300_000),
			OllamaURL:  envStr("GATE_OLLAMA_URL", "http://localhost:11434"),
		},
		Routing: RoutingConfig{
			SimilarityThreshold: envFloat("GATE_SIMILARITY_THRESHOLD", 0.85),
			MinConfidence:       envFloat("GATE_MIN_CONFIDENCE", 0.70),
			MaxAlternatives:     envInt("GATE_MAX_ALTERNATIVES", 3),
			Deadline:            envMs("GATE_ROUTING_DEADLINE_MS", 50),
		},
		Sandbox: SandboxConfig{
			Driver:         envStr("GATE_SANDBOX_DRIVER", "local"),
			MinInstances:   envInt("GATE_SANDBOX_MIN", 2),
			MaxInstances:   envInt("GATE_SANDBOX_MAX", 100),
			IdleTimeout:    envMs("GATE_SANDBOX_IDLE_TIMEOUT_MS", 300_000),
			WarmupInterval: envMs("GATE_SANDBOX_WARMUP_INTERVAL_MS", 60_000),
			DefaultTimeout: envMs("GATE_SANDBOX_TIMEOUT_MS", 30_000),
		},
		Audit: AuditConfig{
			BufferSize:    envInt("GATE_AUDIT_BUFFER_SIZE", 100),
			FlushInterval: envMs("GATE_AUDIT_FLUSH_INTERVAL_MS", 5_000),
			RetentionDays: envInt("GATE_AUDIT_RETENTION_DAYS", 30),
			Compression:   envBool("GATE_AUDIT_COMPRESSION", false),
			Sink:          envStr("GATE_AUDIT_SINK", "memory"),
			ClickHouseDSN: envStr("GATE_CLICKHOUSE_DSN", ""),
			ArchiveDir:    envStr("GATE_AUDIT_ARCHIVE_DIR", ""),
		},
		Credentials: CredentialConfig{
			Backend:     envStr("GATE_CREDENTIALS_BACKEND", "static"),
			DatabaseURL: envStr("DATABASE_URL", ""),
			CacheTTL:    envMs("GATE_CREDENTIALS_CACHE_TTL_MS", 30_000),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "agentgate-gateway"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envMs reads a millisecond-valued key into a time.Duration.
func envMs(key string, fallback int64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(i) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
