// Package server provides the public entry point for initializing the
// AgentGate gateway.
//
// This package exists in pkg/ (not internal/) so that embedders can
// compose the full gateway and wrap its handler with their own
// middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/internal/adapters"
	"github.com/agentgate/agentgate/gateway/internal/api"
	"github.com/agentgate/agentgate/gateway/internal/audit"
	"github.com/agentgate/agentgate/gateway/internal/catalog"
	"github.com/agentgate/agentgate/gateway/internal/config"
	"github.com/agentgate/agentgate/gateway/internal/credentials"
	"github.com/agentgate/agentgate/gateway/internal/embeddings"
	"github.com/agentgate/agentgate/gateway/internal/pipeline"
	"github.com/agentgate/agentgate/gateway/internal/routing"
	"github.com/agentgate/agentgate/gateway/internal/sandbox"
	"github.com/agentgate/agentgate/gateway/internal/telemetry"
	"github.com/agentgate/agentgate/gateway/pkg/contracts"
)

// Server holds the initialized gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// Runtime keeps the sandbox pool warm until Shutdown.
	Runtime *sandbox.Runtime

	// Stream buffers audit entries until Shutdown.
	Stream *audit.Stream

	shutdownTelemetry func(context.Context) error
	closers           []func() error
}

// New initializes every gateway component from the environment and
// returns a ready Server. Background loops (pool maintenance, audit
// flushing) are already running; call Shutdown to stop them.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	srv := &Server{
		Config:            cfg,
		Port:              cfg.Port,
		shutdownTelemetry: shutdownTelemetry,
	}

	// Embeddings
	provider, err := buildProvider(cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	embedSvc := embeddings.NewService(provider, cfg.Embeddings.CacheTTL)
	log.Info().Str("provider", provider.Kind()).Int("dimensions", provider.Dimensions()).
		Msg("Embedding provider initialized")

	// Routing
	router := routing.NewRouter(embedSvc, routing.Options{
		SimilarityThreshold: cfg.Routing.SimilarityThreshold,
		MinConfidence:       cfg.Routing.MinConfidence,
		MaxAlternatives:     cfg.Routing.MaxAlternatives,
		Deadline:            cfg.Routing.Deadline,
	})

	// Sandbox runtime
	driver, err := buildDriver(cfg.Sandbox)
	if err != nil {
		return nil, err
	}
	runtime := sandbox.NewRuntime(driver, sandbox.Options{
		MinInstances:   cfg.Sandbox.MinInstances,
		MaxInstances:   cfg.Sandbox.MaxInstances,
		IdleTimeout:    cfg.Sandbox.IdleTimeout,
		WarmupInterval: cfg.Sandbox.WarmupInterval,
		DefaultTimeout: cfg.Sandbox.DefaultTimeout,
	})
	runtime.Start(ctx)
	srv.Runtime = runtime
	log.Info().Str("driver", driver.Kind()).
		Int("min", cfg.Sandbox.MinInstances).Int("max", cfg.Sandbox.MaxInstances).
		Msg("Sandbox runtime initialized")

	// Audit
	sink, err := buildSink(ctx, cfg.Audit, srv)
	if err != nil {
		return nil, err
	}
	stream := audit.NewStream(cfg.Audit.BufferSize, cfg.Audit.FlushInterval, sink)
	stream.Start(ctx)
	srv.Stream = stream
	log.Info().Str("sink", sink.Kind()).Int("buffer", cfg.Audit.BufferSize).
		Msg("Audit stream initialized")

	// Retention only applies to the memory sink; the clickhouse table
	// carries its own TTL.
	if mem, ok := sink.(*audit.MemorySink); ok {
		archiver := audit.NewArchiver(mem, cfg.Audit.ArchiveDir,
			cfg.Audit.RetentionDays, cfg.Audit.Compression, time.Hour)
		archiver.Start()
		srv.closers = append(srv.closers, func() error {
			archiver.Stop()
			return nil
		})
	}

	// Credentials
	resolver, err := buildResolver(ctx, cfg.Credentials, srv)
	if err != nil {
		return nil, err
	}

	// Tool catalog
	cat := catalog.NewCatalog()
	if path := os.Getenv("GATE_CATALOG_FILE"); path != "" {
		if err := cat.LoadFile(path); err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", path, err)
		}
		log.Info().Int("tools", cat.Count()).Str("file", path).Msg("Tool catalog loaded")
	}

	// Pipeline + API
	dispatcher := adapters.NewDispatcher()
	gw := pipeline.NewGateway(dispatcher, router, runtime, resolver, cat, stream, cfg.Sandbox.DefaultTimeout)

	srv.Handler = api.NewRouter(&api.Handlers{
		Config:     cfg,
		Gateway:    gw,
		Converter:  dispatcher,
		Catalog:    cat,
		Stream:     stream,
		Runtime:    runtime,
		Embeddings: embedSvc,
		Resolver:   resolver,
		Sink:       sink,
		Views:      &audit.ViewMeter{},
	})

	return srv, nil
}

// Shutdown stops the background loops, flushes the audit buffer, and
// closes external connections.
func (s *Server) Shutdown(ctx context.Context) {
	if s.Runtime != nil {
		s.Runtime.Stop()
	}
	if s.Stream != nil {
		s.Stream.Stop()
	}
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			log.Warn().Err(err).Msg("Close failed during shutdown")
		}
	}
	if s.shutdownTelemetry != nil {
		if err := s.shutdownTelemetry(ctx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}
}

// buildProvider registers every provider the environment supports and
// selects the configured one.
func buildProvider(cfg config.EmbeddingConfig) (contracts.EmbeddingProvider, error) {
	reg := embeddings.NewRegistry()
	reg.Register("local", embeddings.NewLocalProvider(cfg.Dimensions))
	reg.Register("ollama", embeddings.NewOllamaProvider(cfg.OllamaURL, cfg.Model))
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		reg.Register("openai", embeddings.NewOpenAIProvider(key, cfg.Model))
	}

	name := cfg.Provider
	if name == "" {
		name = "local"
	}
	return reg.Get(name)
}

func buildDriver(cfg config.SandboxConfig) (contracts.SandboxDriver, error) {
	switch cfg.Driver {
	case "local", "":
		return sandbox.NewLocalDriver(), nil
	case "docker":
		return sandbox.NewDockerDriver()
	default:
		return nil, fmt.Errorf("unknown sandbox driver: %s", cfg.Driver)
	}
}

func buildSink(ctx context.Context, cfg config.AuditConfig, srv *Server) (contracts.AuditSink, error) {
	switch cfg.Sink {
	case "memory", "":
		return audit.NewMemorySink(), nil
	case "clickhouse":
		if cfg.ClickHouseDSN == "" {
			return nil, fmt.Errorf("audit sink clickhouse requires GATE_CLICKHOUSE_DSN")
		}
		sink, err := audit.NewClickHouseSink(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		srv.closers = append(srv.closers, sink.Close)
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown audit sink: %s", cfg.Sink)
	}
}

func buildResolver(ctx context.Context, cfg config.CredentialConfig, srv *Server) (contracts.CredentialResolver, error) {
	var inner contracts.CredentialResolver
	switch cfg.Backend {
	case "static", "":
		inner = credentials.NewStaticResolver(nil)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("credential backend postgres requires DATABASE_URL")
		}
		pg, err := credentials.NewPostgresResolver(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		srv.closers = append(srv.closers, pg.Close)
		inner = pg
	default:
		return nil, fmt.Errorf("unknown credential backend: %s", cfg.Backend)
	}
	log.Info().Str("backend", inner.Kind()).Dur("cache_ttl", cfg.CacheTTL).
		Msg("Credential resolver initialized")

	if cfg.CacheTTL > 0 {
		return credentials.NewCachingResolver(inner, cfg.CacheTTL), nil
	}
	return inner, nil
}

// Addr formats the listen address for the configured port.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// HTTPServer builds an http.Server with production timeouts around the
// gateway handler.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
