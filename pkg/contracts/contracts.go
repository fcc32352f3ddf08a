// Package contracts defines the service and provider interfaces of the
// AgentGate gateway.
//
// The core pipeline depends only on these interfaces, so every outward
// surface — embedding generation, sandbox execution, audit persistence,
// credential lookup — is swappable at wiring time without touching the
// pipeline.
package contracts

import (
	"context"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// ── Protocol Conversion ──────────────────────────────────────

// ProtocolConverter turns protocol-tagged opaque payloads into
// normalized requests.
type ProtocolConverter interface {
	// DetectProtocol probes each registered adapter in fixed order and
	// returns the tag of the first whose parse succeeds.
	DetectProtocol(raw []byte) (models.ProtocolTag, bool)

	// Convert parses and normalizes raw under the given tag. traceID may
	// be empty; a fresh one is generated.
	Convert(ctx context.Context, raw []byte, tag models.ProtocolTag, traceID string) (*models.NormalizedRequest, error)
}

// ── Intent Routing ───────────────────────────────────────────

// IntentRouter ranks a tool catalog against a normalized request and
// returns a routing decision.
type IntentRouter interface {
	Route(ctx context.Context, req *models.NormalizedRequest, catalog []models.ToolDefinition) (*models.RoutingDecision, error)
}

// ── Embedding Provider ───────────────────────────────────────

// EmbeddingProvider produces a vector for a piece of text. The gateway
// L2-normalizes whatever the provider returns.
type EmbeddingProvider interface {
	// Kind returns the provider identifier (e.g. "local", "ollama").
	Kind() string

	// Dimensions returns the fixed vector dimension D.
	Dimensions() int

	// Embed generates a vector of length Dimensions() for the text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// HealthCheck verifies the provider is usable.
	HealthCheck(ctx context.Context) error
}

// ── Sandbox Driver ───────────────────────────────────────────

// SandboxDriver abstracts the isolation backend. The runtime owns
// lifecycle and pooling; the driver owns the actual execution context.
type SandboxDriver interface {
	// Kind returns the driver identifier (e.g. "local").
	Kind() string

	// Create provisions an execution context and returns its handle.
	Create(ctx context.Context, config models.SandboxConfig) (string, error)

	// Run executes the tool with the given arguments inside the handle's
	// context, bounded by timeout.
	Run(ctx context.Context, handle string, tool models.ToolDefinition, args map[string]interface{}, timeout time.Duration) (*models.DriverResult, error)

	// Destroy tears down the execution context. Idempotent.
	Destroy(ctx context.Context, handle string) error
}

// SandboxRuntime executes tools in pooled sandboxes.
type SandboxRuntime interface {
	Execute(ctx context.Context, tool models.ToolDefinition, args map[string]interface{}, timeout time.Duration) (*models.ExecutionResult, error)
	Stats() models.PoolStats
}

// ── Audit ────────────────────────────────────────────────────

// AuditHandler receives each flushed batch. Handler errors are contained:
// they are logged and never disrupt other subscribers or the stream.
type AuditHandler func(batch []models.AuditEntry) error

// AuditStream buffers entries for multi-subscriber fan-out and filtered
// query.
type AuditStream interface {
	// Write appends an entry. A full buffer flushes synchronously.
	Write(entry models.AuditEntry)

	// Flush detaches the buffer, fans out to subscribers, and hands the
	// batch to the persistence sink.
	Flush(ctx context.Context)

	// Subscribe registers a handler and returns its unsubscribe handle.
	Subscribe(handler AuditHandler) (unsubscribe func())

	// Query returns buffered entries matching the filter.
	Query(filter models.AuditFilter) []models.AuditEntry
}

// AuditSink persists flushed batches. May block; the stream calls it off
// the hot path.
type AuditSink interface {
	Kind() string
	Persist(ctx context.Context, entries []models.AuditEntry) error
	HealthCheck(ctx context.Context) error
}

// ── Credential Lookup ────────────────────────────────────────

// CredentialResolver is the minimal contract the core uses: resolve a
// tool's required credential id to a decrypted secret and report health.
type CredentialResolver interface {
	Kind() string

	// Resolve returns the secret for the credential id, or a
	// CredentialMissing error.
	Resolve(ctx context.Context, credentialID string) (*models.Secret, error)

	HealthCheck(ctx context.Context) error
}
