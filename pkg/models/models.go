// Package models defines the shared value types for the AgentGate gateway:
// protocol tags, normalized intents and requests, tool definitions, routing
// decisions, sandbox state, execution results, audit entries, and embeddings.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ── Protocol Tags ────────────────────────────────────────────

// ProtocolTag identifies one of the six supported wire formats.
type ProtocolTag string

const (
	ProtocolMCP ProtocolTag = "mcp"
	ProtocolA2A ProtocolTag = "a2a"
	ProtocolUCP ProtocolTag = "ucp"
	ProtocolACP ProtocolTag = "acp"
	// ProtocolV1 is the OpenAI-style chat completions shape.
	ProtocolV1 ProtocolTag = "v1"
	// ProtocolV2 is the Anthropic-style messages shape.
	ProtocolV2 ProtocolTag = "v2"
)

// AllProtocols lists every supported tag in detection order.
func AllProtocols() []ProtocolTag {
	return []ProtocolTag{ProtocolMCP, ProtocolA2A, ProtocolUCP, ProtocolACP, ProtocolV2, ProtocolV1}
}

// IsValidProtocol reports whether tag is one of the six supported protocols.
func IsValidProtocol(tag ProtocolTag) bool {
	switch tag {
	case ProtocolMCP, ProtocolA2A, ProtocolUCP, ProtocolACP, ProtocolV1, ProtocolV2:
		return true
	}
	return false
}

// ── Intent ───────────────────────────────────────────────────

// IntentCategory is the closed set of intent classifications.
type IntentCategory string

const (
	CategoryToolCall           IntentCategory = "tool_call"
	CategoryInformationRequest IntentCategory = "information_request"
	CategoryActionExecution    IntentCategory = "action_execution"
	CategoryDataRetrieval      IntentCategory = "data_retrieval"
	CategoryCodeGeneration     IntentCategory = "code_generation"
	CategoryAnalysis           IntentCategory = "analysis"
	CategoryConversation       IntentCategory = "conversation"
	CategoryEscalation         IntentCategory = "escalation"
)

// IntentAlternative is a lower-confidence reading of the same payload.
// Alternatives are data, not control flow: stored in non-increasing
// confidence order.
type IntentAlternative struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// NormalizedIntent is the category+action+target tuple produced by an
// adapter's normalize step.
type NormalizedIntent struct {
	ID           string                 `json:"id"`
	Category     IntentCategory         `json:"category"`
	Action       string                 `json:"action"`
	Target       string                 `json:"target"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Confidence   float64                `json:"confidence"`
	Alternatives []IntentAlternative    `json:"alternatives,omitempty"`
	Embedding    []float64              `json:"embedding,omitempty"`
}

// ── Normalized Request ───────────────────────────────────────

// HistoryTurn is one message of prior conversation carried in the
// request context.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoutingPreferences enables cost and latency adjustment during routing.
type RoutingPreferences struct {
	OptimizeCost    bool `json:"optimize_cost"`
	OptimizeLatency bool `json:"optimize_latency"`
}

// RequestContext carries caller-supplied context through the pipeline.
// Constraints of the form "expr:<expression>" are evaluated against
// candidate tools during routing.
type RequestContext struct {
	SessionID      string             `json:"session_id,omitempty"`
	UserID         string             `json:"user_id,omitempty"`
	History        []HistoryTurn      `json:"history,omitempty"`
	AvailableTools []string           `json:"available_tools,omitempty"`
	Constraints    []string           `json:"constraints,omitempty"`
	Preferences    RoutingPreferences `json:"preferences"`
}

// RequestMetadata carries processing hints and the trace id.
type RequestMetadata struct {
	Priority             string  `json:"priority"`
	MaxLatencyMs         int64   `json:"max_latency_ms,omitempty"`
	MaxBudgetUSD         float64 `json:"max_budget_usd,omitempty"`
	RequireHumanApproval bool    `json:"require_human_approval"`
	AuditLevel           string  `json:"audit_level"`
	TraceID              string  `json:"trace_id"`
}

// NormalizedRequest is the internal post-adapter value shared by every
// downstream component. It is never mutated after construction.
type NormalizedRequest struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Protocol  ProtocolTag      `json:"protocol"`
	Raw       json.RawMessage  `json:"raw,omitempty"`
	Intent    NormalizedIntent `json:"intent"`
	Context   RequestContext   `json:"context"`
	Metadata  RequestMetadata  `json:"metadata"`
}

// ── Tool Definition ──────────────────────────────────────────

// ToolDefinition describes one executable tool in the catalog. Entries
// are immutable for the lifetime of a routing call.
type ToolDefinition struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	Protocol          ProtocolTag            `json:"protocol,omitempty"`
	Parameters        map[string]interface{} `json:"parameters,omitempty"`
	Returns           map[string]interface{} `json:"returns,omitempty"`
	CostEstimate      *float64               `json:"cost_estimate,omitempty"`
	LatencyEstimateMs *int64                 `json:"latency_estimate_ms,omitempty"`
	CredentialIDs     []string               `json:"credential_ids,omitempty"`
}

// ── Routing Decision ─────────────────────────────────────────

// ToolScore is a scored candidate, used for NoMatch alternatives.
type ToolScore struct {
	Tool  ToolDefinition `json:"tool"`
	Score float64        `json:"score"`
}

// RoutingDecision is the router's answer for one normalized request.
// RequiresApproval holds exactly when Confidence is below the approval
// threshold (0.8).
type RoutingDecision struct {
	RequestID          string           `json:"request_id"`
	SelectedTool       ToolDefinition   `json:"selected_tool"`
	Confidence         float64          `json:"confidence"`
	Reasoning          string           `json:"reasoning"`
	Fallbacks          []ToolDefinition `json:"fallbacks,omitempty"`
	EstimatedLatencyMs int64            `json:"estimated_latency_ms"`
	EstimatedCost      float64          `json:"estimated_cost"`
	RequiresApproval   bool             `json:"requires_approval"`
	ApprovalReason     string           `json:"approval_reason,omitempty"`
}

// ── Embedding ────────────────────────────────────────────────

// DefaultEmbeddingDimensions is the default vector dimension D.
const DefaultEmbeddingDimensions = 384

// Embedding is a fixed-dimension, L2-normalized vector tagged with the
// model identifier that produced it.
type Embedding struct {
	Vector []float64 `json:"vector"`
	Model  string    `json:"model"`
}

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int { return len(e.Vector) }

// ── Credentials ──────────────────────────────────────────────

// Secret is a decrypted per-tool credential returned by the lookup facade.
type Secret struct {
	ID         string    `json:"id"`
	Value      string    `json:"-"` // never serialized
	ResolvedAt time.Time `json:"resolved_at"`
	Backend    string    `json:"backend"`
}

// ── Shared Helpers ───────────────────────────────────────────

// NewID returns a fresh UUID string for requests, sandboxes, and audit
// entries.
func NewID() string { return uuid.NewString() }

// CosineSimilarity computes the cosine of the angle between two vectors.
// Inputs must share length.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, NewError(KindDimensionMismatch, "DIMENSION_MISMATCH",
			fmt.Sprintf("vectors have dimensions %d and %d", len(a), len(b)))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// L2Normalize scales the vector to unit length in place and returns it.
// A zero vector is returned unchanged.
func L2Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// CanonicalJSON renders a value with deterministically ordered object
// keys. encoding/json marshals map keys in sorted order, which gives the
// canonical form needed for cache keys and change detection.
func CanonicalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// RelativeTime formats t relative to now: "just now" under a minute,
// "Nm ago" under an hour, "Nh ago" under a day, else the date.
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2, 2006")
	}
}

// Clamp01 clamps x to [0,1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
