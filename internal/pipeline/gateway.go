// Package pipeline wires the gateway end to end: adapter dispatch,
// intent routing, credential resolution, and sandboxed execution, with
// an audit entry appended at every transition.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentgate/agentgate/gateway/internal/audit"
	"github.com/agentgate/agentgate/gateway/internal/catalog"
	"github.com/agentgate/agentgate/gateway/pkg/contracts"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// Status summarizes how far a request travelled through the pipeline.
type Status string

const (
	StatusCompleted       Status = "completed"
	StatusPendingApproval Status = "pending_approval"
	StatusFailed          Status = "failed"
)

// Response is the pipeline's answer for one raw payload.
type Response struct {
	Status    Status                   `json:"status"`
	Request   *models.NormalizedRequest `json:"request"`
	Decision  *models.RoutingDecision   `json:"decision,omitempty"`
	Execution *models.ExecutionResult   `json:"execution,omitempty"`
}

// Gateway orchestrates a request through every stage.
type Gateway struct {
	converter contracts.ProtocolConverter
	router    contracts.IntentRouter
	runtime   contracts.SandboxRuntime
	resolver  contracts.CredentialResolver
	catalog   *catalog.Catalog
	stream    *audit.Stream

	executionTimeout time.Duration
	tracer           trace.Tracer

	mu              sync.Mutex
	byProtocol      map[models.ProtocolTag]int64
	routingFailures int64
}

// Stats reports aggregate pipeline counters.
type Stats struct {
	RequestsByProtocol map[models.ProtocolTag]int64 `json:"requests_by_protocol"`
	RoutingFailures    int64                        `json:"routing_failures"`
}

func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	byProtocol := make(map[models.ProtocolTag]int64, len(g.byProtocol))
	for k, v := range g.byProtocol {
		byProtocol[k] = v
	}
	return Stats{RequestsByProtocol: byProtocol, RoutingFailures: g.routingFailures}
}

// NewGateway wires the pipeline stages together.
func NewGateway(
	converter contracts.ProtocolConverter,
	router contracts.IntentRouter,
	runtime contracts.SandboxRuntime,
	resolver contracts.CredentialResolver,
	cat *catalog.Catalog,
	stream *audit.Stream,
	executionTimeout time.Duration,
) *Gateway {
	if executionTimeout <= 0 {
		executionTimeout = 30 * time.Second
	}
	return &Gateway{
		converter:        converter,
		router:           router,
		runtime:          runtime,
		resolver:         resolver,
		catalog:          cat,
		stream:           stream,
		executionTimeout: executionTimeout,
		tracer:           otel.Tracer("agentgate/pipeline"),
		byProtocol:       make(map[models.ProtocolTag]int64),
	}
}

// Convert normalizes a raw payload without routing or executing it.
func (g *Gateway) Convert(ctx context.Context, raw []byte, tag models.ProtocolTag, traceID string) (*models.NormalizedRequest, error) {
	ctx, span := g.tracer.Start(ctx, "pipeline.convert",
		trace.WithAttributes(attribute.String("protocol", string(tag))))
	defer span.End()

	req, err := g.converter.Convert(ctx, raw, tag, traceID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.byProtocol[tag]++
	g.mu.Unlock()

	g.record(req, models.EventRequestReceived, models.SeverityInfo, "normalize", string(tag),
		map[string]interface{}{"protocol": string(tag), "bytes": len(raw)})
	g.record(req, models.EventIntentClassified, models.SeverityInfo, "classify", req.Intent.Action,
		map[string]interface{}{
			"category":   string(req.Intent.Category),
			"action":     req.Intent.Action,
			"confidence": req.Intent.Confidence,
		})
	return req, nil
}

// Process runs a raw payload through the full pipeline. A decision that
// requires approval stops before execution with StatusPendingApproval.
func (g *Gateway) Process(ctx context.Context, raw []byte, tag models.ProtocolTag, traceID string) (*Response, error) {
	req, err := g.Convert(ctx, raw, tag, traceID)
	if err != nil {
		return nil, err
	}

	decision, err := g.route(ctx, req)
	if err != nil {
		return nil, err
	}

	if decision.RequiresApproval {
		g.record(req, models.EventHumanApprovalRequested, models.SeverityWarning, "request_approval",
			decision.SelectedTool.ID,
			map[string]interface{}{
				"tool":       decision.SelectedTool.ID,
				"confidence": decision.Confidence,
				"reason":     decision.ApprovalReason,
			})
		return &Response{Status: StatusPendingApproval, Request: req, Decision: decision}, nil
	}

	return g.execute(ctx, req, decision)
}

// Execute runs an already-approved decision through credentials and the
// sandbox runtime.
func (g *Gateway) Execute(ctx context.Context, req *models.NormalizedRequest, decision *models.RoutingDecision) (*Response, error) {
	return g.execute(ctx, req, decision)
}

func (g *Gateway) route(ctx context.Context, req *models.NormalizedRequest) (*models.RoutingDecision, error) {
	ctx, span := g.tracer.Start(ctx, "pipeline.route",
		trace.WithAttributes(attribute.String("request_id", req.ID)))
	defer span.End()

	decision, err := g.router.Route(ctx, req, g.catalog.List())
	if err != nil {
		g.mu.Lock()
		g.routingFailures++
		g.mu.Unlock()

		severity := models.SeverityError
		if models.IsKind(err, models.KindNoMatch) {
			severity = models.SeverityWarning
		}
		g.record(req, models.EventRoutingFailed, severity, "route", req.Intent.Action,
			map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	g.record(req, models.EventRoutingDecided, models.SeverityInfo, "route", decision.SelectedTool.ID,
		map[string]interface{}{
			"tool":       decision.SelectedTool.ID,
			"confidence": decision.Confidence,
			"fallbacks":  len(decision.Fallbacks),
		})
	return decision, nil
}

func (g *Gateway) execute(ctx context.Context, req *models.NormalizedRequest, decision *models.RoutingDecision) (*Response, error) {
	tool := decision.SelectedTool

	if err := g.resolveCredentials(ctx, req, tool); err != nil {
		return nil, err
	}

	ctx, span := g.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(attribute.String("tool", tool.ID)))
	defer span.End()

	result, err := g.runtime.Execute(ctx, tool, req.Intent.Parameters, g.executionTimeout)
	if err != nil {
		var ge *models.Error
		if errors.As(err, &ge) && ge.Code == "INVALID_ARGUMENTS" {
			g.record(req, models.EventSecurityAlert, models.SeverityCritical, "reject", tool.ID,
				map[string]interface{}{"tool": tool.ID, "reason": "arguments rejected by schema validation"})
		} else {
			g.record(req, models.EventToolFailed, models.SeverityError, "execute", tool.ID,
				map[string]interface{}{"tool": tool.ID, "error": err.Error()})
		}
		return nil, err
	}

	if result.Metrics.ColdStart {
		g.record(req, models.EventSandboxCreated, models.SeverityInfo, "create_sandbox", tool.ID,
			map[string]interface{}{"tool": tool.ID, "cold_start_ms": result.Metrics.ColdStartMs})
	}

	if !result.Success {
		g.record(req, models.EventToolFailed, models.SeverityError, "execute", tool.ID,
			map[string]interface{}{
				"tool":  tool.ID,
				"error": result.Error.Message,
				"code":  result.Error.Code,
			})
		return &Response{Status: StatusFailed, Request: req, Decision: decision, Execution: result}, nil
	}

	g.record(req, models.EventToolExecuted, models.SeverityInfo, "execute", tool.ID,
		map[string]interface{}{
			"tool":     tool.ID,
			"total_ms": result.Metrics.TotalMs,
		})
	return &Response{Status: StatusCompleted, Request: req, Decision: decision, Execution: result}, nil
}

// resolveCredentials resolves every credential the tool declares. The
// secret values stay inside the facade; only the ids are audited.
func (g *Gateway) resolveCredentials(ctx context.Context, req *models.NormalizedRequest, tool models.ToolDefinition) error {
	for _, id := range tool.CredentialIDs {
		if _, err := g.resolver.Resolve(ctx, id); err != nil {
			g.record(req, models.EventCredentialMissing, models.SeverityError, "resolve_credential", id,
				map[string]interface{}{"credential_id": id, "tool": tool.ID})
			return err
		}
		g.record(req, models.EventCredentialResolved, models.SeverityInfo, "resolve_credential", id,
			map[string]interface{}{"credential_id": id, "tool": tool.ID})
	}
	return nil
}

// record appends one audit entry for a pipeline transition.
func (g *Gateway) record(req *models.NormalizedRequest, eventType models.AuditEventType, severity models.AuditSeverity, action, target string, details map[string]interface{}) {
	if g.stream == nil {
		return
	}
	actor := req.Context.UserID
	if actor == "" {
		actor = "gateway"
	}
	g.stream.Write(models.AuditEntry{
		ID:        models.NewID(),
		Timestamp: time.Now(),
		TraceID:   req.Metadata.TraceID,
		RequestID: req.ID,
		EventType: eventType,
		Severity:  severity,
		Actor:     actor,
		Action:    action,
		Target:    target,
		Details:   details,
	})

	if severity == models.SeverityCritical {
		log.Warn().Str("event", string(eventType)).Str("request_id", req.ID).Msg("Critical audit event recorded")
	}
}
