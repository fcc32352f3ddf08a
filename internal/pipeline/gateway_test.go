package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/agentgate/agentgate/gateway/internal/adapters"
	"github.com/agentgate/agentgate/gateway/internal/audit"
	"github.com/agentgate/agentgate/gateway/internal/catalog"
	"github.com/agentgate/agentgate/gateway/internal/credentials"
	"github.com/agentgate/agentgate/gateway/internal/embeddings"
	"github.com/agentgate/agentgate/gateway/internal/routing"
	"github.com/agentgate/agentgate/gateway/internal/sandbox"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// stubRouter pins the decision so pipeline tests are independent of
// embedding similarity.
type stubRouter struct {
	decision *models.RoutingDecision
	err      error
}

func (s *stubRouter) Route(context.Context, *models.NormalizedRequest, []models.ToolDefinition) (*models.RoutingDecision, error) {
	return s.decision, s.err
}

func testGateway(t *testing.T, router *stubRouter, secrets map[string]string) (*Gateway, *audit.MemorySink, *audit.Stream) {
	t.Helper()

	cat := catalog.NewCatalog()
	sink := audit.NewMemorySink()
	stream := audit.NewStream(100, time.Minute, sink)
	runtime := sandbox.NewRuntime(sandbox.NewLocalDriver(), sandbox.DefaultOptions())

	g := NewGateway(
		adapters.NewDispatcher(),
		router,
		runtime,
		credentials.NewStaticResolver(secrets),
		cat,
		stream,
		time.Second,
	)
	return g, sink, stream
}

func flushedEvents(stream *audit.Stream, sink *audit.MemorySink) map[models.AuditEventType]int {
	stream.Flush(context.Background())
	counts := map[models.AuditEventType]int{}
	for _, e := range sink.Entries() {
		counts[e.EventType]++
	}
	return counts
}

const mcpSearch = `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search","arguments":{"q":"hi"}}}`

func TestProcessHappyPath(t *testing.T) {
	router := &stubRouter{decision: &models.RoutingDecision{
		SelectedTool: models.ToolDefinition{ID: "search", CredentialIDs: []string{"api-key"}},
		Confidence:   0.95,
	}}
	g, sink, stream := testGateway(t, router, map[string]string{"api-key": "secret"})

	resp, err := g.Process(context.Background(), []byte(mcpSearch), models.ProtocolMCP, "trace-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", resp.Status)
	}
	if resp.Execution == nil || !resp.Execution.Success {
		t.Fatalf("execution = %+v", resp.Execution)
	}

	events := flushedEvents(stream, sink)
	for _, want := range []models.AuditEventType{
		models.EventRequestReceived,
		models.EventIntentClassified,
		models.EventRoutingDecided,
		models.EventCredentialResolved,
		models.EventSandboxCreated,
		models.EventToolExecuted,
	} {
		if events[want] != 1 {
			t.Errorf("event %s recorded %d times, want 1", want, events[want])
		}
	}

	for _, e := range sink.Entries() {
		if e.TraceID != "trace-1" {
			t.Errorf("entry %s trace = %q, want trace-1", e.EventType, e.TraceID)
		}
	}
}

func TestProcessPoolHitNotAuditedAsCreation(t *testing.T) {
	router := &stubRouter{decision: &models.RoutingDecision{
		SelectedTool: models.ToolDefinition{ID: "search"},
		Confidence:   0.95,
	}}
	g, sink, stream := testGateway(t, router, nil)

	for i := 0; i < 2; i++ {
		if _, err := g.Process(context.Background(), []byte(mcpSearch), models.ProtocolMCP, ""); err != nil {
			t.Fatal(err)
		}
	}

	events := flushedEvents(stream, sink)
	if events[models.EventSandboxCreated] != 1 {
		t.Errorf("sandbox_created recorded %d times, want 1 (second call is a pool hit)", events[models.EventSandboxCreated])
	}
	if events[models.EventToolExecuted] != 2 {
		t.Errorf("tool_executed recorded %d times, want 2", events[models.EventToolExecuted])
	}
}

func TestProcessStopsForApproval(t *testing.T) {
	router := &stubRouter{decision: &models.RoutingDecision{
		SelectedTool:     models.ToolDefinition{ID: "risky"},
		Confidence:       0.72,
		RequiresApproval: true,
		ApprovalReason:   "confidence 72.0% is below the 80% approval threshold",
	}}
	g, sink, stream := testGateway(t, router, nil)

	resp, err := g.Process(context.Background(), []byte(mcpSearch), models.ProtocolMCP, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusPendingApproval {
		t.Fatalf("status = %s, want pending_approval", resp.Status)
	}
	if resp.Execution != nil {
		t.Error("approval-pending request must not execute")
	}

	events := flushedEvents(stream, sink)
	if events[models.EventHumanApprovalRequested] != 1 {
		t.Errorf("approval event recorded %d times, want 1", events[models.EventHumanApprovalRequested])
	}
	if events[models.EventToolExecuted] != 0 {
		t.Error("no execution event expected before approval")
	}
}

func TestProcessRoutingFailureAudited(t *testing.T) {
	router := &stubRouter{err: models.NewError(models.KindNoMatch, "NO_MATCH", "nothing matched")}
	g, sink, stream := testGateway(t, router, nil)

	_, err := g.Process(context.Background(), []byte(mcpSearch), models.ProtocolMCP, "")
	if !models.IsKind(err, models.KindNoMatch) {
		t.Fatalf("expected NoMatch, got %v", err)
	}

	events := flushedEvents(stream, sink)
	if events[models.EventRoutingFailed] != 1 {
		t.Errorf("routing_failed recorded %d times, want 1", events[models.EventRoutingFailed])
	}
}

func TestProcessMissingCredential(t *testing.T) {
	router := &stubRouter{decision: &models.RoutingDecision{
		SelectedTool: models.ToolDefinition{ID: "search", CredentialIDs: []string{"absent"}},
		Confidence:   0.95,
	}}
	g, sink, stream := testGateway(t, router, nil)

	_, err := g.Process(context.Background(), []byte(mcpSearch), models.ProtocolMCP, "")
	if !models.IsKind(err, models.KindCredentialMissing) {
		t.Fatalf("expected CredentialMissing, got %v", err)
	}

	events := flushedEvents(stream, sink)
	if events[models.EventCredentialMissing] != 1 {
		t.Errorf("credential_missing recorded %d times, want 1", events[models.EventCredentialMissing])
	}
	if events[models.EventToolExecuted] != 0 {
		t.Error("execution must not happen without credentials")
	}
}

func TestProcessInvalidArgumentsRaisesSecurityAlert(t *testing.T) {
	router := &stubRouter{decision: &models.RoutingDecision{
		SelectedTool: models.ToolDefinition{
			ID: "strict",
			Parameters: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"must_have"},
			},
		},
		Confidence: 0.95,
	}}
	g, sink, stream := testGateway(t, router, nil)

	_, err := g.Process(context.Background(), []byte(mcpSearch), models.ProtocolMCP, "")
	if err == nil {
		t.Fatal("expected validation failure")
	}

	events := flushedEvents(stream, sink)
	if events[models.EventSecurityAlert] != 1 {
		t.Errorf("security_alert recorded %d times, want 1", events[models.EventSecurityAlert])
	}
}

func TestProcessWithRealRouter(t *testing.T) {
	cat := catalog.NewCatalog()
	if err := cat.Register(models.ToolDefinition{ID: "echo", Name: "echo", Description: "echo arguments"}); err != nil {
		t.Fatal(err)
	}

	sink := audit.NewMemorySink()
	stream := audit.NewStream(100, time.Minute, sink)
	svc := embeddings.NewService(embeddings.NewLocalProvider(64), time.Minute)
	opts := routing.DefaultOptions()
	opts.SimilarityThreshold = -1 // accept anything from the hash provider
	opts.MinConfidence = -1

	g := NewGateway(
		adapters.NewDispatcher(),
		routing.NewRouter(svc, opts),
		sandbox.NewRuntime(sandbox.NewLocalDriver(), sandbox.DefaultOptions()),
		credentials.NewStaticResolver(nil),
		cat,
		stream,
		time.Second,
	)

	resp, err := g.Process(context.Background(), []byte(mcpSearch), models.ProtocolMCP, "")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Decision.SelectedTool.ID != "echo" {
		t.Errorf("selected = %s, want echo", resp.Decision.SelectedTool.ID)
	}
}
