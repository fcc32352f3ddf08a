package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agentgate/agentgate/gateway/internal/embeddings"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// fixtureProvider returns pre-seeded unit vectors keyed by the exact
// embedding text, making similarities fully deterministic.
type fixtureProvider struct {
	vectors map[string][]float64
}

func (f *fixtureProvider) Kind() string    { return "fixture" }
func (f *fixtureProvider) Dimensions() int { return 3 }

func (f *fixtureProvider) Embed(_ context.Context, text string) ([]float64, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no fixture vector for %q", text)
	}
	return append([]float64(nil), v...), nil
}

func (f *fixtureProvider) HealthCheck(context.Context) error { return nil }

func intentText(intent models.NormalizedIntent) string {
	return fmt.Sprintf("Action: %s\nCategory: %s\nTarget: %s\nParameters: %s",
		intent.Action, intent.Category, intent.Target, models.CanonicalJSON(intent.Parameters))
}

func toolText(tool models.ToolDefinition) string {
	return fmt.Sprintf("%s: %s", tool.Name, tool.Description)
}

// simVector builds a unit vector whose cosine similarity to [1,0,0]
// equals sim.
func simVector(sim float64) []float64 {
	return []float64{sim, sqrt(1 - sim*sim), 0}
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 40; i++ {
		z = (z + x/z) / 2
	}
	return z
}

type fixture struct {
	router  *Router
	request *models.NormalizedRequest
	catalog []models.ToolDefinition
}

// newFixture wires a router over tools whose similarity to the intent
// is given per tool id.
func newFixture(t *testing.T, sims map[string]float64, defs ...models.ToolDefinition) *fixture {
	t.Helper()

	intent := models.NormalizedIntent{
		ID:       models.NewID(),
		Category: models.CategoryToolCall,
		Action:   "search",
		Target:   "tool",
	}
	vectors := map[string][]float64{
		intentText(intent): {1, 0, 0},
	}
	for _, d := range defs {
		sim, ok := sims[d.ID]
		if !ok {
			t.Fatalf("no similarity configured for tool %s", d.ID)
		}
		vectors[toolText(d)] = simVector(sim)
	}

	svc := embeddings.NewService(&fixtureProvider{vectors: vectors}, time.Minute)
	return &fixture{
		router: NewRouter(svc, DefaultOptions()),
		request: &models.NormalizedRequest{
			ID:     models.NewID(),
			Intent: intent,
		},
		catalog: defs,
	}
}

func tool(id string, opts ...func(*models.ToolDefinition)) models.ToolDefinition {
	d := models.ToolDefinition{ID: id, Name: id, Description: "tool " + id}
	for _, o := range opts {
		o(&d)
	}
	return d
}

func withCost(c float64) func(*models.ToolDefinition) {
	return func(d *models.ToolDefinition) { d.CostEstimate = &c }
}

func withLatency(ms int64) func(*models.ToolDefinition) {
	return func(d *models.ToolDefinition) { d.LatencyEstimateMs = &ms }
}

func TestRouteSelectsAndFallsBack(t *testing.T) {
	f := newFixture(t,
		map[string]float64{"a": 0.99, "b": 0.92, "c": 0.50},
		tool("a"), tool("b"), tool("c"))

	d, err := f.router.Route(context.Background(), f.request, f.catalog)
	if err != nil {
		t.Fatal(err)
	}
	if d.SelectedTool.ID != "a" {
		t.Errorf("selected = %s, want a", d.SelectedTool.ID)
	}
	if len(d.Fallbacks) != 1 || d.Fallbacks[0].ID != "b" {
		t.Errorf("fallbacks = %v, want [b]", d.Fallbacks)
	}
	if d.RequiresApproval {
		t.Error("high-confidence decision must not require approval")
	}
	if d.RequestID != f.request.ID {
		t.Error("decision must carry the request id")
	}
	if d.Reasoning == "" {
		t.Error("reasoning must be populated")
	}
}

func TestRouteSimilarityThresholdBoundary(t *testing.T) {
	f := newFixture(t,
		map[string]float64{"at": 0.85, "below": 0.8499},
		tool("at"), tool("below"))

	d, err := f.router.Route(context.Background(), f.request, f.catalog)
	if err != nil {
		t.Fatal(err)
	}
	if d.SelectedTool.ID != "at" {
		t.Errorf("selected = %s, want at (0.85 is inclusive)", d.SelectedTool.ID)
	}
	if len(d.Fallbacks) != 0 {
		t.Errorf("below-threshold tool must not be a fallback, got %v", d.Fallbacks)
	}
}

func TestRouteApprovalThreshold(t *testing.T) {
	// cost 400 with cost optimization: 0.86 * (0.9 + 0.1/5) = 0.7912.
	f := newFixture(t,
		map[string]float64{"pricey": 0.86},
		tool("pricey", withCost(400)))
	f.request.Context.Preferences.OptimizeCost = true

	d, err := f.router.Route(context.Background(), f.request, f.catalog)
	if err != nil {
		t.Fatal(err)
	}
	if !d.RequiresApproval {
		t.Fatalf("confidence %v must require approval", d.Confidence)
	}
	if d.Confidence >= ApprovalThreshold {
		t.Errorf("confidence = %v, want < %v", d.Confidence, ApprovalThreshold)
	}
	if d.ApprovalReason == "" {
		t.Error("approval reason must carry the confidence percentage")
	}
}

func TestRouteApprovalIffBelowThreshold(t *testing.T) {
	for _, sim := range []float64{0.99, 0.90, 0.86} {
		f := newFixture(t, map[string]float64{"x": sim}, tool("x"))
		d, err := f.router.Route(context.Background(), f.request, f.catalog)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := d.RequiresApproval, d.Confidence < ApprovalThreshold; got != want {
			t.Errorf("sim %v: requiresApproval = %v, confidence = %v", sim, got, d.Confidence)
		}
	}
}

func TestRouteNoMatchCarriesAlternatives(t *testing.T) {
	f := newFixture(t,
		map[string]float64{"w": 0.80, "x": 0.70, "y": 0.60, "z": 0.50},
		tool("w"), tool("x"), tool("y"), tool("z"))

	_, err := f.router.Route(context.Background(), f.request, f.catalog)
	if !models.IsKind(err, models.KindNoMatch) {
		t.Fatalf("expected NoMatch, got %v", err)
	}

	var e *models.Error
	errors.As(err, &e)
	if len(e.Alternatives) != 3 {
		t.Fatalf("alternatives = %d, want 3", len(e.Alternatives))
	}
	for i := 1; i < len(e.Alternatives); i++ {
		if e.Alternatives[i].Score > e.Alternatives[i-1].Score {
			t.Error("alternatives must be ordered by score descending")
		}
	}
	if e.Alternatives[0].Tool.ID != "w" {
		t.Errorf("best alternative = %s, want w", e.Alternatives[0].Tool.ID)
	}
}

func TestRouteMinConfidenceDrop(t *testing.T) {
	// 0.85 * 0.9... * 0.9... with extreme estimates lands below 0.70.
	f := newFixture(t,
		map[string]float64{"slow": 0.85},
		tool("slow", withCost(1e9), withLatency(1e9)))
	f.request.Context.Preferences.OptimizeCost = true
	f.request.Context.Preferences.OptimizeLatency = true

	_, err := f.router.Route(context.Background(), f.request, f.catalog)
	if !models.IsKind(err, models.KindNoMatch) {
		t.Fatalf("expected NoMatch after confidence drop, got %v", err)
	}
}

func TestRouteTieBreakByLatencyThenCostThenID(t *testing.T) {
	f := newFixture(t,
		map[string]float64{"fast": 0.95, "slow": 0.95},
		tool("slow", withLatency(500)), tool("fast", withLatency(100)))

	d, err := f.router.Route(context.Background(), f.request, f.catalog)
	if err != nil {
		t.Fatal(err)
	}
	if d.SelectedTool.ID != "fast" {
		t.Errorf("selected = %s, want fast (lower latency wins ties)", d.SelectedTool.ID)
	}
	// Equal-score candidates are not valid fallbacks.
	if len(d.Fallbacks) != 0 {
		t.Errorf("fallbacks = %v, want none at equal score", d.Fallbacks)
	}

	f2 := newFixture(t,
		map[string]float64{"aa": 0.95, "ab": 0.95},
		tool("ab"), tool("aa"))
	d2, err := f2.router.Route(context.Background(), f2.request, f2.catalog)
	if err != nil {
		t.Fatal(err)
	}
	if d2.SelectedTool.ID != "aa" {
		t.Errorf("selected = %s, want aa (lexicographic tie-break)", d2.SelectedTool.ID)
	}
}

func TestRouteConstraintFiltering(t *testing.T) {
	f := newFixture(t,
		map[string]float64{"cheap": 0.90, "pricey": 0.99},
		tool("cheap", withCost(5)), tool("pricey", withCost(500)))
	f.request.Context.Constraints = []string{"expr:cost < 10"}

	d, err := f.router.Route(context.Background(), f.request, f.catalog)
	if err != nil {
		t.Fatal(err)
	}
	if d.SelectedTool.ID != "cheap" {
		t.Errorf("selected = %s, want cheap (constraint excludes pricey)", d.SelectedTool.ID)
	}

	// Invalid constraints are ignored, not fatal.
	f.request.Context.Constraints = []string{"expr:((("}
	if _, err := f.router.Route(context.Background(), f.request, f.catalog); err != nil {
		t.Errorf("invalid constraint must be skipped, got %v", err)
	}
}

func TestRouteAvailableToolsRestriction(t *testing.T) {
	f := newFixture(t,
		map[string]float64{"a": 0.99, "b": 0.95},
		tool("a"), tool("b"))
	f.request.Context.AvailableTools = []string{"b"}

	d, err := f.router.Route(context.Background(), f.request, f.catalog)
	if err != nil {
		t.Fatal(err)
	}
	if d.SelectedTool.ID != "b" {
		t.Errorf("selected = %s, want b (a is not available)", d.SelectedTool.ID)
	}
}

func TestRouteEmbeddingFailureWrapsRoutingError(t *testing.T) {
	svc := embeddings.NewService(&fixtureProvider{vectors: map[string][]float64{}}, time.Minute)
	r := NewRouter(svc, DefaultOptions())
	req := &models.NormalizedRequest{ID: "r1", Intent: models.NormalizedIntent{Action: "x"}}

	_, err := r.Route(context.Background(), req, []models.ToolDefinition{tool("a")})
	if !models.IsKind(err, models.KindRoutingError) {
		t.Fatalf("expected RoutingError, got %v", err)
	}
}
