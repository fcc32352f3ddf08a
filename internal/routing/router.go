// Package routing ranks a tool catalog against a normalized intent by
// embedding similarity and emits a routing decision with fallbacks and
// an approval flag.
package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/internal/embeddings"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// ApprovalThreshold is the confidence below which a decision requires
// human approval.
const ApprovalThreshold = 0.8

// Options bound the ranking pass.
type Options struct {
	// SimilarityThreshold is the minimum raw cosine similarity for a
	// candidate to be considered at all.
	SimilarityThreshold float64

	// MinConfidence drops candidates whose adjusted confidence falls
	// below it.
	MinConfidence float64

	// MaxAlternatives caps the fallback list.
	MaxAlternatives int

	// Deadline bounds the whole routing call.
	Deadline time.Duration
}

// DefaultOptions returns the standard routing bounds.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.85,
		MinConfidence:       0.70,
		MaxAlternatives:     3,
		Deadline:            50 * time.Millisecond,
	}
}

// Router scores catalog entries against intents via the embedding
// service. Safe for concurrent use.
type Router struct {
	embeddings *embeddings.Service
	opts       Options
}

// NewRouter creates a router over the given embedding service.
func NewRouter(svc *embeddings.Service, opts Options) *Router {
	if opts.MaxAlternatives <= 0 {
		opts.MaxAlternatives = 3
	}
	if opts.Deadline <= 0 {
		opts.Deadline = 50 * time.Millisecond
	}
	return &Router{embeddings: svc, opts: opts}
}

// candidate is one scored catalog entry.
type candidate struct {
	tool       models.ToolDefinition
	similarity float64
	adjusted   float64
}

// Route ranks the catalog against the request's intent and returns the
// decision. Fails with NoMatch (carrying up to three below-threshold
// alternatives), RoutingError on embedding failures, or Timeout when
// the deadline fires.
func (r *Router) Route(ctx context.Context, req *models.NormalizedRequest, catalog []models.ToolDefinition) (*models.RoutingDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Deadline)
	defer cancel()

	intentVec, err := r.embeddings.EmbedIntent(ctx, req.Intent)
	if err != nil {
		if ctx.Err() != nil {
			return nil, timeoutError(r.opts.Deadline)
		}
		return nil, models.WrapError(models.KindRoutingError, "EMBED_INTENT_FAILED",
			"could not embed intent", err)
	}

	programs := compileConstraints(req.Context.Constraints)
	allowed := allowedSet(req.Context.AvailableTools)

	var retained []candidate
	var rejected []candidate // below threshold, kept for NoMatch alternatives

	for _, tool := range catalog {
		if allowed != nil && !allowed[tool.ID] {
			continue
		}

		toolVec, err := r.embeddings.EmbedToolDescription(ctx, tool)
		if err != nil {
			if ctx.Err() != nil {
				return nil, timeoutError(r.opts.Deadline)
			}
			return nil, models.WrapError(models.KindRoutingError, "EMBED_TOOL_FAILED",
				fmt.Sprintf("could not embed tool %s", tool.ID), err)
		}

		sim, err := r.embeddings.Similarity(intentVec, toolVec)
		if err != nil {
			return nil, models.WrapError(models.KindRoutingError, "SIMILARITY_FAILED",
				fmt.Sprintf("could not score tool %s", tool.ID), err)
		}

		if !satisfiesConstraints(programs, tool, sim) {
			continue
		}

		c := candidate{tool: tool, similarity: sim}
		if sim < r.opts.SimilarityThreshold {
			rejected = append(rejected, c)
			continue
		}

		c.adjusted = adjustConfidence(sim, tool, req.Context.Preferences)
		if c.adjusted < r.opts.MinConfidence {
			rejected = append(rejected, c)
			continue
		}
		retained = append(retained, c)
	}

	if err := ctx.Err(); err != nil {
		return nil, timeoutError(r.opts.Deadline)
	}

	if len(retained) == 0 {
		return nil, noMatchError(rejected)
	}

	sortCandidates(retained)
	selected := retained[0]

	fallbacks := make([]models.ToolDefinition, 0, r.opts.MaxAlternatives)
	for _, c := range retained[1:] {
		if len(fallbacks) == r.opts.MaxAlternatives {
			break
		}
		// Fallbacks must score strictly below the selection.
		if c.similarity >= selected.similarity {
			continue
		}
		fallbacks = append(fallbacks, c.tool)
	}

	decision := &models.RoutingDecision{
		RequestID:          req.ID,
		SelectedTool:       selected.tool,
		Confidence:         selected.adjusted,
		Reasoning:          reasoning(selected),
		Fallbacks:          fallbacks,
		EstimatedLatencyMs: latencyOf(selected.tool),
		EstimatedCost:      costOf(selected.tool),
	}
	if decision.Confidence < ApprovalThreshold {
		decision.RequiresApproval = true
		decision.ApprovalReason = fmt.Sprintf("confidence %.1f%% is below the %.0f%% approval threshold",
			decision.Confidence*100, ApprovalThreshold*100)
	}

	log.Debug().
		Str("request_id", req.ID).
		Str("tool", selected.tool.ID).
		Float64("confidence", decision.Confidence).
		Bool("requires_approval", decision.RequiresApproval).
		Msg("Routing decision made")

	return decision, nil
}

// adjustConfidence applies the cost and latency preference multipliers
// to the raw similarity and clamps to [0,1].
func adjustConfidence(sim float64, tool models.ToolDefinition, prefs models.RoutingPreferences) float64 {
	adjusted := sim
	if prefs.OptimizeCost && tool.CostEstimate != nil {
		adjusted *= 0.9 + 0.1*1.0/(1.0+*tool.CostEstimate/100.0)
	}
	if prefs.OptimizeLatency && tool.LatencyEstimateMs != nil {
		adjusted *= 0.9 + 0.1*1.0/(1.0+float64(*tool.LatencyEstimateMs)/1000.0)
	}
	return models.Clamp01(adjusted)
}

// sortCandidates orders by similarity descending, ties broken by lower
// latency, then lower cost, then lexicographic tool id.
func sortCandidates(cs []candidate) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if la, lb := latencyOf(a.tool), latencyOf(b.tool); la != lb {
			return la < lb
		}
		if ca, cb := costOf(a.tool), costOf(b.tool); ca != cb {
			return ca < cb
		}
		return a.tool.ID < b.tool.ID
	})
}

func reasoning(c candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "selected %s with %.1f%% similarity", c.tool.Name, c.similarity*100)
	if c.tool.CostEstimate != nil {
		fmt.Fprintf(&b, ", estimated cost $%.2f", *c.tool.CostEstimate)
	}
	if c.tool.LatencyEstimateMs != nil {
		fmt.Fprintf(&b, ", estimated latency %dms", *c.tool.LatencyEstimateMs)
	}
	if c.adjusted < c.similarity {
		fmt.Fprintf(&b, "; confidence reduced to %.1f%% by optimization preferences", c.adjusted*100)
	}
	return b.String()
}

func latencyOf(t models.ToolDefinition) int64 {
	if t.LatencyEstimateMs != nil {
		return *t.LatencyEstimateMs
	}
	return 0
}

func costOf(t models.ToolDefinition) float64 {
	if t.CostEstimate != nil {
		return *t.CostEstimate
	}
	return 0
}

func allowedSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func timeoutError(deadline time.Duration) error {
	return models.NewError(models.KindTimeout, "ROUTING_DEADLINE",
		fmt.Sprintf("routing exceeded its %s deadline", deadline))
}

// noMatchError builds the NoMatch error with up to three of the best
// below-threshold candidates as alternatives.
func noMatchError(rejected []candidate) error {
	sortCandidates(rejected)
	e := models.NewError(models.KindNoMatch, "NO_MATCH",
		"no tool matched the intent with sufficient similarity").
		WithSuggestion("rephrase the request or register a tool covering this intent")
	for i, c := range rejected {
		if i == 3 {
			break
		}
		e.Alternatives = append(e.Alternatives, models.ToolScore{Tool: c.tool, Score: c.similarity})
	}
	return e
}
