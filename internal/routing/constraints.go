package routing

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

const exprPrefix = "expr:"

// compileConstraints compiles the "expr:<expression>" entries from the
// request context. Invalid expressions are logged and skipped so that a
// bad constraint never fails the whole routing call.
func compileConstraints(constraints []string) []*vm.Program {
	var programs []*vm.Program
	for _, c := range constraints {
		if !strings.HasPrefix(c, exprPrefix) {
			continue
		}
		src := strings.TrimPrefix(c, exprPrefix)
		prog, err := expr.Compile(src, expr.AsBool())
		if err != nil {
			log.Warn().Str("constraint", src).Err(err).Msg("Ignoring invalid routing constraint")
			continue
		}
		programs = append(programs, prog)
	}
	return programs
}

// satisfiesConstraints evaluates every compiled constraint against the
// candidate. Evaluation errors are logged and the constraint treated as
// satisfied, matching the compile-time policy.
func satisfiesConstraints(programs []*vm.Program, tool models.ToolDefinition, similarity float64) bool {
	if len(programs) == 0 {
		return true
	}

	env := map[string]interface{}{
		"id":         tool.ID,
		"name":       tool.Name,
		"similarity": similarity,
		"cost":       0.0,
		"latency_ms": int64(0),
	}
	if tool.CostEstimate != nil {
		env["cost"] = *tool.CostEstimate
	}
	if tool.LatencyEstimateMs != nil {
		env["latency_ms"] = *tool.LatencyEstimateMs
	}

	for _, prog := range programs {
		out, err := expr.Run(prog, env)
		if err != nil {
			log.Warn().Str("tool", tool.ID).Err(err).Msg("Routing constraint evaluation failed, skipping")
			continue
		}
		if pass, ok := out.(bool); ok && !pass {
			return false
		}
	}
	return true
}
