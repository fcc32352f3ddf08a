package audit

import (
	"sync/atomic"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// ViewMeter tracks how generated views compare to the comprehension
// target, so the budget stays observable in production.
type ViewMeter struct {
	built      atomic.Int64
	overTarget atomic.Int64
}

// Observe records one generated view.
func (m *ViewMeter) Observe(v models.AuditView) {
	m.built.Add(1)
	if v.Metadata.EstimatedReadTimeSec > v.Metadata.ComprehensionTargetSec {
		m.overTarget.Add(1)
	}
}

// MeterStats reports comprehension-budget counters.
type MeterStats struct {
	ViewsBuilt      int64 `json:"views_built"`
	ViewsOverTarget int64 `json:"views_over_target"`
}

func (m *ViewMeter) Stats() MeterStats {
	return MeterStats{
		ViewsBuilt:      m.built.Load(),
		ViewsOverTarget: m.overTarget.Load(),
	}
}
