// Package sandbox executes tools in isolated, resource-bounded contexts,
// amortizing cold starts through a bounded pool of ready instances.
package sandbox

import (
	"sync"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// emaAlpha is the smoothing factor for the pool-hit and cold-start
// moving averages.
const emaAlpha = 0.1

// pool is the serialized state of the runtime: the ready set plus the
// aggregate counters. Every method is a single critical section; driver
// calls (create, run, destroy) never happen under the lock.
type pool struct {
	mu sync.Mutex

	ready []*models.Sandbox // ordered by insertion, acquired least-recently-used first

	maxInstances int

	totalCreated   int64
	totalDestroyed int64
	hitRate        float64
	hitSamples     int64
	coldStartMs    float64
	coldSamples    int64
}

func newPool(maxInstances int) *pool {
	return &pool{maxInstances: maxInstances}
}

// acquire removes the least-recently-used ready sandbox and marks it
// running. The hit/miss outcome feeds the EMA either way.
func (p *pool) acquire(now time.Time) *models.Sandbox {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb *models.Sandbox
	if len(p.ready) > 0 {
		idx := 0
		for i, s := range p.ready[1:] {
			if s.LastUsedAt.Before(p.ready[idx].LastUsedAt) {
				idx = i + 1
			}
		}
		sb = p.ready[idx]
		p.ready = append(p.ready[:idx], p.ready[idx+1:]...)
		sb.State = models.SandboxRunning
	}

	p.recordAcquisitionLocked(sb != nil)
	_ = now
	return sb
}

// put inserts a ready sandbox, evicting the oldest (by last-used-at)
// when the pool is at capacity. It returns the evicted sandbox, if any,
// so the caller can destroy it outside the lock.
func (p *pool) put(sb *models.Sandbox) (evicted *models.Sandbox) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ready) >= p.maxInstances {
		idx := 0
		for i, s := range p.ready[1:] {
			if s.LastUsedAt.Before(p.ready[idx].LastUsedAt) {
				idx = i + 1
			}
		}
		evicted = p.ready[idx]
		p.ready = append(p.ready[:idx], p.ready[idx+1:]...)
		evicted.State = models.SandboxDestroyed
		p.totalDestroyed++
	}

	sb.State = models.SandboxReady
	p.ready = append(p.ready, sb)
	return evicted
}

// reapIdle removes every ready sandbox idle longer than idleTimeout and
// returns them for destruction outside the lock.
func (p *pool) reapIdle(now time.Time, idleTimeout time.Duration) []*models.Sandbox {
	p.mu.Lock()
	defer p.mu.Unlock()

	var kept, reaped []*models.Sandbox
	for _, s := range p.ready {
		if now.Sub(s.LastUsedAt) > idleTimeout {
			s.State = models.SandboxDestroyed
			p.totalDestroyed++
			reaped = append(reaped, s)
		} else {
			kept = append(kept, s)
		}
	}
	p.ready = kept
	return reaped
}

// recordCreated counts a successful creation and feeds its cold start
// into the moving average.
func (p *pool) recordCreated(coldStartMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalCreated++
	p.coldSamples++
	if p.coldSamples == 1 {
		p.coldStartMs = float64(coldStartMs)
	} else {
		p.coldStartMs = emaAlpha*float64(coldStartMs) + (1-emaAlpha)*p.coldStartMs
	}
}

// recordDestroyed counts a destruction that happened outside put/reap.
func (p *pool) recordDestroyed() {
	p.mu.Lock()
	p.totalDestroyed++
	p.mu.Unlock()
}

func (p *pool) recordAcquisitionLocked(hit bool) {
	sample := 0.0
	if hit {
		sample = 1.0
	}
	p.hitSamples++
	if p.hitSamples == 1 {
		p.hitRate = sample
	} else {
		p.hitRate = emaAlpha*sample + (1-emaAlpha)*p.hitRate
	}
}

// atCapacity reports whether creating one more sandbox would exceed the
// instance ceiling.
func (p *pool) atCapacity() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalCreated-p.totalDestroyed >= int64(p.maxInstances)
}

func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ready)
}

// stats snapshots the counters. Active is every live sandbox currently
// held by an executor: created minus destroyed minus the ready set.
func (p *pool) stats() models.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.totalCreated - p.totalDestroyed - int64(len(p.ready))
	if active < 0 {
		active = 0
	}
	return models.PoolStats{
		TotalCreated:   p.totalCreated,
		TotalDestroyed: p.totalDestroyed,
		Active:         active,
		ReadyInPool:    len(p.ready),
		PoolHitRate:    p.hitRate,
		AvgColdStartMs: p.coldStartMs,
	}
}
