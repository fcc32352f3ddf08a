package sandbox

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// Start launches the maintenance loop, firing every WarmupInterval
// until Stop is called or the context is cancelled.
func (r *Runtime) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.opts.WarmupInterval)
		defer ticker.Stop()

		log.Info().
			Dur("interval", r.opts.WarmupInterval).
			Dur("idle_timeout", r.opts.IdleTimeout).
			Int("min_instances", r.opts.MinInstances).
			Msg("Sandbox maintenance loop started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.Maintain(ctx)
			}
		}
	}()
}

// Stop halts the maintenance loop and waits for the current pass.
func (r *Runtime) Stop() {
	close(r.stop)
	<-r.done
}

// Maintain runs one maintenance pass: reap ready sandboxes idle past
// the timeout, then warm the pool back up to the instance floor.
func (r *Runtime) Maintain(ctx context.Context) {
	reaped := r.pool.reapIdle(time.Now(), r.opts.IdleTimeout)
	for _, sb := range reaped {
		r.destroyHandle(sb)
	}
	if len(reaped) > 0 {
		log.Info().Int("reaped", len(reaped)).Msg("Idle sandboxes reaped")
	}

	missing := r.opts.MinInstances - r.pool.size()
	if missing <= 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < missing; i++ {
		g.Go(func() error {
			sb, err := r.createWarm(gctx)
			if err != nil {
				log.Warn().Err(err).Msg("Sandbox warm-up creation failed")
				return nil // warm-up failures are not fatal to the pass
			}
			if evicted := r.pool.put(sb); evicted != nil {
				r.destroyHandle(evicted)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// createWarm provisions one generic low-resource instance.
func (r *Runtime) createWarm(ctx context.Context) (*models.Sandbox, error) {
	cfg := warmConfig()
	sb := &models.Sandbox{
		ID:        models.NewID(),
		Config:    cfg,
		State:     models.SandboxCreating,
		CreatedAt: time.Now(),
	}

	createStart := time.Now()
	handle, err := r.driver.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.pool.recordCreated(time.Since(createStart).Milliseconds())

	sb.Handle = handle
	sb.LastUsedAt = time.Now()
	return sb, nil
}
