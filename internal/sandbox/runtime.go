package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/contracts"
	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// coldStartBudget is the creation time above which a warning is logged.
const coldStartBudget = 500 * time.Millisecond

// Options bound the pool and its maintenance loop.
type Options struct {
	MinInstances   int
	MaxInstances   int
	IdleTimeout    time.Duration
	WarmupInterval time.Duration
	DefaultTimeout time.Duration
}

// DefaultOptions returns the standard pool bounds.
func DefaultOptions() Options {
	return Options{
		MinInstances:   2,
		MaxInstances:   100,
		IdleTimeout:    5 * time.Minute,
		WarmupInterval: time.Minute,
		DefaultTimeout: 30 * time.Second,
	}
}

// Runtime executes tools through a driver, pooling ready sandboxes to
// amortize cold starts. Safe for concurrent use.
type Runtime struct {
	driver contracts.SandboxDriver
	pool   *pool
	opts   Options

	stop chan struct{}
	done chan struct{}
}

// NewRuntime creates a runtime over the given driver.
func NewRuntime(driver contracts.SandboxDriver, opts Options) *Runtime {
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = 100
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	return &Runtime{
		driver: driver,
		pool:   newPool(opts.MaxInstances),
		opts:   opts,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Stats snapshots the pool counters.
func (r *Runtime) Stats() models.PoolStats { return r.pool.stats() }

// Execute runs the tool with the given arguments in a pooled or freshly
// created sandbox, bounded by timeout. Arguments are validated against
// the tool's parameter schema first.
func (r *Runtime) Execute(ctx context.Context, tool models.ToolDefinition, args map[string]interface{}, timeout time.Duration) (*models.ExecutionResult, error) {
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	started := time.Now()

	if err := ValidateArguments(tool, args); err != nil {
		return nil, err
	}

	sb, coldStartMs, created, err := r.acquireOrCreate(ctx, tool)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, runErr := r.driver.Run(runCtx, sb.Handle, tool, args, timeout)
	execMs := time.Since(started).Milliseconds() - coldStartMs

	metrics := models.ExecutionMetrics{
		ColdStart:   created,
		ColdStartMs: coldStartMs,
		ExecutionMs: execMs,
		TotalMs:     time.Since(started).Milliseconds(),
	}

	if runErr != nil {
		r.destroy(sb)

		code := "EXECUTION_FAILED"
		if runCtx.Err() == context.DeadlineExceeded {
			code = "TIMEOUT"
		}
		return &models.ExecutionResult{
			Success: false,
			Error:   &models.ExecutionFailure{Code: code, Message: runErr.Error()},
			Metrics: metrics,
		}, nil
	}

	if res != nil {
		metrics.MemoryPeakMB = res.MemoryPeakMB
		metrics.CPUPercent = res.CPUPercent
	}

	if res != nil && res.ExitCode != 0 {
		r.destroy(sb)
		return &models.ExecutionResult{
			Success: false,
			Error: &models.ExecutionFailure{
				Code:     "NONZERO_EXIT",
				Message:  fmt.Sprintf("tool exited with code %d", res.ExitCode),
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
				ExitCode: res.ExitCode,
			},
			Metrics: metrics,
		}, nil
	}

	// Success: refresh usage and return the sandbox to the pool.
	sb.LastUsedAt = time.Now()
	sb.ExecutionCount++
	if evicted := r.pool.put(sb); evicted != nil {
		r.destroyHandle(evicted)
	}

	result := &models.ExecutionResult{Success: true, Metrics: metrics}
	if res != nil {
		result.Output = res.Output
	}
	return result, nil
}

// acquireOrCreate takes a warm sandbox from the pool, or creates one
// with the tool-specific config on a miss. created reports which path
// was taken; the cold start duration is the creation elapsed time only,
// and a pool hit is always 0.
func (r *Runtime) acquireOrCreate(ctx context.Context, tool models.ToolDefinition) (*models.Sandbox, int64, bool, error) {
	if sb := r.pool.acquire(time.Now()); sb != nil {
		return sb, 0, false, nil
	}

	if r.pool.atCapacity() {
		return nil, 0, false, models.NewError(models.KindPoolExhausted, "POOL_EXHAUSTED",
			fmt.Sprintf("all %d sandbox instances are busy", r.opts.MaxInstances)).
			WithSuggestion("retry after an execution completes or raise the instance ceiling")
	}

	cfg := toolConfig(tool)
	sb := &models.Sandbox{
		ID:        models.NewID(),
		Config:    cfg,
		State:     models.SandboxCreating,
		CreatedAt: time.Now(),
	}

	createStart := time.Now()
	handle, err := r.driver.Create(ctx, cfg)
	coldStartMs := time.Since(createStart).Milliseconds()
	if err != nil {
		return nil, coldStartMs, true, models.WrapError(models.KindExecutionError, "SANDBOX_CREATE_FAILED",
			fmt.Sprintf("could not create sandbox for tool %s", tool.ID), err)
	}

	sb.Handle = handle
	sb.State = models.SandboxReady // creating → ready once the handle exists
	sb.LastUsedAt = time.Now()
	r.pool.recordCreated(coldStartMs)
	sb.State = models.SandboxRunning

	if time.Duration(coldStartMs)*time.Millisecond > coldStartBudget {
		log.Warn().
			Str("sandbox", sb.ID).
			Str("tool", tool.ID).
			Int64("cold_start_ms", coldStartMs).
			Msg("Sandbox cold start exceeded 500ms budget")
	}

	return sb, coldStartMs, true, nil
}

// destroy tears down a sandbox that must not return to the pool.
func (r *Runtime) destroy(sb *models.Sandbox) {
	sb.State = models.SandboxDestroyed
	r.pool.recordDestroyed()
	r.destroyHandle(sb)
}

// destroyHandle releases the driver-side context. Pool counters are the
// caller's responsibility.
func (r *Runtime) destroyHandle(sb *models.Sandbox) {
	if err := r.driver.Destroy(context.Background(), sb.Handle); err != nil {
		log.Warn().Str("sandbox", sb.ID).Err(err).Msg("Sandbox destroy failed")
	}
}

// toolConfig is the per-tool resource envelope.
func toolConfig(tool models.ToolDefinition) models.SandboxConfig {
	return models.SandboxConfig{
		Image:         "tool-" + tool.ID,
		CPUCores:      0.5,
		MemoryMB:      256,
		DiskGB:        1,
		NetworkPolicy: "default",
		AllowedTools:  []string{tool.ID},
		TimeoutMs:     30_000,
	}
}

// warmConfig is the generic low-resource envelope for warm-up instances.
func warmConfig() models.SandboxConfig {
	return models.SandboxConfig{
		Image:         "generic-runtime",
		CPUCores:      0.1,
		MemoryMB:      64,
		NetworkPolicy: "none",
	}
}
