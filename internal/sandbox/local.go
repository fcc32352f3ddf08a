package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// ToolFunc is an in-process tool implementation for the local driver.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// LocalDriver runs tools in-process. Each "sandbox" is just a tracked
// handle; isolation is nominal. Suitable for development and tests.
type LocalDriver struct {
	mu      sync.RWMutex
	handles map[string]bool
	tools   map[string]ToolFunc

	// CreateDelay simulates provisioning latency.
	CreateDelay time.Duration
}

// NewLocalDriver creates an empty local driver.
func NewLocalDriver() *LocalDriver {
	return &LocalDriver{
		handles: make(map[string]bool),
		tools:   make(map[string]ToolFunc),
	}
}

// RegisterTool installs an in-process implementation for a tool id.
func (d *LocalDriver) RegisterTool(toolID string, fn ToolFunc) {
	d.mu.Lock()
	d.tools[toolID] = fn
	d.mu.Unlock()
}

func (d *LocalDriver) Kind() string { return "local" }

// Create allocates a handle after the configured provisioning delay.
func (d *LocalDriver) Create(ctx context.Context, _ models.SandboxConfig) (string, error) {
	if d.CreateDelay > 0 {
		select {
		case <-time.After(d.CreateDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	handle := models.NewID()
	d.mu.Lock()
	d.handles[handle] = true
	d.mu.Unlock()
	return handle, nil
}

// Run dispatches the tool function registered for the tool id. Unknown
// tools echo their arguments, which keeps development flows unblocked.
func (d *LocalDriver) Run(ctx context.Context, handle string, tool models.ToolDefinition, args map[string]interface{}, timeout time.Duration) (*models.DriverResult, error) {
	d.mu.RLock()
	live := d.handles[handle]
	fn := d.tools[tool.ID]
	d.mu.RUnlock()

	if !live {
		return nil, fmt.Errorf("unknown sandbox handle: %s", handle)
	}

	if fn == nil {
		return &models.DriverResult{
			Output: map[string]interface{}{"tool": tool.ID, "echo": args},
		}, nil
	}

	type outcome struct {
		out interface{}
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		out, err := fn(ctx, args)
		ch <- outcome{out, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, o.err
		}
		return &models.DriverResult{Output: o.out}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Destroy releases a handle. Idempotent.
func (d *LocalDriver) Destroy(_ context.Context, handle string) error {
	d.mu.Lock()
	delete(d.handles, handle)
	d.mu.Unlock()
	return nil
}
