package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

func testRuntime(t *testing.T, opts Options) (*Runtime, *LocalDriver) {
	t.Helper()
	driver := NewLocalDriver()
	return NewRuntime(driver, opts), driver
}

func TestExecutePoolHit(t *testing.T) {
	r, _ := testRuntime(t, DefaultOptions())
	tool := models.ToolDefinition{ID: "echo", Name: "echo"}
	args := map[string]interface{}{"msg": "hi"}

	first, err := r.Execute(context.Background(), tool, args, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Success {
		t.Fatalf("first execution failed: %+v", first.Error)
	}
	if !first.Metrics.ColdStart {
		t.Error("first execution must report a cold start even when creation is sub-millisecond")
	}

	second, err := r.Execute(context.Background(), tool, args, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if second.Metrics.ColdStart {
		t.Error("pool hit must not report a cold start")
	}
	if second.Metrics.ColdStartMs != 0 {
		t.Errorf("pool hit must report coldStartMs=0, got %d", second.Metrics.ColdStartMs)
	}

	stats := r.Stats()
	if stats.TotalCreated != 1 {
		t.Errorf("total created = %d, want 1 (second call reuses the pool)", stats.TotalCreated)
	}
	if stats.PoolHitRate <= 0 {
		t.Errorf("pool hit rate = %v, want > 0 after a hit", stats.PoolHitRate)
	}
}

func TestSandboxStateTransitions(t *testing.T) {
	r, _ := testRuntime(t, DefaultOptions())
	tool := models.ToolDefinition{ID: "echo"}

	sb, _, created, err := r.acquireOrCreate(context.Background(), tool)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("empty pool must create")
	}
	if sb.State != models.SandboxRunning {
		t.Errorf("state after acquire = %s, want running", sb.State)
	}

	if evicted := r.pool.put(sb); evicted != nil {
		t.Fatalf("unexpected eviction: %v", evicted.ID)
	}
	if sb.State != models.SandboxReady {
		t.Errorf("state after return = %s, want ready", sb.State)
	}

	again := r.pool.acquire(time.Now())
	if again != sb {
		t.Fatal("pool did not hand back the returned sandbox")
	}
	if again.State != models.SandboxRunning {
		t.Errorf("state after reacquire = %s, want running", again.State)
	}
}

func TestExecuteTimeoutDestroysSandbox(t *testing.T) {
	r, driver := testRuntime(t, DefaultOptions())
	driver.RegisterTool("slow", func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		select {
		case <-time.After(5 * time.Second):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	res, err := r.Execute(context.Background(), models.ToolDefinition{ID: "slow"}, nil, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("timed-out execution must not succeed")
	}
	if res.Error.Code != "TIMEOUT" {
		t.Errorf("error code = %s, want TIMEOUT", res.Error.Code)
	}

	stats := r.Stats()
	if stats.ReadyInPool != 0 {
		t.Errorf("timed-out sandbox must be destroyed, pool = %d", stats.ReadyInPool)
	}
	if stats.TotalDestroyed != 1 {
		t.Errorf("total destroyed = %d, want 1", stats.TotalDestroyed)
	}
}

func TestExecuteFailureNotReturnedToPool(t *testing.T) {
	r, driver := testRuntime(t, DefaultOptions())
	driver.RegisterTool("broken", func(context.Context, map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})

	res, err := r.Execute(context.Background(), models.ToolDefinition{ID: "broken"}, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("failed execution must not succeed")
	}
	if got := r.Stats().ReadyInPool; got != 0 {
		t.Errorf("failed sandbox must not return to the pool, pool = %d", got)
	}
}

func TestExecutePoolExhausted(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxInstances = 1
	r, driver := testRuntime(t, opts)

	block := make(chan struct{})
	release := make(chan struct{})
	driver.RegisterTool("hold", func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		close(block)
		<-release
		return "ok", nil
	})

	go func() {
		_, _ = r.Execute(context.Background(), models.ToolDefinition{ID: "hold"}, nil, time.Minute)
	}()
	<-block

	_, err := r.Execute(context.Background(), models.ToolDefinition{ID: "other"}, nil, time.Second)
	if !models.IsKind(err, models.KindPoolExhausted) {
		t.Fatalf("expected PoolExhausted, got %v", err)
	}
	close(release)
}

func TestMaintainReapsIdleAndWarms(t *testing.T) {
	opts := DefaultOptions()
	opts.MinInstances = 2
	opts.IdleTimeout = 10 * time.Millisecond
	r, _ := testRuntime(t, opts)

	// Seed the pool via an execution, then let the sandbox go idle.
	if _, err := r.Execute(context.Background(), models.ToolDefinition{ID: "t"}, nil, time.Second); err != nil {
		t.Fatal(err)
	}
	before := r.Stats()
	time.Sleep(20 * time.Millisecond)

	r.Maintain(context.Background())

	stats := r.Stats()
	if stats.TotalDestroyed != before.TotalDestroyed+1 {
		t.Errorf("total destroyed = %d, want %d (idle sandbox reaped)", stats.TotalDestroyed, before.TotalDestroyed+1)
	}
	if stats.ReadyInPool != opts.MinInstances {
		t.Errorf("pool size = %d, want %d after warm-up", stats.ReadyInPool, opts.MinInstances)
	}
}

func TestPoolInvariantActiveCount(t *testing.T) {
	r, _ := testRuntime(t, DefaultOptions())
	for i := 0; i < 5; i++ {
		if _, err := r.Execute(context.Background(), models.ToolDefinition{ID: "t"}, nil, time.Second); err != nil {
			t.Fatal(err)
		}
	}
	s := r.Stats()
	if s.Active != s.TotalCreated-s.TotalDestroyed-int64(s.ReadyInPool) {
		t.Errorf("active invariant violated: %+v", s)
	}
	if s.Active < 0 {
		t.Errorf("active must never be negative: %+v", s)
	}
}

func TestPoolNeverReusesDestroyed(t *testing.T) {
	p := newPool(10)
	sb := &models.Sandbox{ID: "s1", State: models.SandboxReady, LastUsedAt: time.Now()}
	p.put(sb)

	reaped := p.reapIdle(time.Now().Add(time.Hour), time.Minute)
	if len(reaped) != 1 || reaped[0].State != models.SandboxDestroyed {
		t.Fatalf("expected one destroyed sandbox, got %v", reaped)
	}
	if got := p.acquire(time.Now()); got != nil {
		t.Errorf("destroyed sandbox must never be acquirable, got %v", got)
	}
}

func TestPoolEvictsOldestAtCapacity(t *testing.T) {
	p := newPool(2)
	now := time.Now()
	old := &models.Sandbox{ID: "old", LastUsedAt: now.Add(-time.Hour)}
	mid := &models.Sandbox{ID: "mid", LastUsedAt: now.Add(-time.Minute)}
	fresh := &models.Sandbox{ID: "new", LastUsedAt: now}

	p.put(old)
	p.put(mid)
	evicted := p.put(fresh)

	if evicted == nil || evicted.ID != "old" {
		t.Fatalf("evicted = %v, want old", evicted)
	}
	if evicted.State != models.SandboxDestroyed {
		t.Error("evicted sandbox must be destroyed")
	}
	if p.size() != 2 {
		t.Errorf("pool size = %d, want 2", p.size())
	}
}

func TestPoolAcquireLeastRecentlyUsed(t *testing.T) {
	p := newPool(10)
	now := time.Now()
	p.put(&models.Sandbox{ID: "b", LastUsedAt: now})
	p.put(&models.Sandbox{ID: "a", LastUsedAt: now.Add(-time.Minute)})

	got := p.acquire(now)
	if got == nil || got.ID != "a" {
		t.Fatalf("acquire = %v, want a (least recently used)", got)
	}
	if got.State != models.SandboxRunning {
		t.Error("acquired sandbox must be running")
	}
}

func TestValidateArguments(t *testing.T) {
	tool := models.ToolDefinition{
		ID: "search",
		Parameters: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"q"},
			"properties": map[string]interface{}{
				"q":     map[string]interface{}{"type": "string"},
				"limit": map[string]interface{}{"type": "integer"},
			},
		},
	}

	if err := ValidateArguments(tool, map[string]interface{}{"q": "hi", "limit": 3}); err != nil {
		t.Errorf("valid arguments rejected: %v", err)
	}
	if err := ValidateArguments(tool, map[string]interface{}{"limit": 3}); err == nil {
		t.Error("missing required field must be rejected")
	}
	if err := ValidateArguments(tool, map[string]interface{}{"q": 42}); err == nil {
		t.Error("wrong type must be rejected")
	}
	if err := ValidateArguments(models.ToolDefinition{ID: "free"}, map[string]interface{}{"x": 1}); err != nil {
		t.Errorf("schemaless tool must accept anything: %v", err)
	}
}
