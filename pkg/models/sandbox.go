package models

import "time"

// ── Sandbox ──────────────────────────────────────────────────

// SandboxState is the lifecycle state of a sandbox. Legal transitions:
// creating → ready → (running ⇄ ready)* → destroyed. A destroyed sandbox
// is never reused.
type SandboxState string

const (
	SandboxCreating  SandboxState = "creating"
	SandboxReady     SandboxState = "ready"
	SandboxRunning   SandboxState = "running"
	SandboxDestroyed SandboxState = "destroyed"
)

// SandboxConfig is the resource envelope a sandbox is created with.
type SandboxConfig struct {
	Image         string            `json:"image"`
	CPUCores      float64           `json:"cpu_cores"`
	MemoryMB      int               `json:"memory_mb"`
	DiskGB        int               `json:"disk_gb"`
	NetworkPolicy string            `json:"network_policy"`
	AllowedTools  []string          `json:"allowed_tools,omitempty"`
	TimeoutMs     int64             `json:"timeout_ms"`
	EnvVars       map[string]string `json:"env_vars,omitempty"`
}

// Sandbox is an isolated, resource-bounded execution context for a single
// tool invocation. The runtime exclusively owns every sandbox that is not
// destroyed.
type Sandbox struct {
	ID             string        `json:"id"`
	Handle         string        `json:"-"` // driver-side handle
	Config         SandboxConfig `json:"config"`
	State          SandboxState  `json:"state"`
	CreatedAt      time.Time     `json:"created_at"`
	LastUsedAt     time.Time     `json:"last_used_at"`
	ExecutionCount int64         `json:"execution_count"`
}

// ── Execution ────────────────────────────────────────────────

// ExecutionMetrics separates cold-start time (sandbox creation only) from
// execution time inside the sandbox.
type ExecutionMetrics struct {
	// ColdStart is true when this execution created a fresh sandbox
	// rather than reusing a pooled one. ColdStartMs can round to 0 on
	// fast drivers, so presence is tracked separately from duration.
	ColdStart    bool    `json:"cold_start"`
	ColdStartMs  int64   `json:"cold_start_ms"`
	ExecutionMs  int64   `json:"execution_ms"`
	TotalMs      int64   `json:"total_ms"`
	MemoryPeakMB float64 `json:"memory_peak_mb,omitempty"`
	CPUPercent   float64 `json:"cpu_percent,omitempty"`
}

// ExecutionFailure describes a failed tool run.
type ExecutionFailure struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
}

// ExecutionResult is the outcome of running a tool in a sandbox.
// Exactly one of Output or Error is meaningful, selected by Success.
type ExecutionResult struct {
	Success bool              `json:"success"`
	Output  interface{}       `json:"output,omitempty"`
	Error   *ExecutionFailure `json:"error,omitempty"`
	Metrics ExecutionMetrics  `json:"metrics"`
}

// DriverResult is the raw outcome a sandbox driver reports for one run.
type DriverResult struct {
	Output       interface{} `json:"output,omitempty"`
	Stdout       string      `json:"stdout,omitempty"`
	Stderr       string      `json:"stderr,omitempty"`
	ExitCode     int         `json:"exit_code"`
	MemoryPeakMB float64     `json:"memory_peak_mb,omitempty"`
	CPUPercent   float64     `json:"cpu_percent,omitempty"`
}

// PoolStats are the runtime's aggregate counters. PoolHitRate and
// AvgColdStartMs are exponential moving averages (α=0.1).
type PoolStats struct {
	TotalCreated   int64   `json:"total_created"`
	TotalDestroyed int64   `json:"total_destroyed"`
	Active         int64   `json:"active"`
	ReadyInPool    int     `json:"ready_in_pool"`
	PoolHitRate    float64 `json:"pool_hit_rate"`
	AvgColdStartMs float64 `json:"avg_cold_start_ms"`
}
