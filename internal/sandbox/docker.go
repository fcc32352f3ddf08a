package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentgate/agentgate/gateway/pkg/models"
)

// toolRunnerCmd is the entry point inside runner images. It reads the
// argument JSON on stdin and writes the tool output to stdout.
const toolRunnerCmd = "/opt/gateway/run-tool"

// DockerDriver provisions sandboxes as Docker containers. Containers
// idle until a tool is exec'd into them, so a warm container skips the
// image pull and boot cost entirely.
type DockerDriver struct {
	// RunnerCmd overrides the in-container tool entry point.
	RunnerCmd string
}

// NewDockerDriver creates a driver backed by the local docker CLI.
func NewDockerDriver() (*DockerDriver, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("docker not found in PATH")
	}
	return &DockerDriver{RunnerCmd: toolRunnerCmd}, nil
}

func (d *DockerDriver) Kind() string { return "docker" }

// Create starts a detached container with the config's resource limits
// and returns the container id as the sandbox handle.
func (d *DockerDriver) Create(ctx context.Context, config models.SandboxConfig) (string, error) {
	args := []string{
		"run", "-d",
		"--cpus", fmt.Sprintf("%.2f", config.CPUCores),
		"--memory", fmt.Sprintf("%dm", config.MemoryMB),
	}
	switch config.NetworkPolicy {
	case "", "none":
		args = append(args, "--network", "none")
	case "allow-all":
		// default bridge network
	default:
		args = append(args, "--network", config.NetworkPolicy)
	}
	for k, v := range config.EnvVars {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, config.Image, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker run failed: %s: %w", strings.TrimSpace(stderr.String()), err)
	}

	handle := strings.TrimSpace(stdout.String())
	if len(handle) > 12 {
		handle = handle[:12]
	}

	log.Debug().Str("container", handle).Str("image", config.Image).Msg("Sandbox container started")
	return handle, nil
}

// Run execs the tool runner inside the container with the arguments
// JSON on stdin.
func (d *DockerDriver) Run(ctx context.Context, handle string, tool models.ToolDefinition, args map[string]interface{}, timeout time.Duration) (*models.DriverResult, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runner := d.RunnerCmd
	if runner == "" {
		runner = toolRunnerCmd
	}

	cmd := exec.CommandContext(ctx, "docker", "exec", "-i", handle, runner, tool.ID)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &models.DriverResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("docker exec failed: %w", err)
	}

	// Tool output is the runner's stdout; keep it structured when it
	// parses as JSON.
	var output interface{}
	if jsonErr := json.Unmarshal(stdout.Bytes(), &output); jsonErr == nil {
		result.Output = output
	} else {
		result.Output = stdout.String()
	}
	return result, nil
}

// Destroy force-removes the container. Removing an already-gone
// container is not an error.
func (d *DockerDriver) Destroy(_ context.Context, handle string) error {
	cmd := exec.Command("docker", "rm", "-f", handle)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "No such container") {
			return nil
		}
		return fmt.Errorf("docker rm failed: %s: %w", strings.TrimSpace(msg), err)
	}
	return nil
}
