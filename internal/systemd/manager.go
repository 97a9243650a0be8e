package systemd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// validActions is the whitelist of systemctl verbs this package will run.
var validActions = map[string]bool{
	"start":      true,
	"stop":       true,
	"restart":    true,
	"status":     true,
	"enable":     true,
	"disable":    true,
	"is-active":  true,
	"is-enabled": true,
	"show":       true,
}

var (
	dangerousChars   = regexp.MustCompile("[;&|`$()]")
	serviceNameChars = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// execCommand is swapped out in tests
var execCommand = exec.CommandContext

// lookPath is swapped out in tests
var lookPath = exec.LookPath

// Timeouts holds per-operation ceilings for systemctl invocations
type Timeouts struct {
	Default time.Duration
	Start   time.Duration
	Stop    time.Duration
	Restart time.Duration
}

// DefaultTimeouts returns the timeouts used when the caller provides none
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Default: 10 * time.Second,
		Start:   30 * time.Second,
		Stop:    30 * time.Second,
		Restart: 60 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Default <= 0 {
		t.Default = d.Default
	}
	if t.Start <= 0 {
		t.Start = d.Start
	}
	if t.Stop <= 0 {
		t.Stop = d.Stop
	}
	if t.Restart <= 0 {
		t.Restart = d.Restart
	}
	return t
}

// OperationResult captures the outcome of a mutating service operation.
// ExitCode is a coarse 0/1 success signal, not the raw process exit code.
type OperationResult struct {
	Success     bool          `json:"success"`
	Operation   string        `json:"operation"`
	ServiceName string        `json:"serviceName"`
	ExitCode    int           `json:"exitCode"`
	Duration    time.Duration `json:"duration"`
	Downtime    time.Duration `json:"downtime,omitempty"`
	Stdout      string        `json:"stdout,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
}

// Manager drives a single systemd unit through a narrow, validated
// command surface. Every invocation goes through Execute so the argument
// vector never touches a shell.
type Manager struct {
	serviceName string
	timeouts    Timeouts
}

// New creates a Manager for the given service name.
// The name is validated up front; it is the sole injection defense.
func New(serviceName string, timeouts Timeouts) (*Manager, error) {
	if err := ValidateServiceName(serviceName); err != nil {
		return nil, err
	}
	return &Manager{
		serviceName: serviceName,
		timeouts:    timeouts.withDefaults(),
	}, nil
}

// ServiceName returns the managed unit's name
func (m *Manager) ServiceName() string {
	return m.serviceName
}

// ValidateServiceName rejects names that could escape the argument vector
func ValidateServiceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: service name cannot be empty", ErrInvalidInput)
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid service name %q (path traversal detected)", ErrInvalidInput, name)
	}
	if dangerousChars.MatchString(name) {
		return fmt.Errorf("%w: invalid service name %q (dangerous characters detected)", ErrInvalidInput, name)
	}
	if !serviceNameChars.MatchString(name) {
		return fmt.Errorf("%w: invalid service name %q (only alphanumeric, dash, and underscore allowed)", ErrInvalidInput, name)
	}
	return nil
}

// ValidateAction rejects any verb outside the whitelist
func ValidateAction(action string) error {
	if !validActions[action] {
		return fmt.Errorf("%w: invalid systemctl action %q", ErrInvalidInput, action)
	}
	if dangerousChars.MatchString(action) {
		return fmt.Errorf("%w: invalid systemctl action %q (dangerous characters detected)", ErrInvalidInput, action)
	}
	return nil
}

// Execute runs `systemctl <action> <service>` with the given timeout and
// returns stdout. Non-zero exits are classified into typed errors from
// the combined output.
func (m *Manager) Execute(ctx context.Context, action string, timeout time.Duration) (string, error) {
	if err := ValidateAction(action); err != nil {
		return "", err
	}

	if timeout <= 0 {
		timeout = m.timeouts.Default
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := execCommand(ctx, "systemctl", action, m.serviceName)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: systemctl %s %s exceeded %s", ErrTimeout, action, m.serviceName, timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}
		return "", m.classifyFailure(action, output)
	}

	// systemctl binary missing, fork failure, etc.
	return "", fmt.Errorf("%w: %v", ErrExecution, err)
}

// classifyFailure maps systemctl's error output onto the error taxonomy.
// The raw output is kept in the message for the generic case.
func (m *Manager) classifyFailure(action, output string) error {
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "not found"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "could not be found"):
		return fmt.Errorf("%w: service %q is unknown to systemd", ErrNotFound, m.serviceName)

	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "access denied"),
		strings.Contains(lower, "authentication required"):
		return fmt.Errorf("%w: cannot %s %q, run as root or with sudo", ErrPermissionDenied, action, m.serviceName)

	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return fmt.Errorf("%w: systemctl %s %s did not complete in time", ErrTimeout, action, m.serviceName)

	case action == "start" && (strings.Contains(lower, "already running") || strings.Contains(lower, "already active")):
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.serviceName)

	case action == "stop" && (strings.Contains(lower, "already stopped") || strings.Contains(lower, "inactive")):
		return fmt.Errorf("%w: %s", ErrAlreadyStopped, m.serviceName)
	}

	return fmt.Errorf("systemctl %s %s failed: %s", action, m.serviceName, strings.TrimSpace(output))
}

// run executes a mutating action and folds the outcome into an
// OperationResult instead of propagating the error.
func (m *Manager) run(ctx context.Context, action string, timeout time.Duration) *OperationResult {
	started := time.Now()
	stdout, err := m.Execute(ctx, action, timeout)
	result := &OperationResult{
		Operation:   action,
		ServiceName: m.serviceName,
		Duration:    time.Since(started),
	}
	if err != nil {
		result.ExitCode = 1
		result.Stderr = err.Error()
		return result
	}
	result.Success = true
	result.Stdout = stdout
	return result
}

// Start starts the service
func (m *Manager) Start(ctx context.Context) *OperationResult {
	return m.run(ctx, "start", m.timeouts.Start)
}

// Stop stops the service
func (m *Manager) Stop(ctx context.Context) *OperationResult {
	return m.run(ctx, "stop", m.timeouts.Stop)
}

// Enable enables the service at boot
func (m *Manager) Enable(ctx context.Context) *OperationResult {
	return m.run(ctx, "enable", m.timeouts.Default)
}

// Disable disables the service at boot
func (m *Manager) Disable(ctx context.Context) *OperationResult {
	return m.run(ctx, "disable", m.timeouts.Default)
}

// Restart restarts the service and then polls status until the unit
// reports active/running or gracefulTimeout elapses. The restart exit
// code is authoritative; readiness polling only refines the reported
// downtime and never fails the operation on its own.
func (m *Manager) Restart(ctx context.Context, gracefulTimeout time.Duration) *OperationResult {
	if gracefulTimeout <= 0 {
		gracefulTimeout = 10 * time.Second
	}

	started := time.Now()
	downtimeStart := started

	stdout, err := m.Execute(ctx, "restart", m.timeouts.Restart)
	result := &OperationResult{
		Operation:   "restart",
		ServiceName: m.serviceName,
	}
	if err != nil {
		result.ExitCode = 1
		result.Stderr = err.Error()
		result.Duration = time.Since(started)
		return result
	}

	m.waitForReady(ctx, gracefulTimeout)

	result.Success = true
	result.Stdout = stdout
	result.Downtime = time.Since(downtimeStart)
	result.Duration = time.Since(started)
	return result
}

// waitForReady polls status every 100ms until the unit is healthy or the
// deadline passes. Poll errors are ignored; a unit that never becomes
// ready is the caller's problem to interpret.
func (m *Manager) waitForReady(ctx context.Context, maxWait time.Duration) {
	const pollInterval = 100 * time.Millisecond

	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		status, err := m.Status(ctx)
		if err == nil && status.Healthy {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

// IsActive reports whether systemd considers the unit active.
// Any failure reads as inactive.
func (m *Manager) IsActive(ctx context.Context) bool {
	_, err := m.Execute(ctx, "is-active", m.timeouts.Default)
	return err == nil
}

// IsRoot reports whether the current process runs with uid 0
func IsRoot() bool {
	return os.Geteuid() == 0
}

// CanUseSudo probes for a sudo binary on PATH. Best effort, never errors.
func CanUseSudo() bool {
	_, err := lookPath("sudo")
	return err == nil
}

// PermissionWarning returns an advisory string when not running as root,
// or "" when no warning applies.
func PermissionWarning() string {
	if IsRoot() {
		return ""
	}
	return "current user is not root - some operations may require sudo"
}
