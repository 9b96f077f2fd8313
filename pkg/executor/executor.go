// Package executor runs allowlisted commands under a verified lease's
// scope and resource limits, persists run records, and measures resource
// compliance.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/parapet-labs/parapet/pkg/audit"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/store"
)

// TimeoutExitCode is recorded when the wallclock deadline kills the run.
const TimeoutExitCode = -1

// Executor runs one command per lease attempt. It assumes the caller has
// already verified the lease's signatures; it re-checks scope itself
// because scope depends on the concrete action.
type Executor struct {
	store   *store.Store
	trail   *audit.Trail
	clock   func() time.Time
	logger  *slog.Logger
	workDir string
}

// Option configures an Executor.
type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.clock = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithWorkDir sets the directory commands run in.
func WithWorkDir(dir string) Option {
	return func(e *Executor) { e.workDir = dir }
}

func New(s *store.Store, trail *audit.Trail, opts ...Option) *Executor {
	e := &Executor{
		store:  s,
		trail:  trail,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunPath returns the store-relative run record for a lease id.
func RunPath(leaseID string) string {
	return path.Join("runs", leaseID+".json")
}

// StartedPath returns the store-relative started marker for a lease id.
// The marker exists from the moment the child launches, so the sentinel
// can tell in-progress from not-started across processes.
func StartedPath(leaseID string) string {
	return path.Join("runs", leaseID+".started.json")
}

// Execute gates the command against the lease scope, runs it with the
// environment restricted to the lease's env allowlist and a hard
// wallclock deadline, and persists the run record. A timeout is a run
// outcome, not an error: the record carries TimeoutExitCode and the
// sentinel reports the breach.
func (e *Executor) Execute(ctx context.Context, l contracts.Lease, command string, touchedPaths []string) (contracts.RunRecord, error) {
	if err := CheckScope(l, command, touchedPaths); err != nil {
		e.record("executor", "execution_denied", l.LeaseID, map[string]any{
			"command": command,
			"reason":  err.Error(),
		})
		return contracts.RunRecord{}, err
	}
	if e.store.Exists(RunPath(l.LeaseID)) {
		return contracts.RunRecord{}, fmt.Errorf("lease %s already has a run record: %w", l.LeaseID, contracts.ErrInvalidState)
	}

	timeout := time.Duration(l.Limits.WallclockTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.clock()
	if err := e.store.WriteJSON(StartedPath(l.LeaseID), map[string]any{
		"lease_id": l.LeaseID,
		"command":  command,
		"start_ts": start.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return contracts.RunRecord{}, err
	}
	exitCode, timedOut, runErr := e.runChild(runCtx, command, l.EnvAllowlist)
	duration := e.clock().Sub(start).Seconds()

	rec := contracts.RunRecord{
		LeaseID:       l.LeaseID,
		Command:       command,
		StartTS:       start.UTC().Format(time.RFC3339Nano),
		DurationS:     duration,
		ExitCode:      exitCode,
		TimedOut:      timedOut,
		ArtifactPaths: []string{},
	}
	if err := e.store.WriteJSON(RunPath(l.LeaseID), rec); err != nil {
		return contracts.RunRecord{}, err
	}
	e.record("executor", "run_completed", l.LeaseID, map[string]any{
		"command":   command,
		"exit_code": exitCode,
		"timed_out": timedOut,
	})
	if runErr != nil && !timedOut {
		e.logger.Warn("command failed", "lease_id", l.LeaseID, "exit_code", exitCode, "error", runErr)
	}
	return rec, nil
}

// runChild executes the command in its own process group so the deadline
// kill reaches the whole tree, not just the immediate child.
func (e *Executor) runChild(ctx context.Context, command string, envAllowlist []string) (exitCode int, timedOut bool, err error) {
	parts := strings.Fields(command)
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = e.workDir
	cmd.Env = filterEnv(os.Environ(), envAllowlist)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return TimeoutExitCode, false, fmt.Errorf("start %q: %w", command, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		// Not cooperative: kill the process group at the deadline.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return TimeoutExitCode, true, nil
	case waitErr := <-done:
		if waitErr == nil {
			return 0, false, nil
		}
		if ee, ok := waitErr.(*exec.ExitError); ok {
			return ee.ExitCode(), false, waitErr
		}
		return TimeoutExitCode, false, waitErr
	}
}

// CheckScope asserts the command is a member or prefix-match of the
// lease's commands allowlist and that every touched path is contained in
// the paths allowlist. Pure, so the gate is testable without running
// anything.
func CheckScope(l contracts.Lease, command string, touchedPaths []string) error {
	if command == "" || len(strings.Fields(command)) == 0 {
		return fmt.Errorf("empty command: %w", contracts.ErrScopeViolation)
	}
	if !commandAllowed(l.CommandsAllowlist, command) {
		return fmt.Errorf("command %q not in allowlist: %w", command, contracts.ErrScopeViolation)
	}
	for _, p := range touchedPaths {
		if !pathAllowed(l.PathsAllowlist, p) {
			return fmt.Errorf("path %q not in allowlist: %w", p, contracts.ErrScopeViolation)
		}
	}
	return nil
}

func commandAllowed(allowlist []string, command string) bool {
	for _, allowed := range allowlist {
		if command == allowed {
			return true
		}
		// Prefix match on word boundary: "git status" admits
		// "git status --short" but not "git statusx".
		if strings.HasPrefix(command, allowed+" ") {
			return true
		}
	}
	return false
}

func pathAllowed(allowlist []string, p string) bool {
	clean := filepath.ToSlash(filepath.Clean(p))
	if strings.Contains(clean, "..") {
		return false
	}
	for _, allowed := range allowlist {
		a := strings.TrimSuffix(filepath.ToSlash(allowed), "/")
		if clean == a || strings.HasPrefix(clean, a+"/") {
			return true
		}
	}
	return false
}

// filterEnv keeps only variables named in the allowlist.
func filterEnv(environ, allowlist []string) []string {
	allowed := make(map[string]bool, len(allowlist))
	for _, k := range allowlist {
		allowed[k] = true
	}
	var out []string
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if ok && allowed[name] {
			out = append(out, kv)
		}
	}
	return out
}

func (e *Executor) record(actor, kind, subject string, payload map[string]any) {
	if e.trail == nil {
		return
	}
	if err := e.trail.Record(actor, kind, subject, payload); err != nil {
		e.logger.Warn("audit append failed", "event_kind", kind, "subject", subject, "error", err)
	}
}
