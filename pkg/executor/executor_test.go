package executor

import (
	"context"
	"testing"
	"time"

	"github.com/parapet-labs/parapet/pkg/audit"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLease(timeoutS int, commands ...string) contracts.Lease {
	return contracts.Lease{
		LeaseID:           "LEASE-1",
		IntentID:          "INT-1",
		IssuedAt:          time.Now().Add(-time.Minute),
		ExpiresAt:         time.Now().Add(10 * time.Minute),
		CommandsAllowlist: commands,
		PathsAllowlist:    []string{"workspace"},
		EnvAllowlist:      []string{"PATH", "HOME"},
		Limits:            contracts.LeaseLimits{WallclockTimeoutS: timeoutS},
	}
}

func newExecutor(t *testing.T) (*Executor, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return New(s, audit.NewTrail(s, "")), s
}

func TestCheckScope(t *testing.T) {
	l := testLease(60, "echo hi", "git status")

	assert.NoError(t, CheckScope(l, "echo hi", nil))
	assert.NoError(t, CheckScope(l, "git status --short", nil), "prefix match")
	assert.ErrorIs(t, CheckScope(l, "git statusx", nil), contracts.ErrScopeViolation)
	assert.ErrorIs(t, CheckScope(l, "rm -rf /", nil), contracts.ErrScopeViolation)
	assert.ErrorIs(t, CheckScope(l, "", nil), contracts.ErrScopeViolation)

	assert.NoError(t, CheckScope(l, "echo hi", []string{"workspace/a.txt"}))
	assert.ErrorIs(t, CheckScope(l, "echo hi", []string{"elsewhere/a.txt"}), contracts.ErrScopeViolation)
	assert.ErrorIs(t, CheckScope(l, "echo hi", []string{"workspace/../etc/passwd"}), contracts.ErrScopeViolation)
}

func TestExecute_Success(t *testing.T) {
	e, s := newExecutor(t)
	l := testLease(60, "echo hi")

	rec, err := e.Execute(context.Background(), l, "echo hi", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ExitCode)
	assert.False(t, rec.TimedOut)
	assert.Less(t, rec.DurationS, 600.0)
	assert.True(t, s.Exists(RunPath(l.LeaseID)))
}

func TestExecute_ScopeViolationWritesNoRecord(t *testing.T) {
	e, s := newExecutor(t)
	l := testLease(60, "echo hi")

	_, err := e.Execute(context.Background(), l, "cat /etc/passwd", nil)
	assert.ErrorIs(t, err, contracts.ErrScopeViolation)
	assert.False(t, s.Exists(RunPath(l.LeaseID)))
}

func TestExecute_OneRecordPerLease(t *testing.T) {
	e, _ := newExecutor(t)
	l := testLease(60, "echo hi")

	_, err := e.Execute(context.Background(), l, "echo hi", nil)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), l, "echo hi", nil)
	assert.ErrorIs(t, err, contracts.ErrInvalidState)
}

func TestExecute_TimeoutKillsChild(t *testing.T) {
	e, _ := newExecutor(t)
	l := testLease(1, "sleep 30")

	start := time.Now()
	rec, err := e.Execute(context.Background(), l, "sleep 30", nil)
	require.NoError(t, err)
	assert.True(t, rec.TimedOut)
	assert.Equal(t, TimeoutExitCode, rec.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second, "deadline enforced, not cooperative")
}

func TestExecute_NonZeroExit(t *testing.T) {
	e, _ := newExecutor(t)
	l := testLease(60, "false")

	rec, err := e.Execute(context.Background(), l, "false", nil)
	require.NoError(t, err)
	assert.NotEqual(t, 0, rec.ExitCode)
	assert.False(t, rec.TimedOut)
}

func TestFilterEnv(t *testing.T) {
	got := filterEnv([]string{"PATH=/bin", "SECRET=x", "HOME=/root"}, []string{"PATH", "HOME"})
	assert.ElementsMatch(t, []string{"PATH=/bin", "HOME=/root"}, got)
}

func TestSentinel_Statuses(t *testing.T) {
	e, s := newExecutor(t)
	sentinel := NewSentinel(s, nil)
	l := testLease(600, "echo hi")

	rep, err := sentinel.Check(l)
	require.NoError(t, err)
	assert.Equal(t, contracts.SentinelNotStarted, rep.Status)

	// Started marker alone means in progress.
	require.NoError(t, s.WriteJSON(StartedPath(l.LeaseID), map[string]any{"lease_id": l.LeaseID}))
	rep, err = sentinel.Check(l)
	require.NoError(t, err)
	assert.Equal(t, contracts.SentinelInProgress, rep.Status)

	_, err = e.Execute(context.Background(), l, "echo hi", nil)
	require.NoError(t, err)
	rep, err = sentinel.Check(l)
	require.NoError(t, err)
	assert.Equal(t, contracts.SentinelWithinLimits, rep.Status)
}

func TestSentinel_TimeoutExceeded(t *testing.T) {
	_, s := newExecutor(t)
	sentinel := NewSentinel(s, nil)
	l := testLease(600, "echo hi")

	require.NoError(t, s.WriteJSON(RunPath(l.LeaseID), contracts.RunRecord{
		LeaseID:   l.LeaseID,
		Command:   "echo hi",
		DurationS: 700,
		ExitCode:  0,
	}))
	rep, err := sentinel.Check(l)
	require.NoError(t, err)
	assert.Equal(t, contracts.SentinelTimeoutExceeded, rep.Status)
}
