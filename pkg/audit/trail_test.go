package audit

import (
	"testing"

	"github.com/parapet-labs/parapet/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrail_AppendOnlyOrder(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	trail := NewTrail(s, "")

	require.NoError(t, trail.Record("cp14", "intent_created", "INT-1", nil))
	require.NoError(t, trail.Record("scanner", "scan_completed", "INT-1", map[string]any{"verdict": "PASS"}))
	require.NoError(t, trail.Record("cp18", "review_recorded", "INT-1", map[string]any{"approved": true}))

	events, err := trail.Events()
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "intent_created", events[0].EventKind)
	assert.Equal(t, "scan_completed", events[1].EventKind)
	assert.Equal(t, "review_recorded", events[2].EventKind)
	for _, ev := range events {
		assert.NotEmpty(t, ev.EventID)
		assert.NotEmpty(t, ev.Timestamp)
	}
}

func TestVerifyEvent(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	trail := NewTrail(s, "")
	require.NoError(t, trail.Record("executor", "run_completed", "LEASE-1", map[string]any{"exit_code": 0}))

	events, err := trail.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)

	ok, err := VerifyEvent(events[0])
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := events[0]
	tampered.Actor = "someone-else"
	ok, err = VerifyEvent(tampered)
	require.NoError(t, err)
	assert.False(t, ok)
}
