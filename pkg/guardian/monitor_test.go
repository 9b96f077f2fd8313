package guardian

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parapet-labs/parapet/pkg/contracts"
)

func TestEvaluateOK(t *testing.T) {
	ev := Evaluate(Metrics{TESDelta: -1, ErrorRate: 0.5, CPULoad: 90, Memory: 70}, DefaultThresholds())

	assert.Equal(t, contracts.HaltOK, ev.Status)
	assert.Empty(t, ev.Reasons)
	assert.NotNil(t, ev.Reasons)
}

func TestEvaluateWarning(t *testing.T) {
	ev := Evaluate(Metrics{TESDelta: -3, ErrorRate: 2.0, CPULoad: 90, Memory: 70}, DefaultThresholds())

	assert.Equal(t, contracts.HaltWarning, ev.Status)
	require.Len(t, ev.Reasons, 2)
	assert.Contains(t, ev.Reasons[0], "tes_delta")
	assert.Contains(t, ev.Reasons[1], "error_rate")
}

func TestEvaluateHaltReportsOnlyCriticalReasons(t *testing.T) {
	// error_rate sits in the warning band but must not appear once a
	// critical breach forces a halt.
	ev := Evaluate(Metrics{TESDelta: -6, ErrorRate: 2.0, CPULoad: 50, Memory: 50}, DefaultThresholds())

	assert.Equal(t, contracts.HaltHalt, ev.Status)
	require.Len(t, ev.Reasons, 1)
	assert.Contains(t, ev.Reasons[0], "tes_delta")
	assert.Contains(t, ev.Reasons[0], "critical")
}

func TestEvaluateHaltSingleCriticalMetric(t *testing.T) {
	ev := Evaluate(Metrics{TESDelta: -6, ErrorRate: 0.2, CPULoad: 50, Memory: 50}, DefaultThresholds())

	assert.Equal(t, contracts.HaltHalt, ev.Status)
	require.Len(t, ev.Reasons, 1)
	assert.Contains(t, ev.Reasons[0], "tes_delta")
}

func TestEvaluateBoundaries(t *testing.T) {
	th := DefaultThresholds()

	// Thresholds are inclusive in the breach direction.
	assert.Equal(t, contracts.HaltWarning, Evaluate(Metrics{TESDelta: -2, CPULoad: 50, Memory: 50}, th).Status)
	assert.Equal(t, contracts.HaltHalt, Evaluate(Metrics{TESDelta: -5, CPULoad: 50, Memory: 50}, th).Status)
	assert.Equal(t, contracts.HaltWarning, Evaluate(Metrics{CPULoad: 110, Memory: 50}, th).Status)
	assert.Equal(t, contracts.HaltHalt, Evaluate(Metrics{CPULoad: 130, Memory: 50}, th).Status)
	assert.Equal(t, contracts.HaltWarning, Evaluate(Metrics{CPULoad: 50, Memory: 90}, th).Status)
	assert.Equal(t, contracts.HaltHalt, Evaluate(Metrics{CPULoad: 50, Memory: 95}, th).Status)
	assert.Equal(t, contracts.HaltWarning, Evaluate(Metrics{ErrorRate: 1.0, CPULoad: 50, Memory: 50}, th).Status)
	assert.Equal(t, contracts.HaltHalt, Evaluate(Metrics{ErrorRate: 5.0, CPULoad: 50, Memory: 50}, th).Status)
}

func TestEvaluateMultipleCriticals(t *testing.T) {
	ev := Evaluate(Metrics{TESDelta: -10, ErrorRate: 9.0, CPULoad: 140, Memory: 99}, DefaultThresholds())

	assert.Equal(t, contracts.HaltHalt, ev.Status)
	assert.Len(t, ev.Reasons, 4)
}
