// Package guardian classifies live execution metrics against configured
// thresholds. It only classifies: HALT is a recommendation to the
// orchestrator, which owns stopping execution and triggering the
// intent's rollback plan.
package guardian

import (
	"fmt"

	"github.com/parapet-labs/parapet/pkg/contracts"
)

// Metrics is the fixed metric set the monitor evaluates.
type Metrics struct {
	TESDelta  float64 `json:"tes_delta"`
	ErrorRate float64 `json:"error_rate"`
	CPULoad   float64 `json:"cpu_load"`
	Memory    float64 `json:"memory"`
}

// Threshold is one metric's warning and critical levels. Downward metrics
// (task-success delta) breach when the value drops to or below the level;
// the rest breach when the value rises to or past it.
type Threshold struct {
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
	Downward bool    `yaml:"downward,omitempty" json:"downward,omitempty"`
}

// Thresholds is the table-driven policy, one entry per metric.
type Thresholds struct {
	TESDelta  Threshold `yaml:"tes_delta" json:"tes_delta"`
	ErrorRate Threshold `yaml:"error_rate" json:"error_rate"`
	CPULoad   Threshold `yaml:"cpu_load" json:"cpu_load"`
	Memory    Threshold `yaml:"memory" json:"memory"`
}

// DefaultThresholds mirrors the shipped configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TESDelta:  Threshold{Warning: -2, Critical: -5, Downward: true},
		ErrorRate: Threshold{Warning: 1.0, Critical: 5.0},
		CPULoad:   Threshold{Warning: 110, Critical: 130},
		Memory:    Threshold{Warning: 90, Critical: 95},
	}
}

// Evaluation is the monitor's output: a status and the reasons behind it.
// On HALT the reasons contain only the critical breaches.
type Evaluation struct {
	Status  contracts.HaltStatus `json:"status"`
	Reasons []string             `json:"reasons"`
}

// Evaluate is pure: the same metrics and thresholds always produce the
// same classification.
func Evaluate(m Metrics, t Thresholds) Evaluation {
	type check struct {
		name  string
		value float64
		th    Threshold
	}
	checks := []check{
		{"tes_delta", m.TESDelta, t.TESDelta},
		{"error_rate", m.ErrorRate, t.ErrorRate},
		{"cpu_load", m.CPULoad, t.CPULoad},
		{"memory", m.Memory, t.Memory},
	}

	var critical, warning []string
	for _, c := range checks {
		switch {
		case breaches(c.value, c.th.Critical, c.th.Downward):
			critical = append(critical, fmt.Sprintf("%s %g breaches critical threshold %g", c.name, c.value, c.th.Critical))
		case breaches(c.value, c.th.Warning, c.th.Downward):
			warning = append(warning, fmt.Sprintf("%s %g breaches warning threshold %g", c.name, c.value, c.th.Warning))
		}
	}

	switch {
	case len(critical) > 0:
		return Evaluation{Status: contracts.HaltHalt, Reasons: critical}
	case len(warning) > 0:
		return Evaluation{Status: contracts.HaltWarning, Reasons: warning}
	default:
		return Evaluation{Status: contracts.HaltOK, Reasons: []string{}}
	}
}

func breaches(value, threshold float64, downward bool) bool {
	if downward {
		return value <= threshold
	}
	return value >= threshold
}
