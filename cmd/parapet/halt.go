package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/parapet-labs/parapet/pkg/guardian"
)

var haltFlags struct {
	metricsFile string
	tesDelta    float64
	errorRate   float64
	cpuLoad     float64
	memory      float64
}

var evaluateHaltCmd = &cobra.Command{
	Use:   "evaluate-halt",
	Short: "Classify execution metrics against the halt thresholds",
	Long: `Reads metrics from --metrics-file (a JSON object with tes_delta,
error_rate, cpu_load and memory) or from individual flags, and reports
OK, WARNING or HALT with the reasons. The caller owns acting on a HALT.`,
	RunE: runEvaluateHalt,
}

func init() {
	f := evaluateHaltCmd.Flags()
	f.StringVar(&haltFlags.metricsFile, "metrics-file", "", "JSON metrics file ('-' for stdin)")
	f.Float64Var(&haltFlags.tesDelta, "tes-delta", 0, "Task eval score delta")
	f.Float64Var(&haltFlags.errorRate, "error-rate", 0, "Error rate percent")
	f.Float64Var(&haltFlags.cpuLoad, "cpu-load", 0, "CPU load percent")
	f.Float64Var(&haltFlags.memory, "memory", 0, "Memory use percent")
	rootCmd.AddCommand(evaluateHaltCmd)
}

func runEvaluateHalt(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}

	m := guardian.Metrics{
		TESDelta:  haltFlags.tesDelta,
		ErrorRate: haltFlags.errorRate,
		CPULoad:   haltFlags.cpuLoad,
		Memory:    haltFlags.memory,
	}
	if haltFlags.metricsFile != "" {
		var raw []byte
		if haltFlags.metricsFile == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(haltFlags.metricsFile)
		}
		if err != nil {
			return fmt.Errorf("read metrics: %w", err)
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("parse metrics: %w", err)
		}
	}

	ev := guardian.Evaluate(m, rt.cfg.Halt)
	if err := rt.trail.Record("guardian", "halt_evaluated", "", map[string]any{
		"status":  ev.Status,
		"reasons": ev.Reasons,
		"metrics": m,
	}); err != nil {
		return err
	}
	return emit(ev)
}
