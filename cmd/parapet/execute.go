package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/parapet-labs/parapet/pkg/executor"
	"github.com/parapet-labs/parapet/pkg/lease"
)

var executeFlags struct {
	command string
	touch   []string
	workDir string
}

var executeCmd = &cobra.Command{
	Use:   "execute-under-lease <lease-id>",
	Short: "Run one command inside a verified lease's scope and limits",
	Long: `Verifies the lease end to end, checks the command and touched paths
against its allowlists, then runs the command with a filtered
environment and the lease's wallclock timeout. The child is killed at
the deadline; a timeout is a recorded outcome, not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runExecute,
}

func init() {
	f := executeCmd.Flags()
	f.StringVar(&executeFlags.command, "command", "", "Command line to run")
	f.StringSliceVar(&executeFlags.touch, "touch", nil, "Path the run will touch (repeatable)")
	f.StringVar(&executeFlags.workDir, "workdir", "", "Working directory for the child")
	_ = executeCmd.MarkFlagRequired("command")
	rootCmd.AddCommand(executeCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	trust, err := rt.trustStore()
	if err != nil {
		return err
	}
	iss := lease.NewIssuer(rt.store, nil, trust, rt.trail, rt.cfg.TrustedVerifiers)
	l, err := iss.Load(args[0])
	if err != nil {
		return err
	}
	// Nothing runs under a lease that does not verify right now.
	v := lease.NewVerifier(trust, rt.store, rt.cfg.TrustedVerifiers, time.Now)
	if err := v.Verify(l); err != nil {
		rt.recordDenied("operator", "execution_denied", l.LeaseID, err)
		return err
	}

	opts := []executor.Option{}
	if executeFlags.workDir != "" {
		opts = append(opts, executor.WithWorkDir(executeFlags.workDir))
	}
	exec := executor.New(rt.store, rt.trail, opts...)
	rec, err := exec.Execute(context.Background(), l, executeFlags.command, executeFlags.touch)
	if err != nil {
		return err
	}
	return emit(rec)
}

var checkResourcesCmd = &cobra.Command{
	Use:   "check-resources <lease-id>",
	Short: "Report a lease's resource compliance",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckResources,
}

func init() {
	rootCmd.AddCommand(checkResourcesCmd)
}

func runCheckResources(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	trust, err := rt.trustStore()
	if err != nil {
		return err
	}
	iss := lease.NewIssuer(rt.store, nil, trust, rt.trail, rt.cfg.TrustedVerifiers)
	l, err := iss.Load(args[0])
	if err != nil {
		return err
	}
	sentinel := executor.NewSentinel(rt.store, nil)
	report, err := sentinel.Check(l)
	if err != nil {
		return err
	}
	return emit(report)
}
