package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/intent"
	"github.com/parapet-labs/parapet/pkg/lease"
)

var issueLeaseFlags struct {
	kid      string
	paths    []string
	commands []string
	env      []string
	duration time.Duration
	timeoutS int
	cpuPct   int
	memMB    int
}

var issueLeaseCmd = &cobra.Command{
	Use:   "issue-lease <intent-id>",
	Short: "Mint a signed capability lease for an approved intent",
	Args:  cobra.ExactArgs(1),
	RunE:  runIssueLease,
}

func init() {
	f := issueLeaseCmd.Flags()
	f.StringVar(&issueLeaseFlags.kid, "kid", "issuer-1", "Issuing authority key id")
	f.StringSliceVar(&issueLeaseFlags.paths, "path", nil, "Path prefix the lease covers (repeatable)")
	f.StringSliceVar(&issueLeaseFlags.commands, "command", nil, "Command or command prefix the lease covers (repeatable)")
	f.StringSliceVar(&issueLeaseFlags.env, "env", nil, "Environment variable passed through to the child (repeatable)")
	f.DurationVar(&issueLeaseFlags.duration, "duration", 15*time.Minute, "Lease validity window")
	f.IntVar(&issueLeaseFlags.timeoutS, "timeout-s", 0, "Wallclock timeout override (0 = configured default)")
	f.IntVar(&issueLeaseFlags.cpuPct, "cpu-pct", 0, "CPU ceiling override")
	f.IntVar(&issueLeaseFlags.memMB, "mem-mb", 0, "Memory ceiling override")
	rootCmd.AddCommand(issueLeaseCmd)
}

func runIssueLease(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	trust, err := rt.trustStore()
	if err != nil {
		return err
	}
	signer, err := signerFor(issueLeaseFlags.kid)
	if err != nil {
		return err
	}

	m := intent.NewMachine(rt.store, rt.trail)
	in, err := m.Load(args[0])
	if err != nil {
		return err
	}

	limits := rt.cfg.DefaultLimits
	if issueLeaseFlags.timeoutS > 0 {
		limits.WallclockTimeoutS = issueLeaseFlags.timeoutS
	}
	if issueLeaseFlags.cpuPct > 0 {
		limits.CPUPctMax = issueLeaseFlags.cpuPct
	}
	if issueLeaseFlags.memMB > 0 {
		limits.MemMBMax = issueLeaseFlags.memMB
	}

	iss := lease.NewIssuer(rt.store, signer, trust, rt.trail, rt.cfg.TrustedVerifiers)
	l, err := iss.Issue(in, lease.Scope{
		PathsAllowlist:    issueLeaseFlags.paths,
		CommandsAllowlist: issueLeaseFlags.commands,
		EnvAllowlist:      issueLeaseFlags.env,
		Limits:            limits,
		Duration:          issueLeaseFlags.duration,
	})
	if err != nil {
		return err
	}
	return emit(l)
}

var cosignLeaseFlags struct {
	role string
	id   string
}

var cosignLeaseCmd = &cobra.Command{
	Use:   "cosign-lease <lease-id>",
	Short: "Add a human or trusted-agent cosignature to a pending lease",
	Args:  cobra.ExactArgs(1),
	RunE:  runCosignLease,
}

func init() {
	f := cosignLeaseCmd.Flags()
	f.StringVar(&cosignLeaseFlags.role, "role", "", "Cosigner role (human or agent)")
	f.StringVar(&cosignLeaseFlags.id, "as", "", "Cosigner id, which is also its trust-store key id")
	_ = cosignLeaseCmd.MarkFlagRequired("role")
	_ = cosignLeaseCmd.MarkFlagRequired("as")
	rootCmd.AddCommand(cosignLeaseCmd)
}

func runCosignLease(cmd *cobra.Command, args []string) error {
	role := contracts.CosignerRole(cosignLeaseFlags.role)
	if role != contracts.RoleHuman && role != contracts.RoleAgent {
		return fmt.Errorf("role must be human or agent, got %q", cosignLeaseFlags.role)
	}
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	trust, err := rt.trustStore()
	if err != nil {
		return err
	}
	signer, err := signerFor(cosignLeaseFlags.id)
	if err != nil {
		return err
	}
	iss := lease.NewIssuer(rt.store, signer, trust, rt.trail, rt.cfg.TrustedVerifiers)
	l, err := iss.Cosign(args[0], role, cosignLeaseFlags.id, signer)
	if err != nil {
		return err
	}
	return emit(l)
}

var verifyLeaseCmd = &cobra.Command{
	Use:   "verify-lease <lease-id>",
	Short: "Verify a lease's signatures, cosigner set, window and revocation",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerifyLease,
}

func init() {
	rootCmd.AddCommand(verifyLeaseCmd)
}

func runVerifyLease(cmd *cobra.Command, args []string) error {
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
	v := lease.NewVerifier(trust, rt.store, rt.cfg.TrustedVerifiers, time.Now)
	if err := v.Verify(l); err != nil {
		rt.recordDenied("operator", "lease_verify_denied", l.LeaseID, err)
		return err
	}
	return emit(map[string]any{
		"lease_id":   l.LeaseID,
		"intent_id":  l.IntentID,
		"valid":      true,
		"expires_at": l.ExpiresAt,
	})
}

var revokeLeaseFlags struct {
	actor  string
	reason string
}

var revokeLeaseCmd = &cobra.Command{
	Use:   "revoke-lease <lease-id>",
	Short: "Revoke a lease before its window ends",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevokeLease,
}

func init() {
	f := revokeLeaseCmd.Flags()
	f.StringVar(&revokeLeaseFlags.actor, "actor", "", "Who is revoking")
	f.StringVar(&revokeLeaseFlags.reason, "reason", "", "Why the lease is revoked")
	_ = revokeLeaseCmd.MarkFlagRequired("actor")
	rootCmd.AddCommand(revokeLeaseCmd)
}

func runRevokeLease(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	trust, err := rt.trustStore()
	if err != nil {
		return err
	}
	iss := lease.NewIssuer(rt.store, nil, trust, rt.trail, rt.cfg.TrustedVerifiers)
	if err := iss.Revoke(args[0], revokeLeaseFlags.actor, revokeLeaseFlags.reason); err != nil {
		return err
	}
	return emit(map[string]any{"lease_id": args[0], "revoked": true})
}
