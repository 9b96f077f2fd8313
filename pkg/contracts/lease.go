package contracts

import "time"

// CosignerRole distinguishes the two halves of the two-key requirement.
type CosignerRole string

const (
	RoleHuman CosignerRole = "human"
	RoleAgent CosignerRole = "agent"
)

// Cosigner is one party's signature on a lease. The agent cosigner's ID
// must belong to the trusted-verifier set; an arbitrary agent cannot
// satisfy the agent half.
type Cosigner struct {
	Role      CosignerRole `json:"role"`
	ID        string       `json:"id"`
	Sig       string       `json:"sig"`
	Timestamp time.Time    `json:"timestamp"`
}

// LeaseLimits are the resource ceilings a lease grants.
type LeaseLimits struct {
	WallclockTimeoutS int `yaml:"wallclock_timeout_s" json:"wallclock_timeout_s"`
	CPUPctMax         int `yaml:"cpu_pct_max" json:"cpu_pct_max"`
	MemMBMax          int `yaml:"mem_mb_max" json:"mem_mb_max"`
}

// LeaseSig is the issuing authority's signature over the canonicalized
// lease body (every field except this one).
type LeaseSig struct {
	KID   string `json:"kid"`
	Value string `json:"value"`
}

// Lease is a signed, time-boxed, scope-limited capability token. It is
// never mutated after co-signing completes, except that a pending
// single-signed lease may have the missing cosignature appended.
type Lease struct {
	LeaseID           string      `json:"lease_id"`
	IntentID          string      `json:"intent_id"`
	IssuedAt          time.Time   `json:"issued_at"`
	ExpiresAt         time.Time   `json:"expires_at"`
	PathsAllowlist    []string    `json:"paths_allowlist"`
	CommandsAllowlist []string    `json:"commands_allowlist"`
	EnvAllowlist      []string    `json:"env_allowlist"`
	Limits            LeaseLimits `json:"limits"`
	Cosigners         []Cosigner  `json:"cosigners"`
	Sig               LeaseSig    `json:"sig"`
}

// Body returns the lease with its authority signature zeroed, which is
// the canonicalization input for signing and verification.
func (l Lease) Body() Lease {
	l.Sig = LeaseSig{}
	return l
}

// CosignerByRole returns the cosigner holding role, if present.
func (l Lease) CosignerByRole(role CosignerRole) (Cosigner, bool) {
	for _, c := range l.Cosigners {
		if c.Role == role {
			return c, true
		}
	}
	return Cosigner{}, false
}

// RunRecord is the persisted outcome of one execution attempt under a
// lease. Exactly one record exists per lease per attempt.
type RunRecord struct {
	LeaseID       string   `json:"lease_id"`
	Command       string   `json:"command"`
	StartTS       string   `json:"start_ts"`
	DurationS     float64  `json:"duration_s"`
	ExitCode      int      `json:"exit_code"`
	TimedOut      bool     `json:"timed_out"`
	ArtifactPaths []string `json:"artifact_paths"`
}

// SentinelStatus classifies a lease's resource compliance.
type SentinelStatus string

const (
	SentinelNotStarted      SentinelStatus = "not_started"
	SentinelInProgress      SentinelStatus = "in_progress"
	SentinelWithinLimits    SentinelStatus = "within_limits"
	SentinelTimeoutExceeded SentinelStatus = "timeout_exceeded"
)
