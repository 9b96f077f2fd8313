package contracts

// VerdictKind is the security scanner's binary outcome.
type VerdictKind string

const (
	VerdictPass VerdictKind = "PASS"
	VerdictFail VerdictKind = "FAIL"
)

// SyscallRisk is a coarse classification of how dangerous the scanned
// additions look at the syscall level.
type SyscallRisk string

const (
	SyscallRiskLow  SyscallRisk = "LOW"
	SyscallRiskMed  SyscallRisk = "MED"
	SyscallRiskHigh SyscallRisk = "HIGH"
)

// Finding is one scanner rule violation.
type Finding struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// SecurityVerdict is the scanner's persisted output for an intent.
// Network egress is denied unconditionally in this design.
type SecurityVerdict struct {
	IntentID      string      `json:"intent_id"`
	Verdict       VerdictKind `json:"verdict"`
	Findings      []Finding   `json:"findings"`
	NetworkEgress string      `json:"network_egress"`
	SyscallRisk   SyscallRisk `json:"syscall_risk"`
}

// HaltStatus is the auto-halt monitor's classification.
type HaltStatus string

const (
	HaltOK      HaltStatus = "OK"
	HaltWarning HaltStatus = "WARNING"
	HaltHalt    HaltStatus = "HALT"
)

// AuditEvent is one append-only trail record. Events are never rewritten
// or deleted; order is write order within a single log shard.
type AuditEvent struct {
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	EventKind string `json:"event_kind"`
	SubjectID string `json:"subject_id"`
	Payload   any    `json:"payload,omitempty"`
	Hash      string `json:"hash,omitempty"`
}
