package contracts

import "time"

// IntentStatus is the lifecycle state of an Intent. Transitions only move
// forward; terminal states are immutable.
type IntentStatus string

const (
	IntentDraft       IntentStatus = "draft"
	IntentProposed    IntentStatus = "proposed"
	IntentUnderReview IntentStatus = "under_review"
	IntentApproved    IntentStatus = "approved"
	IntentRejected    IntentStatus = "rejected"
	IntentExpired     IntentStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s IntentStatus) Terminal() bool {
	return s == IntentApproved || s == IntentRejected || s == IntentExpired
}

// IntentType classifies what kind of change is being proposed.
type IntentType string

const (
	IntentCodeChange   IntentType = "code_change"
	IntentCommand      IntentType = "command"
	IntentConfigChange IntentType = "config_change"
)

// RiskLevel is the proposer's declared risk classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Review is one reviewer's recorded verdict on an intent.
type Review struct {
	Approved  bool      `json:"approved"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentArtifacts points at the proposal artifact files attached to an
// intent. Paths are relative to the store root.
type IntentArtifacts struct {
	PatchPath        string `json:"patch_path,omitempty"`
	ReversePatchPath string `json:"reverse_patch_path,omitempty"`
	MetadataPath     string `json:"metadata_path,omitempty"`
}

// Intent is a proposed change awaiting authorization.
//
// Reviews may only contain entries from RequiredReviewers or a designated
// scanner id; the state machine enforces this on write.
type Intent struct {
	IntentID          string            `json:"intent_id"`
	Proposer          string            `json:"proposer"`
	IntentType        IntentType        `json:"intent_type"`
	Goal              string            `json:"goal"`
	ChangeSet         []string          `json:"change_set"`
	RiskLevel         RiskLevel         `json:"risk_level"`
	RollbackPlan      string            `json:"rollback_plan"`
	RequiredReviewers []string          `json:"required_reviewers"`
	Reviews           map[string]Review `json:"reviews"`
	Status            IntentStatus      `json:"status"`
	Artifacts         IntentArtifacts   `json:"artifacts"`
	CreatedAt         time.Time         `json:"created_at"`
	Deadline          time.Time         `json:"deadline,omitempty"`
}

// ProposalMetadata is the persisted summary of a proposal artifact. It is
// immutable once hashed; a re-proposal supersedes it with a new record.
type ProposalMetadata struct {
	IntentID         string `json:"intent_id"`
	FilesChanged     int    `json:"files_changed"`
	LinesAdded       int    `json:"lines_added"`
	LinesRemoved     int    `json:"lines_removed"`
	TotalLines       int    `json:"total_lines"`
	TotalBytes       int    `json:"total_bytes"`
	SHAPatch         string `json:"sha_patch"`
	SHAReverse       string `json:"sha_reverse"`
	PatchPath        string `json:"patch_path"`
	ReversePatchPath string `json:"reverse_patch_path"`
}
