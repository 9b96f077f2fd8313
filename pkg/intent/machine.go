// Package intent owns the intent lifecycle: a small forward-only state
// machine with review bookkeeping and fail-fast veto semantics.
package intent

import (
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/parapet-labs/parapet/pkg/audit"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/diff"
	"github.com/parapet-labs/parapet/pkg/store"
)

// ScannerActorID is the designated automated reviewer whose verdict the
// approval rule consults. It may record reviews without being listed in
// required_reviewers.
const ScannerActorID = "security-scanner"

// Machine drives intents through draft → proposed → under_review →
// approved | rejected, with a lazy expired transition from any
// non-terminal state once the deadline passes.
type Machine struct {
	store  *store.Store
	trail  *audit.Trail
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock injects a time source, for tests and replay.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.clock = now }
}

// WithLogger injects a diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func NewMachine(s *store.Store, trail *audit.Trail, opts ...Option) *Machine {
	m := &Machine{
		store:  s,
		trail:  trail,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func intentPath(id string) string {
	return path.Join("intents", id+".json")
}

// Create persists a new intent in draft. An empty id gets a generated
// INT-prefixed uuid.
func (m *Machine) Create(in contracts.Intent) (contracts.Intent, error) {
	if in.IntentID == "" {
		in.IntentID = "INT-" + uuid.New().String()
	}
	if in.Proposer == "" {
		return contracts.Intent{}, fmt.Errorf("intent proposer is required")
	}
	if m.store.Exists(intentPath(in.IntentID)) {
		return contracts.Intent{}, fmt.Errorf("intent %s already exists: %w", in.IntentID, contracts.ErrInvalidState)
	}
	in.Status = contracts.IntentDraft
	in.Reviews = map[string]contracts.Review{}
	in.CreatedAt = m.clock().UTC()
	// Keep persisted records schema-clean: arrays, not nulls.
	if in.ChangeSet == nil {
		in.ChangeSet = []string{}
	}
	if in.RequiredReviewers == nil {
		in.RequiredReviewers = []string{}
	}
	if err := m.save(in); err != nil {
		return contracts.Intent{}, err
	}
	m.record(in.Proposer, "intent_created", in.IntentID, map[string]any{"intent_type": in.IntentType, "risk_level": in.RiskLevel})
	return in, nil
}

// Load reads an intent, validates it against the record schema, and
// applies the lazy expiry transition.
func (m *Machine) Load(id string) (contracts.Intent, error) {
	raw, err := m.store.ReadFile(intentPath(id))
	if err != nil {
		return contracts.Intent{}, err
	}
	if err := contracts.ValidateIntentRecord(raw); err != nil {
		return contracts.Intent{}, err
	}
	var in contracts.Intent
	if err := m.store.ReadJSON(intentPath(id), &in); err != nil {
		return contracts.Intent{}, err
	}
	if !in.Status.Terminal() && !in.Deadline.IsZero() && m.clock().After(in.Deadline) {
		in.Status = contracts.IntentExpired
		if err := m.save(in); err != nil {
			return contracts.Intent{}, err
		}
		m.record("system", "intent_expired", in.IntentID, nil)
	}
	return in, nil
}

// AttachProposal moves draft → proposed once a completed artifact exists
// for the intent. ErrArtifactMissing when the metadata record is absent.
func (m *Machine) AttachProposal(id string) (contracts.Intent, error) {
	in, err := m.Load(id)
	if err != nil {
		return contracts.Intent{}, err
	}
	if in.Status != contracts.IntentDraft {
		return contracts.Intent{}, fmt.Errorf("attach requires draft, intent is %s: %w", in.Status, contracts.ErrInvalidState)
	}
	metaPath := diff.MetadataPath(id)
	if !m.store.Exists(metaPath) {
		m.record(in.Proposer, "proposal_attach_denied", id, map[string]any{"reason": "artifact missing"})
		return contracts.Intent{}, fmt.Errorf("intent %s: %w", id, contracts.ErrArtifactMissing)
	}
	var meta contracts.ProposalMetadata
	if err := m.store.ReadJSON(metaPath, &meta); err != nil {
		return contracts.Intent{}, err
	}
	in.Artifacts = contracts.IntentArtifacts{
		PatchPath:        meta.PatchPath,
		ReversePatchPath: meta.ReversePatchPath,
		MetadataPath:     metaPath,
	}
	in.Status = contracts.IntentProposed
	if err := m.save(in); err != nil {
		return contracts.Intent{}, err
	}
	m.record(in.Proposer, "proposal_attached", id, map[string]any{
		"total_lines": meta.TotalLines,
		"sha_patch":   meta.SHAPatch,
	})
	return in, nil
}

// RecordReview stores one reviewer's verdict. The reviewer must be in
// required_reviewers or be the designated scanner. A repeat review from
// the same reviewer overwrites the earlier one. The first review moves
// proposed → under_review; a veto resolves the intent immediately.
func (m *Machine) RecordReview(id, reviewer string, approved bool, note string) (contracts.Intent, error) {
	in, err := m.Load(id)
	if err != nil {
		return contracts.Intent{}, err
	}
	if in.Status.Terminal() {
		return contracts.Intent{}, fmt.Errorf("intent %s is %s: %w", id, in.Status, contracts.ErrInvalidState)
	}
	if in.Status != contracts.IntentProposed && in.Status != contracts.IntentUnderReview {
		return contracts.Intent{}, fmt.Errorf("review requires proposed or under_review, intent is %s: %w", in.Status, contracts.ErrInvalidState)
	}
	if !reviewerAllowed(in, reviewer) {
		m.record(reviewer, "review_denied", id, map[string]any{"reason": "not a required reviewer"})
		return contracts.Intent{}, fmt.Errorf("reviewer %s: %w", reviewer, contracts.ErrUnknownActor)
	}

	if in.Reviews == nil {
		in.Reviews = map[string]contracts.Review{}
	}
	in.Reviews[reviewer] = contracts.Review{
		Approved:  approved,
		Note:      note,
		Timestamp: m.clock().UTC(),
	}
	if in.Status == contracts.IntentProposed {
		in.Status = contracts.IntentUnderReview
	}
	if err := m.save(in); err != nil {
		return contracts.Intent{}, err
	}
	m.record(reviewer, "review_recorded", id, map[string]any{"approved": approved})

	return m.resolve(in)
}

// resolve applies the approval rule after each review: any veto rejects
// immediately; scanner PASS plus every required approval approves.
func (m *Machine) resolve(in contracts.Intent) (contracts.Intent, error) {
	if AnyVeto(in.Reviews) {
		in.Status = contracts.IntentRejected
		if err := m.save(in); err != nil {
			return contracts.Intent{}, err
		}
		m.record("system", "intent_rejected", in.IntentID, map[string]any{"reason": "reviewer veto"})
		return in, nil
	}
	if AllApproved(in.RequiredReviewers, in.Reviews) && ScannerPassed(in.Reviews) {
		in.Status = contracts.IntentApproved
		if err := m.save(in); err != nil {
			return contracts.Intent{}, err
		}
		m.record("system", "intent_approved", in.IntentID, nil)
	}
	return in, nil
}

func reviewerAllowed(in contracts.Intent, reviewer string) bool {
	if reviewer == ScannerActorID {
		return true
	}
	for _, r := range in.RequiredReviewers {
		if r == reviewer {
			return true
		}
	}
	return false
}

func (m *Machine) save(in contracts.Intent) error {
	return m.store.WriteJSON(intentPath(in.IntentID), in)
}

func (m *Machine) record(actor, kind, subject string, payload map[string]any) {
	if m.trail == nil {
		return
	}
	if err := m.trail.Record(actor, kind, subject, payload); err != nil {
		m.logger.Warn("audit append failed", "event_kind", kind, "subject", subject, "error", err)
	}
}
