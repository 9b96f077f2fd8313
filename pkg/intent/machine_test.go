package intent

import (
	"testing"
	"time"

	"github.com/parapet-labs/parapet/pkg/audit"
	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/diff"
	"github.com/parapet-labs/parapet/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *store.Store
	trail   *audit.Trail
	machine *Machine
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	f := &fixture{store: s, trail: audit.NewTrail(s, ""), now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.machine = NewMachine(s, f.trail, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) createIntent(t *testing.T, reviewers ...string) contracts.Intent {
	t.Helper()
	in, err := f.machine.Create(contracts.Intent{
		IntentID:          "INT-1",
		Proposer:          "agent-7",
		IntentType:        contracts.IntentCodeChange,
		Goal:              "tighten retry loop",
		ChangeSet:         []string{"svc/*.go"},
		RiskLevel:         contracts.RiskLow,
		RollbackPlan:      "apply reverse patch",
		RequiredReviewers: reviewers,
	})
	require.NoError(t, err)
	return in
}

func (f *fixture) attachProposal(t *testing.T, id string) {
	t.Helper()
	art, err := diff.Build(id, []diff.FileChange{{Path: "svc/retry.go", Old: "a\n", New: "b\n"}},
		diff.Limits{MaxLines: 500, MaxBytes: 100_000})
	require.NoError(t, err)
	_, err = art.Persist(f.store)
	require.NoError(t, err)
	_, err = f.machine.AttachProposal(id)
	require.NoError(t, err)
}

func TestCreate_StartsInDraft(t *testing.T) {
	f := newFixture(t)
	in := f.createIntent(t, "cp14")
	assert.Equal(t, contracts.IntentDraft, in.Status)

	loaded, err := f.machine.Load("INT-1")
	require.NoError(t, err)
	assert.Equal(t, in.IntentID, loaded.IntentID)
}

func TestCreate_GeneratesID(t *testing.T) {
	f := newFixture(t)
	in, err := f.machine.Create(contracts.Intent{Proposer: "agent-7", IntentType: contracts.IntentCommand, RiskLevel: contracts.RiskLow})
	require.NoError(t, err)
	assert.Contains(t, in.IntentID, "INT-")
}

func TestAttachProposal_MissingArtifact(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "cp14")

	_, err := f.machine.AttachProposal("INT-1")
	assert.ErrorIs(t, err, contracts.ErrArtifactMissing)

	// Intent unchanged.
	in, err := f.machine.Load("INT-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentDraft, in.Status)
}

func TestReview_MovesToUnderReview(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "cp14", "cp18")
	f.attachProposal(t, "INT-1")

	in, err := f.machine.RecordReview("INT-1", "cp14", true, "lgtm")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentUnderReview, in.Status)
}

func TestReview_UnknownReviewerRejected(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "cp14")
	f.attachProposal(t, "INT-1")

	_, err := f.machine.RecordReview("INT-1", "stranger", true, "")
	assert.ErrorIs(t, err, contracts.ErrUnknownActor)
}

func TestReview_DuplicateOverwrites(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "cp14", "cp18")
	f.attachProposal(t, "INT-1")

	_, err := f.machine.RecordReview("INT-1", "cp14", true, "first pass")
	require.NoError(t, err)
	in, err := f.machine.RecordReview("INT-1", "cp14", true, "second pass")
	require.NoError(t, err)

	require.Len(t, in.Reviews, 1)
	assert.Equal(t, "second pass", in.Reviews["cp14"].Note)
}

func TestApproval_RequiresScannerPassAndAllReviewers(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "cp14", "cp18")
	f.attachProposal(t, "INT-1")

	in, err := f.machine.RecordReview("INT-1", "cp14", true, "")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentUnderReview, in.Status)

	in, err = f.machine.RecordReview("INT-1", "cp18", true, "")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentUnderReview, in.Status, "still waiting on scanner")

	in, err = f.machine.RecordReview("INT-1", ScannerActorID, true, "PASS")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentApproved, in.Status)
}

func TestVeto_SingleRejectionWins(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "cp14", "cp18", "cp22")
	f.attachProposal(t, "INT-1")

	_, err := f.machine.RecordReview("INT-1", "cp14", true, "")
	require.NoError(t, err)
	_, err = f.machine.RecordReview("INT-1", "cp22", true, "")
	require.NoError(t, err)
	in, err := f.machine.RecordReview("INT-1", "cp18", false, "unsafe rollout")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentRejected, in.Status)

	// Terminal: further reviews refused.
	_, err = f.machine.RecordReview("INT-1", "cp14", true, "")
	assert.ErrorIs(t, err, contracts.ErrInvalidState)
}

func TestScannerFail_Rejects(t *testing.T) {
	f := newFixture(t)
	f.createIntent(t, "cp14")
	f.attachProposal(t, "INT-1")

	in, err := f.machine.RecordReview("INT-1", ScannerActorID, false, "FAIL: forbidden pattern")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentRejected, in.Status)
}

func TestExpiry_LazyOnLoad(t *testing.T) {
	f := newFixture(t)
	in, err := f.machine.Create(contracts.Intent{
		IntentID:          "INT-2",
		Proposer:          "agent-7",
		IntentType:        contracts.IntentCommand,
		RiskLevel:         contracts.RiskLow,
		RequiredReviewers: []string{"cp14"},
		Deadline:          f.now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentDraft, in.Status)

	f.now = f.now.Add(2 * time.Hour)
	in, err = f.machine.Load("INT-2")
	require.NoError(t, err)
	assert.Equal(t, contracts.IntentExpired, in.Status)
}

func TestPredicates(t *testing.T) {
	approve := func() contracts.Review { return contracts.Review{Approved: true} }
	reject := func() contracts.Review { return contracts.Review{Approved: false} }

	assert.False(t, AnyVeto(map[string]contracts.Review{"a": approve()}))
	assert.True(t, AnyVeto(map[string]contracts.Review{"a": approve(), "b": reject()}))

	assert.True(t, AllApproved(nil, nil))
	assert.False(t, AllApproved([]string{"a"}, nil))
	assert.False(t, AllApproved([]string{"a", "b"}, map[string]contracts.Review{"a": approve()}))
	assert.True(t, AllApproved([]string{"a", "b"}, map[string]contracts.Review{"a": approve(), "b": approve()}))

	assert.False(t, ScannerPassed(nil))
	assert.True(t, ScannerPassed(map[string]contracts.Review{ScannerActorID: approve()}))
	assert.False(t, ScannerPassed(map[string]contracts.Review{ScannerActorID: reject()}))
}
