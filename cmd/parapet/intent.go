package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/diff"
	"github.com/parapet-labs/parapet/pkg/intent"
)

var createIntentFlags struct {
	proposer   string
	intentType string
	goal       string
	changeSet  []string
	risk       string
	rollback   string
	reviewers  []string
	deadline   time.Duration
}

var createIntentCmd = &cobra.Command{
	Use:   "create-intent",
	Short: "Register a new change intent in draft state",
	RunE:  runCreateIntent,
}

func init() {
	f := createIntentCmd.Flags()
	f.StringVar(&createIntentFlags.proposer, "proposer", "", "Proposing agent id")
	f.StringVar(&createIntentFlags.intentType, "type", string(contracts.IntentCodeChange), "Intent type (code_change, command, config_change)")
	f.StringVar(&createIntentFlags.goal, "goal", "", "What the change is meant to achieve")
	f.StringSliceVar(&createIntentFlags.changeSet, "change", nil, "File or resource the intent may touch (repeatable)")
	f.StringVar(&createIntentFlags.risk, "risk", string(contracts.RiskLow), "Declared risk level (low, medium, high)")
	f.StringVar(&createIntentFlags.rollback, "rollback", "", "Rollback plan description")
	f.StringSliceVar(&createIntentFlags.reviewers, "reviewer", nil, "Required human reviewer id (repeatable)")
	f.DurationVar(&createIntentFlags.deadline, "deadline", 0, "Review deadline from now (0 = none)")
	_ = createIntentCmd.MarkFlagRequired("proposer")
	_ = createIntentCmd.MarkFlagRequired("goal")
	rootCmd.AddCommand(createIntentCmd)
}

func runCreateIntent(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	m := intent.NewMachine(rt.store, rt.trail)

	in := contracts.Intent{
		Proposer:          createIntentFlags.proposer,
		IntentType:        contracts.IntentType(createIntentFlags.intentType),
		Goal:              createIntentFlags.goal,
		ChangeSet:         createIntentFlags.changeSet,
		RiskLevel:         contracts.RiskLevel(createIntentFlags.risk),
		RollbackPlan:      createIntentFlags.rollback,
		RequiredReviewers: createIntentFlags.reviewers,
	}
	if createIntentFlags.deadline > 0 {
		in.Deadline = time.Now().UTC().Add(createIntentFlags.deadline)
	}
	created, err := m.Create(in)
	if err != nil {
		return err
	}
	return emit(created)
}

var attachChangesFile string

var attachProposalCmd = &cobra.Command{
	Use:   "attach-proposal <intent-id>",
	Short: "Build the diff artifact for an intent and move it to proposed",
	Long: `Reads a change manifest, builds the forward and reverse patches under
the configured size ceiling, persists them, and attaches the artifact to
the intent.

The manifest is a JSON array of {"path", "old_file", "new_file"}
entries; omit old_file for a created file and new_file for a deletion.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttachProposal,
}

func init() {
	attachProposalCmd.Flags().StringVar(&attachChangesFile, "changes", "", "Change manifest file")
	_ = attachProposalCmd.MarkFlagRequired("changes")
	rootCmd.AddCommand(attachProposalCmd)
}

type changeManifestEntry struct {
	Path    string `json:"path"`
	OldFile string `json:"old_file,omitempty"`
	NewFile string `json:"new_file,omitempty"`
}

func loadChanges(manifestPath string) ([]diff.FileChange, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read change manifest: %w", err)
	}
	var entries []changeManifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse change manifest %s: %w", manifestPath, err)
	}
	changes := make([]diff.FileChange, 0, len(entries))
	for _, e := range entries {
		fc := diff.FileChange{Path: e.Path}
		if e.OldFile != "" {
			raw, err := os.ReadFile(e.OldFile)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", e.OldFile, err)
			}
			fc.Old = string(raw)
		}
		if e.NewFile != "" {
			raw, err := os.ReadFile(e.NewFile)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", e.NewFile, err)
			}
			fc.New = string(raw)
		}
		changes = append(changes, fc)
	}
	return changes, nil
}

func runAttachProposal(cmd *cobra.Command, args []string) error {
	intentID := args[0]
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	changes, err := loadChanges(attachChangesFile)
	if err != nil {
		return err
	}
	artifact, err := diff.Build(intentID, changes, rt.cfg.DiffLimits())
	if err != nil {
		rt.recordDenied("operator", "proposal_build_denied", intentID, err)
		return err
	}
	if _, err := artifact.Persist(rt.store); err != nil {
		return err
	}

	m := intent.NewMachine(rt.store, rt.trail)
	updated, err := m.AttachProposal(intentID)
	if err != nil {
		return err
	}
	return emit(updated)
}

var recordReviewFlags struct {
	reviewer string
	veto     bool
	note     string
}

var recordReviewCmd = &cobra.Command{
	Use:   "record-review <intent-id>",
	Short: "Record a reviewer's approval or veto",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordReview,
}

func init() {
	f := recordReviewCmd.Flags()
	f.StringVar(&recordReviewFlags.reviewer, "reviewer", "", "Reviewer id")
	f.BoolVar(&recordReviewFlags.veto, "veto", false, "Record a veto instead of an approval")
	f.StringVar(&recordReviewFlags.note, "note", "", "Optional review note")
	_ = recordReviewCmd.MarkFlagRequired("reviewer")
	rootCmd.AddCommand(recordReviewCmd)
}

func runRecordReview(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	m := intent.NewMachine(rt.store, rt.trail)
	updated, err := m.RecordReview(args[0], recordReviewFlags.reviewer, !recordReviewFlags.veto, recordReviewFlags.note)
	if err != nil {
		return err
	}
	return emit(updated)
}
