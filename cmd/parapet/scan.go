package main

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/diff"
	"github.com/parapet-labs/parapet/pkg/intent"
	"github.com/parapet-labs/parapet/pkg/scanner"
)

var scanRecordReview bool

var scanProposalCmd = &cobra.Command{
	Use:   "scan-proposal <intent-id>",
	Short: "Run the static security scan over a proposal's added lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanProposal,
}

func init() {
	scanProposalCmd.Flags().BoolVar(&scanRecordReview, "record", true, "Record the verdict as the scanner's review on the intent")
	rootCmd.AddCommand(scanProposalCmd)
}

func runScanProposal(cmd *cobra.Command, args []string) error {
	intentID := args[0]
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	m := intent.NewMachine(rt.store, rt.trail)
	in, err := m.Load(intentID)
	if err != nil {
		return err
	}
	if in.Artifacts.PatchPath == "" {
		return fmt.Errorf("intent %s has no proposal attached: %w", intentID, contracts.ErrArtifactMissing)
	}

	patch, err := rt.store.ReadFile(in.Artifacts.PatchPath)
	if err != nil {
		return err
	}
	var meta contracts.ProposalMetadata
	if err := rt.store.ReadJSON(diff.MetadataPath(intentID), &meta); err != nil {
		return err
	}

	rules := scanner.DefaultRuleSet()
	if rt.cfg.RuleSetPath != "" {
		rules, err = scanner.LoadRuleSet(rt.cfg.RuleSetPath)
		if err != nil {
			return err
		}
	}

	verdict := scanner.Scan(string(patch), meta, rules)
	if err := rt.store.WriteJSON(path.Join(diff.ProposalDir(intentID), "verdict.json"), verdict); err != nil {
		return err
	}

	if scanRecordReview {
		note := fmt.Sprintf("engine %s, %d findings", scanner.EngineVersion, len(verdict.Findings))
		if _, err := m.RecordReview(intentID, intent.ScannerActorID, verdict.Verdict == contracts.VerdictPass, note); err != nil {
			return err
		}
	}
	return emit(verdict)
}
