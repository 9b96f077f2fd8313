package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPatch(t *testing.T, path, old, new string) (string, contracts.ProposalMetadata) {
	t.Helper()
	art, err := diff.Build("INT-1", []diff.FileChange{{Path: path, Old: old, New: new}},
		diff.Limits{MaxLines: 1000, MaxBytes: 100_000})
	require.NoError(t, err)
	return art.Forward, art.Meta
}

func TestScan_CleanProposalPasses(t *testing.T) {
	patch, meta := buildPatch(t, "main.go", "a\n", "a\nb\n")
	v := Scan(patch, meta, DefaultRuleSet())

	assert.Equal(t, contracts.VerdictPass, v.Verdict)
	assert.Empty(t, v.Findings)
	assert.Equal(t, "DENIED", v.NetworkEgress)
	assert.Equal(t, contracts.SyscallRiskLow, v.SyscallRisk)
}

func TestScan_AddedDangerousLineFails(t *testing.T) {
	patch, meta := buildPatch(t, "deploy.sh", "echo ok\n", "echo ok\nrm -rf /data\n")
	v := Scan(patch, meta, DefaultRuleSet())

	assert.Equal(t, contracts.VerdictFail, v.Verdict)
	require.NotEmpty(t, v.Findings)
	assert.Equal(t, "dangerous_shell", v.Findings[0].Type)
	assert.Equal(t, contracts.SyscallRiskHigh, v.SyscallRisk)
}

func TestScan_RemovedDangerousLineDoesNotFail(t *testing.T) {
	// The same forbidden pattern, present only in a removed line, must
	// never produce a FAIL verdict.
	patch, meta := buildPatch(t, "deploy.sh", "rm -rf /data\necho ok\n", "echo ok\n")
	v := Scan(patch, meta, DefaultRuleSet())

	assert.Equal(t, contracts.VerdictPass, v.Verdict)
	assert.Empty(t, v.Findings)
}

func TestScan_SizeCeilingDefenseInDepth(t *testing.T) {
	patch, meta := buildPatch(t, "a.txt", "", "x\ny\nz\n")
	rules := &RuleSet{MaxChangedLines: 2}
	require.NoError(t, rules.Compile())

	v := Scan(patch, meta, rules)
	assert.Equal(t, contracts.VerdictFail, v.Verdict)
	assert.Equal(t, "size_ceiling", v.Findings[0].Type)
}

func TestScan_ExtensionAllowlist(t *testing.T) {
	patch, meta := buildPatch(t, "script.py", "", "print('hi')\n")

	rules := &RuleSet{AllowedExtensions: []string{".go", ".sh"}}
	require.NoError(t, rules.Compile())
	v := Scan(patch, meta, rules)
	assert.Equal(t, contracts.VerdictFail, v.Verdict)
	assert.Equal(t, "extension", v.Findings[0].Type)

	// Unconfigured allowlist admits anything.
	open := &RuleSet{}
	require.NoError(t, open.Compile())
	assert.Equal(t, contracts.VerdictPass, Scan(patch, meta, open).Verdict)
}

func TestScan_CELMetadataRules(t *testing.T) {
	patch, meta := buildPatch(t, "a.go", "", "one\ntwo\nthree\n")

	rules := &RuleSet{CELRules: []string{
		"proposal.lines_added + proposal.lines_removed <= 2",
	}}
	require.NoError(t, rules.Compile())
	v := Scan(patch, meta, rules)
	assert.Equal(t, contracts.VerdictFail, v.Verdict)
	assert.Equal(t, "metadata_rule", v.Findings[0].Type)

	relaxed := &RuleSet{CELRules: []string{
		"proposal.lines_added + proposal.lines_removed <= 500",
		"proposal.files_changed == 1",
	}}
	require.NoError(t, relaxed.Compile())
	assert.Equal(t, contracts.VerdictPass, Scan(patch, meta, relaxed).Verdict)
}

func TestLoadRuleSet_EngineConstraint(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(good, []byte(
		"engine: \">=1.0.0 <2.0.0\"\nmax_changed_lines: 100\nforbidden_patterns:\n  - pattern: \"eval\\\\(\"\n    type: dynamic_eval\n"), 0o600))
	rs, err := LoadRuleSet(good)
	require.NoError(t, err)
	assert.Equal(t, 100, rs.MaxChangedLines)

	bad := filepath.Join(dir, "future.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("engine: \">=9.0.0\"\n"), 0o600))
	_, err = LoadRuleSet(bad)
	assert.Error(t, err)
}

func TestScan_Deterministic(t *testing.T) {
	patch, meta := buildPatch(t, "x.sh", "", "chmod 777 /tmp/x\n")
	rules := DefaultRuleSet()
	v1 := Scan(patch, meta, rules)
	v2 := Scan(patch, meta, rules)
	assert.Equal(t, v1, v2)
}
