package scanner

import (
	"fmt"
	"path"
	"strings"

	"github.com/parapet-labs/parapet/pkg/contracts"
)

// Scan verdicts a proposal artifact against a rule set. Only lines the
// forward patch adds are examined; removed and context lines are never
// matched, so deleting a dangerous pattern cannot fail the scan.
func Scan(forwardPatch string, meta contracts.ProposalMetadata, rules *RuleSet) contracts.SecurityVerdict {
	var findings []contracts.Finding
	risk := contracts.SyscallRiskLow

	// Rule 1: changed-line ceiling, re-checked here as defense in depth
	// against a builder running with laxer limits.
	if rules.MaxChangedLines > 0 && meta.TotalLines > rules.MaxChangedLines {
		findings = append(findings, contracts.Finding{
			Type:   "size_ceiling",
			Detail: fmt.Sprintf("changed lines %d exceed rule ceiling %d", meta.TotalLines, rules.MaxChangedLines),
		})
	}

	// Rule 2: forbidden patterns over added lines only.
	for _, line := range addedLines(forwardPatch) {
		for _, p := range rules.ForbiddenPatterns {
			if p.re.MatchString(line) {
				findings = append(findings, contracts.Finding{
					Type:   p.Type,
					Detail: "added line matches forbidden pattern " + p.Pattern,
				})
				risk = maxRisk(risk, parseRisk(p.Risk))
			}
		}
	}

	// Rule 3: extension allowlist, when configured.
	if len(rules.AllowedExtensions) > 0 {
		allowed := make(map[string]bool, len(rules.AllowedExtensions))
		for _, ext := range rules.AllowedExtensions {
			allowed[ext] = true
		}
		for _, p := range touchedPaths(forwardPatch) {
			if ext := path.Ext(p); !allowed[ext] {
				findings = append(findings, contracts.Finding{
					Type:   "extension",
					Detail: "file " + p + " has extension outside allowlist",
				})
			}
		}
	}

	// Rule 4: CEL metadata rules; an expression evaluating false is a
	// finding, as is one that fails to evaluate (fail closed).
	if len(rules.celPrograms) > 0 {
		input := map[string]any{
			"proposal": map[string]any{
				"files_changed": meta.FilesChanged,
				"lines_added":   meta.LinesAdded,
				"lines_removed": meta.LinesRemoved,
				"total_lines":   meta.TotalLines,
				"total_bytes":   meta.TotalBytes,
				"extensions":    extensionList(forwardPatch),
			},
		}
		for i, prg := range rules.celPrograms {
			out, _, err := prg.Eval(input)
			if err != nil {
				findings = append(findings, contracts.Finding{
					Type:   "metadata_rule",
					Detail: "rule " + rules.CELRules[i] + " failed to evaluate: " + err.Error(),
				})
				continue
			}
			if ok, isBool := out.Value().(bool); !isBool || !ok {
				findings = append(findings, contracts.Finding{
					Type:   "metadata_rule",
					Detail: "rule violated: " + rules.CELRules[i],
				})
			}
		}
	}

	verdict := contracts.VerdictPass
	if len(findings) > 0 {
		verdict = contracts.VerdictFail
	}
	return contracts.SecurityVerdict{
		IntentID:      meta.IntentID,
		Verdict:       verdict,
		Findings:      findings,
		NetworkEgress: "DENIED",
		SyscallRisk:   risk,
	}
}

// addedLines extracts the content of each `+` line, excluding `+++` file
// headers.
func addedLines(patch string) []string {
	var out []string
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++ ") {
			out = append(out, line[1:])
		}
	}
	return out
}

// touchedPaths extracts file paths from `+++ b/<path>` headers.
func touchedPaths(patch string) []string {
	var out []string
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			out = append(out, strings.TrimPrefix(line, "+++ b/"))
		}
	}
	return out
}

func extensionList(patch string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range touchedPaths(patch) {
		ext := path.Ext(p)
		if ext != "" && !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	return out
}

func parseRisk(s string) contracts.SyscallRisk {
	switch s {
	case "HIGH":
		return contracts.SyscallRiskHigh
	case "MED":
		return contracts.SyscallRiskMed
	default:
		return contracts.SyscallRiskLow
	}
}

func maxRisk(a, b contracts.SyscallRisk) contracts.SyscallRisk {
	rank := map[contracts.SyscallRisk]int{
		contracts.SyscallRiskLow:  0,
		contracts.SyscallRiskMed:  1,
		contracts.SyscallRiskHigh: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
