// Package scanner is the static security check over a proposal's added
// content. It is deterministic and side-effect free: the same artifact
// and rule set always produce the same verdict.
package scanner

import (
	"fmt"
	"os"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"
)

// EngineVersion is matched against a rule set's engine constraint; a rule
// set written for an incompatible engine is refused at load.
const EngineVersion = "1.2.0"

// Pattern is one forbidden-content rule. Risk feeds the verdict's
// syscall_risk classification.
type Pattern struct {
	Pattern string `yaml:"pattern"`
	Type    string `yaml:"type"`
	Risk    string `yaml:"risk,omitempty"` // LOW, MED, HIGH; default MED

	re *regexp.Regexp
}

// RuleSet is the scanner policy, loaded once from YAML and passed
// explicitly so verdicts stay reproducible.
type RuleSet struct {
	Engine            string    `yaml:"engine,omitempty"`
	MaxChangedLines   int       `yaml:"max_changed_lines"`
	ForbiddenPatterns []Pattern `yaml:"forbidden_patterns"`
	AllowedExtensions []string  `yaml:"allowed_extensions,omitempty"`
	CELRules          []string  `yaml:"cel_rules,omitempty"`

	celPrograms []cel.Program
}

// LoadRuleSet reads and compiles a rule-set file. Regexes and CEL
// expressions are compiled here so Scan itself cannot fail.
func LoadRuleSet(path string) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set %s: %w", path, err)
	}
	if err := rs.Compile(); err != nil {
		return nil, fmt.Errorf("rule set %s: %w", path, err)
	}
	return &rs, nil
}

// Compile validates the engine constraint and compiles patterns and CEL
// rules in place.
func (rs *RuleSet) Compile() error {
	if rs.Engine != "" {
		constraint, err := semver.NewConstraint(rs.Engine)
		if err != nil {
			return fmt.Errorf("engine constraint %q: %w", rs.Engine, err)
		}
		v := semver.MustParse(EngineVersion)
		if !constraint.Check(v) {
			return fmt.Errorf("rule set requires engine %q, this engine is %s", rs.Engine, EngineVersion)
		}
	}

	for i := range rs.ForbiddenPatterns {
		p := &rs.ForbiddenPatterns[i]
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", p.Pattern, err)
		}
		p.re = re
		if p.Risk == "" {
			p.Risk = "MED"
		}
	}

	if len(rs.CELRules) > 0 {
		env, err := cel.NewEnv(cel.Variable("proposal", cel.DynType))
		if err != nil {
			return fmt.Errorf("cel environment: %w", err)
		}
		rs.celPrograms = make([]cel.Program, 0, len(rs.CELRules))
		for _, expr := range rs.CELRules {
			ast, iss := env.Compile(expr)
			if iss != nil && iss.Err() != nil {
				return fmt.Errorf("cel rule %q: %w", expr, iss.Err())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return fmt.Errorf("cel rule %q: %w", expr, err)
			}
			rs.celPrograms = append(rs.celPrograms, prg)
		}
	}
	return nil
}

// DefaultRuleSet is the policy used when no rule-set file is configured.
func DefaultRuleSet() *RuleSet {
	rs := &RuleSet{
		MaxChangedLines: 500,
		ForbiddenPatterns: []Pattern{
			{Pattern: `rm\s+-rf\s+/`, Type: "dangerous_shell", Risk: "HIGH"},
			{Pattern: `curl[^|]*\|\s*(ba)?sh`, Type: "remote_execution", Risk: "HIGH"},
			{Pattern: `chmod\s+777`, Type: "dangerous_shell", Risk: "MED"},
			{Pattern: `(?i)(api[_-]?key|secret|password)\s*[:=]\s*['"][^'"]{8,}`, Type: "credential", Risk: "MED"},
			{Pattern: `eval\s*\(`, Type: "dynamic_eval", Risk: "MED"},
			{Pattern: `mkfs\.`, Type: "dangerous_shell", Risk: "HIGH"},
		},
	}
	// Compile cannot fail on the built-in patterns.
	if err := rs.Compile(); err != nil {
		panic(err)
	}
	return rs
}
