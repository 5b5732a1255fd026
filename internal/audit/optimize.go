package audit

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/recommend"
	"grimm.is/ruleaudit/internal/ruleset"
)

// Optimization is the rule set with the plan's removals applied.
type Optimization struct {
	Removed []analyzer.RuleRef `json:"removed" yaml:"removed"`
	Rules   []ruleset.Rule     `json:"-" yaml:"-"`
	// Before and After are iptables-save renderings.
	Before string `json:"before" yaml:"before"`
	After  string `json:"rules" yaml:"rules"`
	// Diff is a unified diff from Before to After; empty when nothing was
	// removed.
	Diff string `json:"diff" yaml:"diff"`
}

// Optimize applies the run's plan. It fails when the run was audited
// without a plan.
func (r *Run) Optimize() (*Optimization, error) {
	if r.Plan == nil {
		return nil, fmt.Errorf("run %s has no plan", r.ID)
	}

	rules := recommend.Apply(r.Import.Rules, r.Plan)
	opt := &Optimization{
		Removed: r.Plan.Removals,
		Rules:   rules,
		Before:  r.Import.Render(r.Import.Rules),
		After:   r.Import.Render(rules),
	}
	if opt.Before != opt.After {
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(opt.Before),
			B:        difflib.SplitLines(opt.After),
			FromFile: label(r.Source, "original"),
			ToFile:   label(r.Source, "optimized"),
			Context:  3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to diff rule sets: %w", err)
		}
		opt.Diff = diff
	}
	return opt, nil
}

func label(source, suffix string) string {
	if source == "" {
		return suffix
	}
	return source + " (" + suffix + ")"
}
