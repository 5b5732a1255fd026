package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"grimm.is/ruleaudit/internal/ruleset"
)

// Result is the outcome of one analysis run. It is built once and not
// modified afterwards; callers must not mutate its slices.
type Result struct {
	Findings        []Finding    `json:"findings" yaml:"findings"`
	SecurityScore   int          `json:"security_score" yaml:"security_score"`
	EfficiencyScore int          `json:"efficiency_score" yaml:"efficiency_score"`
	Summary         Summary      `json:"summary" yaml:"summary"`
	Stats           Stats        `json:"stats" yaml:"stats"`
	Diagnostics     []Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	RuleCount       int          `json:"rule_count" yaml:"rule_count"`
	Fingerprint     string       `json:"fingerprint" yaml:"fingerprint"`
}

// Summary counts findings by kind and severity name. Kinds and severities
// with no findings are present with count zero.
type Summary struct {
	Total      int            `json:"total" yaml:"total"`
	ByKind     map[string]int `json:"by_kind" yaml:"by_kind"`
	BySeverity map[string]int `json:"by_severity" yaml:"by_severity"`
}

// Stats describes the analyzed rule set.
type Stats struct {
	TotalRules   int `json:"total_rules" yaml:"total_rules"`
	TotalChains  int `json:"total_chains" yaml:"total_chains"`
	TotalTables  int `json:"total_tables" yaml:"total_tables"`
	AcceptRules  int `json:"accept_rules" yaml:"accept_rules"`
	DropRules    int `json:"drop_rules" yaml:"drop_rules"`
	RejectRules  int `json:"reject_rules" yaml:"reject_rules"`
	CustomChains int `json:"custom_chains" yaml:"custom_chains"`
}

// Diagnostic reports a rule excluded from analysis.
type Diagnostic struct {
	Rule   RuleRef `json:"rule" yaml:"rule"`
	Raw    string  `json:"raw,omitempty" yaml:"raw,omitempty"`
	Reason string  `json:"reason" yaml:"reason"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Rule, d.Reason)
}

// Count returns the number of findings of kind k.
func (r *Result) Count(k Kind) int {
	return r.Summary.ByKind[k.String()]
}

// ByKind returns the findings of kind k in result order.
func (r *Result) ByKind(k Kind) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.kind == k {
			out = append(out, f)
		}
	}
	return out
}

func summarize(findings []Finding) Summary {
	s := Summary{
		Total:      len(findings),
		ByKind:     make(map[string]int, kindCount),
		BySeverity: make(map[string]int, 4),
	}
	for _, k := range Kinds() {
		s.ByKind[k.String()] = 0
	}
	for _, sev := range Severities() {
		s.BySeverity[sev.String()] = 0
	}
	for _, f := range findings {
		s.ByKind[f.kind.String()]++
		s.BySeverity[f.severity.String()]++
	}
	return s
}

func computeStats(chains []ChainRules) Stats {
	var st Stats
	tables := make(map[string]bool)
	for _, c := range chains {
		tables[c.Key.Table] = true
		st.TotalChains++
		if !ruleset.IsBuiltinChain(c.Key.Chain) {
			st.CustomChains++
		}
		for _, r := range c.Rules {
			st.TotalRules++
			switch r.Action {
			case ruleset.ActionAccept:
				st.AcceptRules++
			case ruleset.ActionDrop:
				st.DropRules++
			case ruleset.ActionReject:
				st.RejectRules++
			}
		}
	}
	st.TotalTables = len(tables)
	return st
}

// Fingerprint is a digest of the rule list in input order. Results carry the
// fingerprint of the rules they were computed from so stale results can be
// detected.
func Fingerprint(rules []ruleset.Rule) string {
	h := sha256.New()
	for _, r := range rules {
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d\x00%s\x00%s\x00%s\n",
			r.Table, r.Chain, r.Position, r.Line, r.Action, r.TargetOptions, r.Space())
	}
	return hex.EncodeToString(h.Sum(nil))
}
