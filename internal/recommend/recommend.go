// Package recommend turns an analysis result into a prioritized plan of
// remediations, with estimated savings and rule consolidation advice.
package recommend

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/ruleset"
)

// Recommendation groups the findings of one kind.
type Recommendation struct {
	Kind            analyzer.Kind      `json:"kind" yaml:"kind"`
	Priority        Priority           `json:"priority" yaml:"priority"`
	Title           string             `json:"title" yaml:"title"`
	Description     string             `json:"description" yaml:"description"`
	Count           int                `json:"count" yaml:"count"`
	Rules           []analyzer.RuleRef `json:"rules" yaml:"rules"`
	EstimatedImpact float64            `json:"estimated_impact" yaml:"estimated_impact"`
	Steps           []string           `json:"steps" yaml:"steps"`
}

// Savings estimates the effect of applying the whole plan.
type Savings struct {
	// RulesReduced is the number of rules Apply removes.
	RulesReduced int `json:"rules_reduced" yaml:"rules_reduced"`
	// PerformancePercent is RulesReduced as a share of the analyzed rules.
	PerformancePercent float64 `json:"performance_percent" yaml:"performance_percent"`
	// SecurityGain and EfficiencyGain are the score points recovered when
	// every recommendation is resolved.
	SecurityGain   int `json:"security_gain" yaml:"security_gain"`
	EfficiencyGain int `json:"efficiency_gain" yaml:"efficiency_gain"`
}

// PolicyAdvice suggests a default-deny policy for a built-in chain.
type PolicyAdvice struct {
	Table   string         `json:"table" yaml:"table"`
	Chain   string         `json:"chain" yaml:"chain"`
	Current ruleset.Action `json:"current" yaml:"current"`
	Suggest ruleset.Action `json:"suggest" yaml:"suggest"`
	Reason  string         `json:"reason" yaml:"reason"`
}

// Plan is the ordered recommendation set for one analysis run.
type Plan struct {
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
	// Removals are the rules Apply drops: every rule reported Redundant or
	// Unreachable, in table/chain/position order.
	Removals       []analyzer.RuleRef `json:"removals" yaml:"removals"`
	Consolidations []Consolidation    `json:"consolidations" yaml:"consolidations"`
	Policies       []PolicyAdvice     `json:"policies,omitempty" yaml:"policies,omitempty"`
	Savings        Savings            `json:"savings" yaml:"savings"`
}

// Options configures a Recommender.
type Options struct {
	// Policies are the default policies of built-in chains as declared by
	// the rule source. Chains absent from the map get no policy advice.
	Policies map[ruleset.ChainKey]ruleset.Action
	// MaxMultiport bounds the ports of one consolidated rule. Zero means the
	// iptables multiport limit.
	MaxMultiport int
}

// MultiportLimit is the iptables multiport limit; a range counts twice.
const MultiportLimit = 15

// Recommender builds plans. It is stateless apart from its options.
type Recommender struct {
	opts Options
}

// New returns a Recommender for opts.
func New(opts Options) *Recommender {
	if opts.MaxMultiport <= 0 || opts.MaxMultiport > MultiportLimit {
		opts.MaxMultiport = MultiportLimit
	}
	return &Recommender{opts: opts}
}

// Recommend builds a plan with default options.
func Recommend(rules []ruleset.Rule, res *analyzer.Result) (*Plan, error) {
	return New(Options{}).Recommend(rules, res)
}

// Recommend builds the plan for res, which must have been computed from
// rules. Any mismatch yields an *InconsistentInputError and no plan.
func (rc *Recommender) Recommend(rules []ruleset.Rule, res *analyzer.Result) (*Plan, error) {
	if err := checkConsistent(rules, res); err != nil {
		return nil, err
	}

	total := res.Stats.TotalRules
	byKind := make(map[analyzer.Kind][]analyzer.Finding)
	for _, f := range res.Findings {
		byKind[f.Kind()] = append(byKind[f.Kind()], f)
	}

	plan := &Plan{
		Recommendations: []Recommendation{},
		Consolidations:  []Consolidation{},
	}
	for _, k := range analyzer.Kinds() {
		if fs := byKind[k]; len(fs) > 0 {
			plan.Recommendations = append(plan.Recommendations, build(k, fs, total))
		}
	}
	slices.SortStableFunc(plan.Recommendations, func(a, b Recommendation) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		if c := cmp.Compare(b.EstimatedImpact, a.EstimatedImpact); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind.String(), b.Kind.String())
	})

	plan.Removals = removals(res.Findings)
	chains := analyzer.Chains(rules)
	plan.Consolidations = rc.consolidate(chains, plan.Removals)
	plan.Policies = rc.policies(chains)

	plan.Savings = Savings{
		RulesReduced:   len(plan.Removals),
		SecurityGain:   analyzer.MaxScore - res.SecurityScore,
		EfficiencyGain: analyzer.MaxScore - res.EfficiencyScore,
	}
	if total > 0 {
		plan.Savings.PerformancePercent = round1(float64(len(plan.Removals)) / float64(total) * 100)
	}
	return plan, nil
}

func build(k analyzer.Kind, fs []analyzer.Finding, total int) Recommendation {
	count := 0
	var refs []analyzer.RuleRef
	var steps []string
	for _, f := range fs {
		count += f.Count()
		refs = append(refs, f.Refs()...)
		step := fmt.Sprintf("%s: %s", f.Key(), f.Remediation())
		if !slices.Contains(steps, step) {
			steps = append(steps, step)
		}
	}
	refs = sortRefs(refs)

	impact := 0.0
	if total > 0 {
		impact = round1(math.Min(100, impactFactor(k)*float64(count)/float64(total)*100))
	}

	return Recommendation{
		Kind:            k,
		Priority:        PriorityOf(k),
		Title:           titles[k],
		Description:     fmt.Sprintf("%d %s finding(s) affecting %d rule(s)", count, k.Title(), len(refs)),
		Count:           count,
		Rules:           refs,
		EstimatedImpact: impact,
		Steps:           steps,
	}
}

// removals collects the targets of Redundant and Unreachable findings.
// Removing all of them never changes what the chain does to a packet: the
// earliest terminal rule containing a removed rule is itself never removed.
func removals(findings []analyzer.Finding) []analyzer.RuleRef {
	refs := []analyzer.RuleRef{}
	for _, f := range findings {
		if f.Kind() != analyzer.KindRedundant && f.Kind() != analyzer.KindUnreachable {
			continue
		}
		if r, ok := f.Target(); ok {
			refs = append(refs, analyzer.RefOf(r))
		}
	}
	return sortRefs(refs)
}

func (rc *Recommender) policies(chains []analyzer.ChainRules) []PolicyAdvice {
	if len(rc.opts.Policies) == 0 {
		return nil
	}
	// A universal deny anywhere in the chain keeps unmatched traffic from
	// ever reaching the policy.
	catchAll := make(map[ruleset.ChainKey]bool)
	for _, c := range chains {
		for _, r := range c.Rules {
			if r.Space().IsUniversal() && r.Action.Outcome() == ruleset.OutcomeDeny {
				catchAll[c.Key] = true
				break
			}
		}
	}

	var out []PolicyAdvice
	for _, name := range []string{"INPUT", "FORWARD"} {
		key := ruleset.ChainKey{Table: "filter", Chain: name}
		policy, ok := rc.opts.Policies[key]
		if !ok || policy.Outcome() == ruleset.OutcomeDeny {
			continue
		}
		if catchAll[key] {
			continue
		}
		out = append(out, PolicyAdvice{
			Table:   key.Table,
			Chain:   key.Chain,
			Current: policy,
			Suggest: ruleset.ActionDrop,
			Reason:  fmt.Sprintf("%s accepts unmatched traffic by default and has no catch-all deny rule", key),
		})
	}
	return out
}

// checkConsistent verifies res was computed from rules.
func checkConsistent(rules []ruleset.Rule, res *analyzer.Result) error {
	if res == nil {
		return inconsistent("nil analysis result")
	}
	if res.RuleCount != len(rules) {
		return inconsistent("result covers %d rules, got %d", res.RuleCount, len(rules))
	}
	if fp := analyzer.Fingerprint(rules); res.Fingerprint != fp {
		return inconsistent("result fingerprint %.12s does not match rules %.12s", res.Fingerprint, fp)
	}

	known := make(map[analyzer.RuleRef]bool, len(rules))
	for _, r := range rules {
		known[analyzer.RefOf(r)] = true
	}
	for _, f := range res.Findings {
		for _, ref := range f.Refs() {
			if !known[ref] {
				return inconsistent("finding %s references unknown rule %s", f.Kind(), ref)
			}
		}
	}
	for _, d := range res.Diagnostics {
		if !known[d.Rule] {
			return inconsistent("diagnostic references unknown rule %s", d.Rule)
		}
	}
	return nil
}

func sortRefs(refs []analyzer.RuleRef) []analyzer.RuleRef {
	slices.SortFunc(refs, compareRefs)
	return slices.Compact(refs)
}

func compareRefs(a, b analyzer.RuleRef) int {
	if c := cmp.Compare(a.Table, b.Table); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chain, b.Chain); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	return cmp.Compare(a.Line, b.Line)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
