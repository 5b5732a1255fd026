package recommend

import (
	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/ruleset"
)

// Consolidation is advice to merge adjacent rules that differ only in their
// destination ports into one multiport rule. It is not a finding: the rules
// are correct, just longer than needed.
type Consolidation struct {
	Table     string             `json:"table" yaml:"table"`
	Chain     string             `json:"chain" yaml:"chain"`
	Rules     []analyzer.RuleRef `json:"rules" yaml:"rules"`
	DestPorts string             `json:"dest_ports" yaml:"dest_ports"`
	// Rule is the merged rule in iptables-save syntax.
	Rule string `json:"rule" yaml:"rule"`
}

// consolidate scans each chain for runs of mergeable rules. Rules that are
// about to be removed do not break a run.
func (rc *Recommender) consolidate(chains []analyzer.ChainRules, removed []analyzer.RuleRef) []Consolidation {
	drop := make(map[analyzer.RuleRef]bool, len(removed))
	for _, r := range removed {
		drop[r] = true
	}

	out := []Consolidation{}
	for _, c := range chains {
		var run []ruleset.Rule
		var ports ruleset.PortSet
		flush := func() {
			if len(run) > 1 {
				out = append(out, merged(run, ports))
			}
			run, ports = nil, ruleset.PortSet{}
		}

		for _, r := range c.Rules {
			if drop[analyzer.RefOf(r)] {
				continue
			}
			if !consolidatable(r) {
				flush()
				continue
			}
			if len(run) > 0 && mergeable(run[0], r) {
				next := union(ports, r.DestPorts)
				if multiportWeight(next) <= rc.opts.MaxMultiport {
					run = append(run, r)
					ports = next
					continue
				}
			}
			flush()
			if multiportWeight(r.DestPorts) <= rc.opts.MaxMultiport {
				run, ports = []ruleset.Rule{r}, r.DestPorts
			}
		}
		flush()
	}
	return out
}

func consolidatable(r ruleset.Rule) bool {
	return r.Action.IsTerminal() &&
		r.Protocol.Count() == 1 && r.Protocol.HasPorts() &&
		!r.DestPorts.IsAny()
}

// mergeable reports whether a and b match the same traffic apart from the
// destination port and do the same thing with it.
func mergeable(a, b ruleset.Rule) bool {
	if a.Action != b.Action || a.TargetOptions != b.TargetOptions {
		return false
	}
	sa, sb := a.Space(), b.Space()
	sa.DestPorts, sb.DestPorts = ruleset.PortSet{}, ruleset.PortSet{}
	return sa.Equal(sb)
}

func union(a, b ruleset.PortSet) ruleset.PortSet {
	return ruleset.Ports(append(a.Ranges(), b.Ranges()...)...)
}

// multiportWeight counts ports the way the multiport match does: a range
// takes two slots.
func multiportWeight(p ruleset.PortSet) int {
	n := 0
	for _, r := range p.Ranges() {
		if r.Lo == r.Hi {
			n++
		} else {
			n += 2
		}
	}
	return n
}

func merged(run []ruleset.Rule, ports ruleset.PortSet) Consolidation {
	m := run[0]
	m.DestPorts = ports
	m.Raw, m.Line, m.Comment = "", 0, ""

	refs := make([]analyzer.RuleRef, len(run))
	for i, r := range run {
		refs[i] = analyzer.RefOf(r)
	}
	return Consolidation{
		Table:     m.Table,
		Chain:     m.Chain,
		Rules:     refs,
		DestPorts: ports.String(),
		Rule:      m.Format(),
	}
}
