package recommend

import (
	"cmp"
	"slices"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/ruleset"
)

// Apply returns a copy of rules without the plan's removals. Surviving rules
// keep their input order and are renumbered 1..n within each chain in
// position order. rules is not modified.
func Apply(rules []ruleset.Rule, plan *Plan) []ruleset.Rule {
	drop := make(map[analyzer.RuleRef]bool)
	if plan != nil {
		for _, r := range plan.Removals {
			drop[r] = true
		}
	}

	out := make([]ruleset.Rule, 0, len(rules))
	for _, r := range rules {
		if !drop[analyzer.RefOf(r)] {
			out = append(out, r)
		}
	}
	renumber(out)
	return out
}

// renumber assigns dense positions per chain, preserving relative order.
func renumber(rules []ruleset.Rule) {
	byChain := make(map[ruleset.ChainKey][]int)
	for i, r := range rules {
		byChain[r.Key()] = append(byChain[r.Key()], i)
	}
	for _, idx := range byChain {
		positions := make([]int, len(idx))
		for i, j := range idx {
			positions[i] = rules[j].Position
		}
		order := rankOf(positions)
		for i, j := range idx {
			rules[j].Position = order[i]
		}
	}
}

// rankOf maps each value to its 1-based rank. Equal values keep input order.
func rankOf(vals []int) []int {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(vals[a], vals[b]) })
	rank := make([]int, len(vals))
	for r, i := range idx {
		rank[i] = r + 1
	}
	return rank
}
