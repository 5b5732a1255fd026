package analyzer

import (
	"cmp"
	"slices"

	"grimm.is/ruleaudit/internal/ruleset"
)

// detector holds the per-run policy the detection rules consult.
type detector struct {
	sensitive []uint16
}

// detectChain runs every detection rule over one chain. rules must be valid
// and sorted by position.
func (d detector) detectChain(key ruleset.ChainKey, rules []ruleset.Rule) []Finding {
	spaces := make([]ruleset.MatchSpace, len(rules))
	for i, r := range rules {
		spaces[i] = r.Space()
	}

	var (
		findings    []Finding
		inefficient int
		specific    []ruleset.Rule
	)

	for j, b := range rules {
		logged := false
		narrower := false

		for i := 0; i < j; i++ {
			a := rules[i]
			shadowed := false

			switch classifySpaces(spaces[i], spaces[j]) {
			case EarlierContainsLater:
				if a.Action == ruleset.ActionLog {
					logged = true
				}
				if a.Action.IsTerminal() {
					shadowed = true
					if a.Action.SameEffect(b.Action) {
						findings = append(findings, newRedundant(a, b))
					} else {
						findings = append(findings, newUnreachable(a, b))
					}
				}
			case OverlapAmbiguous:
				if a.Action.IsTerminal() && b.Action.IsTerminal() && a.Action.Outcome() != b.Action.Outcome() {
					findings = append(findings, newConflicting(a, b, spaces[i].Overlap(spaces[j])))
				}
			case LaterContainsEarlier, Disjoint:
				// A terminal A inside B is the exception-first pattern; a
				// non-terminal A never stops evaluation. Neither is observable.
			}

			if !shadowed && spaces[i].NarrowsAddressPorts(spaces[j]) &&
				(!a.Action.IsTerminal() || a.Action.SameEffect(b.Action)) {
				inefficient++
				narrower = true
			}
		}

		if narrower {
			specific = append(specific, b)
		}
		findings = append(findings, d.perRule(b, spaces[j], logged, j == len(rules)-1)...)
	}

	if inefficient > 0 {
		findings = append(findings, newInefficientOrder(key, inefficient, specific))
	}
	return findings
}

// perRule applies the single-rule heuristics. logged reports whether an
// earlier LOG rule covers r; last whether r ends its chain.
func (d detector) perRule(r ruleset.Rule, space ruleset.MatchSpace, logged, last bool) []Finding {
	var out []Finding

	if exposed := d.exposedPorts(r); len(exposed) > 0 {
		out = append(out, newSecurityRisk(r, exposed))
	}
	if r.Action.Outcome() == ruleset.OutcomeDeny && !logged {
		out = append(out, newMissingLog(r))
	}
	if r.Action == ruleset.ActionAccept && space.IsUniversal() && !last {
		out = append(out, newOverlyPermissive(r))
	}
	return out
}

// exposedPorts returns the sensitive ports r accepts from any source. Rules
// limited to tracked connections (no NEW state) expose nothing.
func (d detector) exposedPorts(r ruleset.Rule) []uint16 {
	if r.Action != ruleset.ActionAccept || !r.Source.IsAny() {
		return nil
	}
	if r.Protocol.IsAny() || !ruleset.ProtoTCPUDP.Contains(r.Protocol) {
		return nil
	}
	if states := r.Aux.States(); states != nil && !slices.Contains(states, "NEW") {
		return nil
	}

	var exposed []uint16
	for _, p := range d.sensitive {
		if r.DestPorts.Includes(p) {
			exposed = append(exposed, p)
		}
	}
	return exposed
}

// sortFindings orders findings by severity (most severe first), kind, first
// position, table, chain and second position.
func sortFindings(findings []Finding) {
	slices.SortStableFunc(findings, func(x, y Finding) int {
		if c := cmp.Compare(y.severity, x.severity); c != 0 {
			return c
		}
		if c := cmp.Compare(x.kind, y.kind); c != 0 {
			return c
		}
		x1, x2 := x.positions()
		y1, y2 := y.positions()
		if c := cmp.Compare(x1, y1); c != 0 {
			return c
		}
		if c := cmp.Compare(x.key.Table, y.key.Table); c != 0 {
			return c
		}
		if c := cmp.Compare(x.key.Chain, y.key.Chain); c != 0 {
			return c
		}
		return cmp.Compare(x2, y2)
	})
}
