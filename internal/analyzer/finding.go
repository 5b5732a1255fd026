package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"grimm.is/ruleaudit/internal/ruleset"
)

// RuleRef locates a rule in its input list.
type RuleRef struct {
	Table    string `json:"table" yaml:"table"`
	Chain    string `json:"chain" yaml:"chain"`
	Position int    `json:"position" yaml:"position"`
	Line     int    `json:"line,omitempty" yaml:"line,omitempty"`
}

// RefOf returns the location of r.
func RefOf(r ruleset.Rule) RuleRef {
	return RuleRef{Table: r.Table, Chain: r.Chain, Position: r.Position, Line: r.Line}
}

func (r RuleRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Table, r.Chain, r.Position)
}

// Subject is the set of rules a Finding is about. It is one of Single, Pair
// or Aggregate.
type Subject interface {
	// Rules returns the involved rules in position order.
	Rules() []ruleset.Rule
	isSubject()
}

// Single is the subject of per-rule findings.
type Single struct {
	Rule ruleset.Rule
}

// Pair is the subject of pairwise findings; Earlier precedes Later.
type Pair struct {
	Earlier ruleset.Rule
	Later   ruleset.Rule
}

// Aggregate is the subject of chain-level findings. Count is the number of
// offending pairs; Members are the distinct rules to act on.
type Aggregate struct {
	Count   int
	Members []ruleset.Rule
}

func (s Single) Rules() []ruleset.Rule { return []ruleset.Rule{s.Rule} }
func (s Pair) Rules() []ruleset.Rule { return []ruleset.Rule{s.Earlier, s.Later} }
func (s Aggregate) Rules() []ruleset.Rule { return append([]ruleset.Rule(nil), s.Members...) }

func (Single) isSubject() {}
func (Pair) isSubject() {}
func (Aggregate) isSubject() {}

// Finding is one detected defect. Findings are built only by the detector
// and are immutable.
type Finding struct {
	kind        Kind
	severity    Severity
	key         ruleset.ChainKey
	subject     Subject
	description string
	remediation string
	confidence  float64
}

func (f Finding) Kind() Kind { return f.kind }
func (f Finding) Severity() Severity { return f.severity }
func (f Finding) Table() string { return f.key.Table }
func (f Finding) Chain() string { return f.key.Chain }
func (f Finding) Subject() Subject { return f.subject }
func (f Finding) Description() string { return f.description }
func (f Finding) Remediation() string { return f.remediation }
func (f Finding) Confidence() float64 { return f.confidence }
func (f Finding) Key() ruleset.ChainKey { return f.key }
func (f Finding) Rules() []ruleset.Rule { return f.subject.Rules() }

// Refs returns the locations of the involved rules.
func (f Finding) Refs() []RuleRef {
	rules := f.subject.Rules()
	refs := make([]RuleRef, len(rules))
	for i, r := range rules {
		refs[i] = RefOf(r)
	}
	return refs
}

// Count is the number of occurrences the finding stands for: the pair count
// for aggregates, 1 otherwise.
func (f Finding) Count() int {
	if a, ok := f.subject.(Aggregate); ok {
		return a.Count
	}
	return 1
}

// Target returns the rule a remediation acts on: the later rule of a pair,
// the rule of a single finding, nothing for aggregates.
func (f Finding) Target() (ruleset.Rule, bool) {
	switch s := f.subject.(type) {
	case Single:
		return s.Rule, true
	case Pair:
		return s.Later, true
	}
	return ruleset.Rule{}, false
}

// positions returns the sort keys: first and second involved position.
func (f Finding) positions() (int, int) {
	switch s := f.subject.(type) {
	case Single:
		return s.Rule.Position, 0
	case Pair:
		return s.Earlier.Position, s.Later.Position
	case Aggregate:
		if len(s.Members) > 0 {
			return s.Members[0].Position, 0
		}
	}
	return 0, 0
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", f.severity, f.kind, f.key, f.description)
}

type findingView struct {
	Kind        Kind      `json:"kind" yaml:"kind"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	Table       string    `json:"table" yaml:"table"`
	Chain       string    `json:"chain" yaml:"chain"`
	Rules       []RuleRef `json:"rules" yaml:"rules"`
	Count       int       `json:"count" yaml:"count"`
	Description string    `json:"description" yaml:"description"`
	Remediation string    `json:"remediation" yaml:"remediation"`
	Confidence  float64   `json:"confidence" yaml:"confidence"`
}

func (f Finding) view() findingView {
	return findingView{
		Kind:        f.kind,
		Severity:    f.severity,
		Table:       f.key.Table,
		Chain:       f.key.Chain,
		Rules:       f.Refs(),
		Count:       f.Count(),
		Description: f.description,
		Remediation: f.remediation,
		Confidence:  f.confidence,
	}
}

// MarshalJSON renders the finding with its rule references.
func (f Finding) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.view())
}

// MarshalYAML implements yaml.Marshaler.
func (f Finding) MarshalYAML() (any, error) {
	v := f.view()
	return struct {
		Kind        string    `yaml:"kind"`
		Severity    string    `yaml:"severity"`
		Table       string    `yaml:"table"`
		Chain       string    `yaml:"chain"`
		Rules       []RuleRef `yaml:"rules"`
		Count       int       `yaml:"count"`
		Description string    `yaml:"description"`
		Remediation string    `yaml:"remediation"`
		Confidence  float64   `yaml:"confidence"`
	}{v.Kind.String(), v.Severity.String(), v.Table, v.Chain, v.Rules, v.Count, v.Description, v.Remediation, v.Confidence}, nil
}

// Confidence values for findings whose evidence does not vary with the pair.
const (
	confidenceExactDuplicate = 0.95
	confidenceSameOutcome    = 0.7
	confidenceProven         = 1.0
	confidenceSecurityRisk   = 0.9
	confidenceMissingLog     = 0.6
	confidenceInefficient    = 0.5

	conflictBase  = 0.3
	conflictScale = 0.7
)

func roundConfidence(c float64) float64 {
	return math.Round(math.Max(0, math.Min(1, c))*1000) / 1000
}

func describe(r ruleset.Rule) string {
	loc := fmt.Sprintf("rule %d", r.Position)
	if r.Line > 0 {
		loc += fmt.Sprintf(" (line %d)", r.Line)
	}
	return loc
}

func newRedundant(a, b ruleset.Rule) Finding {
	conf := confidenceSameOutcome
	if a.Action == b.Action && a.TargetOptions == b.TargetOptions {
		conf = confidenceExactDuplicate
	}
	return Finding{
		kind:        KindRedundant,
		severity:    SeverityMedium,
		key:         b.Key(),
		subject:     Pair{Earlier: a, Later: b},
		description: fmt.Sprintf("%s is redundant: %s already matches all of its traffic with the same outcome (%s)", describe(b), describe(a), a.Action),
		remediation: fmt.Sprintf("Remove %s", describe(b)),
		confidence:  conf,
	}
}

func newUnreachable(a, b ruleset.Rule) Finding {
	return Finding{
		kind:        KindUnreachable,
		severity:    SeverityHigh,
		key:         b.Key(),
		subject:     Pair{Earlier: a, Later: b},
		description: fmt.Sprintf("%s (%s) can never match: %s (%s) matches all of its traffic first", describe(b), b.Action, describe(a), a.Action),
		remediation: fmt.Sprintf("Remove %s, or move it above %s if its action is intended", describe(b), describe(a)),
		confidence:  confidenceProven,
	}
}

func newConflicting(a, b ruleset.Rule, overlap float64) Finding {
	return Finding{
		kind:        KindConflicting,
		severity:    SeverityHigh,
		key:         b.Key(),
		subject:     Pair{Earlier: a, Later: b},
		description: fmt.Sprintf("%s (%s) and %s (%s) partially overlap with opposite outcomes; about %.0f%% of the later rule's traffic is decided by order alone", describe(a), a.Action, describe(b), b.Action, overlap*100),
		remediation: "Split the overlapping traffic into an explicit rule, or narrow one rule so the two no longer intersect",
		confidence:  roundConfidence(conflictBase + conflictScale*overlap),
	}
}

func newInefficientOrder(key ruleset.ChainKey, count int, members []ruleset.Rule) Finding {
	positions := make([]string, len(members))
	for i, m := range members {
		positions[i] = fmt.Sprint(m.Position)
	}
	return Finding{
		kind:        KindInefficientOrder,
		severity:    SeverityLow,
		key:         key,
		subject:     Aggregate{Count: count, Members: members},
		description: fmt.Sprintf("%d rule pair(s) place a more specific rule after a broader one; specific rules at positions %s", count, strings.Join(positions, ", ")),
		remediation: "Move the more specific rules ahead of the broader rules they follow",
		confidence:  confidenceInefficient,
	}
}

func newSecurityRisk(r ruleset.Rule, exposed []uint16) Finding {
	ports := make([]string, len(exposed))
	for i, p := range exposed {
		ports[i] = fmt.Sprint(p)
	}
	return Finding{
		kind:        KindSecurityRisk,
		severity:    SeverityCritical,
		key:         r.Key(),
		subject:     Single{Rule: r},
		description: fmt.Sprintf("%s accepts %s to administrative port(s) %s from any source", describe(r), r.Protocol, strings.Join(ports, ", ")),
		remediation: "Restrict the source address to trusted networks, or limit the rule to established connections",
		confidence:  confidenceSecurityRisk,
	}
}

func newMissingLog(r ruleset.Rule) Finding {
	return Finding{
		kind:        KindMissingLog,
		severity:    SeverityLow,
		key:         r.Key(),
		subject:     Single{Rule: r},
		description: fmt.Sprintf("%s (%s) discards traffic without an earlier LOG rule covering it", describe(r), r.Action),
		remediation: fmt.Sprintf("Insert a LOG rule with the same match immediately before %s", describe(r)),
		confidence:  confidenceMissingLog,
	}
}

func newOverlyPermissive(r ruleset.Rule) Finding {
	return Finding{
		kind:        KindOverlyPermissive,
		severity:    SeverityMedium,
		key:         r.Key(),
		subject:     Single{Rule: r},
		description: fmt.Sprintf("%s accepts all traffic without restriction and is not the last rule of the chain", describe(r)),
		remediation: "Add match conditions to this rule, or move it to the end of the chain as an explicit default",
		confidence:  confidenceProven,
	}
}
