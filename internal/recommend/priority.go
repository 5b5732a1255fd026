package recommend

import (
	"fmt"
	"strings"

	"grimm.is/ruleaudit/internal/analyzer"
)

// Priority orders recommendations. Higher is more urgent.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority is the inverse of Priority.String.
func ParsePriority(s string) (Priority, error) {
	for p, n := range priorityNames {
		if n == strings.ToLower(s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// PriorityOf maps a finding kind to the priority of its recommendation.
func PriorityOf(k analyzer.Kind) Priority {
	switch k {
	case analyzer.KindSecurityRisk, analyzer.KindConflicting:
		return PriorityCritical
	case analyzer.KindUnreachable:
		return PriorityHigh
	case analyzer.KindRedundant, analyzer.KindInefficientOrder:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// impactFactor scales a kind's share of the rule set into an estimated
// improvement percentage.
func impactFactor(k analyzer.Kind) float64 {
	switch k {
	case analyzer.KindSecurityRisk:
		return 2.0
	case analyzer.KindConflicting, analyzer.KindOverlyPermissive:
		return 1.5
	case analyzer.KindUnreachable, analyzer.KindRedundant:
		return 1.0
	case analyzer.KindInefficientOrder:
		return 0.5
	default:
		return 0.3
	}
}

var titles = map[analyzer.Kind]string{
	analyzer.KindRedundant:        "Remove redundant rules",
	analyzer.KindConflicting:      "Resolve conflicting rules",
	analyzer.KindUnreachable:      "Remove unreachable rules",
	analyzer.KindInefficientOrder: "Reorder rules for earlier matches",
	analyzer.KindSecurityRisk:     "Restrict access to administrative services",
	analyzer.KindMissingLog:       "Log discarded traffic",
	analyzer.KindOverlyPermissive: "Replace catch-all accept rules",
}
