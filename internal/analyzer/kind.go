package analyzer

import (
	"fmt"
	"strings"
)

// Kind is the class of defect a Finding reports. The declaration order is
// the tie-break order for findings of equal severity.
type Kind int

const (
	KindRedundant Kind = iota
	KindConflicting
	KindUnreachable
	KindInefficientOrder
	KindSecurityRisk
	KindMissingLog
	KindOverlyPermissive

	kindCount
)

var kindNames = [kindCount]string{
	KindRedundant:        "redundant",
	KindConflicting:      "conflicting",
	KindUnreachable:      "unreachable",
	KindInefficientOrder: "inefficient_order",
	KindSecurityRisk:     "security_risk",
	KindMissingLog:       "missing_log",
	KindOverlyPermissive: "overly_permissive",
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, kindCount)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Title returns a display name such as "Inefficient Order".
func (k Kind) Title() string {
	words := strings.Split(k.String(), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown finding kind %q", s)
}

// SecurityRelevant reports whether findings of k lower the security score.
func (k Kind) SecurityRelevant() bool {
	switch k {
	case KindConflicting, KindSecurityRisk, KindMissingLog, KindOverlyPermissive, KindUnreachable:
		return true
	}
	return false
}

// PerformanceRelevant reports whether findings of k lower the efficiency score.
func (k Kind) PerformanceRelevant() bool {
	switch k {
	case KindRedundant, KindUnreachable, KindInefficientOrder, KindConflicting:
		return true
	}
	return false
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Severity orders findings by urgency. Higher is more severe.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities returns every severity from most to least severe.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	for _, v := range Severities() {
		if v.String() == strings.ToLower(s) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
