package analyzer

import (
	"errors"
	"fmt"
)

// MaxScore is the score of a rule set with no relevant findings.
const MaxScore = 100

// Weights is the score penalty per finding, by severity.
type Weights struct {
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
	Low      int `json:"low" yaml:"low"`
}

// DefaultWeights returns 20/10/5/2.
func DefaultWeights() Weights {
	return Weights{Critical: 20, High: 10, Medium: 5, Low: 2}
}

// ErrInvalidWeights is returned by Weights.Validate.
var ErrInvalidWeights = errors.New("invalid score weights")

// Validate requires Critical > High > Medium > Low >= 0.
func (w Weights) Validate() error {
	if !(w.Critical > w.High && w.High > w.Medium && w.Medium > w.Low && w.Low >= 0) {
		return fmt.Errorf("%w: need critical > high > medium > low >= 0, got %d/%d/%d/%d",
			ErrInvalidWeights, w.Critical, w.High, w.Medium, w.Low)
	}
	return nil
}

// Of returns the penalty for one finding of severity s.
func (w Weights) Of(s Severity) int {
	switch s {
	case SeverityCritical:
		return w.Critical
	case SeverityHigh:
		return w.High
	case SeverityMedium:
		return w.Medium
	case SeverityLow:
		return w.Low
	}
	return 0
}

// Score computes the security and efficiency scores, each clamped to
// [0, MaxScore]. A finding may count against both.
func Score(findings []Finding, w Weights) (security, efficiency int) {
	var secPenalty, effPenalty int
	for _, f := range findings {
		p := w.Of(f.severity)
		if f.kind.SecurityRelevant() {
			secPenalty += p
		}
		if f.kind.PerformanceRelevant() {
			effPenalty += p
		}
	}
	return clampScore(MaxScore - secPenalty), clampScore(MaxScore - effPenalty)
}

func clampScore(v int) int {
	return max(0, min(MaxScore, v))
}
