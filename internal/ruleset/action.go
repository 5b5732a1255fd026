package ruleset

import "strings"

// Action is a rule target (-j). Built-in targets are upper case; anything
// else is a jump to a user-defined chain.
type Action string

const (
	ActionAccept Action = "ACCEPT"
	ActionDrop   Action = "DROP"
	ActionReject Action = "REJECT"
	ActionLog    Action = "LOG"
	ActionReturn Action = "RETURN"
)

// Outcome is the verdict a terminal action gives a packet.
type Outcome int

const (
	OutcomeNone  Outcome = iota // evaluation continues
	OutcomeAllow                // ACCEPT
	OutcomeDeny                 // DROP, REJECT
)

// ParseAction normalizes a -j value. Built-in targets are matched case
// insensitively; chain names are kept verbatim.
func ParseAction(s string) Action {
	v := strings.TrimSpace(s)
	switch up := Action(strings.ToUpper(v)); up {
	case ActionAccept, ActionDrop, ActionReject, ActionLog, ActionReturn:
		return up
	}
	return Action(v)
}

// IsTerminal reports whether a stops evaluation of the chain.
func (a Action) IsTerminal() bool {
	return a.Outcome() != OutcomeNone
}

// IsJump reports whether a is a jump to a user-defined chain.
func (a Action) IsJump() bool {
	switch a {
	case ActionAccept, ActionDrop, ActionReject, ActionLog, ActionReturn, "":
		return false
	}
	return true
}

// Outcome returns the verdict of a.
func (a Action) Outcome() Outcome {
	switch a {
	case ActionAccept:
		return OutcomeAllow
	case ActionDrop, ActionReject:
		return OutcomeDeny
	}
	return OutcomeNone
}

// SameEffect reports whether a and b treat a matching packet the same way:
// same verdict for terminal actions, same target otherwise.
func (a Action) SameEffect(b Action) bool {
	if a.IsTerminal() || b.IsTerminal() {
		return a.Outcome() == b.Outcome()
	}
	return a == b
}

func (a Action) String() string {
	return string(a)
}
