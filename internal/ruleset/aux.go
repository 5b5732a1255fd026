package ruleset

import (
	"maps"
	"slices"
	"strings"
)

// KeyConnState is the auxiliary key for conntrack state matches
// (-m state --state / -m conntrack --ctstate). It is the only auxiliary key
// the algebra understands; every other key is opaque.
const KeyConnState = "ctstate"

// Keys for dimension values the algebra cannot represent, such as negations
// or unparsable operands. A "!" prefix marks a negated match. Any other key
// names the match module owning the value, which holds the module's options
// as written ("--limit 5/min"). Keys starting with "-" hold an option with
// no known module, verbatim.
const (
	KeySource       = "src"
	KeyDestination  = "dst"
	KeyInInterface  = "in"
	KeyOutInterface = "out"
	KeyProtocol     = "proto"
	KeySourcePort   = "sport"
	KeyDestPort     = "dport"
	KeyFragment     = "fragment"
)

// Negated returns the auxiliary key for a negated match on key.
func Negated(key string) string {
	return "!" + key
}

// connStates is the universe of conntrack states.
var connStates = []string{"ESTABLISHED", "INVALID", "NEW", "RELATED", "UNTRACKED"}

// unknownAuxOverlap is the overlap estimate for rules whose opaque keys differ.
const unknownAuxOverlap = 0.5

// AuxMatch is one auxiliary match condition.
type AuxMatch struct {
	Key   string
	Value string
}

// Aux is an immutable set of auxiliary match conditions, one value per key.
// The zero value has no conditions.
type Aux struct {
	matches []AuxMatch
}

// NewAux builds an Aux from key/value pairs. Conntrack state lists are
// normalized to sorted upper-case.
func NewAux(kv map[string]string) Aux {
	if len(kv) == 0 {
		return Aux{}
	}
	keys := slices.Sorted(maps.Keys(kv))
	matches := make([]AuxMatch, 0, len(keys))
	for _, k := range keys {
		v := kv[k]
		if k == KeyConnState {
			v = strings.Join(parseStates(v), ",")
		}
		matches = append(matches, AuxMatch{Key: k, Value: v})
	}
	return Aux{matches: matches}
}

func parseStates(v string) []string {
	var states []string
	for _, s := range strings.Split(v, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !slices.Contains(states, s) {
			states = append(states, s)
		}
	}
	slices.Sort(states)
	return states
}

// IsEmpty reports whether there are no conditions.
func (a Aux) IsEmpty() bool {
	return len(a.matches) == 0
}

// Matches returns a copy of the conditions sorted by key.
func (a Aux) Matches() []AuxMatch {
	return slices.Clone(a.matches)
}

// Get returns the value for key.
func (a Aux) Get(key string) (string, bool) {
	for _, m := range a.matches {
		if m.Key == key {
			return m.Value, true
		}
	}
	return "", false
}

// States returns the conntrack states matched, or nil for all states.
func (a Aux) States() []string {
	v, ok := a.Get(KeyConnState)
	if !ok {
		return nil
	}
	return parseStates(v)
}

func (a Aux) opaque() []AuxMatch {
	var out []AuxMatch
	for _, m := range a.matches {
		if m.Key != KeyConnState {
			out = append(out, m)
		}
	}
	return out
}

func (a Aux) stateSet() []string {
	if s := a.States(); s != nil {
		return s
	}
	return connStates
}

// Contains reports whether a provably matches everything o matches. Opaque
// keys are never compared semantically: any difference in them defeats
// containment in both directions.
func (a Aux) Contains(o Aux) bool {
	if !slices.Equal(a.opaque(), o.opaque()) {
		return false
	}
	if a.States() == nil {
		return true
	}
	if o.States() == nil {
		return false
	}
	for _, s := range o.States() {
		if !slices.Contains(a.States(), s) {
			return false
		}
	}
	return true
}

// Intersects reports whether a and o may match a common packet. Opaque keys
// are assumed to intersect.
func (a Aux) Intersects(o Aux) bool {
	if a.States() == nil || o.States() == nil {
		return true
	}
	for _, s := range o.States() {
		if slices.Contains(a.States(), s) {
			return true
		}
	}
	return false
}

// overlap estimates |a ∩ o| / |o|.
func (a Aux) overlap(o Aux) float64 {
	theirs := o.stateSet()
	shared := 0
	for _, s := range theirs {
		if slices.Contains(a.stateSet(), s) {
			shared++
		}
	}
	ratio := float64(shared) / float64(len(theirs))
	if !slices.Equal(a.opaque(), o.opaque()) {
		ratio *= unknownAuxOverlap
	}
	return ratio
}

func (a Aux) String() string {
	if a.IsEmpty() {
		return "none"
	}
	parts := make([]string, len(a.matches))
	for i, m := range a.matches {
		parts[i] = m.Key + "=" + m.Value
	}
	return strings.Join(parts, " ")
}
