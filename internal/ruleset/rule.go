package ruleset

import (
	"errors"
	"fmt"
	"strconv"

	"grimm.is/ruleaudit/internal/validation"
)

// Built-in chains of the netfilter tables.
var builtinChains = map[string]bool{
	"INPUT":       true,
	"OUTPUT":      true,
	"FORWARD":     true,
	"PREROUTING":  true,
	"POSTROUTING": true,
}

// IsBuiltinChain reports whether name is a netfilter built-in chain.
func IsBuiltinChain(name string) bool {
	return builtinChains[name]
}

// ChainKey identifies a chain within a table.
type ChainKey struct {
	Table string
	Chain string
}

func (k ChainKey) String() string {
	return k.Table + "/" + k.Chain
}

// Rule is one parsed packet-filter rule. Rules are values; the analyzer and
// recommender never modify them.
type Rule struct {
	Table    string
	Chain    string
	Position int // 1-based, unique within (Table, Chain)

	Action        Action
	TargetOptions string // text after "-j TARGET", e.g. "--reject-with tcp-reset"

	Protocol     Protocol
	Source       Address
	Destination  Address
	SourcePorts  PortSet
	DestPorts    PortSet
	InInterface  Interface
	OutInterface Interface
	Aux          Aux

	Line    int    // source line, 0 if unknown
	Raw     string // original rule text
	Comment string
}

// Key returns the chain the rule belongs to.
func (r Rule) Key() ChainKey {
	return ChainKey{Table: r.Table, Chain: r.Chain}
}

// Ref returns a short location string such as "filter/INPUT#3".
func (r Rule) Ref() string {
	return r.Table + "/" + r.Chain + "#" + strconv.Itoa(r.Position)
}

// Space returns the rule's match space.
func (r Rule) Space() MatchSpace {
	return MatchSpace{
		Protocol:     r.Protocol,
		Source:       r.Source,
		Destination:  r.Destination,
		SourcePorts:  r.SourcePorts,
		DestPorts:    r.DestPorts,
		InInterface:  r.InInterface,
		OutInterface: r.OutInterface,
		Aux:          r.Aux,
	}
}

// Validate checks the rule in isolation. Uniqueness of Position within a
// chain is a property of the rule set and is checked by the analyzer.
func (r Rule) Validate() error {
	var errs []error

	if r.Table == "" {
		errs = append(errs, errors.New("table not set"))
	} else if err := validation.ValidateTableName(r.Table); err != nil {
		errs = append(errs, err)
	}
	if r.Chain == "" {
		errs = append(errs, errors.New("chain not set"))
	} else if err := validation.ValidateChainName(r.Chain); err != nil {
		errs = append(errs, err)
	}
	if r.Position < 1 {
		errs = append(errs, fmt.Errorf("position %d out of range", r.Position))
	}
	if r.Action == "" {
		errs = append(errs, errors.New("target not set"))
	}

	if err := r.SourcePorts.Err(); err != nil {
		errs = append(errs, fmt.Errorf("source ports: %w", err))
	}
	if err := r.DestPorts.Err(); err != nil {
		errs = append(errs, fmt.Errorf("destination ports: %w", err))
	}
	if (!r.SourcePorts.IsAny() || !r.DestPorts.IsAny()) && !r.Protocol.HasPorts() {
		errs = append(errs, fmt.Errorf("port match on protocol %s", r.Protocol))
	}

	for _, iface := range []Interface{r.InInterface, r.OutInterface} {
		if iface.IsAny() {
			continue
		}
		if err := validation.ValidateInterfaceName(iface.Name()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r Rule) String() string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.Ref() + " -j " + string(r.Action)
}
