package ruleset

import (
	"fmt"
	"math"
)

// MatchSpace is the set of packets a rule matches: the product of its
// dimensions. It is derived from a Rule and never stored.
type MatchSpace struct {
	Protocol     Protocol
	Source       Address
	Destination  Address
	SourcePorts  PortSet
	DestPorts    PortSet
	InInterface  Interface
	OutInterface Interface
	Aux          Aux
}

// Intersects reports whether some packet may match both spaces. A single
// disjoint dimension makes the product empty.
func (m MatchSpace) Intersects(o MatchSpace) bool {
	return m.Protocol.Intersects(o.Protocol) &&
		m.Source.Intersects(o.Source) &&
		m.Destination.Intersects(o.Destination) &&
		m.SourcePorts.Intersects(o.SourcePorts) &&
		m.DestPorts.Intersects(o.DestPorts) &&
		m.InInterface.Intersects(o.InInterface) &&
		m.OutInterface.Intersects(o.OutInterface) &&
		m.Aux.Intersects(o.Aux)
}

// Contains reports whether m provably matches every packet o matches.
func (m MatchSpace) Contains(o MatchSpace) bool {
	return m.Protocol.Contains(o.Protocol) &&
		m.Source.Contains(o.Source) &&
		m.Destination.Contains(o.Destination) &&
		m.SourcePorts.Contains(o.SourcePorts) &&
		m.DestPorts.Contains(o.DestPorts) &&
		m.InInterface.Contains(o.InInterface) &&
		m.OutInterface.Contains(o.OutInterface) &&
		m.Aux.Contains(o.Aux)
}

// Equal reports whether the spaces contain each other.
func (m MatchSpace) Equal(o MatchSpace) bool {
	return m.Contains(o) && o.Contains(m)
}

// IsUniversal reports whether every dimension is the wildcard.
func (m MatchSpace) IsUniversal() bool {
	return m.Protocol.IsAny() &&
		m.Source.IsAny() &&
		m.Destination.IsAny() &&
		m.SourcePorts.IsAny() &&
		m.DestPorts.IsAny() &&
		m.InInterface.IsAny() &&
		m.OutInterface.IsAny() &&
		m.Aux.IsEmpty()
}

// NarrowsAddressPorts reports whether o is a strict refinement of m on the
// address and port dimensions: m contains o on source, destination, source
// ports and destination ports, and is strictly wider on at least one.
func (m MatchSpace) NarrowsAddressPorts(o MatchSpace) bool {
	if !m.Source.Contains(o.Source) ||
		!m.Destination.Contains(o.Destination) ||
		!m.SourcePorts.Contains(o.SourcePorts) ||
		!m.DestPorts.Contains(o.DestPorts) {
		return false
	}
	return !o.Source.Contains(m.Source) ||
		!o.Destination.Contains(m.Destination) ||
		!o.SourcePorts.Contains(m.SourcePorts) ||
		!o.DestPorts.Contains(m.DestPorts)
}

// Overlap estimates the fraction of o that m also matches, in [0, 1]. Each
// dimension contributes |m ∩ o| / |o|; the product is accumulated in log
// space so that wide IPv6 prefixes do not underflow.
func (m MatchSpace) Overlap(o MatchSpace) float64 {
	if !m.Intersects(o) {
		return 0
	}
	ratios := [...]float64{
		float64((m.Protocol.set() & o.Protocol.set()).Count()) / float64(o.Protocol.Count()),
		m.Source.overlap(o.Source),
		m.Destination.overlap(o.Destination),
		m.SourcePorts.overlap(o.SourcePorts),
		m.DestPorts.overlap(o.DestPorts),
		m.InInterface.overlap(o.InInterface),
		m.OutInterface.overlap(o.OutInterface),
		m.Aux.overlap(o.Aux),
	}
	var logSum float64
	for _, r := range ratios {
		if r <= 0 {
			return 0
		}
		logSum += math.Log(min(r, 1))
	}
	return math.Exp(logSum)
}

func (m MatchSpace) String() string {
	return fmt.Sprintf("proto=%s src=%s dst=%s sport=%s dport=%s in=%s out=%s aux=%s",
		m.Protocol, m.Source, m.Destination, m.SourcePorts, m.DestPorts,
		m.InInterface, m.OutInterface, m.Aux)
}
