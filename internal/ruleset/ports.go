package ruleset

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvertedRange is reported when a port interval has Lo > Hi.
var ErrInvertedRange = errors.New("port range lower bound greater than upper bound")

const maxPort = 65535

// PortRange is a closed interval of ports.
type PortRange struct {
	Lo, Hi uint16
}

func (r PortRange) size() int {
	return int(r.Hi) - int(r.Lo) + 1
}

func (r PortRange) String() string {
	if r.Lo == r.Hi {
		return strconv.Itoa(int(r.Lo))
	}
	return fmt.Sprintf("%d:%d", r.Lo, r.Hi)
}

// PortSet is a union of port intervals. The zero value is the wildcard.
// Ranges are sorted and merged at construction; a set holding an inverted
// interval keeps it verbatim and reports it from Err.
type PortSet struct {
	ranges   []PortRange
	inverted *PortRange
}

// Ports builds a PortSet from ranges. No ranges means the wildcard.
func Ports(ranges ...PortRange) PortSet {
	if len(ranges) == 0 {
		return PortSet{}
	}
	for _, r := range ranges {
		if r.Lo > r.Hi {
			bad := r
			return PortSet{ranges: slices.Clone(ranges), inverted: &bad}
		}
	}

	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b PortRange) int { return int(a.Lo) - int(b.Lo) })

	merged := sorted[:1]
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if int(r.Lo) <= int(last.Hi)+1 {
			if r.Hi > last.Hi {
				last.Hi = r.Hi
			}
			continue
		}
		merged = append(merged, r)
	}

	if len(merged) == 1 && merged[0].Lo == 0 && merged[0].Hi == maxPort {
		return PortSet{}
	}
	return PortSet{ranges: merged}
}

// Port returns a set containing a single port.
func Port(p uint16) PortSet {
	return Ports(PortRange{Lo: p, Hi: p})
}

// ParsePorts parses iptables port syntax: "22", "1000:2000", ":1024",
// "1024:" and multiport lists such as "22,80,8000:8080".
func ParsePorts(s string) (PortSet, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return PortSet{}, nil
	}

	var ranges []PortRange
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return PortSet{}, fmt.Errorf("invalid port list %q", s)
		}
		lo, hi, isRange := strings.Cut(part, ":")
		if !isRange {
			lo, hi, isRange = strings.Cut(part, "-")
		}

		start, err := parsePortBound(lo, 0)
		if err != nil {
			return PortSet{}, err
		}
		end := start
		if isRange {
			if end, err = parsePortBound(hi, maxPort); err != nil {
				return PortSet{}, err
			}
		}
		ranges = append(ranges, PortRange{Lo: start, Hi: end})
	}
	return Ports(ranges...), nil
}

func parsePortBound(s string, def uint16) (uint16, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return uint16(n), nil
}

// Err reports an inverted interval, if any.
func (p PortSet) Err() error {
	if p.inverted != nil {
		return fmt.Errorf("%w: %d:%d", ErrInvertedRange, p.inverted.Lo, p.inverted.Hi)
	}
	return nil
}

// IsAny reports whether p is the wildcard.
func (p PortSet) IsAny() bool {
	return len(p.ranges) == 0
}

// Ranges returns a copy of the intervals.
func (p PortSet) Ranges() []PortRange {
	return slices.Clone(p.ranges)
}

// Contains reports whether every port in o is also in p.
func (p PortSet) Contains(o PortSet) bool {
	if p.IsAny() {
		return true
	}
	if o.IsAny() {
		return false
	}
	// Both lists are merged, so each interval of o must sit inside a single
	// interval of p.
	for _, rb := range o.ranges {
		covered := false
		for _, ra := range p.ranges {
			if ra.Lo <= rb.Lo && rb.Hi <= ra.Hi {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// Intersects reports whether p and o share at least one port.
func (p PortSet) Intersects(o PortSet) bool {
	return p.IsAny() || o.IsAny() || p.interSize(o) > 0
}

// Includes reports whether port is in the set.
func (p PortSet) Includes(port uint16) bool {
	return p.Contains(Port(port))
}

func (p PortSet) size() int {
	if p.IsAny() {
		return maxPort + 1
	}
	n := 0
	for _, r := range p.ranges {
		n += r.size()
	}
	return n
}

func (p PortSet) interSize(o PortSet) int {
	switch {
	case p.IsAny():
		return o.size()
	case o.IsAny():
		return p.size()
	}
	n := 0
	for _, ra := range p.ranges {
		for _, rb := range o.ranges {
			lo, hi := max(ra.Lo, rb.Lo), min(ra.Hi, rb.Hi)
			if lo <= hi {
				n += int(hi) - int(lo) + 1
			}
		}
	}
	return n
}

// overlap estimates |p ∩ o| / |o|.
func (p PortSet) overlap(o PortSet) float64 {
	return float64(p.interSize(o)) / float64(o.size())
}

func (p PortSet) String() string {
	if p.IsAny() {
		return "any"
	}
	parts := make([]string, len(p.ranges))
	for i, r := range p.ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}
