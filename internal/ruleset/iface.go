package ruleset

import "strings"

// Heuristic cardinalities for the overlap estimate. Interface names are not
// enumerable, so prefix matches are weighted rather than counted.
const (
	ifaceExactSize  = 1
	ifacePrefixSize = 16
	ifaceAnySize    = 256
)

// Interface matches an input or output interface name. A trailing "+" is the
// iptables prefix wildcard ("eth+" matches eth0, eth1, ...). The zero value
// matches every interface.
type Interface struct {
	name   string
	prefix bool
}

// ParseInterface parses an iptables -i/-o value.
func ParseInterface(s string) Interface {
	v := strings.TrimSpace(s)
	if v == "" || v == "+" || v == "any" {
		return Interface{}
	}
	if strings.HasSuffix(v, "+") {
		return Interface{name: strings.TrimSuffix(v, "+"), prefix: true}
	}
	return Interface{name: v}
}

// IsAny reports whether i is the wildcard.
func (i Interface) IsAny() bool {
	return i.name == ""
}

// Name returns the interface name, without the trailing "+".
func (i Interface) Name() string {
	return i.name
}

// IsPrefix reports whether i is a "+" prefix match.
func (i Interface) IsPrefix() bool {
	return i.prefix
}

// Contains reports whether every interface matched by o is matched by i.
func (i Interface) Contains(o Interface) bool {
	switch {
	case i.IsAny():
		return true
	case o.IsAny():
		return false
	case i.prefix:
		return strings.HasPrefix(o.name, i.name)
	default:
		return !o.prefix && i.name == o.name
	}
}

// Intersects reports whether some interface is matched by both.
func (i Interface) Intersects(o Interface) bool {
	switch {
	case i.IsAny() || o.IsAny():
		return true
	case i.prefix && o.prefix:
		return strings.HasPrefix(i.name, o.name) || strings.HasPrefix(o.name, i.name)
	case i.prefix:
		return strings.HasPrefix(o.name, i.name)
	case o.prefix:
		return strings.HasPrefix(i.name, o.name)
	default:
		return i.name == o.name
	}
}

func (i Interface) size() float64 {
	switch {
	case i.IsAny():
		return ifaceAnySize
	case i.prefix:
		return ifacePrefixSize
	default:
		return ifaceExactSize
	}
}

// overlap estimates |i ∩ o| / |o|.
func (i Interface) overlap(o Interface) float64 {
	switch {
	case !i.Intersects(o):
		return 0
	case i.Contains(o):
		return 1
	case o.Contains(i):
		return i.size() / o.size()
	default:
		return ifaceExactSize / o.size()
	}
}

func (i Interface) String() string {
	switch {
	case i.IsAny():
		return "any"
	case i.prefix:
		return i.name + "+"
	default:
		return i.name
	}
}
