package ruleset

import (
	"fmt"
	"math"
	"net/netip"
	"strings"
)

// Address is a CIDR match on a source or destination address. The zero value
// is the wildcard.
type Address struct {
	prefix netip.Prefix
}

// ParseAddress parses an iptables -s/-d value. Bare addresses become host
// prefixes; "0.0.0.0/0", "::/0", "any" and "" are the wildcard.
func ParseAddress(s string) (Address, error) {
	v := strings.TrimSpace(s)
	switch strings.ToLower(v) {
	case "", "any", "0/0", "0.0.0.0/0", "::/0":
		return Address{}, nil
	}

	if !strings.Contains(v, "/") {
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
		}
		return Address{prefix: netip.PrefixFrom(addr, addr.BitLen())}, nil
	}

	p, err := netip.ParsePrefix(v)
	if err != nil {
		return Address{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	if p.Bits() == 0 {
		return Address{}, nil
	}
	return Address{prefix: p.Masked()}, nil
}

// MustParseAddress is ParseAddress that panics on error. For tests and
// static tables.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsAny reports whether a is the wildcard.
func (a Address) IsAny() bool {
	return !a.prefix.IsValid()
}

// Prefix returns the underlying prefix; invalid for the wildcard.
func (a Address) Prefix() netip.Prefix {
	return a.prefix
}

// Contains reports whether every address matched by b is matched by a.
func (a Address) Contains(b Address) bool {
	if a.IsAny() {
		return true
	}
	if b.IsAny() {
		return false
	}
	if a.prefix.Addr().Is4() != b.prefix.Addr().Is4() {
		return false
	}
	return a.prefix.Bits() <= b.prefix.Bits() && a.prefix.Contains(b.prefix.Addr())
}

// Intersects reports whether a and b share at least one address.
func (a Address) Intersects(b Address) bool {
	if a.IsAny() || b.IsAny() {
		return true
	}
	return a.prefix.Overlaps(b.prefix)
}

// hostBits returns log2 of the number of addresses matched. The wildcard is
// sized by the family of ref.
func (a Address) hostBits(ref Address) float64 {
	if a.IsAny() {
		if !ref.IsAny() && ref.prefix.Addr().Is6() {
			return 128
		}
		return 32
	}
	return float64(a.prefix.Addr().BitLen() - a.prefix.Bits())
}

// overlap estimates |a ∩ b| / |b|. CIDR prefixes are nested or disjoint, so
// the intersection is always the narrower side.
func (a Address) overlap(b Address) float64 {
	if !a.Intersects(b) {
		return 0
	}
	inter := math.Min(a.hostBits(b), b.hostBits(a))
	return math.Exp2(inter - b.hostBits(a))
}

func (a Address) String() string {
	if a.IsAny() {
		return "any"
	}
	return a.prefix.String()
}
