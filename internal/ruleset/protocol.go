package ruleset

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Protocol is a bitmask of layer-4 protocols. The zero value is the wildcard,
// equivalent to ProtoAny.
type Protocol uint16

const (
	ProtoTCP     Protocol = 1 << iota // TCP protocol
	ProtoUDP                          // UDP protocol
	ProtoUDPLite                      // UDP-Lite protocol
	ProtoICMP                         // ICMP protocol
	ProtoICMPv6                       // ICMPv6 protocol
	ProtoSCTP                         // SCTP protocol
	ProtoDCCP                         // DCCP protocol
	ProtoESP                          // IPsec ESP
	ProtoAH                           // IPsec AH
	ProtoGRE                          // GRE tunnels

	protoEnd
)

// Common protocol combinations
const (
	ProtoTCPUDP = ProtoTCP | ProtoUDP // Both TCP and UDP (e.g., DNS)
	ProtoAny    = protoEnd - 1        // Every known protocol

	// ProtoPorted are the protocols that carry port numbers.
	ProtoPorted = ProtoTCP | ProtoUDP | ProtoUDPLite | ProtoSCTP | ProtoDCCP
)

var protocolNames = []struct {
	proto  Protocol
	name   string
	number int
}{
	{ProtoTCP, "tcp", 6},
	{ProtoUDP, "udp", 17},
	{ProtoUDPLite, "udplite", 136},
	{ProtoICMP, "icmp", 1},
	{ProtoICMPv6, "icmpv6", 58},
	{ProtoSCTP, "sctp", 132},
	{ProtoDCCP, "dccp", 33},
	{ProtoESP, "esp", 50},
	{ProtoAH, "ah", 51},
	{ProtoGRE, "gre", 47},
}

// ErrUnknownProtocol is returned by ParseProtocol for names outside the
// known set. Callers carry such protocols as an auxiliary match instead.
var ErrUnknownProtocol = errors.New("unknown protocol")

// ParseProtocol parses an iptables -p value. "", "all", "any" and "0" are the
// wildcard; numeric protocol numbers are accepted for known protocols.
func ParseProtocol(s string) (Protocol, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "all", "any", "0", "-1":
		return ProtoAny, nil
	case "ipv6-icmp", "icmp6":
		return ProtoICMPv6, nil
	}
	n, numErr := strconv.Atoi(v)
	for _, p := range protocolNames {
		if p.name == v || (numErr == nil && p.number == n) {
			return p.proto, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

func (p Protocol) set() Protocol {
	if p&ProtoAny == 0 {
		return ProtoAny
	}
	return p & ProtoAny
}

// IsAny reports whether p is the wildcard.
func (p Protocol) IsAny() bool {
	return p.set() == ProtoAny
}

// HasPorts reports whether every protocol in p carries port numbers.
func (p Protocol) HasPorts() bool {
	return p.set()&^ProtoPorted == 0
}

// Contains reports whether every protocol in other is also in p.
func (p Protocol) Contains(other Protocol) bool {
	return other.set()&^p.set() == 0
}

// Intersects reports whether p and other share a protocol.
func (p Protocol) Intersects(other Protocol) bool {
	return p.set()&other.set() != 0
}

// Count returns the number of protocols in the set.
func (p Protocol) Count() int {
	return bits.OnesCount16(uint16(p.set()))
}

// String returns a human-readable protocol name.
func (p Protocol) String() string {
	if p.IsAny() {
		return "any"
	}
	var parts []string
	for _, n := range protocolNames {
		if p&n.proto != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}
