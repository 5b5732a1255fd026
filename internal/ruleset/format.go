package ruleset

import (
	"strconv"
	"strings"
)

// Format renders r as an iptables-save "-A" line. Opaque auxiliary matches
// are rendered as the importer recorded them ("-m key value"), which is
// exact only for matches that take a single argument.
func (r Rule) Format() string {
	var b strings.Builder
	b.WriteString("-A ")
	b.WriteString(r.Chain)

	if !r.InInterface.IsAny() {
		b.WriteString(" -i " + r.InInterface.String())
	}
	if !r.OutInterface.IsAny() {
		b.WriteString(" -o " + r.OutInterface.String())
	}
	if !r.Source.IsAny() {
		b.WriteString(" -s " + r.Source.String())
	}
	if !r.Destination.IsAny() {
		b.WriteString(" -d " + r.Destination.String())
	}
	if !r.Protocol.IsAny() {
		b.WriteString(" -p " + r.Protocol.String())
	}
	if multi := len(r.SourcePorts.ranges) > 1 || len(r.DestPorts.ranges) > 1; multi {
		b.WriteString(" -m multiport")
		writePorts(&b, "--sports", r.SourcePorts)
		writePorts(&b, "--dports", r.DestPorts)
	} else {
		writePorts(&b, "--sport", r.SourcePorts)
		writePorts(&b, "--dport", r.DestPorts)
	}

	for _, m := range r.Aux.matches {
		if arg := formatAux(m); arg != "" {
			b.WriteString(" " + arg)
		}
	}
	if r.Comment != "" {
		b.WriteString(" -m comment --comment " + strconv.Quote(r.Comment))
	}

	if r.Action != "" {
		b.WriteString(" -j " + string(r.Action))
	}
	if r.TargetOptions != "" {
		b.WriteString(" " + r.TargetOptions)
	}
	return b.String()
}

var dimensionFlags = map[string]string{
	KeySource:       "-s",
	KeyDestination:  "-d",
	KeyInInterface:  "-i",
	KeyOutInterface: "-o",
	KeyProtocol:     "-p",
	KeySourcePort:   "--sport",
	KeyDestPort:     "--dport",
	KeyFragment:     "-f",
}

// formatAux renders one auxiliary match as iptables arguments.
func formatAux(m AuxMatch) string {
	key, negated := strings.CutPrefix(m.Key, "!")
	bang := ""
	if negated {
		bang = "! "
	}

	flag, dim := dimensionFlags[key]
	switch {
	case key == KeyConnState:
		return "-m conntrack " + bang + "--ctstate " + m.Value
	case (key == KeySourcePort || key == KeyDestPort) && strings.Contains(m.Value, ","):
		return "-m multiport " + bang + flag + "s " + m.Value
	case dim:
		return strings.TrimSpace(bang + flag + " " + m.Value)
	case strings.HasPrefix(key, "-"):
		return m.Value
	}
	return strings.TrimSpace("-m " + key + " " + m.Value)
}

func writePorts(b *strings.Builder, flag string, p PortSet) {
	if p.IsAny() {
		return
	}
	b.WriteString(" " + flag + " " + p.String())
}

// HasOpaqueAux reports whether r carries auxiliary matches the algebra does
// not understand.
func (r Rule) HasOpaqueAux() bool {
	return len(r.Aux.opaque()) > 0
}
