package imports

import (
	"fmt"
	"strconv"
	"strings"

	"grimm.is/ruleaudit/internal/ruleset"
)

// Match modules whose options map onto rule dimensions. Options of any other
// module are kept verbatim as an opaque auxiliary match keyed by the module.
var dimensionModules = map[string]bool{
	"tcp":       true,
	"udp":       true,
	"udplite":   true,
	"sctp":      true,
	"dccp":      true,
	"multiport": true,
	"state":     true,
	"conntrack": true,
	"comment":   true,
}

// protocolModules are loaded implicitly by "-p", so their options may appear
// without a "-m".
var protocolModules = map[string]bool{
	"tcp":       true,
	"udp":       true,
	"udplite":   true,
	"sctp":      true,
	"dccp":      true,
	"icmp":      true,
	"icmpv6":    true,
	"ipv6-icmp": true,
}

// ParseRule parses a single "-A CHAIN ..." rule in table. The rule is given
// position 1.
func ParseRule(table, line string) (ruleset.Rule, []string, error) {
	tokens, err := tokenize(strings.TrimSpace(line))
	if err != nil {
		return ruleset.Rule{}, nil, err
	}
	if len(tokens) == 0 || (tokens[0] != "-A" && tokens[0] != "--append") {
		return ruleset.Rule{}, nil, fmt.Errorf("not a rule: %q", line)
	}
	r, warnings := ParseRuleTokens(table, tokens)
	r.Raw = strings.TrimSpace(line)
	r.Position = 1
	return r, warnings, nil
}

// ParseRuleTokens builds a rule from tokenized iptables arguments. Values the
// rule model cannot represent (negations, unknown protocols, unparsable
// addresses or ports) are recorded as opaque auxiliary matches so the rule
// is never claimed to contain another.
func ParseRuleTokens(table string, tokens []string) (ruleset.Rule, []string) {
	rb := ruleBuilder{
		rule: ruleset.Rule{Table: table},
		aux:  make(map[string]string),
	}
	rb.parse(tokens)
	rb.rule.Aux = ruleset.NewAux(rb.aux)
	if rb.rule.Chain == "" {
		rb.warn("rule has no chain")
	} else if rb.rule.Action == "" {
		rb.warn("rule in %s has no target", rb.rule.Chain)
	}
	return rb.rule, rb.warnings
}

type ruleBuilder struct {
	rule     ruleset.Rule
	aux      map[string]string
	warnings []string

	tokens   []string
	pos      int
	negate   bool
	module   string // last "-m" module
	implicit string // module loaded by "-p"
}

func (b *ruleBuilder) warn(format string, args ...any) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
}

// value consumes the argument of option opt.
func (b *ruleBuilder) value(opt string) (string, bool) {
	if b.pos >= len(b.tokens) {
		b.warn("option %s is missing its value", opt)
		return "", false
	}
	v := b.tokens[b.pos]
	b.pos++
	return v, true
}

// values consumes arguments up to the next option.
func (b *ruleBuilder) values() []string {
	var out []string
	for b.pos < len(b.tokens) {
		t := b.tokens[b.pos]
		if t == "!" || (strings.HasPrefix(t, "-") && len(t) > 1 && !isNumber(t[1:])) {
			break
		}
		out = append(out, t)
		b.pos++
	}
	return out
}

// operand consumes the argument of a dimension option, accepting the
// old "-s ! addr" negation form.
func (b *ruleBuilder) operand(opt string) (string, bool) {
	if b.pos < len(b.tokens) && b.tokens[b.pos] == "!" {
		b.negate = true
		b.pos++
	}
	return b.value(opt)
}

func (b *ruleBuilder) opaque(key, value string) {
	if b.negate {
		key = ruleset.Negated(key)
	}
	b.aux[key] = value
}

func (b *ruleBuilder) parse(tokens []string) {
	b.tokens = tokens
	for b.pos < len(b.tokens) {
		t := b.tokens[b.pos]
		b.pos++
		if t == "!" {
			b.negate = true
			continue
		}
		b.option(t)
		b.negate = false
	}
}

func (b *ruleBuilder) option(opt string) {
	switch opt {
	case "-A", "--append":
		if v, ok := b.value(opt); ok {
			b.rule.Chain = v
		}

	case "-p", "--protocol":
		v, ok := b.operand(opt)
		if !ok {
			return
		}
		if b.negate {
			b.opaque(ruleset.KeyProtocol, v)
			return
		}
		proto, err := ruleset.ParseProtocol(v)
		if err != nil {
			b.warn("%v, kept as an opaque match", err)
			b.aux[ruleset.KeyProtocol] = v
			return
		}
		b.rule.Protocol = proto
		if name := strings.ToLower(v); protocolModules[name] {
			b.implicit = name
		}

	case "-s", "--source":
		b.address(opt, &b.rule.Source, ruleset.KeySource)
	case "-d", "--destination":
		b.address(opt, &b.rule.Destination, ruleset.KeyDestination)

	case "-i", "--in-interface":
		b.iface(opt, &b.rule.InInterface, ruleset.KeyInInterface)
	case "-o", "--out-interface":
		b.iface(opt, &b.rule.OutInterface, ruleset.KeyOutInterface)

	case "--sport", "--source-port", "--sports", "--source-ports":
		b.ports(opt, &b.rule.SourcePorts, ruleset.KeySourcePort)
	case "--dport", "--destination-port", "--dports", "--destination-ports":
		b.ports(opt, &b.rule.DestPorts, ruleset.KeyDestPort)

	case "--state", "--ctstate":
		v, ok := b.operand(opt)
		if !ok {
			return
		}
		if b.negate {
			b.opaque(ruleset.KeyConnState, v)
			return
		}
		b.aux[ruleset.KeyConnState] = v

	case "--comment":
		if v, ok := b.value(opt); ok {
			b.rule.Comment = v
		}

	case "-m", "--match":
		v, ok := b.value(opt)
		if !ok {
			return
		}
		b.module = v
		if !dimensionModules[v] {
			if _, seen := b.aux[v]; !seen {
				b.aux[v] = ""
			}
		}

	case "-j", "--jump", "-g", "--goto":
		v, ok := b.value(opt)
		if !ok {
			return
		}
		if opt == "-g" || opt == "--goto" {
			b.warn("goto %s treated as a jump", v)
		}
		b.rule.Action = ruleset.ParseAction(v)
		b.rule.TargetOptions = joinArgs(b.tokens[b.pos:])
		b.pos = len(b.tokens)

	case "-f", "--fragment":
		b.opaque(ruleset.KeyFragment, "")

	default:
		if !strings.HasPrefix(opt, "-") {
			b.warn("unexpected argument %q", opt)
			return
		}
		b.moduleOption(opt)
	}
}

// moduleOption records an option the rule model does not interpret under
// the module that owns it: the last "-m" module, else the protocol's
// implicit one. An option with no owner is kept verbatim under its name.
func (b *ruleBuilder) moduleOption(opt string) {
	args := b.values()
	part := opt
	if len(args) > 0 {
		part += " " + strings.Join(args, " ")
	}
	if b.negate {
		part = "! " + part
	}

	owner := b.module
	if owner == "" {
		owner = b.implicit
	}
	if owner == "" {
		b.aux[opt] = part
		return
	}
	if prev := b.aux[owner]; prev != "" {
		part = prev + " " + part
	}
	b.aux[owner] = part
}

func (b *ruleBuilder) address(opt string, dst *ruleset.Address, key string) {
	v, ok := b.operand(opt)
	if !ok {
		return
	}
	if b.negate {
		b.opaque(key, v)
		return
	}
	a, err := ruleset.ParseAddress(v)
	if err != nil {
		b.warn("%v, kept as an opaque match", err)
		b.aux[key] = v
		return
	}
	*dst = a
}

func (b *ruleBuilder) iface(opt string, dst *ruleset.Interface, key string) {
	v, ok := b.operand(opt)
	if !ok {
		return
	}
	if b.negate {
		b.opaque(key, v)
		return
	}
	*dst = ruleset.ParseInterface(v)
}

func (b *ruleBuilder) ports(opt string, dst *ruleset.PortSet, key string) {
	v, ok := b.operand(opt)
	if !ok {
		return
	}
	if b.negate {
		b.opaque(key, v)
		return
	}
	ps, err := ruleset.ParsePorts(v)
	if err != nil {
		b.warn("%v, kept as an opaque match", err)
		b.aux[key] = v
		return
	}
	*dst = ps
}

// joinArgs reverses tokenize for arguments that need quoting.
func joinArgs(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			a = strconv.Quote(a)
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// tokenize splits a rule line on whitespace, honoring double quotes with
// backslash escapes the way iptables-save writes comments.
func tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		hasTok  bool
	)
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && inQuote:
			escaped = true
		case c == '"':
			inQuote = !inQuote
			hasTok = true
		case (c == ' ' || c == '\t') && !inQuote:
			if hasTok {
				tokens = append(tokens, cur.String())
				cur.Reset()
				hasTok = false
			}
		default:
			cur.WriteRune(c)
			hasTok = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if hasTok {
		tokens = append(tokens, cur.String())
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty rule")
	}
	return tokens, nil
}
