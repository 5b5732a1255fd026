package imports

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"grimm.is/ruleaudit/internal/ruleset"
)

// Render writes rules in iptables-save format. Tables and chains keep the
// declaration order and policies of c; rules for tables or chains c does not
// know are appended after them. Within a chain rules are ordered by
// position. A nil c is treated as empty.
func (c *IPTablesConfig) Render(rules []ruleset.Rule) string {
	if c == nil {
		c = &IPTablesConfig{}
	}

	type chainOut struct {
		decl  *IPTablesChain
		rules []ruleset.Rule
	}
	type tableOut struct {
		chains map[string]*chainOut
		order  []string
	}
	tables := make(map[string]*tableOut)
	var order []string

	addTable := func(name string) *tableOut {
		if t, ok := tables[name]; ok {
			return t
		}
		t := &tableOut{chains: make(map[string]*chainOut)}
		tables[name] = t
		order = append(order, name)
		return t
	}
	addChain := func(t *tableOut, name string) *chainOut {
		if ch, ok := t.chains[name]; ok {
			return ch
		}
		ch := &chainOut{}
		t.chains[name] = ch
		t.order = append(t.order, name)
		return ch
	}

	for _, name := range c.Order {
		src := c.Tables[name]
		if src == nil {
			continue
		}
		t := addTable(name)
		for _, chain := range src.Order {
			addChain(t, chain).decl = src.Chains[chain]
		}
	}
	for _, r := range rules {
		ch := addChain(addTable(r.Table), r.Chain)
		ch.rules = append(ch.rules, r)
	}

	var b strings.Builder
	for _, name := range order {
		t := tables[name]
		fmt.Fprintf(&b, "*%s\n", name)
		for _, chain := range t.order {
			ch := t.chains[chain]
			policy := "-"
			if ruleset.IsBuiltinChain(chain) {
				policy = "ACCEPT"
			}
			var packets, bytes uint64
			if d := ch.decl; d != nil {
				if d.Policy != "" {
					policy = d.Policy
				}
				packets, bytes = d.Packets, d.Bytes
			}
			fmt.Fprintf(&b, ":%s %s [%d:%d]\n", chain, policy, packets, bytes)
		}
		for _, chain := range t.order {
			rs := t.chains[chain].rules
			slices.SortStableFunc(rs, func(x, y ruleset.Rule) int {
				return cmp.Compare(x.Position, y.Position)
			})
			for _, r := range rs {
				b.WriteString(ruleText(r))
				b.WriteByte('\n')
			}
		}
		b.WriteString("COMMIT\n")
	}
	return b.String()
}

// ruleText prefers the rule's original text when it is an append line.
func ruleText(r ruleset.Rule) string {
	if strings.HasPrefix(r.Raw, "-A ") || strings.HasPrefix(r.Raw, "--append ") {
		return r.Raw
	}
	return r.Format()
}
