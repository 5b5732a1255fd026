package imports

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"grimm.is/ruleaudit/internal/ruleset"
	"grimm.is/ruleaudit/internal/validation"
)

// DefaultTable is assumed for rules that appear outside a "*table" section.
const DefaultTable = "filter"

// IPTablesConfig holds parsed iptables-save (or iptables -S) output.
type IPTablesConfig struct {
	Format Format
	Tables map[string]*IPTablesTable
	// Order lists table names as they first appeared.
	Order []string
	// Rules are all parsed rules in input order.
	Rules    []ruleset.Rule
	Warnings []string
}

// IPTablesTable represents an iptables table (filter, nat, mangle, raw).
type IPTablesTable struct {
	Name   string
	Chains map[string]*IPTablesChain
	// Order lists chain names as they were declared or first used.
	Order []string
}

// IPTablesChain represents an iptables chain.
type IPTablesChain struct {
	Name    string
	Policy  string // ACCEPT, DROP for built-in chains; "-" for user chains
	Rules   []ruleset.Rule
	Packets uint64
	Bytes   uint64
}

var (
	chainRe    = regexp.MustCompile(`^:(\S+)\s+(\S+)(?:\s+\[(\d+):(\d+)\])?$`)
	countersRe = regexp.MustCompile(`^\[(\d+):(\d+)\]\s+`)
)

// ParseIPTablesSave parses an iptables-save dump from a file.
func ParseIPTablesSave(path string) (*IPTablesConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open iptables-save output: %w", err)
	}
	defer file.Close()

	return ParseIPTables(file)
}

// ParseIPTablesString parses a dump held in memory.
func ParseIPTablesString(content string) (*IPTablesConfig, error) {
	return ParseIPTables(strings.NewReader(content))
}

// ParseIPTables parses iptables-save or iptables -S output. Malformed lines
// are skipped with a warning; only read errors fail the parse.
func ParseIPTables(r io.Reader) (*IPTablesConfig, error) {
	p := &parser{
		cfg:       &IPTablesConfig{Tables: make(map[string]*IPTablesTable)},
		positions: make(map[ruleset.ChainKey]int),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.line++
		p.parseLine(strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	if p.cfg.Format == FormatUnknown && len(p.cfg.Rules) > 0 {
		p.cfg.Format = FormatList
	}
	return p.cfg, nil
}

// Policies returns the declared policies of built-in chains.
func (c *IPTablesConfig) Policies() map[ruleset.ChainKey]ruleset.Action {
	out := make(map[ruleset.ChainKey]ruleset.Action)
	for _, t := range c.Tables {
		for _, ch := range t.Chains {
			if ch.Policy != "" && ch.Policy != "-" {
				out[ruleset.ChainKey{Table: t.Name, Chain: ch.Name}] = ruleset.ParseAction(ch.Policy)
			}
		}
	}
	return out
}

type parser struct {
	cfg       *IPTablesConfig
	table     *IPTablesTable
	positions map[ruleset.ChainKey]int
	line      int
}

func (p *parser) warnf(format string, args ...any) {
	p.cfg.Warnings = append(p.cfg.Warnings, fmt.Sprintf("line %d: ", p.line)+fmt.Sprintf(format, args...))
}

func (p *parser) parseLine(line string) {
	// Skip empty lines and comments
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	// Table declaration: *filter, *nat, *mangle, *raw
	if strings.HasPrefix(line, "*") {
		p.cfg.Format = FormatSave
		name := strings.TrimPrefix(line, "*")
		if !validation.IsKnownTable(name) {
			p.warnf("unknown table %q", name)
		}
		p.table = p.ensureTable(name)
		return
	}

	// COMMIT ends table
	if line == "COMMIT" {
		p.table = nil
		return
	}

	// Chain declaration: :INPUT ACCEPT [0:0]
	if strings.HasPrefix(line, ":") {
		m := chainRe.FindStringSubmatch(line)
		if m == nil {
			p.warnf("malformed chain declaration %q", line)
			return
		}
		ch := p.ensureChain(p.currentTable(), m[1])
		ch.Policy = m[2]
		if m[3] != "" {
			ch.Packets, _ = strconv.ParseUint(m[3], 10, 64)
			ch.Bytes, _ = strconv.ParseUint(m[4], 10, 64)
		}
		return
	}

	// iptables-save -c prefixes rules with [packets:bytes]
	line = countersRe.ReplaceAllString(line, "")

	tokens, err := tokenize(line)
	if err != nil {
		p.warnf("%v", err)
		return
	}

	switch tokens[0] {
	case "-P", "--policy":
		if len(tokens) != 3 {
			p.warnf("malformed policy %q", line)
			return
		}
		p.ensureChain(p.currentTable(), tokens[1]).Policy = tokens[2]
	case "-N", "--new-chain":
		if len(tokens) != 2 {
			p.warnf("malformed chain declaration %q", line)
			return
		}
		p.ensureChain(p.currentTable(), tokens[1]).Policy = "-"
	case "-A", "--append":
		p.addRule(line, tokens)
	default:
		p.warnf("unrecognized line %q", line)
	}
}

func (p *parser) currentTable() *IPTablesTable {
	if p.table == nil {
		if p.cfg.Format == FormatSave {
			p.warnf("rule outside a table section, assuming %s", DefaultTable)
		}
		p.table = p.ensureTable(DefaultTable)
	}
	return p.table
}

func (p *parser) ensureTable(name string) *IPTablesTable {
	if t, ok := p.cfg.Tables[name]; ok {
		return t
	}
	t := &IPTablesTable{Name: name, Chains: make(map[string]*IPTablesChain)}
	p.cfg.Tables[name] = t
	p.cfg.Order = append(p.cfg.Order, name)
	return t
}

func (p *parser) ensureChain(t *IPTablesTable, name string) *IPTablesChain {
	if ch, ok := t.Chains[name]; ok {
		return ch
	}
	// Create chain if it doesn't exist (custom chains)
	ch := &IPTablesChain{Name: name}
	t.Chains[name] = ch
	t.Order = append(t.Order, name)
	return ch
}

func (p *parser) addRule(line string, tokens []string) {
	t := p.currentTable()
	rule, warnings := ParseRuleTokens(t.Name, tokens)
	for _, w := range warnings {
		p.warnf("%s", w)
	}
	if rule.Chain == "" {
		return
	}

	key := rule.Key()
	p.positions[key]++
	rule.Position = p.positions[key]
	rule.Line = p.line
	rule.Raw = line

	if err := rule.Validate(); err != nil {
		p.warnf("%s: %v", rule.Ref(), err)
	}

	ch := p.ensureChain(t, rule.Chain)
	ch.Rules = append(ch.Rules, rule)
	p.cfg.Rules = append(p.cfg.Rules, rule)
}
