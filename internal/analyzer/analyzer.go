// Package analyzer computes pairwise rule relationships within each chain,
// turns them into typed findings and scores the rule set.
//
// Analysis is a pure function of the rule list. Chains are independent units
// of work and may be analyzed in parallel; the merged findings are sorted
// afterwards, so the worker count never changes the output.
package analyzer

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/ruleset"
)

// DefaultSensitivePorts are administrative and remote-access ports: SSH,
// Telnet, RDP, VNC and WinRM.
var DefaultSensitivePorts = []uint16{22, 23, 3389, 5900, 5985, 5986}

// Options configures an Engine.
type Options struct {
	// Workers bounds concurrent chain analysis. Zero means GOMAXPROCS.
	Workers int
	// SensitivePorts drive the security-risk check.
	SensitivePorts []uint16
	Weights        Weights
}

// DefaultOptions returns the options used by the package-level Analyze.
func DefaultOptions() Options {
	return Options{
		SensitivePorts: slices.Clone(DefaultSensitivePorts),
		Weights:        DefaultWeights(),
	}
}

// Engine runs analyses with a fixed policy. It holds no per-run state and is
// safe for concurrent use.
type Engine struct {
	opts   Options
	det    detector
	logger *logging.Logger
}

// New validates opts and returns an Engine. A nil logger discards output.
func New(opts Options, logger *logging.Logger) (*Engine, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must be >= 0, got %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	sensitive := slices.Clone(opts.SensitivePorts)
	slices.Sort(sensitive)
	sensitive = slices.Compact(sensitive)
	opts.SensitivePorts = sensitive

	return &Engine{
		opts:   opts,
		det:    detector{sensitive: sensitive},
		logger: logger.WithComponent("analyzer"),
	}, nil
}

// Options returns the engine's effective options.
func (e *Engine) Options() Options {
	o := e.opts
	o.SensitivePorts = slices.Clone(o.SensitivePorts)
	return o
}

// Analyze runs the default engine without cancellation.
func Analyze(rules []ruleset.Rule) (*Result, error) {
	e, err := New(DefaultOptions(), nil)
	if err != nil {
		return nil, err
	}
	return e.Analyze(context.Background(), rules)
}

// ChainRules is the valid rules of one chain, sorted by position.
type ChainRules struct {
	Key   ruleset.ChainKey
	Rules []ruleset.Rule
}

// Chains groups the valid rules by chain in table/chain order. It is the
// partition Analyze works on: invalid rules and duplicate positions are left
// out.
func Chains(rules []ruleset.Rule) []ChainRules {
	chains, _ := partition(rules)
	return chains
}

// Analyze analyzes rules. Invalid rules are excluded and reported both as
// Result.Diagnostics and as a returned *InvalidInputError; the Result is
// still complete for the remaining rules. A canceled ctx aborts between
// chains and returns no Result.
func (e *Engine) Analyze(ctx context.Context, rules []ruleset.Rule) (*Result, error) {
	start := time.Now()

	chains, diags := partition(rules)
	for _, d := range diags {
		e.logger.Warn("rule excluded from analysis", "rule", d.Rule.String(), "reason", d.Reason)
	}

	perChain := make([][]Finding, len(chains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, c := range chains {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perChain[i] = e.det.detectChain(c.Key, c.Rules)
			e.logger.Debug("chain analyzed", "chain", c.Key.String(), "rules", len(c.Rules), "findings", len(perChain[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}

	var findings []Finding
	for _, fs := range perChain {
		findings = append(findings, fs...)
	}
	sortFindings(findings)

	security, efficiency := Score(findings, e.opts.Weights)
	res := &Result{
		Findings:        findings,
		SecurityScore:   security,
		EfficiencyScore: efficiency,
		Summary:         summarize(findings),
		Stats:           computeStats(chains),
		Diagnostics:     diags,
		RuleCount:       len(rules),
		Fingerprint:     Fingerprint(rules),
	}
	if res.Findings == nil {
		res.Findings = []Finding{}
	}

	e.logger.Info("analysis complete",
		"rules", len(rules),
		"chains", len(chains),
		"findings", len(findings),
		"security", security,
		"efficiency", efficiency,
		"duration", time.Since(start).String())

	if len(diags) > 0 {
		return res, &InvalidInputError{Diagnostics: diags}
	}
	return res, nil
}

// partition validates rules and groups the valid ones by chain. The first
// rule seen at a position wins; later duplicates are diagnosed.
func partition(rules []ruleset.Rule) ([]ChainRules, []Diagnostic) {
	var diags []Diagnostic
	byKey := make(map[ruleset.ChainKey][]ruleset.Rule)
	seen := make(map[ruleset.ChainKey]map[int]bool)

	for _, r := range rules {
		if err := r.Validate(); err != nil {
			diags = append(diags, Diagnostic{Rule: RefOf(r), Raw: r.Raw, Reason: err.Error()})
			continue
		}
		key := r.Key()
		if seen[key] == nil {
			seen[key] = make(map[int]bool)
		}
		if seen[key][r.Position] {
			diags = append(diags, Diagnostic{
				Rule:   RefOf(r),
				Raw:    r.Raw,
				Reason: fmt.Sprintf("duplicate position %d in %s", r.Position, key),
			})
			continue
		}
		seen[key][r.Position] = true
		byKey[key] = append(byKey[key], r)
	}

	keys := slices.SortedFunc(maps.Keys(byKey), func(a, b ruleset.ChainKey) int {
		if c := cmp.Compare(a.Table, b.Table); c != 0 {
			return c
		}
		return cmp.Compare(a.Chain, b.Chain)
	})

	chains := make([]ChainRules, 0, len(keys))
	for _, k := range keys {
		rs := byKey[k]
		slices.SortFunc(rs, func(a, b ruleset.Rule) int { return cmp.Compare(a.Position, b.Position) })
		chains = append(chains, ChainRules{Key: k, Rules: rs})
	}
	return chains, diags
}
