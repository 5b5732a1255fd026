package cmd

import (
	"context"
	"io"

	"grimm.is/ruleaudit/internal/audit"
)

// OptimizeOptions are the flags of the optimize command.
type OptimizeOptions struct {
	ConfigFile string
	Input      string
	Output     string
	Diff       bool // write a unified diff instead of the optimized rules
	Strict     bool
}

// RunOptimize removes redundant and unreachable rules and writes the
// result in iptables-save form.
func RunOptimize(ctx context.Context, opts OptimizeOptions) error {
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	strict := opts.Strict || cfg.Analysis.Strict
	run, auditErr := auditInput(ctx, cfg, logger, opts.Input, audit.Mode{Plan: true, Strict: strict})
	if run == nil {
		return auditErr
	}
	if err := strictError(auditErr, strict); err != nil {
		return err
	}

	opt, err := run.Optimize()
	if err != nil {
		return err
	}
	out := opt.After
	if opts.Diff {
		out = opt.Diff
	}
	if err := writeOutput(opts.Output, func(w io.Writer) error {
		_, err := io.WriteString(w, out)
		return err
	}); err != nil {
		return err
	}
	Printer.Fprintf(Stderr, "Removed %d rules, %d remain\n", len(opt.Removed), len(opt.Rules))
	return nil
}
