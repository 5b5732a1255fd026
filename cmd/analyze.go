package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/audit"
	"grimm.is/ruleaudit/internal/config"
	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/metrics"
	"grimm.is/ruleaudit/internal/report"
)

// AnalyzeOptions are the flags of the analyze command.
type AnalyzeOptions struct {
	ConfigFile string
	Input      string // "" or "-" reads stdin
	Output     string // "" or "-" writes stdout
	Format     string // text, json or yaml
	Strict     bool   // fail on invalid rules; also set by the config
	History    bool   // record the run even if the config leaves history off
}

// RunAnalyze audits a rule set and writes the report with its
// recommendation plan.
func RunAnalyze(ctx context.Context, opts AnalyzeOptions) error {
	format, err := report.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.History {
		cfg.History.Enabled = true
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

	rep := &report.Report{
		RunID:    run.ID,
		Source:   run.Source,
		Warnings: run.Warnings(),
		Result:   run.Result,
		Plan:     run.Plan,
	}
	if err := writeOutput(opts.Output, func(w io.Writer) error {
		return report.Write(w, format, rep, Printer)
	}); err != nil {
		return err
	}
	return strictError(auditErr, strict)
}

// auditInput reads input and audits it, recording to history when the
// config enables it. A non-nil Run may come with an invalid-input error.
func auditInput(ctx context.Context, cfg *config.Config, logger *logging.Logger, input string, mode audit.Mode) (*audit.Run, error) {
	in, source, err := openInput(input)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	opts := audit.Options{Config: cfg, Logger: logger, Metrics: metrics.Get()}
	if cfg.History.Enabled {
		store, err := openHistory(cfg)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		opts.History = store
	}

	auditor, err := audit.New(opts)
	if err != nil {
		return nil, err
	}
	return auditor.Audit(ctx, source, in, mode)
}

// strictError turns invalid-input diagnostics into failure in strict mode
// and into a warning otherwise.
func strictError(err error, strict bool) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, analyzer.ErrInvalidInput) {
		return err
	}
	if strict {
		return fmt.Errorf("strict mode: %w", err)
	}
	Printer.Fprintf(Stderr, "Warning: %s\n", err)
	return nil
}
