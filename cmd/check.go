package cmd

import (
	"context"
	"fmt"

	"grimm.is/ruleaudit/internal/audit"
)

// RunCheck validates a rule set without reporting findings. It fails when
// any rule would be excluded from analysis.
func RunCheck(ctx context.Context, configFile, input string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	cfg.History.Enabled = false
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	run, auditErr := auditInput(ctx, cfg, logger, input, audit.Mode{})
	if run == nil {
		return auditErr
	}

	for _, w := range run.Warnings() {
		Printer.Fprintf(Stderr, "Warning: %s\n", w)
	}
	res := run.Result
	if n := len(res.Diagnostics); n > 0 {
		for _, d := range res.Diagnostics {
			Printer.Fprintf(Stdout, "  %s\n", d)
		}
		Printer.Fprintf(Stdout, "Rule set is invalid: %d rules excluded\n", n)
		return fmt.Errorf("%d invalid rules", n)
	}
	Printer.Fprintf(Stdout, "Rule set is valid: %d rules in %d chains\n", res.Stats.TotalRules, res.Stats.TotalChains)
	return nil
}
