package cmd

import (
	"context"
	"fmt"
	"io"

	"grimm.is/ruleaudit/internal/report"
	"grimm.is/ruleaudit/internal/state"
)

// HistoryOptions are the flags of the history command.
type HistoryOptions struct {
	ConfigFile string
	Limit      int
	Format     string
	ID         string // show one run instead of the list
}

// RunHistory lists recorded runs, newest first. The history database is
// read even when recording is disabled in the config.
func RunHistory(ctx context.Context, opts HistoryOptions) error {
	format, err := report.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var runs []state.Run
	if opts.ID != "" {
		run, err := store.Get(ctx, opts.ID)
		if err != nil {
			return err
		}
		runs = []state.Run{run}
	} else {
		limit := opts.Limit
		if limit <= 0 {
			limit = state.DefaultListLimit
		}
		if runs, err = store.List(ctx, limit); err != nil {
			return err
		}
	}

	return writeOutput("", func(w io.Writer) error {
		return report.WriteRuns(w, format, runs, Printer)
	})
}

// RunHistoryPrune deletes all but the newest keep runs.
func RunHistoryPrune(ctx context.Context, configFile string, keep int) error {
	if keep < 0 {
		return fmt.Errorf("keep must not be negative")
	}
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(ctx, keep)
	if err != nil {
		return err
	}
	logger.Audit("prune", "history", map[string]any{"deleted": n, "kept": keep})
	Printer.Fprintf(Stdout, "Pruned %d runs\n", n)
	return nil
}
