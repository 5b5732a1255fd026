// Package cmd implements the ruleaudit subcommands. main parses flags and
// calls the RunXxx functions here.
package cmd

import (
	"fmt"
	"io"
	"os"

	"grimm.is/ruleaudit/internal/brand"
	"grimm.is/ruleaudit/internal/config"
	"grimm.is/ruleaudit/internal/i18n"
	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/state"
)

// Printer localizes CLI output per LANG.
var Printer = i18n.NewCLIPrinter()

// Standard streams, replaced in tests.
var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// DefaultConfigFile is used when -c is not given. A missing file means
// defaults.
func DefaultConfigFile() string {
	return brand.DefaultConfigPath()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg. Logs go to stderr, and to
// syslog when the logging block enables it. The returned func closes the
// syslog connection.
func newLogger(cfg *config.Config) (*logging.Logger, func(), error) {
	lc := cfg.LoggerConfig()
	lc.Output = Stderr
	closer := func() {}

	if sc, ok := cfg.Syslog(); ok {
		sw, err := logging.NewSyslogWriter(sc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to syslog: %w", err)
		}
		lc.Output = io.MultiWriter(Stderr, sw)
		closer = func() { sw.Close() }
	}

	return logging.New(lc), closer, nil
}

// openInput opens path for reading; "" and "-" mean stdin. The returned
// name labels the source in reports and history.
func openInput(path string) (io.ReadCloser, string, error) {
	if path == "" || path == "-" {
		return io.NopCloser(Stdin), "stdin", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open rules: %w", err)
	}
	return f, path, nil
}

// writeOutput calls write with path opened for writing; "" and "-" mean
// stdout.
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	Printer.Fprintf(Stderr, "Wrote %s\n", path)
	return nil
}

func openHistory(cfg *config.Config) (*state.SQLiteStore, error) {
	store, err := state.NewSQLiteStore(state.DefaultOptions(cfg.History.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}
