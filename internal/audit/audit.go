// Package audit runs a complete rule audit: import, analysis,
// recommendation and history recording. The CLI and the API server share
// it so both produce the same runs.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/clock"
	"grimm.is/ruleaudit/internal/config"
	imports "grimm.is/ruleaudit/internal/import"
	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/metrics"
	"grimm.is/ruleaudit/internal/recommend"
	"grimm.is/ruleaudit/internal/state"
)

// Recorder stores run summaries. *state.SQLiteStore implements it.
type Recorder interface {
	Record(ctx context.Context, run state.Run) (state.Run, error)
}

// Options configures an Auditor.
type Options struct {
	Config  *config.Config    // nil uses config.DefaultConfig()
	Logger  *logging.Logger   // nil discards output
	History Recorder          // nil disables recording
	Metrics *metrics.Registry // nil disables metrics
}

// Auditor runs audits with a fixed configuration. It is safe for concurrent
// use.
type Auditor struct {
	cfg     *config.Config
	engine  *analyzer.Engine
	history Recorder
	metrics *metrics.Registry
	logger  *logging.Logger
}

// Run is the outcome of one audit.
type Run struct {
	ID       string
	Source   string
	Import   *imports.IPTablesConfig
	Result   *analyzer.Result
	Plan     *recommend.Plan
	Recorded bool
}

// Warnings returns the importer warnings.
func (r *Run) Warnings() []string {
	if r.Import == nil {
		return nil
	}
	return r.Import.Warnings
}

// New builds an Auditor from opts.
func New(opts Options) (*Auditor, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	engine, err := analyzer.New(cfg.AnalyzerOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("invalid analysis options: %w", err)
	}
	return &Auditor{
		cfg:     cfg,
		engine:  engine,
		history: opts.History,
		metrics: opts.Metrics,
		logger:  logger.WithComponent("audit"),
	}, nil
}

// Mode selects what an audit produces.
type Mode struct {
	Plan   bool // also build a recommendation plan
	Strict bool // invalid rules reject the run, which is then not recorded
}

// Audit reads rules from r and analyzes them, building a recommendation
// plan when mode.Plan is set. The run is recorded when history is
// configured.
//
// Invalid rules do not abort the audit: the returned Run is complete for the
// remaining rules and err matches analyzer.ErrInvalidInput. In strict mode
// such a run is returned for reporting but never recorded. Any other error
// returns a nil Run.
func (a *Auditor) Audit(ctx context.Context, source string, r io.Reader, mode Mode) (*Run, error) {
	id := uuid.NewString()
	logger := a.logger.WithFields(map[string]any{"run": id, "source": source})

	parsed, err := imports.ParseIPTables(r)
	if err != nil {
		return nil, err
	}
	for _, w := range parsed.Warnings {
		logger.Warn("import warning", "warning", w)
	}

	start := clock.Now()
	res, analyzeErr := a.engine.Analyze(ctx, parsed.Rules)
	if a.metrics != nil {
		a.metrics.ObserveAnalysis(res, clock.Since(start), analyzeErr)
	}
	if res == nil {
		return nil, analyzeErr
	}
	if analyzeErr != nil && !errors.Is(analyzeErr, analyzer.ErrInvalidInput) {
		return nil, analyzeErr
	}

	run := &Run{ID: id, Source: source, Import: parsed, Result: res}

	if mode.Plan {
		rc := recommend.New(recommend.Options{
			Policies:     parsed.Policies(),
			MaxMultiport: a.cfg.Analysis.MaxMultiport,
		})
		p, err := rc.Recommend(parsed.Rules, res)
		if err != nil {
			return nil, fmt.Errorf("failed to build plan: %w", err)
		}
		run.Plan = p
		if a.metrics != nil {
			a.metrics.RecordRemovals(len(p.Removals))
		}
	}

	if analyzeErr != nil && mode.Strict {
		logger.Info("run rejected in strict mode", "invalid", len(res.Diagnostics))
		return run, analyzeErr
	}
	a.record(ctx, logger, run)
	return run, analyzeErr
}

// record stores the run. Failures are logged, not returned: history is a
// side channel and must not fail an audit.
func (a *Auditor) record(ctx context.Context, logger *logging.Logger, run *Run) {
	if a.history == nil {
		return
	}
	rec := state.NewRun(run.Result, run.Source)
	rec.ID = run.ID
	stored, err := a.history.Record(ctx, rec)
	if a.metrics != nil {
		a.metrics.RecordHistoryWrite(err)
	}
	if err != nil {
		logger.Warn("failed to record run", "error", err)
		return
	}
	run.Recorded = true
	logger.Audit("record", "run", map[string]any{
		"fingerprint": stored.Fingerprint,
		"findings":    stored.FindingCount,
	})
}
