package audit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/logging"
	"grimm.is/ruleaudit/internal/metrics"
	"grimm.is/ruleaudit/internal/state"
)

const rules = `*filter
:INPUT ACCEPT [0:0]
-A INPUT -p tcp --dport 22 -j ACCEPT
-A INPUT -p tcp --dport 22 -j ACCEPT
-A INPUT -j DROP
-A INPUT -p tcp --dport 80 -j ACCEPT
COMMIT
`

type fakeRecorder struct {
	mu   sync.Mutex
	runs []state.Run
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run state.Run) (state.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return state.Run{}, f.err
	}
	f.runs = append(f.runs, run)
	return run, nil
}

func TestAuditWithPlan(t *testing.T) {
	rec := &fakeRecorder{}
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	a, err := New(Options{History: rec, Metrics: reg})
	require.NoError(t, err)

	run, err := a.Audit(context.Background(), "rules.txt", strings.NewReader(rules), Mode{Plan: true})
	require.NoError(t, err)
	require.NotNil(t, run.Plan)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "rules.txt", run.Source)
	assert.Equal(t, 4, run.Result.RuleCount)
	assert.Equal(t, 1, run.Result.Count(analyzer.KindRedundant))
	assert.Equal(t, 1, run.Result.Count(analyzer.KindUnreachable))
	assert.Len(t, run.Plan.Removals, 2)
	assert.Len(t, run.Plan.Policies, 0, "INPUT has a catch-all DROP")

	assert.True(t, run.Recorded)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, run.ID, rec.runs[0].ID)
	assert.Equal(t, run.Result.Fingerprint, rec.runs[0].Fingerprint)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.AnalysesTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(reg.RemovalsSuggested))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HistoryWrites.WithLabelValues("ok")))
}

func TestAuditWithoutPlanOrHistory(t *testing.T) {
	a, err := New(Options{})
	require.NoError(t, err)

	run, err := a.Audit(context.Background(), "", strings.NewReader(rules), Mode{})
	require.NoError(t, err)
	assert.Nil(t, run.Plan)
	assert.False(t, run.Recorded)

	_, err = run.Optimize()
	assert.Error(t, err)
}

func TestAuditHistoryFailureIsNotFatal(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk full")}
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	a, err := New(Options{History: rec, Metrics: reg})
	require.NoError(t, err)

	run, err := a.Audit(context.Background(), "", strings.NewReader(rules), Mode{})
	require.NoError(t, err)
	assert.False(t, run.Recorded)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HistoryWrites.WithLabelValues("error")))
}

func TestAuditInvalidRules(t *testing.T) {
	a, err := New(Options{})
	require.NoError(t, err)

	input := "-A INPUT -p icmp --dport 22 -j ACCEPT\n-A INPUT -p tcp --dport 80 -j ACCEPT\n"
	run, err := a.Audit(context.Background(), "", strings.NewReader(input), Mode{Plan: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, analyzer.ErrInvalidInput))
	require.NotNil(t, run)
	assert.Len(t, run.Result.Diagnostics, 1)
	assert.NotEmpty(t, run.Warnings())
	assert.NotNil(t, run.Plan)
}

func TestAuditStrictRejectionIsNotRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	a, err := New(Options{History: rec})
	require.NoError(t, err)

	input := "-A INPUT -p icmp --dport 22 -j ACCEPT\n-A INPUT -p tcp --dport 80 -j ACCEPT\n"
	run, err := a.Audit(context.Background(), "", strings.NewReader(input), Mode{Plan: true, Strict: true})
	require.ErrorIs(t, err, analyzer.ErrInvalidInput)
	require.NotNil(t, run, "rejected runs are still returned for reporting")
	assert.False(t, run.Recorded)
	assert.Empty(t, rec.runs)

	run, err = a.Audit(context.Background(), "", strings.NewReader(input), Mode{Plan: true})
	require.ErrorIs(t, err, analyzer.ErrInvalidInput)
	assert.True(t, run.Recorded, "lenient runs with invalid rules are recorded")
	assert.Len(t, rec.runs, 1)

	run, err = a.Audit(context.Background(), "", strings.NewReader(rules), Mode{Strict: true})
	require.NoError(t, err)
	assert.True(t, run.Recorded)
}

func TestAuditLogsCarryRun(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})
	a, err := New(Options{Logger: logger, History: &fakeRecorder{}})
	require.NoError(t, err)

	run, err := a.Audit(context.Background(), "fw1", strings.NewReader(rules), Mode{})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "AUDIT")
	assert.Contains(t, buf.String(), "run="+run.ID)
	assert.Contains(t, buf.String(), "source=fw1")
}

func TestAuditCanceled(t *testing.T) {
	a, err := New(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := a.Audit(ctx, "", strings.NewReader(rules), Mode{Plan: true})
	assert.Error(t, err)
	assert.Nil(t, run)
}

func TestOptimize(t *testing.T) {
	a, err := New(Options{})
	require.NoError(t, err)
	run, err := a.Audit(context.Background(), "rules.txt", strings.NewReader(rules), Mode{Plan: true})
	require.NoError(t, err)

	opt, err := run.Optimize()
	require.NoError(t, err)
	assert.Len(t, opt.Removed, 2)
	assert.Len(t, opt.Rules, 2)
	assert.Equal(t, rules, opt.Before)
	assert.Equal(t, `*filter
:INPUT ACCEPT [0:0]
-A INPUT -p tcp --dport 22 -j ACCEPT
-A INPUT -j DROP
COMMIT
`, opt.After)
	assert.Contains(t, opt.Diff, "--- rules.txt (original)")
	assert.Contains(t, opt.Diff, "+++ rules.txt (optimized)")
	assert.Contains(t, opt.Diff, "--dport 80")

	// Re-auditing the optimized set finds nothing left to remove.
	again, err := a.Audit(context.Background(), "", strings.NewReader(opt.After), Mode{Plan: true})
	require.NoError(t, err)
	assert.Empty(t, again.Plan.Removals)
}

func TestOptimizeNoChanges(t *testing.T) {
	a, err := New(Options{})
	require.NoError(t, err)
	run, err := a.Audit(context.Background(), "", strings.NewReader("-A INPUT -p tcp --dport 80 -j ACCEPT\n"), Mode{Plan: true})
	require.NoError(t, err)

	opt, err := run.Optimize()
	require.NoError(t, err)
	assert.Empty(t, opt.Removed)
	assert.Empty(t, opt.Diff)
}
