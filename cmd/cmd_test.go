package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"grimm.is/ruleaudit/internal/state"
)

const sampleRules = `*filter
:INPUT ACCEPT [0:0]
-A INPUT -p tcp --dport 22 -j ACCEPT
-A INPUT -p tcp --dport 22 -j ACCEPT
-A INPUT -j DROP
COMMIT
`

const invalidRules = "-A INPUT -p icmp --dport 22 -j ACCEPT\n-A INPUT -j DROP\n"

type env struct {
	dir    string
	config string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// setup redirects the standard streams and writes a config that records
// history under a temp dir.
func setup(t *testing.T) *env {
	t.Helper()
	e := &env{dir: t.TempDir(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}

	oldOut, oldErr, oldIn, oldPrinter := Stdout, Stderr, Stdin, Printer
	Stdout, Stderr, Printer = e.stdout, e.stderr, message.NewPrinter(language.English)
	t.Cleanup(func() { Stdout, Stderr, Stdin, Printer = oldOut, oldErr, oldIn, oldPrinter })

	e.config = filepath.Join(e.dir, "ruleaudit.hcl")
	hcl := fmt.Sprintf("history {\n  enabled = true\n  path    = %q\n}\n", filepath.Join(e.dir, "history.db"))
	require.NoError(t, os.WriteFile(e.config, []byte(hcl), 0o644))
	return e
}

func (e *env) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e *env) runs(t *testing.T) []state.Run {
	t.Helper()
	e.stdout.Reset()
	require.NoError(t, RunHistory(context.Background(), HistoryOptions{ConfigFile: e.config, Format: "json"}))
	var runs []state.Run
	require.NoError(t, json.Unmarshal(e.stdout.Bytes(), &runs))
	return runs
}

func TestRunAnalyzeText(t *testing.T) {
	e := setup(t)
	input := e.write(t, "rules.txt", sampleRules)
	out := filepath.Join(e.dir, "report.txt")

	err := RunAnalyze(context.Background(), AnalyzeOptions{ConfigFile: e.config, Input: input, Output: out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Rule Set Analysis")
	assert.Contains(t, string(data), "redundant")
	assert.Contains(t, e.stderr.String(), "Wrote "+out)

	runs := e.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, input, runs[0].Source)
	assert.Equal(t, 3, runs[0].RuleCount)
}

func TestRunAnalyzeStdin(t *testing.T) {
	e := setup(t)
	Stdin = bytes.NewBufferString(sampleRules)

	err := RunAnalyze(context.Background(), AnalyzeOptions{ConfigFile: e.config, Format: "json"})
	require.NoError(t, err)

	var doc struct {
		RunID  string `json:"run_id"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(e.stdout.Bytes(), &doc))
	assert.NotEmpty(t, doc.RunID)
	assert.Equal(t, "stdin", doc.Source)
}

func TestRunAnalyzeBadFormat(t *testing.T) {
	e := setup(t)
	err := RunAnalyze(context.Background(), AnalyzeOptions{ConfigFile: e.config, Format: "xml"})
	assert.Error(t, err)
}

func TestRunAnalyzeStrict(t *testing.T) {
	e := setup(t)
	input := e.write(t, "bad.txt", invalidRules)

	err := RunAnalyze(context.Background(), AnalyzeOptions{ConfigFile: e.config, Input: input})
	require.NoError(t, err)
	assert.Contains(t, e.stderr.String(), "Warning: invalid input")
	assert.Contains(t, e.stdout.String(), "1 rules excluded as invalid")

	err = RunAnalyze(context.Background(), AnalyzeOptions{ConfigFile: e.config, Input: input, Strict: true})
	assert.ErrorContains(t, err, "strict mode")
	assert.Len(t, e.runs(t), 1, "only the lenient run is recorded")
}

func TestRunAnalyzeMissingInput(t *testing.T) {
	e := setup(t)
	err := RunAnalyze(context.Background(), AnalyzeOptions{ConfigFile: e.config, Input: filepath.Join(e.dir, "nope")})
	assert.ErrorContains(t, err, "failed to open rules")
}

func TestRunOptimize(t *testing.T) {
	e := setup(t)
	input := e.write(t, "rules.txt", sampleRules)

	require.NoError(t, RunOptimize(context.Background(), OptimizeOptions{ConfigFile: e.config, Input: input}))
	assert.Equal(t, `*filter
:INPUT ACCEPT [0:0]
-A INPUT -p tcp --dport 22 -j ACCEPT
-A INPUT -j DROP
COMMIT
`, e.stdout.String())
	assert.Contains(t, e.stderr.String(), "Removed 1 rules, 2 remain")

	e.stdout.Reset()
	require.NoError(t, RunOptimize(context.Background(), OptimizeOptions{ConfigFile: e.config, Input: input, Diff: true}))
	assert.Contains(t, e.stdout.String(), "--- "+input+" (original)")
	assert.Contains(t, e.stdout.String(), "+++ "+input+" (optimized)")
}

func TestRunCheck(t *testing.T) {
	e := setup(t)

	require.NoError(t, RunCheck(context.Background(), e.config, e.write(t, "ok.txt", sampleRules)))
	assert.Contains(t, e.stdout.String(), "Rule set is valid: 3 rules in 1 chains")

	e.stdout.Reset()
	err := RunCheck(context.Background(), e.config, e.write(t, "bad.txt", invalidRules))
	assert.Error(t, err)
	assert.Contains(t, e.stdout.String(), "Rule set is invalid: 1 rules excluded")

	assert.Empty(t, e.runs(t), "check never records history")
}

func TestRunHistory(t *testing.T) {
	e := setup(t)
	input := e.write(t, "rules.txt", sampleRules)
	for i := 0; i < 3; i++ {
		require.NoError(t, RunAnalyze(context.Background(), AnalyzeOptions{ConfigFile: e.config, Input: input, Output: filepath.Join(e.dir, "r.txt")}))
	}
	runs := e.runs(t)
	require.Len(t, runs, 3)

	e.stdout.Reset()
	require.NoError(t, RunHistory(context.Background(), HistoryOptions{ConfigFile: e.config, ID: runs[1].ID}))
	assert.Contains(t, e.stdout.String(), runs[1].ID)
	assert.NotContains(t, e.stdout.String(), runs[0].ID)

	err := RunHistory(context.Background(), HistoryOptions{ConfigFile: e.config, ID: "missing"})
	assert.ErrorIs(t, err, state.ErrNotFound)

	e.stdout.Reset()
	require.NoError(t, RunHistoryPrune(context.Background(), e.config, 1))
	assert.Contains(t, e.stdout.String(), "Pruned 2 runs")
	assert.Len(t, e.runs(t), 1)

	assert.Error(t, RunHistoryPrune(context.Background(), e.config, -1))
}

func TestRunConfig(t *testing.T) {
	e := setup(t)

	require.NoError(t, RunConfig([]string{"validate", "-c", e.config}))
	assert.Contains(t, e.stdout.String(), "Configuration is valid")

	bad := e.write(t, "bad.hcl", "logging {\n  level = \"loud\"\n}\n")
	assert.Error(t, RunConfig([]string{"validate", bad}))
	assert.Error(t, RunConfig([]string{"validate", filepath.Join(e.dir, "missing.hcl")}))

	e.stdout.Reset()
	require.NoError(t, RunConfig([]string{"generate"}))
	assert.Contains(t, e.stdout.String(), "analysis {")

	e.stdout.Reset()
	require.NoError(t, RunConfig([]string{"generate", "-f", "json"}))
	assert.True(t, json.Valid(e.stdout.Bytes()))
	assert.ErrorContains(t, RunConfig([]string{"generate", "-f", "toml"}), "want hcl or json")

	out := filepath.Join(e.dir, "generated.hcl")
	require.NoError(t, RunConfig([]string{"generate", "-o", out}))
	require.NoError(t, RunConfig([]string{"validate", out}))

	assert.Error(t, RunConfig(nil))
	assert.Error(t, RunConfig([]string{"frobnicate"}))
}

func TestRunServeStopsOnCancel(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, RunServe(ctx, e.config, "127.0.0.1:0"))
	assert.Contains(t, e.stderr.String(), "Listening on 127.0.0.1:")
}

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	RunVersion(&buf)
	assert.Contains(t, buf.String(), "dev")
}
