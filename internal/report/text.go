package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/message"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/recommend"
	"grimm.is/ruleaudit/internal/state"
)

func writeText(w io.Writer, rep *Report, p *message.Printer) error {
	if rep == nil || rep.Result == nil {
		return fmt.Errorf("report has no result")
	}
	st := newStyles(lipgloss.NewRenderer(w))
	res := rep.Result
	var b strings.Builder

	b.WriteString(st.Header.Render(p.Sprintf("Rule Set Analysis")) + "\n")
	if rep.Source != "" {
		b.WriteString(st.Muted.Render(p.Sprintf("Source: %s", rep.Source)) + "\n")
	}
	if rep.RunID != "" {
		b.WriteString(st.Muted.Render(p.Sprintf("Run: %s", rep.RunID)) + "\n")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%-18s %s\n", p.Sprintf("Security score"),
		st.score(res.SecurityScore).Render(fmt.Sprintf("%d/%d", res.SecurityScore, analyzer.MaxScore)))
	fmt.Fprintf(&b, "%-18s %s\n", p.Sprintf("Efficiency score"),
		st.score(res.EfficiencyScore).Render(fmt.Sprintf("%d/%d", res.EfficiencyScore, analyzer.MaxScore)))
	s := res.Stats
	b.WriteString(p.Sprintf("Rules: %d  Chains: %d  Tables: %d  Custom chains: %d",
		s.TotalRules, s.TotalChains, s.TotalTables, s.CustomChains) + "\n")

	if len(rep.Warnings) > 0 {
		b.WriteString(st.Section.Render(p.Sprintf("Import warnings (%d)", len(rep.Warnings))) + "\n")
		for _, warn := range rep.Warnings {
			b.WriteString(st.Indent.Render(st.Warn.Render("! ")+warn) + "\n")
		}
	}

	if len(res.Diagnostics) > 0 {
		b.WriteString(st.Section.Render(p.Sprintf("%d rules excluded as invalid", len(res.Diagnostics))) + "\n")
		for _, d := range res.Diagnostics {
			b.WriteString(st.Indent.Render(d.String()) + "\n")
		}
	}

	b.WriteString(st.Section.Render(p.Sprintf("Findings (%d)", len(res.Findings))) + "\n")
	if len(res.Findings) == 0 {
		b.WriteString(st.Indent.Render(st.Good.Render(p.Sprintf("No issues found."))) + "\n")
	} else {
		b.WriteString(findingsTable(st, res.Findings, p) + "\n")
	}

	if rep.Plan != nil {
		writePlan(&b, st, rep.Plan, p)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func findingsTable(st styles, findings []analyzer.Finding, p *message.Printer) string {
	rows := make([][]string, 0, len(findings))
	for _, f := range findings {
		refs := make([]string, 0, len(f.Refs()))
		for _, r := range f.Refs() {
			refs = append(refs, "#"+strconv.Itoa(r.Position))
		}
		rows = append(rows, []string{
			f.Severity().String(),
			f.Kind().String(),
			f.Key().String() + " " + strings.Join(refs, ","),
			f.Description(),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Muted).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.TableHeader
			}
			if col == 0 && row >= 0 && row < len(rows) {
				return st.severity(rows[row][0]).Padding(0, 1)
			}
			return st.Cell
		}).
		Headers(p.Sprintf("Severity"), p.Sprintf("Kind"), p.Sprintf("Rules"), p.Sprintf("Description")).
		Rows(rows...).
		String()
}

func writePlan(b *strings.Builder, st styles, plan *recommend.Plan, p *message.Printer) {
	if len(plan.Recommendations) > 0 {
		b.WriteString(st.Section.Render(p.Sprintf("Recommendations")) + "\n")
		for i, r := range plan.Recommendations {
			fmt.Fprintf(b, "%2d. %s %s (%d)  %s\n", i+1,
				st.severity(r.Priority.String()).Render("["+r.Priority.String()+"]"),
				r.Title, r.Count,
				st.Muted.Render(p.Sprintf("impact %.1f%%", r.EstimatedImpact)))
			for _, step := range r.Steps {
				b.WriteString(st.Indent.Render("    - "+step) + "\n")
			}
		}
	}

	if len(plan.Consolidations) > 0 {
		b.WriteString(st.Section.Render(p.Sprintf("Consolidations")) + "\n")
		for _, c := range plan.Consolidations {
			refs := make([]string, 0, len(c.Rules))
			for _, r := range c.Rules {
				refs = append(refs, "#"+strconv.Itoa(r.Position))
			}
			b.WriteString(st.Indent.Render(p.Sprintf("Merge %s in %s/%s into:", strings.Join(refs, ","), c.Table, c.Chain)) + "\n")
			b.WriteString(st.Indent.Render("    "+c.Rule) + "\n")
		}
	}

	if len(plan.Policies) > 0 {
		b.WriteString(st.Section.Render(p.Sprintf("Default policies")) + "\n")
		for _, a := range plan.Policies {
			b.WriteString(st.Indent.Render(p.Sprintf("Set %s/%s policy %s -> %s: %s",
				a.Table, a.Chain, a.Current, a.Suggest, a.Reason)) + "\n")
		}
	}

	sv := plan.Savings
	b.WriteString(st.Section.Render(p.Sprintf("Estimated savings")) + "\n")
	b.WriteString(st.Indent.Render(p.Sprintf("Rules reduced: %d (%.1f%%)", sv.RulesReduced, sv.PerformancePercent)) + "\n")
	b.WriteString(st.Indent.Render(p.Sprintf("Security gain: +%d  Efficiency gain: +%d", sv.SecurityGain, sv.EfficiencyGain)) + "\n")
}

func writeRunsText(w io.Writer, runs []state.Run, p *message.Printer) error {
	st := newStyles(lipgloss.NewRenderer(w))
	if len(runs) == 0 {
		_, err := io.WriteString(w, st.Muted.Render(p.Sprintf("No runs recorded."))+"\n")
		return err
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.Timestamp.Format("2006-01-02 15:04:05"),
			r.ID,
			strconv.Itoa(r.RuleCount),
			strconv.Itoa(r.FindingCount),
			strconv.Itoa(r.SecurityScore),
			strconv.Itoa(r.EfficiencyScore),
			r.Source,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Muted).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.TableHeader
			}
			return st.Cell
		}).
		Headers(p.Sprintf("Time"), p.Sprintf("Run"), p.Sprintf("Rules"), p.Sprintf("Findings"),
			p.Sprintf("Security"), p.Sprintf("Efficiency"), p.Sprintf("Source")).
		Rows(rows...)

	_, err := io.WriteString(w, t.String()+"\n")
	return err
}
