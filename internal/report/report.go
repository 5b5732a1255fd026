// Package report renders analysis results and run history as text, JSON or
// YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/message"
	"gopkg.in/yaml.v2"

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/i18n"
	"grimm.is/ruleaudit/internal/recommend"
	"grimm.is/ruleaudit/internal/state"
	"grimm.is/ruleaudit/internal/validation"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML}
}

// formatNames are the accepted spellings; empty means text.
var formatNames = []string{"", "text", "txt", "json", "yaml", "yml"}

// ParseFormat parses a format name; "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if err := validation.ValidateAllowlist(name, formatNames); err != nil {
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
	switch name {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatText, nil
}

// Report is one analysis with its optional plan.
type Report struct {
	RunID    string           `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Source   string           `json:"source,omitempty" yaml:"source,omitempty"`
	Warnings []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Result   *analyzer.Result `json:"result" yaml:"result"`
	Plan     *recommend.Plan  `json:"plan,omitempty" yaml:"plan,omitempty"`
}

// Write renders rep to w. A nil printer uses the default language.
func Write(w io.Writer, f Format, rep *Report, p *message.Printer) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatYAML:
		return writeYAML(w, rep)
	case FormatText, "":
		return writeText(w, rep, printer(p))
	}
	return fmt.Errorf("unknown output format %q", f)
}

// WriteRuns renders a history listing.
func WriteRuns(w io.Writer, f Format, runs []state.Run, p *message.Printer) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, runs)
	case FormatYAML:
		return writeYAML(w, runs)
	case FormatText, "":
		return writeRunsText(w, runs, printer(p))
	}
	return fmt.Errorf("unknown output format %q", f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func printer(p *message.Printer) *message.Printer {
	if p == nil {
		return i18n.NewPrinter(i18n.DefaultLang)
	}
	return p
}
