package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"grimm.is/ruleaudit/internal/brand"
	"grimm.is/ruleaudit/internal/config"
	"grimm.is/ruleaudit/internal/validation"
)

// RunConfig handles the config subcommands: validate and generate.
func RunConfig(args []string) error {
	if len(args) < 1 {
		printConfigUsage()
		return fmt.Errorf("missing config subcommand")
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:])
	case "generate":
		return runConfigGenerate(args[1:])
	case "help", "-h", "--help":
		printConfigUsage()
		return nil
	default:
		printConfigUsage()
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}

func runConfigValidate(args []string) error {
	flags := flag.NewFlagSet("config validate", flag.ContinueOnError)
	flags.SetOutput(Stderr)
	configFile := flags.String("config", DefaultConfigFile(), "Configuration file")
	flags.StringVar(configFile, "c", DefaultConfigFile(), "Configuration file (short)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		*configFile = flags.Arg(0)
	}

	// Validate reads the file strictly: a missing file is an error here.
	if _, err := config.LoadFile(*configFile); err != nil {
		return err
	}
	Printer.Fprintf(Stdout, "Configuration is valid\n")
	return nil
}

func runConfigGenerate(args []string) error {
	flags := flag.NewFlagSet("config generate", flag.ContinueOnError)
	flags.SetOutput(Stderr)
	output := flags.String("output", "", "Write to file (extension selects hcl or json)")
	flags.StringVar(output, "o", "", "Write to file (short)")
	format := flags.String("format", "hcl", "Stdout format: hcl, json")
	flags.StringVar(format, "f", "hcl", "Stdout format (short)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := validation.ValidateAllowlist(*format, []string{"hcl", "json"}); err != nil {
		return fmt.Errorf("invalid format %q (want hcl or json)", *format)
	}

	cfg := config.DefaultConfig()
	if *output != "" {
		if err := config.SaveFile(cfg, *output); err != nil {
			return err
		}
		Printer.Fprintf(Stderr, "Wrote %s\n", *output)
		return nil
	}

	data := config.GenerateHCL(cfg)
	if *format == "json" {
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = append(b, '\n')
	}
	_, err := Stdout.Write(data)
	return err
}

func printConfigUsage() {
	Printer.Fprintf(Stderr, `Usage: %s config <command> [options]

Commands:
  validate [-c file]           Validate a configuration file
  generate [-o file] [-f fmt]  Print or write the default configuration
`, brand.BinaryName)
}

// RunVersion prints build information.
func RunVersion(w io.Writer) {
	Printer.Fprintf(w, "%s %s (commit %s, built %s)\n", brand.Name, brand.Version, brand.GitCommit, brand.BuildTime)
}
