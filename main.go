package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/ruleaudit/cmd"
	"grimm.is/ruleaudit/internal/brand"
	"grimm.is/ruleaudit/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "analyze":
		flags := flag.NewFlagSet("analyze", flag.ExitOnError)
		var opts cmd.AnalyzeOptions
		configFlags(flags, &opts.ConfigFile)
		flags.StringVar(&opts.Input, "input", "-", "Rules file in iptables-save format (- for stdin)")
		flags.StringVar(&opts.Input, "i", "-", "Rules file (short)")
		flags.StringVar(&opts.Output, "output", "-", "Report file (- for stdout)")
		flags.StringVar(&opts.Output, "o", "-", "Report file (short)")
		flags.StringVar(&opts.Format, "format", "text", "Report format: text, json, yaml")
		flags.StringVar(&opts.Format, "f", "text", "Report format (short)")
		flags.BoolVar(&opts.Strict, "strict", false, "Fail when any rule is invalid")
		flags.BoolVar(&opts.History, "history", false, "Record the run in the history database")
		flags.Parse(os.Args[2:])
		if flags.NArg() > 0 {
			opts.Input = flags.Arg(0)
		}
		err = cmd.RunAnalyze(ctx, opts)

	case "optimize":
		flags := flag.NewFlagSet("optimize", flag.ExitOnError)
		var opts cmd.OptimizeOptions
		configFlags(flags, &opts.ConfigFile)
		flags.StringVar(&opts.Input, "input", "-", "Rules file in iptables-save format (- for stdin)")
		flags.StringVar(&opts.Input, "i", "-", "Rules file (short)")
		flags.StringVar(&opts.Output, "output", "-", "Output file (- for stdout)")
		flags.StringVar(&opts.Output, "o", "-", "Output file (short)")
		flags.BoolVar(&opts.Diff, "diff", false, "Write a unified diff instead of the optimized rules")
		flags.BoolVar(&opts.Strict, "strict", false, "Fail when any rule is invalid")
		flags.Parse(os.Args[2:])
		if flags.NArg() > 0 {
			opts.Input = flags.Arg(0)
		}
		err = cmd.RunOptimize(ctx, opts)

	case "check":
		flags := flag.NewFlagSet("check", flag.ExitOnError)
		var configFile string
		configFlags(flags, &configFile)
		input := flags.String("input", "-", "Rules file in iptables-save format (- for stdin)")
		flags.StringVar(input, "i", "-", "Rules file (short)")
		flags.Parse(os.Args[2:])
		if flags.NArg() > 0 {
			*input = flags.Arg(0)
		}
		err = cmd.RunCheck(ctx, configFile, *input)

	case "serve":
		flags := flag.NewFlagSet("serve", flag.ExitOnError)
		var configFile string
		configFlags(flags, &configFile)
		listen := flags.String("listen", "", "Listen address (overrides api.listen)")
		flags.StringVar(listen, "l", "", "Listen address (short)")
		flags.Parse(os.Args[2:])
		err = cmd.RunServe(ctx, configFile, *listen)

	case "history":
		args := os.Args[2:]
		if len(args) > 0 && args[0] == "prune" {
			flags := flag.NewFlagSet("history prune", flag.ExitOnError)
			var configFile string
			configFlags(flags, &configFile)
			keep := flags.Int("keep", 100, "Number of newest runs to keep")
			flags.Parse(args[1:])
			err = cmd.RunHistoryPrune(ctx, configFile, *keep)
			break
		}
		flags := flag.NewFlagSet("history", flag.ExitOnError)
		var opts cmd.HistoryOptions
		configFlags(flags, &opts.ConfigFile)
		flags.IntVar(&opts.Limit, "n", 20, "Number of runs to show")
		flags.StringVar(&opts.Format, "format", "text", "Output format: text, json, yaml")
		flags.StringVar(&opts.Format, "f", "text", "Output format (short)")
		flags.Parse(args)
		if flags.NArg() > 0 {
			opts.ID = flags.Arg(0)
		}
		err = cmd.RunHistory(ctx, opts)

	case "config":
		err = cmd.RunConfig(os.Args[2:])

	case "version", "-v", "--version":
		cmd.RunVersion(os.Stdout)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		printer.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func configFlags(flags *flag.FlagSet, target *string) {
	flags.StringVar(target, "config", cmd.DefaultConfigFile(), "Configuration file (HCL or JSON)")
	flags.StringVar(target, "c", cmd.DefaultConfigFile(), "Configuration file (short)")
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  analyze   Analyze a rule set and print findings and recommendations
            Options: -i <rules>, -o <file>, -f text|json|yaml, --strict, --history
  optimize  Print the rule set with redundant and unreachable rules removed
            Options: -i <rules>, -o <file>, --diff, --strict
  check     Validate a rule set
  serve     Run the REST API
            Options: --listen (-l) <addr>
  history   List recorded runs, or show one: history <run-id>
            Options: -n <count>, -f text|json|yaml
            Subcommand: prune --keep <n>
  config    Manage configuration
            Subcommands: validate, generate
  version   Print version information

All commands accept --config (-c) <file>. Environment variables prefixed
with %s_ override file settings.

Examples:
  iptables-save | %s analyze
  %s analyze -i rules.txt -f json -o report.json
  %s optimize -i rules.txt --diff
  %s serve -c /etc/%s/%s.hcl
`,
		brand.Name, brand.Description,
		brand.BinaryName,
		brand.ConfigEnvPrefix,
		brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName,
		brand.LowerName, brand.LowerName)
}
