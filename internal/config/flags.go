package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "concbench",
		Short:         "Compare a bounded worker pool against one goroutine per task",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Run shape
	flags.StringP("model", "m", string(ModelCompare), "Executor model: platform, virtual or compare")
	flags.IntP("requests", "n", DefaultRequests, "Number of work units per run")
	flags.Int("delay-ms", DefaultDelayMs, "Simulated blocking wait per unit in milliseconds")
	flags.IntP("pool-size", "p", DefaultPoolSize, "Worker count of the bounded model")
	flags.Int("iterations", DefaultIterations, "CPU loop iterations per unit after the wait (0 uses the default)")
	flags.IntP("submit-rate", "r", 0, "Units submitted per second (0 means all at once)")
	flags.Int("repeat", 1, "Number of times to repeat the run")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("output-format", string(OutputText), "Output format: text, json or yaml")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard while running")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.Bool("log-errors", false, "Log each failed work unit to stderr")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Result sinks
	flags.StringSlice("threshold", nil, "Result thresholds (repeatable, e.g., 'total_time:ms < 2000')")
	flags.String("history-file", "", "Append results to this JSONL history file")
	flags.Bool("history-list", false, "List the records of the history file and exit")
	flags.String("history-show", "", "Print the history record with this ID and exit")
	flags.String("prom-textfile", "", "Write results in Prometheus text format to this path")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of runs to trace (0.0 to 1.0)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("model") {
		val, err := fs.GetString("model")
		if err != nil {
			return err
		}
		cfg.Model = Model(strings.ToLower(strings.TrimSpace(val)))
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"requests", &cfg.Requests},
		{"delay-ms", &cfg.DelayMs},
		{"pool-size", &cfg.PoolSize},
		{"iterations", &cfg.Iterations},
		{"submit-rate", &cfg.SubmitRate},
		{"repeat", &cfg.Repeat},
	}
	for _, f := range ints {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"json-output", &cfg.JSONOutput},
		{"dashboard", &cfg.Dashboard},
		{"log-json", &cfg.LogJSON},
		{"log-errors", &cfg.LogErrors},
		{"history-list", &cfg.HistoryList},
		{"tracing-insecure", &cfg.Tracing.Insecure},
	}
	for _, f := range bools {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"html-output", &cfg.HTMLOutput},
		{"log-level", &cfg.LogLevel},
		{"history-file", &cfg.HistoryFile},
		{"history-show", &cfg.HistoryShow},
		{"prom-textfile", &cfg.PromTextfile},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
	}
	for _, f := range strs {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	if fs.Changed("output-format") {
		val, err := fs.GetString("output-format")
		if err != nil {
			return err
		}
		cfg.OutputFormat = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	return nil
}
