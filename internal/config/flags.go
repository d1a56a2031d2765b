package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crankping --target URL [flags]",
		Short:         "Continuously POST identifiers to an endpoint in fixed-size concurrent rounds",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Target
	flags.String("target", "", "Endpoint URL every request is POSTed to")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.StringArray("user-agent", nil, "User-Agent to rotate through (repeat at least 3 times, replaces the built-in pool)")

	// Identifiers
	flags.StringSlice("refid", nil, "Identifier to cycle through (repeatable, overrides REFIDS and the refids file)")
	flags.String("refids-file", DefaultRefIDsFile, "File with identifiers (.txt, .csv, .json, .yaml)")
	flags.String("refids-format", "", "Identifiers file format, detected from the extension when empty")
	flags.String("refids-field", "", "CSV column or JSON path selecting identifiers")

	// Dispatch
	flags.IntP("workers", "c", DefaultWorkers, "Requests per round (concurrent workers)")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Int64("rounds", 0, "Stop after this many rounds (0 means run until interrupted)")
	flags.DurationP("duration", "d", 0, "Stop after this long (0 means run until interrupted)")
	flags.Int("result-buffer", DefaultResultBuffer, "Capacity of the result channel between workers and output")

	// Output
	flags.Bool("json-output", false, "Emit one JSON object per result and a JSON report")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.BoolP("quiet", "q", false, "Print a progress line instead of every result")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("lock-file", "", "Refuse to start while another run holds this lock file")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Thresholds
	flags.StringArray("threshold", nil, "Assertion checked at exit (repeatable, e.g. 'latency:p99 < 500', 'success:rate >= 0.95')")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests traced (0.0 to 1.0)")
	flags.Bool("tracing-insecure", false, "Send spans without TLS")
	flags.Bool("tracing-propagate", false, "Inject W3C trace headers into requests (defaults to on when tracing is enabled)")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
	fmt.Fprintf(out, "\nEnvironment:\n  REFIDS  comma separated identifiers, used when --refid is not given\n")
}

// applyFlagOverrides applies explicitly set flags on top of file and
// environment values.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("user-agent") {
		val, err := fs.GetStringArray("user-agent")
		if err != nil {
			return err
		}
		cfg.UserAgents = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("refid") {
		val, err := fs.GetStringSlice("refid")
		if err != nil {
			return err
		}
		cfg.RefIDs = val
	}
	if fs.Changed("refids-file") {
		val, err := fs.GetString("refids-file")
		if err != nil {
			return err
		}
		cfg.RefIDsFile = strings.TrimSpace(val)
		cfg.refIDsFileExplicit = true
	}
	if fs.Changed("refids-format") {
		val, err := fs.GetString("refids-format")
		if err != nil {
			return err
		}
		cfg.RefIDsFormat = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("refids-field") {
		val, err := fs.GetString("refids-field")
		if err != nil {
			return err
		}
		cfg.RefIDsField = strings.TrimSpace(val)
	}
	if fs.Changed("workers") {
		val, err := fs.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("rounds") {
		val, err := fs.GetInt64("rounds")
		if err != nil {
			return err
		}
		cfg.Rounds = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("result-buffer") {
		val, err := fs.GetInt("result-buffer")
		if err != nil {
			return err
		}
		cfg.ResultBuffer = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("quiet") {
		val, err := fs.GetBool("quiet")
		if err != nil {
			return err
		}
		cfg.Quiet = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("lock-file") {
		val, err := fs.GetString("lock-file")
		if err != nil {
			return err
		}
		cfg.LockFile = strings.TrimSpace(val)
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return applyTracingFlags(&cfg.Tracing, fs)
}

func applyTracingFlags(t *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		t.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		t.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		t.Propagate = &val
	}
	return nil
}
