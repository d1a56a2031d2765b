package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/torosent/crankping/internal/payload"
)

const (
	DefaultWorkers      = 10
	DefaultTimeout      = 15 * time.Second
	DefaultRefIDsFile   = "refids.txt"
	DefaultResultBuffer = 256
)

type Config struct {
	TargetURL    string            `mapstructure:"target"`
	Headers      map[string]string `mapstructure:"headers"`
	Workers      int               `mapstructure:"workers"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Rounds       int64             `mapstructure:"rounds"`
	Duration     time.Duration     `mapstructure:"duration"`
	RefIDs       []string          `mapstructure:"refids"`
	RefIDsEnv    string            `mapstructure:"-"`
	RefIDsFile   string            `mapstructure:"refids_file"`
	RefIDsFormat string            `mapstructure:"refids_format"`
	RefIDsField  string            `mapstructure:"refids_field"`
	UserAgents   []string          `mapstructure:"user_agents"`
	JSONOutput   bool              `mapstructure:"json_output"`
	Dashboard    bool              `mapstructure:"dashboard"`
	Quiet        bool              `mapstructure:"quiet"`
	LogErrors    bool              `mapstructure:"log_errors"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	LockFile     string            `mapstructure:"lock_file"`
	ResultBuffer int               `mapstructure:"result_buffer"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	ConfigFile   string            `mapstructure:"-"`

	// refIDsFileExplicit is set when the file was named by a flag or the
	// config file rather than taken from the default.
	refIDsFileExplicit bool
}

// RefIDsFileOptional reports whether a missing identifiers file may be
// skipped. Only the default refids.txt is optional.
func (c Config) RefIDsFileOptional() bool {
	return !c.refIDsFileExplicit
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, either directly
// or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) != ""
}

// ShouldPropagate reports whether W3C trace headers go out with requests.
// It follows Enabled unless Propagate overrides it.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	target := strings.TrimSpace(c.TargetURL)
	if target == "" {
		issues = append(issues, "target is required (use --help for usage information)")
	} else if u, err := url.Parse(target); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, fmt.Sprintf("target %q must be an absolute http or https URL", target))
	}

	if c.Workers > 500 {
		fmt.Fprintf(os.Stderr, "WARNING: High worker count configured (%d workers). Ensure you have authorization to hit the target system.\n", c.Workers)
	}

	if c.Workers < 1 {
		issues = append(issues, "workers must be >= 1")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.Rounds < 0 {
		issues = append(issues, "rounds must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if n := len(nonEmpty(c.UserAgents)); n > 0 && n < payload.MinUserAgents {
		issues = append(issues, fmt.Sprintf("user agents: need at least %d non-empty entries, got %d", payload.MinUserAgents, n))
	}
	if c.ResultBuffer < 0 {
		issues = append(issues, "result buffer must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	if c.Dashboard && c.Quiet {
		issues = append(issues, "dashboard and quiet are mutually exclusive")
	}

	switch strings.ToLower(strings.TrimSpace(c.RefIDsFormat)) {
	case "", "txt", "text", "csv", "json", "yaml", "yml":
	default:
		issues = append(issues, fmt.Sprintf("refids format %q is not supported (txt, csv, json or yaml)", c.RefIDsFormat))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0 and 1")
	}
	if t.Insecure && t.Enabled() {
		fmt.Fprintln(os.Stderr, "WARNING: OTLP exporter TLS is DISABLED (tracing insecure: true). Spans are sent in plain text.")
	}
	return issues
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
