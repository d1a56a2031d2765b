package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables mirroring config keys,
// e.g. CRANKPING_TARGET.
const EnvPrefix = "CRANKPING"

// RefIDsEnvVar holds comma separated identifiers.
const RefIDsEnvVar = "REFIDS"

// envKeys are the settings that may come from CRANKPING_* variables.
var envKeys = []string{
	"target",
	"workers",
	"timeout",
	"rounds",
	"duration",
	"refids_file",
	"refids_format",
	"refids_field",
	"metrics_addr",
	"lock_file",
}

// Loader handles loading configuration from files, the environment and
// command-line arguments. Precedence is flag > file > environment.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, the environment and an optional
// configuration file to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	cfg := &Config{
		Headers:      map[string]string{},
		Workers:      DefaultWorkers,
		Timeout:      DefaultTimeout,
		RefIDsFile:   DefaultRefIDsFile,
		ResultBuffer: DefaultResultBuffer,
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}

	envViper := newEnvViper()
	cfg.RefIDsEnv = envViper.GetString("refids_env")
	if err := applyConfigSettings(cfg, envSettings(envViper)); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	configPath := strings.TrimSpace(flagSet.Lookup("config").Value.String())
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.RefIDsFile = strings.TrimSpace(cfg.RefIDsFile)
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

func newEnvViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("refids_env", RefIDsEnvVar)
	return v
}

func envSettings(v *viper.Viper) map[string]interface{} {
	settings := map[string]interface{}{}
	for _, key := range envKeys {
		if v.IsSet(key) {
			settings[key] = v.Get(key)
		}
	}
	return settings
}

// applyConfigSettings applies loosely typed settings from a config file or
// the environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asHeaders(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "workers", "concurrency", "threads"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("workers: %w", err)
		}
		cfg.Workers = val
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "rounds"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rounds: %w", err)
		}
		cfg.Rounds = int64(val)
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "refids", "identifiers"); ok {
		ids, err := asList(raw, true)
		if err != nil {
			return fmt.Errorf("refids: %w", err)
		}
		cfg.RefIDs = ids
	}

	if raw, ok := lookupSetting(settings, "refids_file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("refidsFile: %w", err)
		}
		cfg.RefIDsFile = strings.TrimSpace(val)
		cfg.refIDsFileExplicit = true
	}

	if raw, ok := lookupSetting(settings, "refids_format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("refidsFormat: %w", err)
		}
		cfg.RefIDsFormat = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "refids_field"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("refidsField: %w", err)
		}
		cfg.RefIDsField = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "user_agents"); ok {
		agents, err := asList(raw, false)
		if err != nil {
			return fmt.Errorf("userAgents: %w", err)
		}
		cfg.UserAgents = agents
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asList(raw, false)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "json_output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "quiet"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("quiet: %w", err)
		}
		cfg.Quiet = val
	}

	if raw, ok := lookupSetting(settings, "log_errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "metrics_addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsAddr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "lock_file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("lockFile: %w", err)
		}
		cfg.LockFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "result_buffer"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("resultBuffer: %w", err)
		}
		cfg.ResultBuffer = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value, true)
	if err != nil {
		return base, err
	}
	t := base

	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return t, fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return t, fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name"); ok {
		val, err := asString(raw)
		if err != nil {
			return t, fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sample_rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return t, fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return t, fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return t, fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return t, nil
}
