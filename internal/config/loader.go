package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Flags override file settings, which override the defaults.
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
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := defaultConfig()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Model:        ModelCompare,
		Requests:     DefaultRequests,
		DelayMs:      DefaultDelayMs,
		PoolSize:     DefaultPoolSize,
		Iterations:   DefaultIterations,
		Repeat:       1,
		OutputFormat: OutputText,
		LogLevel:     "info",
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("model: %w", err)
		}
		if val = strings.ToLower(strings.TrimSpace(val)); val != "" {
			cfg.Model = Model(val)
		}
	}

	ints := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Requests, []string{"requests", "total"}},
		{&cfg.DelayMs, []string{"delay_ms", "delayms", "delay-ms"}},
		{&cfg.PoolSize, []string{"pool_size", "poolsize", "pool-size"}},
		{&cfg.Iterations, []string{"iterations"}},
		{&cfg.SubmitRate, []string{"submit_rate", "submitrate", "submit-rate"}},
		{&cfg.Repeat, []string{"repeat"}},
	}
	for _, f := range ints {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = val
	}

	// "delay" accepts a duration string and is overridden by an explicit delay_ms.
	if raw, ok := lookupSetting(settings, "delay"); ok {
		if _, explicit := lookupSetting(settings, "delay_ms", "delayms", "delay-ms"); !explicit {
			d, err := asDelay(raw)
			if err != nil {
				return fmt.Errorf("delay: %w", err)
			}
			cfg.DelayMs = int(d.Milliseconds())
		}
	}

	bools := []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.JSONOutput, []string{"json_output", "jsonoutput", "json-output"}},
		{&cfg.Dashboard, []string{"dashboard"}},
		{&cfg.LogJSON, []string{"log_json", "logjson", "log-json"}},
		{&cfg.LogErrors, []string{"log_errors", "logerrors", "log-errors"}},
	}
	for _, f := range bools {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = val
	}

	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.HTMLOutput, []string{"html_output", "htmloutput", "html-output"}},
		{&cfg.LogLevel, []string{"log_level", "loglevel", "log-level"}},
		{&cfg.HistoryFile, []string{"history_file", "historyfile", "history-file"}},
		{&cfg.PromTextfile, []string{"prom_textfile", "promtextfile", "prom-textfile"}},
	}
	for _, f := range strs {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "output_format", "outputformat", "output-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output_format: %w", err)
		}
		cfg.OutputFormat = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tc
	}

	return nil
}

// parseTracingConfig overlays a tracing section on base.
func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}

	tc := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		if tc.Endpoint, err = asString(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(tc.Endpoint)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		if tc.Protocol, err = asString(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename", "service-name"); ok {
		if tc.ServiceName, err = asString(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if tc.Insecure, err = asBool(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		if tc.SampleRate, err = asFloat64(raw); err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
	}
	return tc, nil
}
