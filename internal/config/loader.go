package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Load builds the invocation configuration from an optional config file
// (--config, JSON or YAML via viper), command-line flags, and environment
// overrides, in that order of increasing precedence. The proxy, when
// configured anywhere, is attached to the server configuration exactly once.
func Load(fs *pflag.FlagSet) (*Config, error) {
	configPath, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	settings := cfgViper.AllSettings()

	cfg := &Config{
		Run: RunOptions{
			RunTimeout:    DefaultRunTimeout,
			ReportTimeout: DefaultReportTimeout,
			Retries:       DefaultRetries,
			ArtifactsDir:  ".",
		},
		Tracing:    TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		ConfigFile: configPath,
	}

	fileProxy, err := applyConfigSettings(cfg, settings)
	if err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	flagProxy, err := proxyFromFlags(fs)
	if err != nil {
		return nil, err
	}
	switch {
	case flagProxy != nil:
		if err := cfg.Server.AttachProxy(*flagProxy); err != nil {
			return nil, err
		}
	case fileProxy != nil:
		if err := cfg.Server.AttachProxy(*fileProxy); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	cfg.Server.URL = strings.TrimRight(strings.TrimSpace(cfg.Server.URL), "/")
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config
// struct. The file proxy, if any, is returned for the loader to attach.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) (*ProxyConfig, error) {
	if len(settings) == 0 {
		return nil, nil
	}

	if raw, ok := lookupSetting(settings, "url", "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("url: %w", err)
		}
		cfg.Server.URL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "username", "user"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("username: %w", err)
		}
		cfg.Server.Username = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "password"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("password: %w", err)
		}
		cfg.Server.Password = val
	}
	if raw, ok := lookupSetting(settings, "clientid", "client_id", "client-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("client_id: %w", err)
		}
		cfg.Server.ClientID = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "clientsecret", "client_secret", "client-secret"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("client_secret: %w", err)
		}
		cfg.Server.ClientSecret = val
	}
	if raw, ok := lookupSetting(settings, "useoauth", "use_oauth", "use-oauth", "oauth"); ok {
		val, err := asBool(raw)
		if err != nil {
			return nil, fmt.Errorf("use_oauth: %w", err)
		}
		cfg.Server.UseOAuth = val
	}
	if raw, ok := lookupSetting(settings, "tenant", "tenantid", "tenant_id", "tenant-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("tenant: %w", err)
		}
		cfg.Server.TenantID = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "projectid", "project_id", "project-id"); ok {
		val, err := asInt(raw)
		if err != nil {
			return nil, fmt.Errorf("project_id: %w", err)
		}
		cfg.Server.ProjectID = val
	}
	if raw, ok := lookupSetting(settings, "initiator"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("initiator: %w", err)
		}
		cfg.Server.Initiator = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "sendemail", "send_email", "send-email"); ok {
		val, err := asBool(raw)
		if err != nil {
			return nil, fmt.Errorf("send_email: %w", err)
		}
		cfg.Server.SendEmail = val
		cfg.Run.SendEmail = val
	}

	if raw, ok := lookupSetting(settings, "testid", "test_id", "test-id"); ok {
		val, err := asInt(raw)
		if err != nil {
			return nil, fmt.Errorf("test_id: %w", err)
		}
		cfg.Run.TestID = val
	}
	if raw, ok := lookupSetting(settings, "skippdfreport", "skip_pdf_report", "skip-pdf-report"); ok {
		val, err := asBool(raw)
		if err != nil {
			return nil, fmt.Errorf("skip_pdf_report: %w", err)
		}
		cfg.Run.SkipPDFReport = val
	}
	if raw, ok := lookupSetting(settings, "debug", "debuglog", "debug_log", "debug-log"); ok {
		val, err := asBool(raw)
		if err != nil {
			return nil, fmt.Errorf("debug: %w", err)
		}
		cfg.Run.DebugLog = val
	}
	if raw, ok := lookupSetting(settings, "testmode", "test_mode", "test-mode"); ok {
		val, err := asBool(raw)
		if err != nil {
			return nil, fmt.Errorf("test_mode: %w", err)
		}
		cfg.Run.TestMode = val
	}
	if raw, ok := lookupSetting(settings, "runtimeout", "run_timeout", "run-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("run_timeout: %w", err)
		}
		cfg.Run.RunTimeout = dur
	}
	if raw, ok := lookupSetting(settings, "reporttimeout", "report_timeout", "report-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("report_timeout: %w", err)
		}
		cfg.Run.ReportTimeout = dur
	}
	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return nil, fmt.Errorf("retries: %w", err)
		}
		cfg.Run.Retries = val
	}
	if raw, ok := lookupSetting(settings, "artifactsdir", "artifacts_dir", "artifacts-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("artifacts_dir: %w", err)
		}
		cfg.Run.ArtifactsDir = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "envfile", "env_file", "env-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("env_file: %w", err)
		}
		cfg.Run.EnvFile = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "jsonsummary", "json_summary", "json-summary"); ok {
		val, err := asBool(raw)
		if err != nil {
			return nil, fmt.Errorf("json_summary: %w", err)
		}
		cfg.Run.JSONSummary = val
	}

	var proxy *ProxyConfig
	if raw, ok := lookupSetting(settings, "proxy"); ok {
		parsed, err := parseProxy(raw)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		proxy = parsed
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return proxy, nil
}

func parseProxy(value interface{}) (*ProxyConfig, error) {
	if value == nil {
		return nil, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return nil, err
	}
	var proxy ProxyConfig
	if raw, ok := lookupSetting(entry, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("host: %w", err)
		}
		proxy.Host = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return nil, fmt.Errorf("port: %w", err)
		}
		proxy.Port = val
	}
	if raw, ok := lookupSetting(entry, "username", "user"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("username: %w", err)
		}
		proxy.Username = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "password"); ok {
		val, err := asString(raw)
		if err != nil {
			return nil, fmt.Errorf("password: %w", err)
		}
		proxy.Password = val
	}
	if proxy.Host == "" {
		return nil, nil
	}
	return &proxy, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tracing := base
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return tracing, nil
}

// lookupSetting searches for a value in settings using multiple candidate
// keys. It performs case-insensitive matching by also checking lowercase
// versions.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		lower := strings.ToLower(key)
		if val, ok := settings[lower]; ok {
			return val, true
		}
	}
	return nil, false
}

// asString converts an interface value to a string.
func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt converts an interface value to an int.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// asFloat64 converts an interface value to a float64.
func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

// asBool converts an interface value to a bool.
func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration converts an interface value to a time.Duration. Numeric
// values are interpreted as seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		iv, _ := asInt(v)
		return time.Duration(iv) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

// toStringKeyMap converts map values from viper into map[string]interface{}.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return v, nil
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			str, err := asString(key)
			if err != nil {
				return nil, err
			}
			result[str] = val
		}
		return result, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", value)
	}
}
