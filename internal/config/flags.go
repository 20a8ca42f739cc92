package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Default polling and reporting bounds.
const (
	DefaultRunTimeout    = 12 * time.Hour
	DefaultReportTimeout = 5 * time.Minute
	DefaultRetries       = 3
)

// RegisterFlags sets up all CLI flags on the provided flag set.
func RegisterFlags(flags *pflag.FlagSet) {
	// Server flags
	flags.String("url", "", "Base URL of the load-test service")
	flags.String("username", "", "Username for session authentication")
	flags.String("password", "", "Password for session authentication")
	flags.String("client-id", "", "OAuth client id (with --oauth)")
	flags.String("client-secret", "", "OAuth client secret (with --oauth)")
	flags.Bool("oauth", false, "Authenticate with client credentials instead of username/password")
	flags.String("tenant", "", "Tenant identifier")
	flags.Int("project-id", 0, "Project identifier")
	flags.String("initiator", "", "Initiator tag recorded with the run")

	// Proxy flags
	flags.String("proxy-host", "", "Outbound proxy host")
	flags.Int("proxy-port", 0, "Outbound proxy port")
	flags.String("proxy-user", "", "Outbound proxy username")
	flags.String("proxy-password", "", "Outbound proxy password")

	// Run flags
	flags.IntP("test-id", "t", 0, "Load test identifier to run")
	flags.Bool("send-email", false, "Ask the service to email results when the run ends")
	flags.Bool("skip-pdf-report", false, "Skip PDF report generation after the run")
	flags.Bool("debug", false, "Enable debug logging")
	flags.Bool("test-mode", false, "Shorten polling intervals for validation runs")
	flags.Duration("run-timeout", DefaultRunTimeout, "Overall wall-clock limit for the run")
	flags.Duration("report-timeout", DefaultReportTimeout, "How long to wait for report generation")
	flags.Int("retries", DefaultRetries, "Extra attempts per API call after a transient failure")

	// Output flags
	flags.String("artifacts-dir", ".", "Directory receiving report files and the run result")
	flags.String("env-file", "", "File receiving KEY=VALUE pairs (run id) for later build steps")
	flags.Bool("json-summary", false, "Emit the run summary as JSON")

	// Tracing flags
	flags.String("trace-endpoint", "", "OTLP exporter endpoint (empty disables tracing)")
	flags.String("trace-protocol", "grpc", "OTLP exporter protocol: 'grpc' or 'http'")
	flags.Bool("trace-insecure", false, "Disable TLS for the OTLP exporter")

	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("url") {
		val, err := fs.GetString("url")
		if err != nil {
			return err
		}
		cfg.Server.URL = strings.TrimSpace(val)
	}
	if fs.Changed("username") {
		val, err := fs.GetString("username")
		if err != nil {
			return err
		}
		cfg.Server.Username = strings.TrimSpace(val)
	}
	if fs.Changed("password") {
		val, err := fs.GetString("password")
		if err != nil {
			return err
		}
		cfg.Server.Password = val
	}
	if fs.Changed("client-id") {
		val, err := fs.GetString("client-id")
		if err != nil {
			return err
		}
		cfg.Server.ClientID = strings.TrimSpace(val)
	}
	if fs.Changed("client-secret") {
		val, err := fs.GetString("client-secret")
		if err != nil {
			return err
		}
		cfg.Server.ClientSecret = val
	}
	if fs.Changed("oauth") {
		val, err := fs.GetBool("oauth")
		if err != nil {
			return err
		}
		cfg.Server.UseOAuth = val
	}
	if fs.Changed("tenant") {
		val, err := fs.GetString("tenant")
		if err != nil {
			return err
		}
		cfg.Server.TenantID = strings.TrimSpace(val)
	}
	if fs.Changed("project-id") {
		val, err := fs.GetInt("project-id")
		if err != nil {
			return err
		}
		cfg.Server.ProjectID = val
	}
	if fs.Changed("initiator") {
		val, err := fs.GetString("initiator")
		if err != nil {
			return err
		}
		cfg.Server.Initiator = strings.TrimSpace(val)
	}
	if fs.Changed("send-email") {
		val, err := fs.GetBool("send-email")
		if err != nil {
			return err
		}
		cfg.Server.SendEmail = val
		cfg.Run.SendEmail = val
	}

	if fs.Changed("test-id") {
		val, err := fs.GetInt("test-id")
		if err != nil {
			return err
		}
		cfg.Run.TestID = val
	}
	if fs.Changed("skip-pdf-report") {
		val, err := fs.GetBool("skip-pdf-report")
		if err != nil {
			return err
		}
		cfg.Run.SkipPDFReport = val
	}
	if fs.Changed("debug") {
		val, err := fs.GetBool("debug")
		if err != nil {
			return err
		}
		cfg.Run.DebugLog = val
	}
	if fs.Changed("test-mode") {
		val, err := fs.GetBool("test-mode")
		if err != nil {
			return err
		}
		cfg.Run.TestMode = val
	}
	if fs.Changed("run-timeout") {
		val, err := fs.GetDuration("run-timeout")
		if err != nil {
			return err
		}
		cfg.Run.RunTimeout = val
	}
	if fs.Changed("report-timeout") {
		val, err := fs.GetDuration("report-timeout")
		if err != nil {
			return err
		}
		cfg.Run.ReportTimeout = val
	}
	if fs.Changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		cfg.Run.Retries = val
	}
	if fs.Changed("artifacts-dir") {
		val, err := fs.GetString("artifacts-dir")
		if err != nil {
			return err
		}
		cfg.Run.ArtifactsDir = strings.TrimSpace(val)
	}
	if fs.Changed("env-file") {
		val, err := fs.GetString("env-file")
		if err != nil {
			return err
		}
		cfg.Run.EnvFile = strings.TrimSpace(val)
	}
	if fs.Changed("json-summary") {
		val, err := fs.GetBool("json-summary")
		if err != nil {
			return err
		}
		cfg.Run.JSONSummary = val
	}

	if fs.Changed("trace-endpoint") {
		val, err := fs.GetString("trace-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("trace-protocol") {
		val, err := fs.GetString("trace-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("trace-insecure") {
		val, err := fs.GetBool("trace-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}

	return nil
}

// proxyFromFlags reads the proxy flags when set. The loader decides
// whether flag or file proxy settings win before attaching once.
func proxyFromFlags(fs *pflag.FlagSet) (*ProxyConfig, error) {
	if !fs.Changed("proxy-host") {
		return nil, nil
	}
	host, err := fs.GetString("proxy-host")
	if err != nil {
		return nil, err
	}
	port, err := fs.GetInt("proxy-port")
	if err != nil {
		return nil, err
	}
	user, err := fs.GetString("proxy-user")
	if err != nil {
		return nil, err
	}
	password, err := fs.GetString("proxy-password")
	if err != nil {
		return nil, err
	}
	return &ProxyConfig{
		Host:     strings.TrimSpace(host),
		Port:     port,
		Username: strings.TrimSpace(user),
		Password: password,
	}, nil
}
