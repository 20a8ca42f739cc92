// Package config provides configuration loading and validation for loadpilot.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ServerConfig addresses the load-test service for one invocation.
// Immutable after loading, except for the proxy, which may be attached
// once after construction and never changes afterwards.
type ServerConfig struct {
	URL          string `mapstructure:"url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UseOAuth     bool   `mapstructure:"use_oauth"`
	TenantID     string `mapstructure:"tenant"`
	ProjectID    int    `mapstructure:"project_id"`
	SendEmail    bool   `mapstructure:"send_email"`
	Initiator    string `mapstructure:"initiator"`

	proxy *ProxyConfig
}

// ProxyConfig describes an outbound HTTP proxy.
type ProxyConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// URL renders the proxy as a URL suitable for http.Transport.
func (p ProxyConfig) URL() (*url.URL, error) {
	if strings.TrimSpace(p.Host) == "" {
		return nil, fmt.Errorf("proxy host is empty")
	}
	u := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", p.Host, p.Port)}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	return u, nil
}

// AttachProxy attaches proxy settings to the server configuration.
// The proxy may be attached at most once.
func (c *ServerConfig) AttachProxy(p ProxyConfig) error {
	if c.proxy != nil {
		return fmt.Errorf("proxy configuration already attached")
	}
	c.proxy = &p
	return nil
}

// Proxy returns the attached proxy settings, or nil.
func (c *ServerConfig) Proxy() *ProxyConfig {
	return c.proxy
}

// RunOptions selects the test to run and how to drive it. Immutable for
// the lifetime of the invocation.
type RunOptions struct {
	TestID        int           `mapstructure:"test_id"`
	SendEmail     bool          `mapstructure:"send_email"`
	SkipPDFReport bool          `mapstructure:"skip_pdf_report"`
	DebugLog      bool          `mapstructure:"debug"`
	TestMode      bool          `mapstructure:"test_mode"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
	ReportTimeout time.Duration `mapstructure:"report_timeout"`
	Retries       int           `mapstructure:"retries"`
	ArtifactsDir  string        `mapstructure:"artifacts_dir"`
	EnvFile       string        `mapstructure:"env_file"`
	JSONSummary   bool          `mapstructure:"json_summary"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint has been configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into
// API requests. Propagation follows Enabled unless overridden.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Config is the full invocation configuration.
type Config struct {
	Server     ServerConfig
	Run        RunOptions
	Tracing    TracingConfig
	ConfigFile string
}

// ValidationError aggregates configuration issues.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns a copy of the individual validation problems.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the configuration for a runnable invocation.
func (c Config) Validate() error {
	var issues []string

	target := strings.TrimSpace(c.Server.URL)
	if target == "" {
		issues = append(issues, "url is required")
	} else if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("url %q must be an absolute http(s) URL", target))
	}

	if strings.TrimSpace(c.Server.TenantID) == "" {
		issues = append(issues, "tenant is required")
	}
	if c.Server.ProjectID < 1 {
		issues = append(issues, "project_id must be >= 1")
	}
	if c.Run.TestID < 1 {
		issues = append(issues, "test_id must be >= 1")
	}

	issues = append(issues, validateCredentials(c.Server)...)

	if c.Run.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.Run.RunTimeout < 0 {
		issues = append(issues, "run_timeout must be >= 0")
	}
	if c.Run.ReportTimeout < 0 {
		issues = append(issues, "report_timeout must be >= 0")
	}
	if strings.TrimSpace(c.Run.ArtifactsDir) == "" {
		issues = append(issues, "artifacts_dir must not be empty")
	}

	if p := c.Server.Proxy(); p != nil {
		if strings.TrimSpace(p.Host) == "" {
			issues = append(issues, "proxy: host is required")
		}
		if p.Port < 1 || p.Port > 65535 {
			issues = append(issues, "proxy: port must be between 1 and 65535")
		}
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// validateCredentials enforces that exactly the selected auth mode is
// populated: username/password sessions or client credentials, never both.
func validateCredentials(s ServerConfig) []string {
	var issues []string
	hasBasic := strings.TrimSpace(s.Username) != "" || strings.TrimSpace(s.Password) != ""
	hasOAuth := strings.TrimSpace(s.ClientID) != "" || strings.TrimSpace(s.ClientSecret) != ""

	if s.UseOAuth {
		if strings.TrimSpace(s.ClientID) == "" {
			issues = append(issues, "client_id is required when use_oauth is set")
		}
		if strings.TrimSpace(s.ClientSecret) == "" {
			issues = append(issues, "client_secret is required when use_oauth is set")
		}
		if hasBasic {
			issues = append(issues, "username/password must be empty when use_oauth is set")
		}
	} else {
		if strings.TrimSpace(s.Username) == "" {
			issues = append(issues, "username is required")
		}
		if strings.TrimSpace(s.Password) == "" {
			issues = append(issues, "password is required")
		}
		if hasOAuth {
			issues = append(issues, "client_id/client_secret require use_oauth")
		}
	}
	return issues
}
