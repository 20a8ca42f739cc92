package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/loadpilot/loadpilot/internal/config"
)

func parseFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("loadpilot", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v) returned error: %v", args, err)
	}
	return fs
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(parseFlags(t))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Run.RunTimeout != config.DefaultRunTimeout {
		t.Errorf("RunTimeout = %v, want %v", cfg.Run.RunTimeout, config.DefaultRunTimeout)
	}
	if cfg.Run.ReportTimeout != config.DefaultReportTimeout {
		t.Errorf("ReportTimeout = %v, want %v", cfg.Run.ReportTimeout, config.DefaultReportTimeout)
	}
	if cfg.Run.Retries != config.DefaultRetries {
		t.Errorf("Retries = %d, want %d", cfg.Run.Retries, config.DefaultRetries)
	}
	if cfg.Run.ArtifactsDir != "." {
		t.Errorf("ArtifactsDir = %q, want %q", cfg.Run.ArtifactsDir, ".")
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want %q", cfg.Tracing.Protocol, "grpc")
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %v, want 1.0", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.Enabled() {
		t.Error("Tracing.Enabled() = true without an endpoint")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, "run.json", `{
		"url": "https://loadtest.example.com/",
		"username": "jdoe",
		"password": "hunter2",
		"tenant": "652261300",
		"project_id": 3,
		"test_id": 42,
		"send_email": true,
		"run_timeout": "4h",
		"report_timeout": "90s",
		"retries": 5,
		"artifacts_dir": "out",
		"proxy": {"host": "proxy.internal", "port": 8080, "username": "pu", "password": "pp"},
		"tracing": {"endpoint": "collector:4317", "protocol": "http", "sample_rate": 0.25}
	}`)

	cfg, err := config.Load(parseFlags(t, "--config", path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.URL != "https://loadtest.example.com" {
		t.Errorf("URL = %q, want trailing slash trimmed", cfg.Server.URL)
	}
	if cfg.Server.Username != "jdoe" || cfg.Server.Password != "hunter2" {
		t.Errorf("credentials = %q/%q, want jdoe/hunter2", cfg.Server.Username, cfg.Server.Password)
	}
	if cfg.Server.TenantID != "652261300" {
		t.Errorf("TenantID = %q, want 652261300", cfg.Server.TenantID)
	}
	if cfg.Server.ProjectID != 3 {
		t.Errorf("ProjectID = %d, want 3", cfg.Server.ProjectID)
	}
	if cfg.Run.TestID != 42 {
		t.Errorf("TestID = %d, want 42", cfg.Run.TestID)
	}
	if !cfg.Server.SendEmail || !cfg.Run.SendEmail {
		t.Error("send_email should apply to both server and run settings")
	}
	if cfg.Run.RunTimeout != 4*time.Hour {
		t.Errorf("RunTimeout = %v, want 4h", cfg.Run.RunTimeout)
	}
	if cfg.Run.ReportTimeout != 90*time.Second {
		t.Errorf("ReportTimeout = %v, want 90s", cfg.Run.ReportTimeout)
	}
	if cfg.Run.Retries != 5 {
		t.Errorf("Retries = %d, want 5", cfg.Run.Retries)
	}
	if cfg.Run.ArtifactsDir != "out" {
		t.Errorf("ArtifactsDir = %q, want out", cfg.Run.ArtifactsDir)
	}

	proxy := cfg.Server.Proxy()
	if proxy == nil {
		t.Fatal("Proxy() = nil, want proxy from config file")
	}
	if proxy.Host != "proxy.internal" || proxy.Port != 8080 {
		t.Errorf("proxy = %s:%d, want proxy.internal:8080", proxy.Host, proxy.Port)
	}

	if cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("Tracing.Endpoint = %q, want collector:4317", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing.Protocol = %q, want http", cfg.Tracing.Protocol)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing.SampleRate = %v, want 0.25", cfg.Tracing.SampleRate)
	}
	if !cfg.Tracing.Enabled() {
		t.Error("Tracing.Enabled() = false with an endpoint configured")
	}
}

func TestLoadYAMLConfigFile(t *testing.T) {
	path := writeConfig(t, "run.yaml", strings.Join([]string{
		"url: https://tenant.example.com",
		"tenant: \"900\"",
		"use_oauth: true",
		"client_id: ci",
		"client_secret: cs",
		"project_id: 1",
		"test_id: 7",
		"run_timeout: 600",
	}, "\n"))

	cfg, err := config.Load(parseFlags(t, "--config", path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !cfg.Server.UseOAuth {
		t.Error("UseOAuth = false, want true")
	}
	if cfg.Server.ClientID != "ci" || cfg.Server.ClientSecret != "cs" {
		t.Errorf("client credentials = %q/%q, want ci/cs", cfg.Server.ClientID, cfg.Server.ClientSecret)
	}
	if cfg.Run.RunTimeout != 600*time.Second {
		t.Errorf("RunTimeout = %v, want numeric seconds to parse as 10m", cfg.Run.RunTimeout)
	}
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "run.json", `{
		"url": "https://file.example.com",
		"test_id": 10,
		"retries": 1
	}`)

	cfg, err := config.Load(parseFlags(t,
		"--config", path,
		"--url", "https://flag.example.com",
		"--test-id", "99",
	))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.URL != "https://flag.example.com" {
		t.Errorf("URL = %q, want the flag value to win", cfg.Server.URL)
	}
	if cfg.Run.TestID != 99 {
		t.Errorf("TestID = %d, want 99", cfg.Run.TestID)
	}
	if cfg.Run.Retries != 1 {
		t.Errorf("Retries = %d, want the file value 1 preserved", cfg.Run.Retries)
	}
}

func TestLoadProxyFlagWinsOverFile(t *testing.T) {
	path := writeConfig(t, "run.json", `{
		"proxy": {"host": "file-proxy", "port": 3128}
	}`)

	cfg, err := config.Load(parseFlags(t,
		"--config", path,
		"--proxy-host", "flag-proxy",
		"--proxy-port", "8888",
	))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	proxy := cfg.Server.Proxy()
	if proxy == nil {
		t.Fatal("Proxy() = nil, want flag proxy")
	}
	if proxy.Host != "flag-proxy" || proxy.Port != 8888 {
		t.Errorf("proxy = %s:%d, want flag-proxy:8888", proxy.Host, proxy.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "run.json", `{"test_id": 5, "project_id": 2}`)
	t.Setenv(config.EnvTestID, "123")
	t.Setenv(config.EnvProjectID, "77")
	t.Setenv(config.EnvSkipPDFReport, "yes")
	t.Setenv(config.EnvTestMode, "1")

	cfg, err := config.Load(parseFlags(t, "--config", path, "--test-id", "6"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Run.TestID != 123 {
		t.Errorf("TestID = %d, want env override 123", cfg.Run.TestID)
	}
	if cfg.Server.ProjectID != 77 {
		t.Errorf("ProjectID = %d, want env override 77", cfg.Server.ProjectID)
	}
	if !cfg.Run.SkipPDFReport {
		t.Error("SkipPDFReport = false, want true from environment")
	}
	if !cfg.Run.TestMode {
		t.Error("TestMode = false, want true from environment")
	}
}

func TestLoadIgnoresNonNumericEnvTestID(t *testing.T) {
	t.Setenv(config.EnvTestID, "not-a-number")

	cfg, err := config.Load(parseFlags(t, "--test-id", "8"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Run.TestID != 8 {
		t.Errorf("TestID = %d, want flag value 8 kept", cfg.Run.TestID)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"FALSE", false},
		{"no", false},
		{" No ", false},
		{"1", true},
		{"true", true},
		{"yes", true},
		{"anything", true},
	}
	for _, tt := range tests {
		if got := config.Truthy(tt.val); got != tt.want {
			t.Errorf("Truthy(%q) = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := config.Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil for an empty configuration")
	}

	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error type = %T, want ValidationError", err)
	}

	issues := strings.Join(verr.Issues(), "\n")
	for _, want := range []string{"url is required", "tenant is required", "test_id must be >= 1", "username is required"} {
		if !strings.Contains(issues, want) {
			t.Errorf("Issues() missing %q, got:\n%s", want, issues)
		}
	}
}

func TestValidateOK(t *testing.T) {
	cfg := config.Config{
		Server: config.ServerConfig{
			URL:       "https://loadtest.example.com",
			Username:  "jdoe",
			Password:  "hunter2",
			TenantID:  "652261300",
			ProjectID: 1,
		},
		Run: config.RunOptions{
			TestID:       42,
			Retries:      config.DefaultRetries,
			RunTimeout:   config.DefaultRunTimeout,
			ArtifactsDir: ".",
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateCredentialModes(t *testing.T) {
	base := config.Config{
		Server: config.ServerConfig{
			URL:       "https://loadtest.example.com",
			TenantID:  "1",
			ProjectID: 1,
		},
		Run: config.RunOptions{TestID: 1, ArtifactsDir: "."},
	}

	oauthMissingSecret := base
	oauthMissingSecret.Server.UseOAuth = true
	oauthMissingSecret.Server.ClientID = "ci"
	if err := oauthMissingSecret.Validate(); err == nil {
		t.Error("Validate() = nil with use_oauth set and no client_secret")
	}

	mixed := base
	mixed.Server.Username = "jdoe"
	mixed.Server.Password = "hunter2"
	mixed.Server.ClientID = "ci"
	err := mixed.Validate()
	if err == nil {
		t.Fatal("Validate() = nil with mixed credential modes")
	}
	if !strings.Contains(err.Error(), "use_oauth") {
		t.Errorf("Validate() error = %v, want mention of use_oauth", err)
	}
}

func TestProxyURL(t *testing.T) {
	proxy := config.ProxyConfig{Host: "proxy.internal", Port: 3128, Username: "pu", Password: "pp"}
	u, err := proxy.URL()
	if err != nil {
		t.Fatalf("URL() returned error: %v", err)
	}
	if got, want := u.String(), "http://pu:pp@proxy.internal:3128"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}

	bare := config.ProxyConfig{Host: "proxy.internal", Port: 8080}
	u, err = bare.URL()
	if err != nil {
		t.Fatalf("URL() returned error: %v", err)
	}
	if u.User != nil {
		t.Errorf("URL() userinfo = %v, want none", u.User)
	}
}

func TestAttachProxyTwice(t *testing.T) {
	var server config.ServerConfig
	if err := server.AttachProxy(config.ProxyConfig{Host: "a", Port: 1}); err != nil {
		t.Fatalf("first AttachProxy returned error: %v", err)
	}
	if err := server.AttachProxy(config.ProxyConfig{Host: "b", Port: 2}); err == nil {
		t.Error("second AttachProxy = nil, want error")
	}
	if proxy := server.Proxy(); proxy == nil || proxy.Host != "a" {
		t.Errorf("Proxy() = %+v, want the first attachment kept", proxy)
	}
}
