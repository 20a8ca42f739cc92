package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Environment variables recognized on top of file and flag settings.
// They exist so CI jobs can redirect a shared configuration to another
// test without editing it.
const (
	EnvTestID        = "LRC_TEST_ID"
	EnvProjectID     = "LRC_PROJECT_ID"
	EnvSkipPDFReport = "LRC_SKIP_PDF_REPORT"
	EnvDebugLog      = "LRC_DEBUG_LOG"
	EnvTestMode      = "LRC_TEST_MODE"
)

// Truthy reports whether an environment variable value counts as enabled.
// Empty strings, "0", "false" and "no" are off; everything else is on.
func Truthy(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

// applyEnvOverrides applies LRC_* environment variables over the loaded
// configuration. Environment wins over file and flag values so pipeline
// steps can retarget a run without touching the job definition.
func applyEnvOverrides(cfg *Config) {
	if raw, ok := os.LookupEnv(EnvTestID); ok && strings.TrimSpace(raw) != "" {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			log.Warn().Str("var", EnvTestID).Str("value", raw).Msg("ignoring non-numeric test id override")
		} else {
			log.Info().Str("var", EnvTestID).Int("test_id", id).Msg("test id overridden by environment")
			cfg.Run.TestID = id
		}
	}
	if raw, ok := os.LookupEnv(EnvProjectID); ok && strings.TrimSpace(raw) != "" {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			log.Warn().Str("var", EnvProjectID).Str("value", raw).Msg("ignoring non-numeric project id override")
		} else {
			log.Info().Str("var", EnvProjectID).Int("project_id", id).Msg("project id overridden by environment")
			cfg.Server.ProjectID = id
		}
	}
	if raw, ok := os.LookupEnv(EnvSkipPDFReport); ok {
		val := Truthy(raw)
		log.Info().Str("var", EnvSkipPDFReport).Bool("enabled", val).Msg("pdf report preference overridden by environment")
		cfg.Run.SkipPDFReport = val
	}
	if raw, ok := os.LookupEnv(EnvDebugLog); ok {
		val := Truthy(raw)
		log.Info().Str("var", EnvDebugLog).Bool("enabled", val).Msg("debug logging overridden by environment")
		cfg.Run.DebugLog = val
	}
	if raw, ok := os.LookupEnv(EnvTestMode); ok {
		val := Truthy(raw)
		log.Info().Str("var", EnvTestMode).Bool("enabled", val).Msg("test mode overridden by environment")
		cfg.Run.TestMode = val
	}
}
