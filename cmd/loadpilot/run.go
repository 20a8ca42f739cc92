package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/loadpilot/loadpilot/internal/api"
	"github.com/loadpilot/loadpilot/internal/artifacts"
	"github.com/loadpilot/loadpilot/internal/config"
	"github.com/loadpilot/loadpilot/internal/history"
	"github.com/loadpilot/loadpilot/internal/metrics"
	"github.com/loadpilot/loadpilot/internal/output"
	"github.com/loadpilot/loadpilot/internal/runner"
	"github.com/loadpilot/loadpilot/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// runResultOptions is the invocation half of the run-result document,
// persisted next to the run summary so a later pipeline stage can see
// what was asked for alongside what happened.
type runResultOptions struct {
	TestID        int    `json:"testId"`
	Tenant        string `json:"tenantId"`
	ProjectID     int    `json:"projectId"`
	SendEmail     bool   `json:"sendEmail"`
	Initiator     string `json:"initiator,omitempty"`
	SkipPDFReport bool   `json:"skipPdfReport"`
	TestMode      bool   `json:"testMode"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the configured load test and follow it to its verdict",
	Args:  cobra.NoArgs,
	RunE:  runLoadTest,
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg.Run.DebugLog)

	invocationID := ulid.Make().String()
	echoParameters(cfg, invocationID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	collector := metrics.NewCollector()
	client, err := api.NewClient(cfg.Server, api.Options{
		Retries:   cfg.Run.Retries,
		Collector: collector,
		Tracer:    provider.Tracer(),
		Propagate: provider.ShouldPropagate(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx); err != nil {
		return err
	}

	r := runner.New(client, runner.Options{
		Tenant:        cfg.Server.TenantID,
		SendEmail:     cfg.Server.SendEmail,
		Initiator:     cfg.Server.Initiator,
		SkipPDFReport: cfg.Run.SkipPDFReport,
		TestMode:      cfg.Run.TestMode,
		ReportTimeout: cfg.Run.ReportTimeout,
	})

	runCtx := ctx
	if cfg.Run.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Run.RunTimeout)
		defer cancel()
	}

	var progress *output.ProgressReporter
	if !cfg.Run.JSONSummary {
		progress = output.NewProgressReporter(collector, progressInterval, os.Stdout)
		progress.Start()
		defer progress.Stop()
	}

	run, runErr := r.Run(runCtx, cfg.Run.TestID)

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}

	if run == nil {
		return runErr
	}

	if cfg.Run.JSONSummary {
		if err := output.PrintJSONSummary(os.Stdout, run); err != nil {
			return err
		}
	} else {
		output.PrintSummary(os.Stdout, run)
	}
	if cfg.Run.DebugLog {
		output.PrintAPIStats(os.Stdout, collector)
	}

	persistOutputs(cfg, run, invocationID)

	if runErr != nil {
		return runErr
	}
	if !run.Passed() {
		return fmt.Errorf("run %d finished with status %s", run.ID, run.Status())
	}
	return nil
}

// echoParameters logs the effective invocation so CI logs show what ran.
// Credential identifiers are masked; secrets never appear.
func echoParameters(cfg *config.Config, invocationID string) {
	identity := maskIdentifier(cfg.Server.Username)
	mode := "session"
	if cfg.Server.UseOAuth {
		identity = maskIdentifier(cfg.Server.ClientID)
		mode = "oauth"
	}
	log.Info().
		Str("invocation", invocationID).
		Str("url", cfg.Server.URL).
		Str("tenant", cfg.Server.TenantID).
		Int("project", cfg.Server.ProjectID).
		Int("test", cfg.Run.TestID).
		Str("auth", mode).
		Str("identity", identity).
		Bool("sendEmail", cfg.Server.SendEmail).
		Bool("testMode", cfg.Run.TestMode).
		Msg("starting load test run")
	if p := cfg.Server.Proxy(); p != nil {
		log.Info().Str("host", p.Host).Int("port", p.Port).Msg("routing through proxy")
	}
}

// maskIdentifier hides the middle of a credential identifier, keeping
// one leading and one trailing rune so a log line can still be matched
// to an account without exposing it.
func maskIdentifier(s string) string {
	runes := []rune(s)
	if len(runes) < 3 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}

// persistOutputs writes the report artifacts, the run-result document,
// the env file, and the history entry. Failures here are logged and do
// not change the verdict.
func persistOutputs(cfg *config.Config, run *runner.LoadTestRun, invocationID string) {
	if cfg.Run.EnvFile != "" && run.ID != 0 {
		if err := artifacts.WriteEnvFile(cfg.Run.EnvFile, run.ID); err != nil {
			log.Error().Err(err).Str("path", cfg.Run.EnvFile).Msg("env file not written")
		}
	}

	writer, err := artifacts.NewWriter(cfg.Run.ArtifactsDir, invocationID)
	if err != nil {
		log.Error().Err(err).Str("dir", cfg.Run.ArtifactsDir).Msg("artifacts directory not usable")
		return
	}

	if run.HasReport {
		writer.WriteReports(run.ReportData)
		opts := runResultOptions{
			TestID:        cfg.Run.TestID,
			Tenant:        cfg.Server.TenantID,
			ProjectID:     cfg.Server.ProjectID,
			SendEmail:     cfg.Server.SendEmail,
			Initiator:     cfg.Server.Initiator,
			SkipPDFReport: cfg.Run.SkipPDFReport,
			TestMode:      cfg.Run.TestMode,
		}
		if err := writer.WriteRunResult(opts, output.NewSummary(run)); err != nil {
			log.Error().Err(err).Msg("run result file not written")
		}
	}

	// The run context may already be canceled here; history still gets
	// its own small window so an interrupted run is recorded too.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	store := history.NewStore(filepath.Join(writer.Dir(), history.DefaultFileName), 0)
	entry := history.Entry{
		InvocationID: invocationID,
		RunID:        run.ID,
		TestID:       run.TestID,
		TestName:     run.TestName,
		Status:       run.Status().String(),
		Reason:       run.StatusReason,
		HasReport:    run.HasReport,
		StartedAt:    run.StartedAt,
		EndedAt:      run.EndedAt,
	}
	if err := store.Append(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("history not recorded")
	}
}
