package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loadpilot/loadpilot/internal/api"
	"github.com/loadpilot/loadpilot/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify credentials and test visibility without starting a run",
	Long: `Check logs in with the configured credentials and confirms the test is
visible in the configured project. It takes the same flags as a run, so
a passing check means the run invocation itself is sound.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg.Run.DebugLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := api.NewClient(cfg.Server, api.Options{Retries: cfg.Run.Retries})
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Login OK (tenant %s)\n", cfg.Server.TenantID)

	test, err := client.ValidateTenant(ctx, cfg.Run.TestID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Test %d OK: %q in project %d\n", cfg.Run.TestID, test.Name, test.ProjectID)
	return nil
}
