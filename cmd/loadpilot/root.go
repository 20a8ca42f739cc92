package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/loadpilot/loadpilot/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "loadpilot",
	Short: "Drive a cloud load-test run to a verdict",
	Long: `Loadpilot starts a load test on a LoadRunner Cloud tenant, follows the
run until the service reaches a verdict, and collects the report
artifacts. The exit code mirrors the verdict, so a CI job fails when
the run does.

All flags can also come from a config file (--config); a few LRC_*
environment variables override both for pipeline retargeting.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func execute() error {
	return rootCmd.Execute()
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
}

// setupLogging routes the global logger to stderr so the summary and
// progress output keep stdout to themselves. Colors stay off: the
// normal audience is a CI build log.
func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli, NoColor: true})
}
