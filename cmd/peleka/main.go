package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitalratel/peleka/pkg/cli"
	"github.com/vitalratel/peleka/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := cli.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
		}
		os.Exit(int(cli.ExitCodeFor(err)))
	}
}

var rootCmd = &cobra.Command{
	Use:   "peleka",
	Short: "Zero-downtime container deployments over SSH",
	Long: `peleka connects to one or more remote hosts over SSH, detects the
container runtime installed there, and deploys a named service to a new
image while keeping traffic flowing: pull, start alongside the running
container, wait for health, cut traffic over, retire the old container.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"peleka version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringP("project-root", "C", ".", "Directory containing peleka.yml")
	rootCmd.PersistentFlags().String("destination", "", "Named destination to merge from peleka.yml")
	rootCmd.PersistentFlags().String("data-dir", ".peleka/data", "Directory for the local audit database, relative to --project-root unless absolute")
	rootCmd.PersistentFlags().Bool("force", false, "Override a held deploy lock and force a stale-lock takeover")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(orphansCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
