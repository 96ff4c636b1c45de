package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vitalratel/peleka/pkg/audit"
	"github.com/vitalratel/peleka/pkg/config"
	"github.com/vitalratel/peleka/pkg/diagnostics"
)

// loadResolved parses and resolves peleka.yml using this command's
// --project-root and --destination flags.
func loadResolved(cmd *cobra.Command) (config.Resolved, error) {
	projectRoot, _ := cmd.Flags().GetString("project-root")
	destination, _ := cmd.Flags().GetString("destination")
	return config.Load(projectRoot, destination)
}

// openAuditStore opens the local run-history database under --data-dir,
// resolved relative to --project-root unless already absolute.
func openAuditStore(cmd *cobra.Command) (*audit.Store, error) {
	projectRoot, _ := cmd.Flags().GetString("project-root")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(projectRoot, dataDir)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dataDir, err)
	}

	store, err := audit.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	return store, nil
}

// printDiagnostics writes every accumulated non-fatal warning to stderr.
// Critical entries are prefixed to stand out from ordinary warnings.
func printDiagnostics(diag *diagnostics.Accumulator) {
	for _, entry := range diag.Entries() {
		prefix := "warning"
		if entry.Severity == diagnostics.Critical {
			prefix = "CRITICAL"
		}
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", prefix, entry.Source, entry.Message)
	}
}
