package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalratel/peleka/pkg/deploy"
	"github.com/vitalratel/peleka/pkg/diagnostics"
	"github.com/vitalratel/peleka/pkg/log"
	"github.com/vitalratel/peleka/pkg/metrics"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Remove stranded managed containers left behind by interrupted runs",
	Long: `Orphans sweeps every configured server for managed containers of
the service that are neither the current active container nor labeled
peleka.keep-previous=true, and removes them. A normal deploy run already
sweeps its own host after a successful cutover; this command is for
catching up a host that was never revisited.`,
	RunE: runOrphans,
}

func runOrphans(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resolved, err := loadResolved(cmd)
	if err != nil {
		return err
	}

	diag := diagnostics.New()
	service := resolved.Config.Service.String()

	for _, server := range resolved.Servers {
		hostLog := log.WithHost(server.Host)

		conn, err := dialHost(ctx, server, hostLog)
		if err != nil {
			diag.Critical("connect", fmt.Sprintf("%s: %v", server.Host, err))
			continue
		}

		var keep []string
		if active, ok, err := activeContainer(ctx, conn.client, service); err == nil && ok {
			keep = append(keep, active.ID.String())
		}
		if kept, err := keptContainerIDs(ctx, conn.client, service); err == nil {
			keep = append(keep, kept...)
		}

		deployer := deploy.New(conn.client, hostLog)
		report, err := deployer.SweepOrphans(ctx, service, keep...)
		conn.Close(ctx, diag)
		if err != nil {
			diag.Warn("orphan-sweep", fmt.Sprintf("%s: %v", server.Host, err))
			continue
		}

		metrics.OrphansRemovedTotal.Add(float64(report.Removed))
		metrics.OrphanRemovalFailuresTotal.Add(float64(report.Failed))
		fmt.Printf("%s: found %d, removed %d, failed %d\n", server.Host, report.Found, report.Removed, report.Failed)
	}

	printDiagnostics(diag)
	if diag.HasCritical() {
		return fmt.Errorf("orphan sweep encountered unrecoverable errors")
	}
	return nil
}
