package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalratel/peleka/pkg/audit"
	"github.com/vitalratel/peleka/pkg/config"
	"github.com/vitalratel/peleka/pkg/diagnostics"
	"github.com/vitalratel/peleka/pkg/hooks"
	"github.com/vitalratel/peleka/pkg/lock"
	"github.com/vitalratel/peleka/pkg/log"
	"github.com/vitalratel/peleka/pkg/metrics"
	"github.com/vitalratel/peleka/pkg/rollback"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Swap the active and previous containers for every configured server",
	Long: `Rollback is independent of the deployment state machine: it finds
the running and stopped managed containers for the service on each
server and swaps which one is attached to the service's network alias.
Running it twice returns to the original state.`,
	RunE: runRollback,
}

func runRollback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resolved, err := loadResolved(cmd)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	projectRoot, _ := cmd.Flags().GetString("project-root")
	hooksRunner := hooks.NewRunner(projectRoot)

	auditStore, err := openAuditStore(cmd)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	diag := diagnostics.New()
	service := resolved.Config.Service.String()

	for _, server := range resolved.Servers {
		if err := rollbackHost(ctx, resolved, server, hooksRunner, auditStore, diag, force); err != nil {
			printDiagnostics(diag)
			return fmt.Errorf("rolling back %s on %s: %w", service, server.Host, err)
		}
	}

	printDiagnostics(diag)
	return nil
}

func rollbackHost(
	ctx context.Context,
	resolved config.Resolved,
	server config.Server,
	hooksRunner *hooks.Runner,
	auditStore *audit.Store,
	diag *diagnostics.Accumulator,
	force bool,
) error {
	service := resolved.Config.Service.String()
	hostLog := log.WithHost(server.Host)
	hostLog = hostLog.With().Str("service", service).Logger()

	conn, err := dialHost(ctx, server, hostLog)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close(ctx, diag)

	startedAt := time.Now()
	var result rollback.Result

	err = lock.WithLock(ctx, conn.session, resolved.Namespace, service, force, func(l *lock.Lock) error {
		result, err = rollback.Rollback(ctx, conn.client, resolved.Config.Network.Name, service, hostLog)
		return err
	})

	if err != nil {
		metrics.RollbacksTotal.WithLabelValues("manual_failed").Inc()
		if auditErr := auditStore.Append(audit.Record{
			Service:      service,
			Server:       server.Host,
			Outcome:      audit.OutcomeFailed,
			ErrorMessage: err.Error(),
			StartedAt:    startedAt,
			FinishedAt:   time.Now(),
		}); auditErr != nil {
			diag.Warn("audit", fmt.Sprintf("%s: %v", server.Host, auditErr))
		}
		return err
	}
	metrics.RollbacksTotal.WithLabelValues("manual").Inc()

	hctx := hooks.Context{
		Service: service,
		Server:  server.Host,
		Runtime: string(conn.descriptor.Kind),
	}
	if err := hooksRunner.Run(ctx, hooks.PostDeploy, hctx); err != nil {
		metrics.HookFailuresTotal.WithLabelValues(string(hooks.PostDeploy)).Inc()
		diag.Warn("post-deploy", fmt.Sprintf("%s: %v", server.Host, err))
	}

	if auditErr := auditStore.Append(audit.Record{
		Service:    service,
		Server:     server.Host,
		Outcome:    audit.OutcomeRolledBack,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}); auditErr != nil {
		diag.Warn("audit", fmt.Sprintf("%s: %v", server.Host, auditErr))
	}

	hostLog.Info().
		Str("new_active", result.NewActive.String()).
		Str("new_previous", result.NewPrevious.String()).
		Msg("rollback complete")

	return nil
}
