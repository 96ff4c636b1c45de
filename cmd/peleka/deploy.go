package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vitalratel/peleka/pkg/audit"
	"github.com/vitalratel/peleka/pkg/config"
	"github.com/vitalratel/peleka/pkg/deploy"
	"github.com/vitalratel/peleka/pkg/diagnostics"
	"github.com/vitalratel/peleka/pkg/hooks"
	"github.com/vitalratel/peleka/pkg/id"
	"github.com/vitalratel/peleka/pkg/lock"
	"github.com/vitalratel/peleka/pkg/log"
	"github.com/vitalratel/peleka/pkg/metrics"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the configured image to every server, one host at a time",
	Long: `Deploy reads peleka.yml, resolves the active destination, and runs
the deployment state machine against each server in sequence: acquire the
remote lock, pull the image, start the new container, wait for it to
report healthy, cut traffic over, and retire the previous container.

A failure on one host stops the rollout; servers after it are left
untouched.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().Duration("health-timeout", 0, "Override config.health_timeout for this run")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	resolved, err := loadResolved(cmd)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	if override, _ := cmd.Flags().GetDuration("health-timeout"); override > 0 {
		resolved.Config.HealthTimeout = override
	}

	projectRoot, _ := cmd.Flags().GetString("project-root")
	hooksRunner := hooks.NewRunner(projectRoot)

	auditStore, err := openAuditStore(cmd)
	if err != nil {
		return err
	}
	defer auditStore.Close()

	diag := diagnostics.New()

	for _, server := range resolved.Servers {
		if err := deployToHost(ctx, resolved, server, hooksRunner, auditStore, diag, force); err != nil {
			printDiagnostics(diag)
			return err
		}
	}

	printDiagnostics(diag)
	return nil
}

// deployToHost dials server, runs the full deployment under that host's
// remote lock, and records the strategy/outcome/duration metrics for the
// attempt regardless of which phase it failed in.
func deployToHost(
	ctx context.Context,
	resolved config.Resolved,
	server config.Server,
	hooksRunner *hooks.Runner,
	auditStore *audit.Store,
	diag *diagnostics.Accumulator,
	force bool,
) error {
	hostLog := log.WithHost(server.Host)
	hostLog = hostLog.With().Str("service", resolved.Config.Service.String()).Logger()

	conn, err := dialHost(ctx, server, hostLog)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", server.Host, err)
	}
	defer conn.Close(ctx, diag)

	strategy, _ := deploy.ForConfig(resolved.Config)
	timer := metrics.NewTimer()

	err = lock.WithLock(ctx, conn.session, resolved.Namespace, resolved.Config.Service.String(), force, func(l *lock.Lock) error {
		metrics.LockAcquisitionsTotal.WithLabelValues(lockOutcome(force)).Inc()
		return runDeployBody(ctx, conn, resolved, server, hooksRunner, auditStore, diag, hostLog)
	})
	if err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			metrics.LockAcquisitionsTotal.WithLabelValues("held").Inc()
		}
	}

	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	metrics.DeploymentsTotal.WithLabelValues(string(strategy), outcome).Inc()
	timer.ObserveDurationVec(metrics.DeploymentDuration, string(strategy))

	return err
}

func lockOutcome(force bool) string {
	if force {
		return "forced"
	}
	return "acquired"
}

// runHook runs the hook at point and applies hooks.PolicyFor(point) to
// whatever it returns: a Fatal point's error is returned to the caller to
// abort the host, a Warning point's error is recorded to diag and
// swallowed. Either way a failure counts against HookFailuresTotal.
func runHook(ctx context.Context, hooksRunner *hooks.Runner, point hooks.Point, hctx hooks.Context, server config.Server, diag *diagnostics.Accumulator) error {
	err := hooksRunner.Run(ctx, point, hctx)
	if err == nil {
		return nil
	}

	metrics.HookFailuresTotal.WithLabelValues(string(point)).Inc()

	if hooks.PolicyFor(point) == hooks.Fatal {
		return err
	}
	diag.Warn(string(point), fmt.Sprintf("%s: %v", server.Host, err))
	return nil
}

// runDeployBody runs the six-phase state machine against one already
// locked, already connected host, wiring in the pre/post/on-error hooks,
// the audit log, and the diagnostics accumulator as it goes.
func runDeployBody(
	ctx context.Context,
	conn *hostConn,
	resolved config.Resolved,
	server config.Server,
	hooksRunner *hooks.Runner,
	auditStore *audit.Store,
	diag *diagnostics.Accumulator,
	hostLog zerolog.Logger,
) error {
	cfg := resolved.Config
	service := cfg.Service.String()
	startedAt := time.Now()

	active, hasActive, err := activeContainer(ctx, conn.client, service)
	if err != nil {
		return err
	}

	hctx := hooks.Context{
		Service: service,
		Image:   cfg.Image.String(),
		Server:  server.Host,
		Runtime: string(conn.descriptor.Kind),
	}
	if hasActive {
		if last, ok, err := auditStore.Latest(service); err == nil && ok {
			hctx.PreviousVersion = last.Image
		}
	}

	if err := runHook(ctx, hooksRunner, hooks.PreDeploy, hctx, server, diag); err != nil {
		return err
	}

	strategy, reason := deploy.ForConfig(cfg)
	hostLog.Info().Str("strategy", string(strategy)).Str("reason", reason).Msg("strategy selected")

	deployer := deploy.New(conn.client, hostLog)

	oldContainer := active.ID
	if strategy == deploy.StrategyRecreate && hasActive {
		if err := conn.client.Stop(ctx, active.ID, cfg.StopTimeout); err != nil {
			hostLog.Warn().Err(err).Msg("stopping old container before recreate")
		}
		oldContainer = id.ContainerID{}
	}

	fail := func(err error) error {
		return onDeployFailure(ctx, hooksRunner, auditStore, diag, hostLog, hctx, server, cfg, deployer, deploy.NewRecord(cfg, oldContainer), err, startedAt)
	}

	networkID, err := deployer.EnsureNetwork(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	rec := deploy.NewRecord(cfg, oldContainer)

	pullTimer := metrics.NewTimer()
	rec, err = deployer.PullImage(ctx, rec)
	if err != nil {
		return onDeployFailure(ctx, hooksRunner, auditStore, diag, hostLog, hctx, server, cfg, deployer, rec, err, startedAt)
	}
	pullTimer.ObserveDuration(metrics.ImagePullDuration)

	rec, err = deployer.StartContainer(ctx, rec, networkID)
	if err != nil {
		return onDeployFailure(ctx, hooksRunner, auditStore, diag, hostLog, hctx, server, cfg, deployer, rec, err, startedAt)
	}

	healthTimer := metrics.NewTimer()
	rec, err = deployer.HealthCheck(ctx, rec, cfg.HealthTimeout)
	if err != nil {
		metrics.HealthCheckPollsTotal.WithLabelValues("unhealthy").Inc()
		return onDeployFailure(ctx, hooksRunner, auditStore, diag, hostLog, hctx, server, cfg, deployer, rec, err, startedAt)
	}
	healthTimer.ObserveDuration(metrics.HealthCheckDuration)
	metrics.HealthCheckPollsTotal.WithLabelValues("healthy").Inc()

	rec, err = deployer.Cutover(ctx, rec, networkID)
	if err != nil {
		return onDeployFailure(ctx, hooksRunner, auditStore, diag, hostLog, hctx, server, cfg, deployer, rec, err, startedAt)
	}

	rec, err = deployer.Cleanup(ctx, rec, cfg.GracePeriod)
	if err != nil {
		// Cleanup failures after a successful cutover are non-fatal: the
		// deployment is done, the old container becomes an orphan the next
		// sweep will find.
		diag.Warn("cleanup", fmt.Sprintf("%s: %v", server.Host, err))
	}

	if strategy == deploy.StrategyRecreate && hasActive {
		if err := conn.client.RemoveContainer(ctx, active.ID, true); err != nil {
			hostLog.Debug().Err(err).Msg("removing already-stopped recreate predecessor")
		}
	}

	_, newContainer := deployer.Finish(rec)

	_ = runHook(ctx, hooksRunner, hooks.PostDeploy, hctx, server, diag)

	keep := []string{newContainer.String()}
	if kept, err := keptContainerIDs(ctx, conn.client, service); err != nil {
		diag.Warn("orphan-sweep", fmt.Sprintf("%s: listing kept containers: %v", server.Host, err))
	} else {
		keep = append(keep, kept...)
	}

	if report, err := deployer.SweepOrphans(ctx, service, keep...); err != nil {
		diag.Warn("orphan-sweep", fmt.Sprintf("%s: %v", server.Host, err))
	} else {
		metrics.OrphansRemovedTotal.Add(float64(report.Removed))
		metrics.OrphanRemovalFailuresTotal.Add(float64(report.Failed))
	}

	if auditErr := auditStore.Append(audit.Record{
		Service:    service,
		Image:      cfg.Image.String(),
		Server:     server.Host,
		Strategy:   string(strategy),
		Outcome:    audit.OutcomeSucceeded,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}); auditErr != nil {
		diag.Warn("audit", fmt.Sprintf("%s: %v", server.Host, auditErr))
	}

	return nil
}

// onDeployFailure runs the on-error hook (warning only), rolls back
// whatever new container the failed attempt created, records the failed
// run to the audit log, and returns the original transition error so the
// exit code reflects the failure kind.
func onDeployFailure(
	ctx context.Context,
	hooksRunner *hooks.Runner,
	auditStore *audit.Store,
	diag *diagnostics.Accumulator,
	hostLog zerolog.Logger,
	hctx hooks.Context,
	server config.Server,
	cfg deploy.Config,
	deployer *deploy.Deployer,
	rec deploy.DeploymentRecord,
	transitionErr error,
	startedAt time.Time,
) error {
	_ = runHook(ctx, hooksRunner, hooks.OnError, hctx, server, diag)

	if _, err := deployer.Rollback(ctx, rec); err != nil {
		diag.Critical("rollback", fmt.Sprintf("%s: %v", server.Host, err))
	}

	if auditErr := auditStore.Append(audit.Record{
		Service:      cfg.Service.String(),
		Image:        cfg.Image.String(),
		Server:       server.Host,
		Outcome:      audit.OutcomeFailed,
		ErrorMessage: transitionErr.Error(),
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}); auditErr != nil {
		diag.Warn("audit", fmt.Sprintf("%s: %v", server.Host, auditErr))
	}

	hostLog.Error().Err(transitionErr).Msg("deployment failed")
	return transitionErr
}
