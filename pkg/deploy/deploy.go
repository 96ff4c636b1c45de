package deploy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalratel/peleka/pkg/health"
	"github.com/vitalratel/peleka/pkg/id"
	"github.com/vitalratel/peleka/pkg/runtime"
)

// Deployer drives the deployment state machine's six ordered transitions
// against one runtime.Client. Each transition is a pure function of its
// input record: on error it returns the record unchanged in ownership
// terms so the orchestrator can decide whether to roll back.
type Deployer struct {
	rt  runtime.Client
	log zerolog.Logger
}

// New builds a Deployer driving rt, logging under logger.
func New(rt runtime.Client, logger zerolog.Logger) *Deployer {
	return &Deployer{rt: rt, log: logger}
}

// EnsureNetwork returns the id of cfg.Network.Name, creating it with the
// engine's namespace labels if it does not already exist. Called once
// before PullImage; idempotent.
func (d *Deployer) EnsureNetwork(ctx context.Context, cfg Config) (id.NetworkID, error) {
	if nid, ok, err := d.rt.NetworkExists(ctx, cfg.Network.Name); err != nil {
		return id.NetworkID{}, newError(KindNetworkFailed, "checking network", err)
	} else if ok {
		return nid, nil
	}

	nid, err := d.rt.CreateNetwork(ctx, runtime.NetworkConfig{
		Name:   cfg.Network.Name,
		Labels: map[string]string{"peleka.managed": "true"},
	})
	if err != nil {
		return id.NetworkID{}, newError(KindNetworkFailed, "creating network", err)
	}
	return nid, nil
}

// PullImage pulls the configured image reference, skipping the pull when
// the image is already present and the pull policy is "if-missing".
func (d *Deployer) PullImage(ctx context.Context, rec DeploymentRecord) (DeploymentRecord, error) {
	if err := requirePhase(rec.Phase, Initialized); err != nil {
		return rec, err
	}

	ref := rec.Config.Image.String()
	if rec.Config.ImagePullPolicy == runtime.PullIfMissing {
		exists, err := d.rt.ImageExists(ctx, ref)
		if err != nil {
			return rec, newError(KindImagePullFailed, "checking image presence", err)
		}
		if exists {
			rec.Phase = ImagePulled
			return rec, nil
		}
	}

	pullCtx := ctx
	if rec.Config.ImagePullTimeout > 0 {
		var cancel context.CancelFunc
		pullCtx, cancel = context.WithTimeout(ctx, rec.Config.ImagePullTimeout)
		defer cancel()
	}

	if err := d.rt.Pull(pullCtx, ref, envAuth()); err != nil {
		return rec, newError(KindImagePullFailed, ref, err)
	}
	rec.Phase = ImagePulled
	return rec, nil
}

// envAuth derives registry credentials from the process environment;
// nil when neither is set, meaning an anonymous pull.
func envAuth() *runtime.AuthConfig {
	user, hasUser := os.LookupEnv("PELEKA_REGISTRY_USERNAME")
	pass, hasPass := os.LookupEnv("PELEKA_REGISTRY_PASSWORD")
	if !hasUser && !hasPass {
		return nil
	}
	return &runtime.AuthConfig{Username: user, Password: pass}
}

// StartContainer computes the new container's slot, materializes its
// create-config, attaches it to the network when the service alias is
// not already claimed by an existing managed container, and starts it.
func (d *Deployer) StartContainer(ctx context.Context, rec DeploymentRecord, networkID id.NetworkID) (DeploymentRecord, error) {
	if err := requirePhase(rec.Phase, ImagePulled); err != nil {
		return rec, err
	}

	slot := SlotBlue
	if !rec.OldContainer.IsZero() {
		info, err := d.rt.Inspect(ctx, rec.OldContainer)
		if err != nil {
			return rec, newError(KindContainerCreateFailed, "inspecting previous container", err)
		}
		slot = Slot(info.Labels[LabelSlot]).Opposite()
	}

	name := fmt.Sprintf("%s-%s", rec.Config.Service.String(), slot)

	createCfg, err := d.materializeConfig(rec.Config, name, slot)
	if err != nil {
		return rec, newError(KindConfigError, "materializing container config", err)
	}

	aliasClaimed, err := d.aliasInUse(ctx, rec.Config.Service.String())
	if err != nil {
		return rec, newError(KindContainerCreateFailed, "checking alias usage", err)
	}
	if !aliasClaimed {
		createCfg.NetworkName = rec.Config.Network.Name
		createCfg.NetworkAliases = []string{rec.Config.Service.String()}
	}

	cid, err := d.rt.Create(ctx, createCfg)
	if err != nil {
		return rec, newError(KindContainerCreateFailed, name, err)
	}

	if err := d.rt.Start(ctx, cid); err != nil {
		return rec, newError(KindContainerStartFailed, name, err)
	}

	rec.NewContainer = cid
	rec.Phase = ContainerStarted
	_ = networkID // retained on the record implicitly via cutover's explicit argument
	return rec, nil
}

func (d *Deployer) materializeConfig(cfg Config, name string, slot Slot) (runtime.ContainerConfig, error) {
	env, err := ResolveEnv(cfg)
	if err != nil {
		return runtime.ContainerConfig{}, err
	}

	ports, err := ParsePorts(cfg.Ports)
	if err != nil {
		return runtime.ContainerConfig{}, err
	}

	mounts, err := ParseMounts(cfg.Volumes)
	if err != nil {
		return runtime.ContainerConfig{}, err
	}

	var healthSpec *runtime.HealthCheckSpec
	if cfg.HealthCheck != nil {
		healthSpec = &runtime.HealthCheckSpec{
			Test:        append([]string{"CMD-SHELL"}, cfg.HealthCheck.Command...),
			Interval:    cfg.HealthCheck.Interval,
			Timeout:     cfg.HealthCheck.Timeout,
			Retries:     cfg.HealthCheck.Retries,
			StartPeriod: cfg.HealthCheck.StartPeriod,
		}
	}

	return runtime.ContainerConfig{
		Name:          name,
		Image:         cfg.Image.String(),
		Env:           env,
		Labels:        engineLabels(cfg.Service.String(), slot, cfg.Labels),
		Ports:         ports,
		Mounts:        mounts,
		Command:       cfg.Command,
		Entrypoint:    cfg.Entrypoint,
		WorkingDir:    cfg.WorkingDir,
		User:          cfg.User,
		RestartPolicy: cfg.RestartPolicy,
		Resources:     cfg.Resources,
		HealthCheck:   healthSpec,
		StopTimeout:   cfg.StopTimeout,
	}, nil
}

// aliasInUse reports whether any managed container for service is
// already attached to the network with the service name as an alias.
func (d *Deployer) aliasInUse(ctx context.Context, service string) (bool, error) {
	containers, err := d.rt.List(ctx, runtime.ListFilters{
		Labels: map[string]string{LabelManaged: "true", LabelService: service},
		All:    true,
	})
	if err != nil {
		return false, err
	}
	for _, c := range containers {
		for _, att := range c.Networks {
			for _, alias := range att.Aliases {
				if alias == service {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// HealthCheck polls the new container until it reports healthy or the
// outer deadline is exhausted. When a health-check command is configured
// it is run inside the container via exec on each poll; otherwise the
// container's native health state is polled via runtime inspect.
func (d *Deployer) HealthCheck(ctx context.Context, rec DeploymentRecord, deadline time.Duration) (DeploymentRecord, error) {
	if err := requirePhase(rec.Phase, ContainerStarted); err != nil {
		return rec, err
	}

	healthCfg := health.DefaultConfig()
	if rec.Config.HealthCheck != nil {
		if rec.Config.HealthCheck.Interval > 0 {
			healthCfg.Interval = rec.Config.HealthCheck.Interval
		}
		if rec.Config.HealthCheck.Timeout > 0 {
			healthCfg.Timeout = rec.Config.HealthCheck.Timeout
		}
		if rec.Config.HealthCheck.Retries > 0 {
			healthCfg.Retries = rec.Config.HealthCheck.Retries
		}
		healthCfg.StartPeriod = rec.Config.HealthCheck.StartPeriod
	}

	var checker health.Checker
	if rec.Config.HealthCheck != nil && len(rec.Config.HealthCheck.Command) > 0 {
		commandLine := rec.Config.HealthCheck.Command[0]
		ec := health.NewExecChecker(d.rt, rec.NewContainer, commandLine)
		ec.Timeout = healthCfg.Timeout
		checker = ec
	} else {
		checker = health.NewNativeChecker(d.rt, rec.NewContainer)
	}

	status := health.NewStatus()
	start := time.Now()
	deadlineCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	for {
		result := checker.Check(deadlineCtx)
		status.Update(result, healthCfg)

		if result.Healthy {
			rec.Phase = HealthChecked
			return rec, nil
		}

		logEvent := d.log.Debug()
		if !status.Healthy && !status.InStartPeriod(healthCfg) {
			logEvent = d.log.Warn()
		}
		logEvent.
			Str("classification", string(result.Classification)).
			Str("message", result.Message).
			Int("consecutive_failures", status.ConsecutiveFailures).
			Msg("health check poll failed")

		select {
		case <-deadlineCtx.Done():
			return rec, &HealthCheckTimeoutError{Seconds: time.Since(start).Seconds()}
		case <-time.After(healthCfg.Interval):
		}
	}
}

// Cutover disconnects the old container (if any) from the network and
// connects the new container with the service alias plus any configured
// extra aliases. Disconnect always precedes connect: the reverse order
// can transiently resolve the service alias to two IPs.
func (d *Deployer) Cutover(ctx context.Context, rec DeploymentRecord, networkID id.NetworkID) (DeploymentRecord, error) {
	if err := requirePhase(rec.Phase, HealthChecked); err != nil {
		return rec, err
	}

	if !rec.OldContainer.IsZero() {
		if err := d.rt.Disconnect(ctx, rec.OldContainer, networkID); err != nil {
			return rec, newError(KindNetworkFailed, "disconnecting previous container", err)
		}
	}

	aliases := append([]string{rec.Config.Service.String()}, rec.Config.Network.Aliases...)
	if err := d.rt.Connect(ctx, rec.NewContainer, networkID, aliases); err != nil {
		return rec, newError(KindNetworkFailed, "connecting new container", err)
	}

	rec.Phase = CutOver
	return rec, nil
}

// Cleanup stops and, after gracePeriod, removes the old container, unless
// it carries peleka.keep-previous=true (which suppresses removal but not
// the stop).
func (d *Deployer) Cleanup(ctx context.Context, rec DeploymentRecord, gracePeriod time.Duration) (DeploymentRecord, error) {
	if err := requirePhase(rec.Phase, CutOver); err != nil {
		return rec, err
	}

	if rec.OldContainer.IsZero() {
		rec.Phase = Completed
		return rec, nil
	}

	if err := d.rt.Stop(ctx, rec.OldContainer, rec.Config.StopTimeout); err != nil {
		d.log.Warn().Err(err).Msg("stopping previous container during cleanup")
	}

	info, err := d.rt.Inspect(ctx, rec.OldContainer)
	keep := err == nil && info.Labels[LabelKeepPrevious] == "true"

	if !keep {
		select {
		case <-ctx.Done():
		case <-time.After(gracePeriod):
		}
		if err := d.rt.RemoveContainer(ctx, rec.OldContainer, false); err != nil {
			d.log.Warn().Err(err).Msg("removing previous container during cleanup")
		}
	}

	rec.Phase = Completed
	return rec, nil
}

// Finish extracts the surviving config and new container from a
// Completed record, for the orphan sweep that follows a successful run.
func (d *Deployer) Finish(rec DeploymentRecord) (Config, id.ContainerID) {
	return rec.Config, rec.NewContainer
}

// Rollback tears down the new container (best-effort stop, then force
// remove) if one was created, never touches the old container, and
// returns a fresh Initialized record. Rollback on a record with no new
// container is a no-op success.
func (d *Deployer) Rollback(ctx context.Context, rec DeploymentRecord) (DeploymentRecord, error) {
	if !rec.NewContainer.IsZero() {
		if err := d.rt.Stop(ctx, rec.NewContainer, 10*time.Second); err != nil {
			d.log.Debug().Err(err).Msg("stopping new container during rollback")
		}
		if err := d.rt.RemoveContainer(ctx, rec.NewContainer, true); err != nil {
			return rec, newError(KindRollbackFailed, "removing new container", err)
		}
	}

	return DeploymentRecord{Config: rec.Config, OldContainer: rec.OldContainer, Phase: Initialized}, nil
}
