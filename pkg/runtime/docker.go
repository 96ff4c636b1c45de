package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/vitalratel/peleka/pkg/id"
)

// dockerClient is the single concrete type satisfying Client. It is driven
// entirely over the local socket produced by forwarding the remote
// runtime's UNIX socket; Docker and Podman are both reachable through it
// since Podman's daemon speaks the same wire API.
type dockerClient struct {
	cli *client.Client
}

// NewClient opens an HTTP-over-UNIX client against localSocketPath, the
// local end of a forwarder.Forward call. Docker and Podman sockets are
// both dialed the same way since Podman's daemon speaks the same API.
func NewClient(localSocketPath string) (Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+localSocketPath),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("runtime: connecting to %s: %w", localSocketPath, err)
	}
	return &dockerClient{cli: cli}, nil
}

func (d *dockerClient) sealedRuntime() {}

// --- ImageOps ---

func (d *dockerClient) Pull(ctx context.Context, ref string, auth *AuthConfig) error {
	opts := dockerimage.PullOptions{}
	if auth != nil {
		encoded, err := encodeAuth(*auth)
		if err != nil {
			return newError(InvalidConfig, "image.pull", "encoding registry auth", err)
		}
		opts.RegistryAuth = encoded
	}

	reader, err := d.cli.ImagePull(ctx, ref, opts)
	if err != nil {
		if errdefs.IsUnauthorized(err) {
			return newError(AuthenticationFailed, "image.pull", ref, err)
		}
		return newError(PullFailed, "image.pull", ref, err)
	}
	defer reader.Close()

	// Drain the pull's progress stream; the caller only needs completion.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return newError(PullFailed, "image.pull", ref, err)
	}
	return nil
}

func encodeAuth(auth AuthConfig) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": auth.Username,
		"password": auth.Password,
	})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

func (d *dockerClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, newError(RuntimeError, "image.exists", ref, err)
	}
	return true, nil
}

func (d *dockerClient) RemoveImage(ctx context.Context, ref string, force bool) error {
	_, err := d.cli.ImageRemove(ctx, ref, dockerimage.RemoveOptions{Force: force})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return newError(NotFound, "image.remove", ref, err)
		}
		return newError(RuntimeError, "image.remove", ref, err)
	}
	return nil
}

// --- ContainerOps ---

func (d *dockerClient) Create(ctx context.Context, cfg ContainerConfig) (id.ContainerID, error) {
	containerCfg, hostCfg, netCfg, err := toDockerConfigs(cfg)
	if err != nil {
		return id.ContainerID{}, newError(InvalidConfig, "container.create", cfg.Name, err)
	}

	resp, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, netCfg, nil, cfg.Name)
	if err != nil {
		if errdefs.IsConflict(err) {
			return id.ContainerID{}, newError(AlreadyExists, "container.create", cfg.Name, err)
		}
		return id.ContainerID{}, newError(RuntimeError, "container.create", cfg.Name, err)
	}
	return id.New[id.Container](resp.ID), nil
}

func toDockerConfigs(cfg ContainerConfig) (*dockercontainer.Config, *dockercontainer.HostConfig, *dockernetwork.NetworkingConfig, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)
	for _, p := range cfg.Ports {
		if p.Protocol != ProtoTCP && p.Protocol != ProtoUDP {
			return nil, nil, nil, fmt.Errorf("invalid port %d/%s: protocol must be tcp or udp", p.ContainerPort, p.Protocol)
		}
		port, err := nat.NewPort(string(p.Protocol), fmt.Sprintf("%d", p.ContainerPort))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid port %d/%s: %w", p.ContainerPort, p.Protocol, err)
		}
		exposed[port] = struct{}{}
		if p.Published() {
			bindings[port] = append(bindings[port], nat.PortBinding{
				HostIP:   p.HostIP,
				HostPort: fmt.Sprintf("%d", p.HostPort),
			})
		}
	}

	var binds []string
	for _, m := range cfg.Mounts {
		spec := fmt.Sprintf("%s:%s", m.Source, m.Target)
		if m.ReadOnly {
			spec += ":ro"
		}
		binds = append(binds, spec)
	}

	var healthCfg *dockercontainer.HealthConfig
	if cfg.HealthCheck != nil {
		healthCfg = &dockercontainer.HealthConfig{
			Test:        cfg.HealthCheck.Test,
			Interval:    cfg.HealthCheck.Interval,
			Timeout:     cfg.HealthCheck.Timeout,
			Retries:     cfg.HealthCheck.Retries,
			StartPeriod: cfg.HealthCheck.StartPeriod,
		}
	}

	restartPolicy := dockercontainer.RestartPolicy{
		Name:              dockercontainer.RestartPolicyMode(cfg.RestartPolicy.Kind),
		MaximumRetryCount: cfg.RestartPolicy.MaxRetries,
	}

	var resources dockercontainer.Resources
	if cfg.Resources != nil {
		resources.Memory = cfg.Resources.MemoryBytes
		resources.NanoCPUs = cfg.Resources.NanoCPUs
	}

	stopTimeout := int(cfg.StopTimeout.Seconds())

	containerCfg := &dockercontainer.Config{
		Image:        cfg.Image,
		Env:          env,
		Labels:       cfg.Labels,
		Cmd:          cfg.Command,
		Entrypoint:   cfg.Entrypoint,
		WorkingDir:   cfg.WorkingDir,
		User:         cfg.User,
		ExposedPorts: exposed,
		Healthcheck:  healthCfg,
		StopTimeout:  &stopTimeout,
	}

	hostCfg := &dockercontainer.HostConfig{
		PortBindings:  bindings,
		Binds:         binds,
		RestartPolicy: restartPolicy,
		Resources:     resources,
	}

	var netCfg *dockernetwork.NetworkingConfig
	if cfg.NetworkName != "" {
		netCfg = &dockernetwork.NetworkingConfig{
			EndpointsConfig: map[string]*dockernetwork.EndpointSettings{
				cfg.NetworkName: {Aliases: cfg.NetworkAliases},
			},
		}
	}

	return containerCfg, hostCfg, netCfg, nil
}

func (d *dockerClient) Start(ctx context.Context, cid id.ContainerID) error {
	err := d.cli.ContainerStart(ctx, cid.String(), dockercontainer.StartOptions{})
	return translateContainerErr(err, "container.start", cid.String())
}

func (d *dockerClient) Stop(ctx context.Context, cid id.ContainerID, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	err := d.cli.ContainerStop(ctx, cid.String(), dockercontainer.StopOptions{Timeout: &secs})
	return translateContainerErr(err, "container.stop", cid.String())
}

func (d *dockerClient) RemoveContainer(ctx context.Context, cid id.ContainerID, force bool) error {
	err := d.cli.ContainerRemove(ctx, cid.String(), dockercontainer.RemoveOptions{Force: force})
	return translateContainerErr(err, "container.remove", cid.String())
}

func (d *dockerClient) Inspect(ctx context.Context, cid id.ContainerID) (ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, cid.String())
	if err != nil {
		return ContainerInfo{}, translateContainerErr(err, "container.inspect", cid.String())
	}
	return toContainerInfo(resp), nil
}

func toContainerInfo(resp dockercontainer.InspectResponse) ContainerInfo {
	info := ContainerInfo{
		ID:       id.New[id.Container](resp.ID),
		Name:     resp.Name,
		Networks: map[string]NetworkAttachment{},
	}
	if resp.State != nil {
		info.State = ContainerState(resp.State.Status)
		if resp.State.Health != nil {
			info.Health = HealthState(resp.State.Health.Status)
		} else {
			info.Health = HealthNone
		}
	}
	if resp.Config != nil {
		info.Labels = resp.Config.Labels
	}
	if resp.NetworkSettings != nil {
		for name, ep := range resp.NetworkSettings.Networks {
			info.Networks[name] = NetworkAttachment{
				IPAddress: ep.IPAddress,
				Aliases:   ep.Aliases,
			}
		}
	}
	return info
}

func (d *dockerClient) List(ctx context.Context, filters ListFilters) ([]ContainerInfo, error) {
	args := newDockerFilterArgs(filters.Labels)
	summaries, err := d.cli.ContainerList(ctx, dockercontainer.ListOptions{All: filters.All, Filters: args})
	if err != nil {
		return nil, newError(RuntimeError, "container.list", "", err)
	}

	infos := make([]ContainerInfo, 0, len(summaries))
	for _, s := range summaries {
		name := s.ID
		if len(s.Names) > 0 {
			name = s.Names[0]
		}
		info := ContainerInfo{
			ID:     id.New[id.Container](s.ID),
			Name:   name,
			State:  ContainerState(s.State),
			Labels: s.Labels,
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *dockerClient) Rename(ctx context.Context, cid id.ContainerID, newName string) error {
	err := d.cli.ContainerRename(ctx, cid.String(), newName)
	return translateContainerErr(err, "container.rename", cid.String())
}

func translateContainerErr(err error, op, target string) error {
	if err == nil {
		return nil
	}
	switch {
	case errdefs.IsNotFound(err):
		return newError(NotFound, op, target, err)
	case errdefs.IsConflict(err):
		return newError(InUse, op, target, err)
	default:
		return newError(RuntimeError, op, target, err)
	}
}

// --- NetworkOps ---

func (d *dockerClient) CreateNetwork(ctx context.Context, cfg NetworkConfig) (id.NetworkID, error) {
	resp, err := d.cli.NetworkCreate(ctx, cfg.Name, dockernetwork.CreateOptions{
		Driver: "bridge",
		Labels: cfg.Labels,
	})
	if err != nil {
		if errdefs.IsConflict(err) {
			return id.NetworkID{}, newError(AlreadyExists, "network.create", cfg.Name, err)
		}
		return id.NetworkID{}, newError(RuntimeError, "network.create", cfg.Name, err)
	}
	return id.New[id.Network](resp.ID), nil
}

func (d *dockerClient) RemoveNetwork(ctx context.Context, nid id.NetworkID) error {
	err := d.cli.NetworkRemove(ctx, nid.String())
	return translateContainerErr(err, "network.remove", nid.String())
}

func (d *dockerClient) Connect(ctx context.Context, cid id.ContainerID, nid id.NetworkID, aliases []string) error {
	err := d.cli.NetworkConnect(ctx, nid.String(), cid.String(), &dockernetwork.EndpointSettings{
		Aliases: aliases,
	})
	if err != nil {
		// Already-connected is not an error.
		if errdefs.IsConflict(err) {
			return nil
		}
		return translateContainerErr(err, "network.connect", cid.String())
	}
	return nil
}

func (d *dockerClient) Disconnect(ctx context.Context, cid id.ContainerID, nid id.NetworkID) error {
	err := d.cli.NetworkDisconnect(ctx, nid.String(), cid.String(), true)
	if err != nil {
		// Not-connected is tolerated by callers (cutover, rollback).
		if errdefs.IsNotFound(err) {
			return nil
		}
		return translateContainerErr(err, "network.disconnect", cid.String())
	}
	return nil
}

// NetworkExists reports whether name resolves to an existing network,
// returning its id when it does.
func (d *dockerClient) NetworkExists(ctx context.Context, name string) (id.NetworkID, bool, error) {
	resp, err := d.cli.NetworkInspect(ctx, name, dockernetwork.InspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return id.NetworkID{}, false, nil
		}
		return id.NetworkID{}, false, newError(RuntimeError, "network.exists", name, err)
	}
	return id.New[id.Network](resp.ID), true, nil
}

// --- ExecOps ---

func (d *dockerClient) Exec(ctx context.Context, cid id.ContainerID, cfg ExecConfig) (ExecResult, error) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	created, err := d.cli.ContainerExecCreate(ctx, cid.String(), dockercontainer.ExecOptions{
		Cmd:          cfg.Command,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, translateContainerErr(err, "exec.create", cid.String())
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, dockercontainer.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, translateContainerErr(err, "exec.attach", cid.String())
	}
	defer attach.Close()

	stdout, stderr, err := demultiplex(attach.Reader)
	if err != nil {
		return ExecResult{}, newError(RuntimeError, "exec.read", cid.String(), err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, translateContainerErr(err, "exec.inspect", cid.String())
	}

	return ExecResult{ExitCode: inspect.ExitCode, Stdout: stdout, Stderr: stderr}, nil
}

// --- LogOps ---

func (d *dockerClient) Logs(ctx context.Context, cid id.ContainerID, opts LogOptions) (<-chan LogEntry, io.Closer, error) {
	sinceStr := ""
	if !opts.Since.IsZero() {
		sinceStr = opts.Since.Format(time.RFC3339Nano)
	}
	tail := "all"
	if opts.Tail > 0 {
		tail = fmt.Sprintf("%d", opts.Tail)
	}

	reader, err := d.cli.ContainerLogs(ctx, cid.String(), dockercontainer.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Since:      sinceStr,
		Timestamps: opts.Timestamps,
		Tail:       tail,
	})
	if err != nil {
		return nil, nil, translateContainerErr(err, "container.logs", cid.String())
	}

	entries := make(chan LogEntry, 16)
	go func() {
		defer close(entries)
		streamDemuxed(reader, entries, opts.Timestamps)
	}()
	return entries, reader, nil
}

// --- RuntimeInfo ---

func (d *dockerClient) Info(ctx context.Context) (Info, error) {
	info, err := d.cli.Info(ctx)
	if err != nil {
		return Info{}, newError(RuntimeError, "info", "", err)
	}
	return Info{
		Name:    info.Name,
		Version: info.ServerVersion,
		OS:      info.OSType,
		Arch:    info.Architecture,
	}, nil
}

func (d *dockerClient) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	if err != nil {
		return newError(RuntimeError, "ping", "", err)
	}
	return nil
}
