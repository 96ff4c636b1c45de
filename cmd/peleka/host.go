package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalratel/peleka/pkg/config"
	"github.com/vitalratel/peleka/pkg/deploy"
	"github.com/vitalratel/peleka/pkg/diagnostics"
	"github.com/vitalratel/peleka/pkg/forwarder"
	"github.com/vitalratel/peleka/pkg/runtime"
	"github.com/vitalratel/peleka/pkg/sshsession"
)

// commandTimeout bounds every remote command the session runs, per the
// 5-minute default budget.
const commandTimeout = 5 * time.Minute

// hostConn bundles the layered connections one server needs for the
// duration of a run: the SSH session, the streamlocal forwarder exposing
// the remote runtime socket, and the runtime client dialed through it.
type hostConn struct {
	session    *sshsession.Session
	forwarder  *forwarder.Forwarder
	client     runtime.Client
	descriptor runtime.Descriptor
	server     config.Server
}

// dialHost connects to server: SSH dial, runtime detection, socket
// forwarding, and a runtime client against the forwarded socket.
func dialHost(ctx context.Context, server config.Server, log zerolog.Logger) (*hostConn, error) {
	sshCfg := server.SSHConfig()
	sshCfg.CommandTimeout = commandTimeout

	session, err := sshsession.Dial(ctx, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", server.Host, err)
	}

	var override *runtime.Override
	if server.Runtime != "" {
		override = &runtime.Override{Kind: server.Runtime, Socket: server.Socket}
	}

	descriptor, err := runtime.Detect(ctx, session, override)
	if err != nil {
		_ = session.Disconnect(ctx)
		return nil, fmt.Errorf("detecting runtime on %s: %w", server.Host, err)
	}
	log.Info().Str("runtime", string(descriptor.Kind)).Str("socket", descriptor.SocketPath).Msg("runtime detected")

	fwd, err := forwarder.Forward(session, descriptor.SocketPath)
	if err != nil {
		_ = session.Disconnect(ctx)
		return nil, fmt.Errorf("forwarding %s: %w", descriptor.SocketPath, err)
	}
	session.RegisterForwarder(fwd)

	client, err := runtime.NewClient(fwd.LocalPath())
	if err != nil {
		_ = session.Disconnect(ctx)
		return nil, fmt.Errorf("connecting to forwarded socket: %w", err)
	}

	return &hostConn{
		session:    session,
		forwarder:  fwd,
		client:     client,
		descriptor: descriptor,
		server:     server,
	}, nil
}

// Close releases the forwarder and SSH session, in that order. A failure
// here is a warning, never fatal: the deployment has already completed or
// failed by the time Close runs.
func (h *hostConn) Close(ctx context.Context, diag *diagnostics.Accumulator) {
	if err := h.session.Disconnect(ctx); err != nil {
		diag.Warn("ssh", fmt.Sprintf("disconnecting from %s: %v", h.server.Host, err))
	}
}

// activeContainer returns the single running managed container for
// service, if any. Strategy selection and record construction both need
// this: it is the "old_container" a new deployment replaces.
func activeContainer(ctx context.Context, client runtime.Client, service string) (runtime.ContainerInfo, bool, error) {
	infos, err := client.List(ctx, runtime.ListFilters{
		Labels: map[string]string{"peleka.managed": "true", "peleka.service": service},
		All:    false,
	})
	if err != nil {
		return runtime.ContainerInfo{}, false, fmt.Errorf("listing managed containers for %s: %w", service, err)
	}
	if len(infos) == 0 {
		return runtime.ContainerInfo{}, false, nil
	}
	return infos[0], true, nil
}

// keptContainerIDs returns the ids of every managed container for service
// that carries peleka.keep-previous=true, stopped or not. Cleanup always
// stops the old container before checking that label, so a kept
// predecessor is never "active" by activeContainer's running-only
// definition; the orphan sweep needs its id anyway, or it would remove the
// very container the label was meant to preserve.
func keptContainerIDs(ctx context.Context, client runtime.Client, service string) ([]string, error) {
	infos, err := client.List(ctx, runtime.ListFilters{
		Labels: map[string]string{deploy.LabelManaged: "true", deploy.LabelService: service},
		All:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing managed containers for %s: %w", service, err)
	}

	var kept []string
	for _, c := range infos {
		if c.Labels[deploy.LabelKeepPrevious] == "true" {
			kept = append(kept, c.ID.String())
		}
	}
	return kept, nil
}
