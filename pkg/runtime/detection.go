package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vitalratel/peleka/pkg/sshsession"
)

const (
	dockerSocketPath = "/var/run/docker.sock"
	podmanSocketPath = "/run/podman/podman.sock"
)

// ErrNoRuntime is returned when none of the probed sockets are present.
var ErrNoRuntime = errors.New("runtime: no container runtime found")

// commandRunner is satisfied by *sshsession.Session.
type commandRunner interface {
	FileExists(ctx context.Context, path string) (bool, error)
	RunCommand(ctx context.Context, cmd string) (sshsession.Result, error)
}

// Override lets the caller skip probing and pin a specific runtime.
type Override struct {
	Kind   Kind
	Socket string
}

// Detect resolves the runtime descriptor for the host reachable through
// session, honoring an optional Override before probing.
func Detect(ctx context.Context, session commandRunner, override *Override) (Descriptor, error) {
	if override != nil && override.Kind != "" {
		socket := override.Socket
		if socket == "" {
			socket = defaultSocketFor(override.Kind)
		}
		return Descriptor{Kind: override.Kind, SocketPath: socket}, nil
	}

	if socket, ok, err := rootlessPodmanSocket(ctx, session); err != nil {
		return Descriptor{}, err
	} else if ok {
		return Descriptor{Kind: KindPodman, SocketPath: socket}, nil
	}

	if ok, err := session.FileExists(ctx, podmanSocketPath); err != nil {
		return Descriptor{}, fmt.Errorf("runtime: probing %s: %w", podmanSocketPath, err)
	} else if ok {
		return Descriptor{Kind: KindPodman, SocketPath: podmanSocketPath}, nil
	}

	if ok, err := session.FileExists(ctx, dockerSocketPath); err != nil {
		return Descriptor{}, fmt.Errorf("runtime: probing %s: %w", dockerSocketPath, err)
	} else if ok {
		return Descriptor{Kind: KindDocker, SocketPath: dockerSocketPath}, nil
	}

	return Descriptor{}, ErrNoRuntime
}

func rootlessPodmanSocket(ctx context.Context, session commandRunner) (string, bool, error) {
	res, err := session.RunCommand(ctx, "id -u")
	if err != nil || !res.Success() {
		// Not fatal: fall through to the rootful/Docker probes.
		return "", false, nil
	}
	uid := strings.TrimSpace(string(res.Stdout))
	if uid == "" {
		return "", false, nil
	}
	socket := fmt.Sprintf("/run/user/%s/podman/podman.sock", uid)
	ok, err := session.FileExists(ctx, socket)
	if err != nil {
		return "", false, fmt.Errorf("runtime: probing %s: %w", socket, err)
	}
	return socket, ok, nil
}

func defaultSocketFor(kind Kind) string {
	if kind == KindPodman {
		return podmanSocketPath
	}
	return dockerSocketPath
}
