/*
Package runtime detects the container runtime installed on a remote host
and provides the capability set (image, container, network, exec, log, and
info operations) needed to drive a deployment, speaking the Docker-
compatible API over a forwarded UNIX socket.

# Architecture

	┌─────────────────── RUNTIME DETECTION ─────────────────────┐
	│                                                            │
	│  1. override.Kind set?            → use it directly       │
	│  2. rootless podman.sock present? → Podman (rootless)     │
	│  3. /run/podman/podman.sock?      → Podman (rootful)      │
	│  4. /var/run/docker.sock?         → Docker                │
	│  else                              → ErrNoRuntime          │
	└────────────────────────────────────────────────────────────┘

Once a socket path is chosen, the caller forwards it locally (see package
forwarder) and NewClient opens an HTTP-over-UNIX client against the forward.
One concrete type, dockerClient, implements every capability interface;
Docker and Podman are both driven through it since Podman's daemon exposes
the same wire API.
*/
package runtime
