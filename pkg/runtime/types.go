package runtime

import (
	"time"

	"github.com/vitalratel/peleka/pkg/id"
)

// Kind identifies which container runtime a host is running.
type Kind string

const (
	KindDocker Kind = "docker"
	KindPodman Kind = "podman"
)

// Descriptor names the detected runtime and the remote socket path it
// listens on.
type Descriptor struct {
	Kind       Kind
	SocketPath string
}

// ContainerState mirrors the daemon's container lifecycle state.
type ContainerState string

const (
	StateCreated    ContainerState = "created"
	StateRunning    ContainerState = "running"
	StatePaused     ContainerState = "paused"
	StateRestarting ContainerState = "restarting"
	StateRemoving   ContainerState = "removing"
	StateExited     ContainerState = "exited"
	StateDead       ContainerState = "dead"
)

// HealthState mirrors the daemon's native health-check state, when the
// container was created with one.
type HealthState string

const (
	HealthNone      HealthState = "none"
	HealthStarting  HealthState = "starting"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

// ContainerInfo is the subset of `inspect` output the deployment engine
// consumes.
type ContainerInfo struct {
	ID      id.ContainerID
	Name    string
	State   ContainerState
	Health  HealthState
	Labels  map[string]string
	// Networks maps network name to the container's IP address and
	// aliases on that network.
	Networks map[string]NetworkAttachment
}

// NetworkAttachment is one network's view of a container.
type NetworkAttachment struct {
	IPAddress string
	Aliases   []string
}

// PortProtocol is "tcp" or "udp".
type PortProtocol string

const (
	ProtoTCP PortProtocol = "tcp"
	ProtoUDP PortProtocol = "udp"
)

// PortBinding is one parsed port mapping: a container-only port, or a
// container port published on a single host port, with protocol.
type PortBinding struct {
	HostIP        string // empty unless explicitly given
	HostPort      int    // 0 when the container port is not published
	ContainerPort int
	Protocol      PortProtocol
}

// Published reports whether this binding exposes a host port.
func (p PortBinding) Published() bool {
	return p.HostPort != 0
}

// Mount is a bind mount from the host (or a named volume) into the
// container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RestartPolicyKind enumerates the restart policies a container can be
// created with.
type RestartPolicyKind string

const (
	RestartNo            RestartPolicyKind = "no"
	RestartAlways        RestartPolicyKind = "always"
	RestartUnlessStopped RestartPolicyKind = "unless-stopped"
	RestartOnFailure     RestartPolicyKind = "on-failure"
)

// RestartPolicy pairs a policy kind with its optional retry budget.
type RestartPolicy struct {
	Kind       RestartPolicyKind
	MaxRetries int // only meaningful when Kind == RestartOnFailure
}

// Resources bounds CPU and memory for a created container.
type Resources struct {
	MemoryBytes int64
	NanoCPUs    int64 // CPUs expressed as billionths of a core, matching the daemon's own unit
}

// HealthCheckSpec is the native container health-check configuration,
// translated from the service's shell command.
type HealthCheckSpec struct {
	Test        []string // e.g. ["CMD-SHELL", "curl -f http://localhost/health"]
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// ContainerConfig is the input to Create.
type ContainerConfig struct {
	Name          string
	Image         string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortBinding
	Mounts        []Mount
	Command       []string
	Entrypoint    []string
	WorkingDir    string
	User          string
	RestartPolicy RestartPolicy
	Resources     *Resources
	HealthCheck   *HealthCheckSpec
	StopTimeout   time.Duration
	NetworkName   string
	NetworkAliases []string
}

// NetworkConfig is the input to CreateNetwork.
type NetworkConfig struct {
	Name   string
	Labels map[string]string
}

// ExecConfig is the input to ExecOps.Exec.
type ExecConfig struct {
	Command []string
	Env     map[string]string
}

// ExecResult is the outcome of a completed exec.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// LogStream is which stream a log entry came from.
type LogStream string

const (
	StreamStdout LogStream = "stdout"
	StreamStderr LogStream = "stderr"
)

// LogEntry is one line of container output.
type LogEntry struct {
	Content   []byte
	Stream    LogStream
	Timestamp *time.Time
}

// LogOptions controls a Logs call.
type LogOptions struct {
	Follow     bool
	Since      time.Time
	Timestamps bool
	Tail       int // 0 means "all"
}

// Info is the daemon's own identity, returned by RuntimeInfo.Info.
type Info struct {
	Name    string
	Version string
	OS      string
	Arch    string
}

// AuthConfig carries registry credentials for ImageOps.Pull, derived from the
// caller's environment. Empty when the registry requires no auth.
type AuthConfig struct {
	Username string
	Password string
}

// ListFilters narrows ContainerOps.List, e.g. to one service's labels.
type ListFilters struct {
	Labels map[string]string
	All    bool // include stopped containers
}

// ImagePullPolicy controls whether ImageOps.Pull is skipped when the image is
// already present locally.
type ImagePullPolicy string

const (
	PullAlways   ImagePullPolicy = "always"
	PullIfMissing ImagePullPolicy = "if-missing"
)
