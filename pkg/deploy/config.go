package deploy

import (
	"time"

	"github.com/vitalratel/peleka/pkg/imageref"
	"github.com/vitalratel/peleka/pkg/runtime"
	"github.com/vitalratel/peleka/pkg/svcname"
)

// Config is the validated, destination-merged configuration that drives
// one deployment run. It is immutable for the run once a DeploymentRecord
// is built from it.
type Config struct {
	Service svcname.Name
	Image   imageref.Ref

	// Env is the literal part of the merged environment; EnvRefs is
	// resolved against the process environment by ResolveEnv.
	Env     map[string]string
	EnvRefs map[string]EnvRef

	Labels  map[string]string
	Ports   []string // raw specs, parsed by ParsePorts
	Volumes []string // raw specs, parsed by ParseMounts

	Command    []string
	Entrypoint []string
	WorkingDir string
	User       string

	RestartPolicy runtime.RestartPolicy
	Resources     *runtime.Resources

	HealthCheck *HealthCheckConfig

	StopTimeout      time.Duration
	ImagePullPolicy  runtime.ImagePullPolicy
	ImagePullTimeout time.Duration
	HealthTimeout    time.Duration
	GracePeriod      time.Duration

	Network  NetworkConfig
	Strategy Strategy // empty means "let ForConfig decide"
}

// NetworkConfig names the network a service's containers attach to and
// any aliases beyond the service name itself.
type NetworkConfig struct {
	Name    string
	Aliases []string
}

// HealthCheckConfig is the user-authored health-check command and timing,
// prior to translation into a runtime.HealthCheckSpec.
type HealthCheckConfig struct {
	Command     []string // shell command string, exec'd via "sh -c"
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// EnvRef is a deferred reference to a process environment variable, with
// an optional fallback when it is unset.
type EnvRef struct {
	Var     string
	Default *string
}
