package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/vitalratel/peleka/pkg/deploy"
	"github.com/vitalratel/peleka/pkg/runtime"
)

// resolveServer turns one YAML server entry into a Server, applying the
// `[user@]host[:port]` grammar when the entry was a bare scalar.
func resolveServer(d serverDoc) (Server, error) {
	if d.raw == "" {
		return Server{
			Host:                 d.Host,
			Port:                 portOrDefault(d.Port),
			User:                 d.User,
			Runtime:              runtimeKindOrDefault(d.Runtime),
			Socket:               d.Socket,
			TrustFirstConnection: d.TrustFirstConnection == nil || *d.TrustFirstConnection,
		}, nil
	}

	raw := d.raw
	user := ""
	if i := strings.Index(raw, "@"); i >= 0 {
		user = raw[:i]
		raw = raw[i+1:]
	}

	host := raw
	port := 22
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		host = raw[:i]
		p, err := strconv.Atoi(raw[i+1:])
		if err != nil {
			return Server{}, &deploy.Error{Kind: deploy.KindConfigError, Message: fmt.Sprintf("server %q: invalid port", d.raw), Err: err}
		}
		port = p
	}

	return Server{Host: host, Port: port, User: user, Runtime: "", TrustFirstConnection: true}, nil
}

func portOrDefault(p int) int {
	if p == 0 {
		return 22
	}
	return p
}

func runtimeKindOrDefault(s string) runtime.Kind {
	if s == "" {
		return ""
	}
	return runtime.Kind(s)
}

func parseRestart(s string) (runtime.RestartPolicy, error) {
	if s == "" {
		return runtime.RestartPolicy{Kind: runtime.RestartUnlessStopped}, nil
	}

	if strings.HasPrefix(s, string(runtime.RestartOnFailure)) {
		rest := strings.TrimPrefix(s, string(runtime.RestartOnFailure))
		rest = strings.TrimPrefix(rest, ":")
		if rest == "" {
			return runtime.RestartPolicy{Kind: runtime.RestartOnFailure}, nil
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			return runtime.RestartPolicy{}, &deploy.Error{Kind: deploy.KindConfigError, Message: fmt.Sprintf("restart %q: invalid retry count", s), Err: err}
		}
		return runtime.RestartPolicy{Kind: runtime.RestartOnFailure, MaxRetries: n}, nil
	}

	switch runtime.RestartPolicyKind(s) {
	case runtime.RestartNo, runtime.RestartAlways, runtime.RestartUnlessStopped:
		return runtime.RestartPolicy{Kind: runtime.RestartPolicyKind(s)}, nil
	default:
		return runtime.RestartPolicy{}, &deploy.Error{Kind: deploy.KindConfigError, Message: fmt.Sprintf("restart %q: unrecognized policy", s)}
	}
}

func parseResources(d *resourcesDoc) (*runtime.Resources, error) {
	if d == nil {
		return nil, nil
	}

	res := &runtime.Resources{}

	if d.Memory != "" {
		bytes, err := units.RAMInBytes(d.Memory)
		if err != nil {
			return nil, &deploy.Error{Kind: deploy.KindConfigError, Message: fmt.Sprintf("resources.memory %q", d.Memory), Err: err}
		}
		res.MemoryBytes = bytes
	}

	if d.CPUs != "" {
		cpus, err := strconv.ParseFloat(d.CPUs, 64)
		if err != nil {
			return nil, &deploy.Error{Kind: deploy.KindConfigError, Message: fmt.Sprintf("resources.cpus %q", d.CPUs), Err: err}
		}
		res.NanoCPUs = int64(cpus * 1e9)
	}

	return res, nil
}

func parseHealthCheck(d *healthCheckDoc) (*deploy.HealthCheckConfig, error) {
	if d == nil {
		return nil, nil
	}

	interval, err := parseDurationOrDefault(d.Interval, 10*time.Second)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDurationOrDefault(d.Timeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	startPeriod, err := parseDurationOrDefault(d.StartPeriod, 30*time.Second)
	if err != nil {
		return nil, err
	}

	retries := d.Retries
	if retries == 0 {
		retries = 3
	}

	return &deploy.HealthCheckConfig{
		Command:     []string{d.Cmd},
		Interval:    interval,
		Timeout:     timeout,
		Retries:     retries,
		StartPeriod: startPeriod,
	}, nil
}

func parseDurationOrDefault(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &deploy.Error{Kind: deploy.KindConfigError, Message: fmt.Sprintf("duration %q", s), Err: err}
	}
	return d, nil
}
