package deploy

import "strings"

// Strategy selects how a service's containers are replaced during a
// deployment.
type Strategy string

const (
	// StrategyBlueGreen runs the new container alongside the old one and
	// cuts traffic over once it is healthy.
	StrategyBlueGreen Strategy = "blue-green"
	// StrategyRecreate stops the old container before starting the new
	// one, trading brief downtime for the ability to rebind a host port
	// two containers cannot share.
	StrategyRecreate Strategy = "recreate"
)

// ForConfig selects the strategy the orchestrator must honor for cfg: an
// explicit cfg.Strategy always wins; otherwise any host-published port
// forces Recreate (two containers cannot both bind the same host port);
// else BlueGreen. The returned reason explains the automatic choice.
func ForConfig(cfg Config) (strategy Strategy, reason string) {
	if cfg.Strategy != "" {
		return cfg.Strategy, "explicit strategy configured"
	}
	for _, spec := range cfg.Ports {
		if publishesHostPort(spec) {
			return StrategyRecreate, "config publishes a host port"
		}
	}
	return StrategyBlueGreen, "no host-published ports"
}

func publishesHostPort(spec string) bool {
	spec = strings.TrimSuffix(strings.TrimSuffix(spec, "/tcp"), "/udp")
	return strings.Contains(spec, ":")
}
