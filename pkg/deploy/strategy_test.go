package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForConfigHonorsExplicitStrategy(t *testing.T) {
	cfg := Config{Strategy: StrategyRecreate, Ports: nil}
	strategy, reason := ForConfig(cfg)
	assert.Equal(t, StrategyRecreate, strategy)
	assert.Contains(t, reason, "explicit")
}

func TestForConfigDefaultsToBlueGreenWithoutHostPorts(t *testing.T) {
	cfg := Config{Ports: []string{"8080"}}
	strategy, reason := ForConfig(cfg)
	assert.Equal(t, StrategyBlueGreen, strategy)
	assert.Contains(t, reason, "no host-published ports")
}

func TestForConfigForcesRecreateOnHostPort(t *testing.T) {
	cfg := Config{Ports: []string{"8080:8080"}}
	strategy, reason := ForConfig(cfg)
	assert.Equal(t, StrategyRecreate, strategy)
	assert.Contains(t, reason, "host port")
}

func TestForConfigForcesRecreateOnHostPortWithProtocolSuffix(t *testing.T) {
	cfg := Config{Ports: []string{"53:53/udp"}}
	strategy, reason := ForConfig(cfg)
	assert.Equal(t, StrategyRecreate, strategy)
	assert.Contains(t, reason, "host port")
}

func TestForConfigExplicitStrategyOverridesHostPorts(t *testing.T) {
	cfg := Config{Strategy: StrategyBlueGreen, Ports: []string{"8080:8080"}}
	strategy, _ := ForConfig(cfg)
	assert.Equal(t, StrategyBlueGreen, strategy)
}
