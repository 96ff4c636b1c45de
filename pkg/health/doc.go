// Package health implements the two health-check mechanisms the deploy
// state machine polls during its health_check transition: a native
// checker that reads a container's own runtime-reported HealthState, and
// an exec checker that runs a shell command inside the container and
// classifies its exit code. Status tracks consecutive successes and
// failures against a configurable retry threshold.
package health
