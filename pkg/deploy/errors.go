package deploy

import "fmt"

// ErrorKind enumerates the failure categories the orchestrator can act on
// by name, distinct from the lower-level runtime.ErrorKind a capability
// call might also be wrapping.
type ErrorKind string

const (
	KindHealthCheckTimeout    ErrorKind = "health_check_timeout"
	KindNoPreviousDeployment  ErrorKind = "no_previous_deployment"
	KindImagePullFailed       ErrorKind = "image_pull_failed"
	KindContainerCreateFailed ErrorKind = "container_create_failed"
	KindContainerStartFailed  ErrorKind = "container_start_failed"
	KindContainerStopFailed   ErrorKind = "container_stop_failed"
	KindContainerRemoveFailed ErrorKind = "container_remove_failed"
	KindNetworkFailed         ErrorKind = "network_failed"
	KindRollbackFailed        ErrorKind = "rollback_failed"
	KindConfigError           ErrorKind = "config_error"
)

// Error is the error type every state-machine transition returns on
// failure, alongside the still-owning DeploymentRecord.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deploy: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("deploy: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HealthCheckTimeoutError carries the elapsed seconds of an exhausted
// health-check deadline.
type HealthCheckTimeoutError struct {
	Seconds float64
}

func (e *HealthCheckTimeoutError) Error() string {
	return fmt.Sprintf("deploy: health check timed out after %.0fs", e.Seconds)
}

// NoPreviousDeploymentError is returned by manual rollback when no stopped
// managed container exists to roll back to.
type NoPreviousDeploymentError struct {
	Service string
}

func (e *NoPreviousDeploymentError) Error() string {
	return fmt.Sprintf("deploy: no previous deployment for service %q", e.Service)
}

// RollbackFailedError is returned by manual rollback when no running
// managed container exists to roll back from.
type RollbackFailedError struct {
	Reason string
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("deploy: rollback failed: %s", e.Reason)
}
