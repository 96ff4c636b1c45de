// Package cli maps the deployment engine's typed errors onto the exit
// code contract the orchestrator's callers (shell scripts, CI jobs) rely
// on, and gives one-line hints for the well-known error kinds.
package cli

import (
	"errors"
	"fmt"

	"github.com/vitalratel/peleka/pkg/config"
	"github.com/vitalratel/peleka/pkg/deploy"
	"github.com/vitalratel/peleka/pkg/lock"
	"github.com/vitalratel/peleka/pkg/sshsession"
)

// ExitCode is the process exit status a command handler resolves to.
type ExitCode int

const (
	ExitSuccess              ExitCode = 0
	ExitGeneric              ExitCode = 1
	ExitLockHeld             ExitCode = 2
	ExitHealthCheckTimeout   ExitCode = 3
	ExitNoPreviousDeployment ExitCode = 4
	ExitSSHFailure           ExitCode = 5
	ExitConfigNotFound       ExitCode = 6
	ExitNoServers            ExitCode = 7
)

// ExitCodeFor resolves err's exit code per the documented contract. A nil
// err is ExitSuccess; an err matching none of the well-known kinds is
// ExitGeneric.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}

	var held *lock.HeldError
	if errors.As(err, &held) {
		return ExitLockHeld
	}

	var timeout *deploy.HealthCheckTimeoutError
	if errors.As(err, &timeout) {
		return ExitHealthCheckTimeout
	}

	var noPrev *deploy.NoPreviousDeploymentError
	if errors.As(err, &noPrev) {
		return ExitNoPreviousDeployment
	}

	var sshTimeout *sshsession.TimeoutError
	if errors.As(err, &sshTimeout) {
		return ExitSSHFailure
	}

	var notFound *config.ErrConfigNotFound
	if errors.As(err, &notFound) {
		return ExitConfigNotFound
	}

	if errors.Is(err, config.ErrNoServers) {
		return ExitNoServers
	}

	return ExitGeneric
}

// Hint returns a one-line, user-facing suggestion for well-known error
// kinds, or "" when none applies.
func Hint(err error) string {
	var held *lock.HeldError
	if errors.As(err, &held) {
		return fmt.Sprintf("deploy locked by %s (pid %d) since %s — retry with --force to take over a stale lock",
			held.Info.Holder, held.Info.PID, held.Info.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	}

	var timeout *deploy.HealthCheckTimeoutError
	if errors.As(err, &timeout) {
		return "container never reported healthy — check the service's healthcheck command and start_period"
	}

	var noPrev *deploy.NoPreviousDeploymentError
	if errors.As(err, &noPrev) {
		return fmt.Sprintf("no previous deployment of %s to roll back to", noPrev.Service)
	}

	return ""
}
