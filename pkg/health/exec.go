package health

import (
	"context"
	"strings"
	"time"

	"github.com/vitalratel/peleka/pkg/id"
	"github.com/vitalratel/peleka/pkg/runtime"
)

// ExecChecker runs a shell command inside a container via runtime.ExecOps
// and classifies the result by exit code.
type ExecChecker struct {
	Exec      runtime.ExecOps
	Container id.ContainerID
	Command   []string
	Timeout   time.Duration
}

// NewExecChecker builds a checker that runs commandLine (a shell command
// string, exec'd via "sh -c") inside container.
func NewExecChecker(exec runtime.ExecOps, container id.ContainerID, commandLine string) *ExecChecker {
	return &ExecChecker{
		Exec:      exec,
		Container: container,
		Command:   []string{"sh", "-c", commandLine},
		Timeout:   10 * time.Second,
	}
}

// Check runs the configured command and classifies its exit code.
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	result, err := e.Exec.Exec(checkCtx, e.Container, runtime.ExecConfig{Command: e.Command})
	duration := time.Since(start)

	if err != nil {
		if checkCtx.Err() != nil {
			return Result{Classification: ClassTimeout, Message: err.Error(), CheckedAt: start, Duration: duration}
		}
		return Result{Classification: ClassExecFailed, Message: err.Error(), CheckedAt: start, Duration: duration}
	}

	if result.ExitCode != 0 {
		return Result{
			Classification: ClassUnhealthy,
			Message:        strings.TrimSpace(string(result.Stderr)),
			CheckedAt:      start,
			Duration:       duration,
		}
	}

	return Result{Healthy: true, Classification: ClassHealthy, CheckedAt: start, Duration: duration}
}

// Type returns the health check type.
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}
