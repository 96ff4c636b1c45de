package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vitalratel/peleka/pkg/id"
	"github.com/vitalratel/peleka/pkg/runtime"
)

// NativeChecker polls a container's own runtime-reported health state,
// used when the service was created with a native health-check spec
// instead of a user-provided exec command.
type NativeChecker struct {
	Containers runtime.ContainerOps
	Container  id.ContainerID
}

// NewNativeChecker builds a checker against the container's native
// HealthState, as reported by runtime.ContainerOps.Inspect.
func NewNativeChecker(containers runtime.ContainerOps, container id.ContainerID) *NativeChecker {
	return &NativeChecker{Containers: containers, Container: container}
}

// Check inspects the container and classifies its native health state.
func (n *NativeChecker) Check(ctx context.Context) Result {
	start := time.Now()

	info, err := n.Containers.Inspect(ctx, n.Container)
	duration := time.Since(start)
	if err != nil {
		return Result{Classification: ClassExecFailed, Message: err.Error(), CheckedAt: start, Duration: duration}
	}

	switch info.Health {
	case runtime.HealthHealthy:
		return Result{Healthy: true, Classification: ClassHealthy, CheckedAt: start, Duration: duration}
	case runtime.HealthStarting:
		return Result{Classification: ClassUnhealthy, Message: "starting", CheckedAt: start, Duration: duration}
	default:
		return Result{
			Classification: ClassUnhealthy,
			Message:        fmt.Sprintf("native health state: %s", info.Health),
			CheckedAt:      start,
			Duration:       duration,
		}
	}
}

// Type returns the health check type.
func (n *NativeChecker) Type() CheckType {
	return CheckTypeNative
}
