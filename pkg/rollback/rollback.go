// Package rollback implements manual rollback: swapping the currently
// active managed container for the most recent previous one, independent
// of the deploy state machine.
package rollback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalratel/peleka/pkg/deploy"
	"github.com/vitalratel/peleka/pkg/id"
	"github.com/vitalratel/peleka/pkg/runtime"
)

// stopTimeout bounds how long the outgoing active container is given to
// shut down before the runtime is asked to force it.
const stopTimeout = 10 * time.Second

// Result reports which containers ended up on which side of the swap.
type Result struct {
	NewActive   id.ContainerID
	NewPrevious id.ContainerID
}

// Rollback partitions every managed container for service into the
// running one ("active") and the most recent stopped one ("previous"),
// then swaps them: previous is started and takes over the service
// network alias, active is disconnected and stopped. Running it twice
// in a row returns the service to its original state.
func Rollback(ctx context.Context, rt runtime.Client, networkName, service string, log zerolog.Logger) (Result, error) {
	containers, err := rt.List(ctx, runtime.ListFilters{
		Labels: map[string]string{deploy.LabelManaged: "true", deploy.LabelService: service},
		All:    true,
	})
	if err != nil {
		return Result{}, &deploy.Error{Kind: deploy.KindContainerRemoveFailed, Message: "listing managed containers", Err: err}
	}

	var active, previous *runtime.ContainerInfo
	for i := range containers {
		c := &containers[i]
		if c.State == runtime.StateRunning {
			if active == nil {
				active = c
			}
			continue
		}
		if previous == nil {
			previous = c
		}
	}

	if active == nil {
		return Result{}, &deploy.RollbackFailedError{Reason: "no running container"}
	}
	if previous == nil {
		return Result{}, &deploy.NoPreviousDeploymentError{Service: service}
	}

	netID, ok, err := rt.NetworkExists(ctx, networkName)
	if err != nil {
		return Result{}, &deploy.Error{Kind: deploy.KindNetworkFailed, Message: "checking network", Err: err}
	}
	if !ok {
		return Result{}, &deploy.Error{Kind: deploy.KindNetworkFailed, Message: "network " + networkName + " does not exist"}
	}

	if err := rt.Start(ctx, previous.ID); err != nil {
		return Result{}, &deploy.Error{Kind: deploy.KindRollbackFailed, Message: "starting previous container", Err: err}
	}

	if err := rt.Disconnect(ctx, active.ID, netID); err != nil {
		log.Warn().Err(err).Str("container_id", active.ID.String()).Msg("disconnecting active container during rollback")
	}

	if err := rt.Connect(ctx, previous.ID, netID, []string{service}); err != nil && !runtime.IsKind(err, runtime.AlreadyExists) {
		return Result{}, &deploy.Error{Kind: deploy.KindRollbackFailed, Message: "connecting previous container", Err: err}
	}

	if err := rt.Stop(ctx, active.ID, stopTimeout); err != nil {
		log.Warn().Err(err).Str("container_id", active.ID.String()).Msg("stopping former active container during rollback")
	}

	return Result{NewActive: previous.ID, NewPrevious: active.ID}, nil
}
