package deploy

import "github.com/vitalratel/peleka/pkg/id"

// DeploymentRecord is the value threaded through the state machine's six
// transitions. It is created once per host by the orchestrator, mutated
// only by successful transitions, and destroyed when the run reaches
// Completed or fails outright (in which case OldContainer, if any, is the
// source of truth for the orchestrator's rollback decision).
type DeploymentRecord struct {
	Config       Config
	NewContainer id.ContainerID // zero until ContainerStarted
	OldContainer id.ContainerID // zero on first deploy, or under Recreate
	Phase        Phase
}

// NewRecord builds the Initialized record a deployment run starts from.
// oldContainer is zero under the Recreate strategy (cleared before the
// state machine begins) or on a host's first deploy.
func NewRecord(cfg Config, oldContainer id.ContainerID) DeploymentRecord {
	return DeploymentRecord{Config: cfg, OldContainer: oldContainer, Phase: Initialized}
}
