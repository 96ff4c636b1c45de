package deploy

import "fmt"

// Phase is the deployment state machine's tagged variant. Go has no
// dependent types to make e.g. calling Cutover on an Initialized record a
// compile error, so each transition gates on Phase at runtime instead.
type Phase string

const (
	Initialized      Phase = "initialized"
	ImagePulled      Phase = "image_pulled"
	ContainerStarted Phase = "container_started"
	HealthChecked    Phase = "health_checked"
	CutOver          Phase = "cut_over"
	Completed        Phase = "completed"
)

var phaseOrder = map[Phase]int{
	Initialized:      0,
	ImagePulled:      1,
	ContainerStarted: 2,
	HealthChecked:    3,
	CutOver:          4,
	Completed:        5,
}

// ErrInvalidTransition reports an attempt to run a transition against a
// record that isn't in the phase it requires.
type ErrInvalidTransition struct {
	From     Phase
	Required Phase
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("deploy: invalid transition: record is in phase %q, requires %q", e.From, e.Required)
}

func requirePhase(current, required Phase) error {
	if current != required {
		return &ErrInvalidTransition{From: current, Required: required}
	}
	return nil
}
