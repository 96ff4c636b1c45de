package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirePhaseAcceptsMatchingPhase(t *testing.T) {
	assert.NoError(t, requirePhase(ImagePulled, ImagePulled))
}

func TestRequirePhaseRejectsEarlierPhase(t *testing.T) {
	err := requirePhase(Initialized, ContainerStarted)
	var transErr *ErrInvalidTransition
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, Initialized, transErr.From)
	assert.Equal(t, ContainerStarted, transErr.Required)
}

// TestPhaseOrderMonotonic guards the one invariant the whole state machine
// depends on: every later phase sorts strictly after every earlier one, in
// the exact sequence a deployment runs through.
func TestPhaseOrderMonotonic(t *testing.T) {
	sequence := []Phase{Initialized, ImagePulled, ContainerStarted, HealthChecked, CutOver, Completed}
	for i := 1; i < len(sequence); i++ {
		assert.Less(t, phaseOrder[sequence[i-1]], phaseOrder[sequence[i]],
			"%s must sort before %s", sequence[i-1], sequence[i])
	}
}
