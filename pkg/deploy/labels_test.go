package deploy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotOpposite(t *testing.T) {
	assert.Equal(t, SlotGreen, SlotBlue.Opposite())
	assert.Equal(t, SlotBlue, SlotGreen.Opposite())
}

func TestOppositeIsInvolution(t *testing.T) {
	for _, s := range []Slot{SlotBlue, SlotGreen} {
		assert.Equal(t, s, s.Opposite().Opposite())
	}
}

// TestEngineLabelsSetsReservedKeys guards label completeness: every
// container the engine creates must carry all three reserved keys so
// activeContainer, aliasInUse, and SweepOrphans can all find it by the
// same filter.
func TestEngineLabelsSetsReservedKeys(t *testing.T) {
	labels := engineLabels("checkout", SlotGreen, nil)
	assert.Equal(t, "true", labels[LabelManaged])
	assert.Equal(t, "checkout", labels[LabelService])
	assert.Equal(t, string(SlotGreen), labels[LabelSlot])
}

func TestEngineLabelsOverridesUserSuppliedReservedKeys(t *testing.T) {
	user := map[string]string{
		LabelManaged: "false",
		LabelService: "someone-else",
		"team":       "payments",
	}
	labels := engineLabels("checkout", SlotBlue, user)
	assert.Equal(t, "true", labels[LabelManaged])
	assert.Equal(t, "checkout", labels[LabelService])
	assert.Equal(t, "payments", labels["team"])
}
