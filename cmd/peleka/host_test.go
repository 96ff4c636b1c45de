package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalratel/peleka/pkg/id"
	"github.com/vitalratel/peleka/pkg/runtime"
)

// fakeClient implements runtime.Client with just enough state to exercise
// activeContainer's filtering logic.
type fakeClient struct {
	runtime.Client
	containers []runtime.ContainerInfo
}

func (f *fakeClient) List(_ context.Context, filters runtime.ListFilters) ([]runtime.ContainerInfo, error) {
	var out []runtime.ContainerInfo
	for _, c := range f.containers {
		match := true
		for k, v := range filters.Labels {
			if c.Labels[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestActiveContainerFindsRunningManagedContainer(t *testing.T) {
	running := id.New[id.Container]("running-1")
	client := &fakeClient{
		containers: []runtime.ContainerInfo{
			{ID: running, State: runtime.StateRunning, Labels: map[string]string{"peleka.managed": "true", "peleka.service": "checkout"}},
		},
	}

	info, ok, err := activeContainer(context.Background(), client, "checkout")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, running, info.ID)
}

func TestActiveContainerReturnsFalseOnFirstDeploy(t *testing.T) {
	client := &fakeClient{}

	_, ok, err := activeContainer(context.Background(), client, "checkout")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActiveContainerIgnoresOtherServices(t *testing.T) {
	client := &fakeClient{
		containers: []runtime.ContainerInfo{
			{ID: id.New[id.Container]("other"), State: runtime.StateRunning, Labels: map[string]string{"peleka.managed": "true", "peleka.service": "billing"}},
		},
	}

	_, ok, err := activeContainer(context.Background(), client, "checkout")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockOutcome(t *testing.T) {
	assert.Equal(t, "forced", lockOutcome(true))
	assert.Equal(t, "acquired", lockOutcome(false))
}

func TestKeptContainerIDsFindsLabeledStoppedContainer(t *testing.T) {
	kept := id.New[id.Container]("kept-previous")
	client := &fakeClient{
		containers: []runtime.ContainerInfo{
			{
				ID:    kept,
				State: runtime.StateExited,
				Labels: map[string]string{
					"peleka.managed":       "true",
					"peleka.service":       "checkout",
					"peleka.keep-previous": "true",
				},
			},
		},
	}

	ids, err := keptContainerIDs(context.Background(), client, "checkout")
	require.NoError(t, err)
	assert.Equal(t, []string{kept.String()}, ids)
}

func TestKeptContainerIDsIgnoresContainersWithoutTheLabel(t *testing.T) {
	client := &fakeClient{
		containers: []runtime.ContainerInfo{
			{ID: id.New[id.Container]("plain"), State: runtime.StateExited, Labels: map[string]string{
				"peleka.managed": "true",
				"peleka.service": "checkout",
			}},
		},
	}

	ids, err := keptContainerIDs(context.Background(), client, "checkout")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
