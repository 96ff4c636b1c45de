package deploy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalratel/peleka/pkg/id"
	"github.com/vitalratel/peleka/pkg/runtime"
)

// fakeOrphanClient implements runtime.Client with just enough state to
// exercise SweepOrphans: a fixed container list, and Stop/RemoveContainer
// calls it records or fails on demand.
type fakeOrphanClient struct {
	runtime.Client

	containers []runtime.ContainerInfo
	removeErrs map[string]error
	removed    []string
}

func (f *fakeOrphanClient) List(_ context.Context, _ runtime.ListFilters) ([]runtime.ContainerInfo, error) {
	return f.containers, nil
}

func (f *fakeOrphanClient) Stop(_ context.Context, _ id.ContainerID, _ time.Duration) error {
	return nil
}

func (f *fakeOrphanClient) RemoveContainer(_ context.Context, cid id.ContainerID, _ bool) error {
	if err := f.removeErrs[cid.String()]; err != nil {
		return err
	}
	f.removed = append(f.removed, cid.String())
	return nil
}

func TestSweepOrphansRemovesEverythingNotKept(t *testing.T) {
	a := id.New[id.Container]("a")
	b := id.New[id.Container]("b")
	client := &fakeOrphanClient{containers: []runtime.ContainerInfo{
		{ID: a}, {ID: b},
	}}

	report, err := New(client, zerolog.Nop()).SweepOrphans(context.Background(), "checkout", a.String())
	require.NoError(t, err)
	assert.Equal(t, OrphanReport{Found: 1, Removed: 1}, report)
	assert.Equal(t, []string{b.String()}, client.removed)
}

// TestSweepOrphansHonorsEveryKeepID is the regression guard for the
// peleka.keep-previous label: a predecessor that Cleanup intentionally
// left stopped-but-not-removed must survive the very same run's orphan
// sweep, not just the container the sweep was primarily protecting.
func TestSweepOrphansHonorsEveryKeepID(t *testing.T) {
	newContainer := id.New[id.Container]("new")
	keptPrevious := id.New[id.Container]("kept-previous")
	trueOrphan := id.New[id.Container]("stale")
	client := &fakeOrphanClient{containers: []runtime.ContainerInfo{
		{ID: newContainer}, {ID: keptPrevious}, {ID: trueOrphan},
	}}

	report, err := New(client, zerolog.Nop()).SweepOrphans(
		context.Background(), "checkout", newContainer.String(), keptPrevious.String(),
	)
	require.NoError(t, err)
	assert.Equal(t, OrphanReport{Found: 1, Removed: 1}, report)
	assert.Equal(t, []string{trueOrphan.String()}, client.removed)
	assert.NotContains(t, client.removed, keptPrevious.String())
}

func TestSweepOrphansCountsRemovalFailuresWithoutAborting(t *testing.T) {
	a := id.New[id.Container]("a")
	b := id.New[id.Container]("b")
	client := &fakeOrphanClient{
		containers: []runtime.ContainerInfo{{ID: a}, {ID: b}},
		removeErrs: map[string]error{a.String(): fmt.Errorf("in use")},
	}

	report, err := New(client, zerolog.Nop()).SweepOrphans(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, OrphanReport{Found: 2, Removed: 1, Failed: 1}, report)
	assert.Equal(t, []string{b.String()}, client.removed)
}

func TestSweepOrphansWithNoContainersIsNoop(t *testing.T) {
	client := &fakeOrphanClient{}
	report, err := New(client, zerolog.Nop()).SweepOrphans(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, OrphanReport{}, report)
}
