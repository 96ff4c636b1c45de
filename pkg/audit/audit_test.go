package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndListByService(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	require.NoError(t, store.Append(Record{Service: "checkout", Image: "checkout:v1", Outcome: OutcomeSucceeded, StartedAt: now, FinishedAt: now}))
	require.NoError(t, store.Append(Record{Service: "checkout", Image: "checkout:v2", Outcome: OutcomeFailed, StartedAt: now, FinishedAt: now}))
	require.NoError(t, store.Append(Record{Service: "other", Image: "other:v1", Outcome: OutcomeSucceeded, StartedAt: now, FinishedAt: now}))

	records, err := store.ListByService("checkout")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "checkout:v1", records[0].Image)
	assert.Equal(t, "checkout:v2", records[1].Image)
}

func TestLatestReturnsMostRecentRecord(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	require.NoError(t, store.Append(Record{Service: "checkout", Image: "checkout:v1", StartedAt: now, FinishedAt: now}))
	require.NoError(t, store.Append(Record{Service: "checkout", Image: "checkout:v2", StartedAt: now, FinishedAt: now}))

	latest, ok, err := store.Latest("checkout")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "checkout:v2", latest.Image)
}

func TestLatestReturnsFalseWhenEmpty(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Latest("never-deployed")
	require.NoError(t, err)
	assert.False(t, ok)
}
