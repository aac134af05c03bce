package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
	"github.com/kamrah/camsync/internal/core/storage"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	store, err := storage.OpenBadger(storage.Options{InMemory: true}, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, log.NewNop())
}

func enqueueRecording(t *testing.T, q *Queue, cameraID string, record bool) {
	t.Helper()
	require.NoError(t, q.Enqueue(domain.MutationCameraRecording, domain.RecordingPayload{
		CameraID:     cameraID,
		ShouldRecord: record,
	}))
}

func TestFIFOReplayContinuesPastFailures(t *testing.T) {
	q := newTestQueue(t)
	enqueueRecording(t, q, "cam-a", true)
	enqueueRecording(t, q, "cam-b", true)
	enqueueRecording(t, q, "cam-c", true)

	var order []string
	result, err := q.Drain(context.Background(), func(_ context.Context, m domain.PendingMutation) error {
		var p domain.RecordingPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		order = append(order, p.CameraID)
		if p.CameraID == "cam-b" {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)

	// A before B, C attempted exactly once after B failed
	assert.Equal(t, []string{"cam-a", "cam-b", "cam-c"}, order)
	assert.Equal(t, DrainResult{Attempted: 3, Completed: 2, Failed: 1}, result)

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1, "only the failed entry survives")
	assert.Equal(t, domain.MutationCameraRecording, pending[0].Type)
	assert.Equal(t, 1, pending[0].Retries)
}

func TestMutationsNeverDroppedOnRepeatedFailure(t *testing.T) {
	q := newTestQueue(t)
	enqueueRecording(t, q, "cam-a", true)

	failing := func(context.Context, domain.PendingMutation) error {
		return errors.New("still down")
	}
	for i := 0; i < 5; i++ {
		_, err := q.Drain(context.Background(), failing)
		require.NoError(t, err)
	}

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 5, pending[0].Retries)
}

func TestConcurrentDrainReplaysEachEntryAtMostOnce(t *testing.T) {
	q := newTestQueue(t)
	enqueueRecording(t, q, "cam-a", true)
	enqueueRecording(t, q, "cam-b", false)

	var mu sync.Mutex
	counts := map[string]int{}
	started := make(chan struct{})
	release := make(chan struct{})

	exec := func(_ context.Context, m domain.PendingMutation) error {
		mu.Lock()
		counts[m.ID]++
		mu.Unlock()
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Drain(context.Background(), exec)
	}()

	<-started // first drain is mid-flight

	// Second drain must be a no-op while the first holds the guard
	result, err := q.Drain(context.Background(), exec)
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)

	close(release)
	wg.Wait()

	for id, n := range counts {
		assert.Equal(t, 1, n, "mutation %s replayed more than once", id)
	}
}

func TestEnqueueCollapsesIdenticalIntent(t *testing.T) {
	q := newTestQueue(t)
	enqueueRecording(t, q, "cam-a", true)
	enqueueRecording(t, q, "cam-a", true)

	pending, err := q.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// A different desired value is a distinct intent
	enqueueRecording(t, q, "cam-a", false)
	pending, err = q.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestCollapsedIntentReentersAtTail(t *testing.T) {
	q := newTestQueue(t)

	// toggle on, toggle off, toggle on again while offline. The repeat
	// of the first intent must not leave it ahead of the second, or the
	// replay would end on the opposite of what the user last asked for.
	enqueueRecording(t, q, "cam-a", true)
	enqueueRecording(t, q, "cam-a", false)
	enqueueRecording(t, q, "cam-a", true)

	pending, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	var first, last domain.RecordingPayload
	require.NoError(t, json.Unmarshal(pending[0].Payload, &first))
	require.NoError(t, json.Unmarshal(pending[1].Payload, &last))
	assert.False(t, first.ShouldRecord)
	assert.True(t, last.ShouldRecord)

	// Replay in order and check where the server lands.
	var applied bool
	_, err = q.Drain(context.Background(), func(_ context.Context, m domain.PendingMutation) error {
		var p domain.RecordingPayload
		require.NoError(t, json.Unmarshal(m.Payload, &p))
		applied = p.ShouldRecord
		return nil
	})
	require.NoError(t, err)
	assert.True(t, applied, "replay must end on the user's last intent")
	assert.Zero(t, q.Len())
}

func TestClearDiscardsQueue(t *testing.T) {
	q := newTestQueue(t)
	enqueueRecording(t, q, "cam-a", true)
	require.NoError(t, q.Clear())
	assert.Zero(t, q.Len())
}

func TestDrainEmptyQueueIsNoop(t *testing.T) {
	q := newTestQueue(t)
	result, err := q.Drain(context.Background(), func(context.Context, domain.PendingMutation) error {
		t.Fatal("executor must not run on an empty queue")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
}
