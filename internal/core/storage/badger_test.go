package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadger(Options{InMemory: true}, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCameraRoundTrip(t *testing.T) {
	store := openTestStore(t)

	cam := domain.Camera{
		ID:     "cam-001",
		Name:   "Lobby Entrance",
		Type:   domain.CameraTypeIP,
		Status: domain.CameraOnline,
	}
	require.NoError(t, store.PutCameras(cam))

	cameras, err := store.Cameras()
	require.NoError(t, err)
	require.Len(t, cameras, 1)
	assert.Equal(t, "Lobby Entrance", cameras[0].Name)

	// Overwrite by id, not append
	cam.Name = "Lobby"
	require.NoError(t, store.PutCameras(cam))
	cameras, err = store.Cameras()
	require.NoError(t, err)
	require.Len(t, cameras, 1)
	assert.Equal(t, "Lobby", cameras[0].Name)

	require.NoError(t, store.DeleteCamera("cam-001"))
	cameras, err = store.Cameras()
	require.NoError(t, err)
	assert.Empty(t, cameras)
}

func TestMutationsScanInCreationOrder(t *testing.T) {
	store := openTestStore(t)

	base := time.Now()
	// Insert out of order on purpose
	for _, i := range []int{2, 0, 1} {
		m := domain.PendingMutation{
			ID:        string(rune('a' + i)),
			Type:      domain.MutationCameraFavorite,
			Payload:   json.RawMessage(`{}`),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.AppendMutation(m))
	}

	mutations, err := store.Mutations()
	require.NoError(t, err)
	require.Len(t, mutations, 3)
	assert.Equal(t, "a", mutations[0].ID)
	assert.Equal(t, "b", mutations[1].ID)
	assert.Equal(t, "c", mutations[2].ID)
}

func TestUpdateMutationKeepsQueuePosition(t *testing.T) {
	store := openTestStore(t)

	first := domain.PendingMutation{
		ID:        "m-1",
		Type:      domain.MutationCameraRecording,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: time.Now(),
	}
	second := first
	second.ID = "m-2"
	second.CreatedAt = first.CreatedAt.Add(time.Second)

	require.NoError(t, store.AppendMutation(first))
	require.NoError(t, store.AppendMutation(second))

	first.Retries = 3
	require.NoError(t, store.UpdateMutation(first))

	mutations, err := store.Mutations()
	require.NoError(t, err)
	require.Len(t, mutations, 2)
	assert.Equal(t, "m-1", mutations[0].ID)
	assert.Equal(t, 3, mutations[0].Retries)
}

func TestDeleteAndClearMutations(t *testing.T) {
	store := openTestStore(t)

	m := domain.PendingMutation{
		ID:        "m-1",
		Type:      domain.MutationTaskUpdate,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.AppendMutation(m))
	require.NoError(t, store.DeleteMutation(m))

	mutations, err := store.Mutations()
	require.NoError(t, err)
	assert.Empty(t, mutations)

	require.NoError(t, store.AppendMutation(m))
	require.NoError(t, store.ClearMutations())
	mutations, err = store.Mutations()
	require.NoError(t, err)
	assert.Empty(t, mutations)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.PutCameras(domain.Camera{ID: "x"}), ErrClosed)
	_, err := store.Mutations()
	assert.ErrorIs(t, err, ErrClosed)
	// Close is idempotent
	assert.NoError(t, store.Close())
}
