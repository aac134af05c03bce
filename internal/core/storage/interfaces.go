// Package storage provides the durable local store backing the sync core:
// entity snapshots for warm starts and the pending-mutation queue, which
// must survive process restarts.
package storage

import (
	"errors"

	"github.com/kamrah/camsync/internal/core/domain"
)

// ErrClosed rejects any operation on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is the persistence contract the sync core depends on. Mutations
// scan in creation order; entity scans carry no order guarantee.
type Store interface {
	PutCameras(cameras ...domain.Camera) error
	DeleteCamera(id string) error
	Cameras() ([]domain.Camera, error)

	PutTasks(tasks ...domain.Task) error
	DeleteTask(id string) error
	Tasks() ([]domain.Task, error)

	AppendMutation(m domain.PendingMutation) error
	UpdateMutation(m domain.PendingMutation) error
	DeleteMutation(m domain.PendingMutation) error
	Mutations() ([]domain.PendingMutation, error)
	ClearMutations() error

	Close() error
}
