package storage

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
)

// Key prefixes. Mutation keys embed the creation timestamp so that a
// prefix scan yields entries in enqueue order.
const (
	cameraKeyPrefix   = "camera:"
	taskKeyPrefix     = "task:"
	mutationKeyPrefix = "mutation:"
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore persists entities and pending mutations in an embedded
// BadgerDB instance.
type BadgerStore struct {
	db     *badger.DB
	logger log.Log
	closed int32 // atomic bool
}

type Options struct {
	// Path is the on-disk location. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

func OpenBadger(opts Options, logger log.Log) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger store")
	}

	return &BadgerStore{
		db:     db,
		logger: logger.With(log.String("component", "storage")),
	}, nil
}

func (s *BadgerStore) PutCameras(cameras ...domain.Camera) error {
	return s.putEntities(cameraKeyPrefix, len(cameras), func(i int) (string, any) {
		return cameras[i].ID, cameras[i]
	})
}

func (s *BadgerStore) DeleteCamera(id string) error {
	return s.delete(cameraKeyPrefix + id)
}

func (s *BadgerStore) Cameras() ([]domain.Camera, error) {
	return scan[domain.Camera](s, cameraKeyPrefix)
}

func (s *BadgerStore) PutTasks(tasks ...domain.Task) error {
	return s.putEntities(taskKeyPrefix, len(tasks), func(i int) (string, any) {
		return tasks[i].ID, tasks[i]
	})
}

func (s *BadgerStore) DeleteTask(id string) error {
	return s.delete(taskKeyPrefix + id)
}

func (s *BadgerStore) Tasks() ([]domain.Task, error) {
	return scan[domain.Task](s, taskKeyPrefix)
}

func (s *BadgerStore) AppendMutation(m domain.PendingMutation) error {
	if s.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal mutation")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(mutationKey(m), data)
	})
}

// UpdateMutation rewrites a mutation in place; the key is derived from the
// immutable CreatedAt and ID, so the entry keeps its queue position.
func (s *BadgerStore) UpdateMutation(m domain.PendingMutation) error {
	return s.AppendMutation(m)
}

func (s *BadgerStore) DeleteMutation(m domain.PendingMutation) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(mutationKey(m))
	})
}

// Mutations returns all queued mutations in creation order.
func (s *BadgerStore) Mutations() ([]domain.PendingMutation, error) {
	return scan[domain.PendingMutation](s, mutationKeyPrefix)
}

func (s *BadgerStore) ClearMutations() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.DropPrefix([]byte(mutationKeyPrefix))
}

func (s *BadgerStore) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil // Already closed
	}
	s.logger.Debug("Closing store")
	return s.db.Close()
}

func (s *BadgerStore) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

func (s *BadgerStore) putEntities(prefix string, count int, at func(i int) (string, any)) error {
	if s.isClosed() {
		return ErrClosed
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := 0; i < count; i++ {
			id, entity := at(i)
			data, err := json.Marshal(entity)
			if err != nil {
				return errors.Wrap(err, "marshal entity")
			}
			if err = txn.Set([]byte(prefix+id), data); err != nil {
				return errors.Wrap(err, "set entity")
			}
		}
		return nil
	})
}

func (s *BadgerStore) delete(key string) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// scan iterates a key prefix in key order and decodes each value. Records
// that fail to decode are skipped and logged, never fatal.
func scan[T any](s *BadgerStore, prefix string) ([]T, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	var out []T
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record T
				if err := json.Unmarshal(val, &record); err != nil {
					s.logger.Warn("Dropping undecodable record",
						log.String("key", string(it.Item().Key())),
						log.Error(err))
					return nil
				}
				out = append(out, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan "+prefix)
	}
	return out, nil
}

// mutationKey encodes creation time ahead of the id so key order equals
// enqueue order.
func mutationKey(m domain.PendingMutation) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", mutationKeyPrefix, m.CreatedAt.UnixNano(), m.ID))
}
