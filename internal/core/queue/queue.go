// Package queue implements the durable pending-mutation queue. Writes that
// could not reach the server are parked here and replayed in enqueue order
// when connectivity returns. Entries leave the queue only on server
// acknowledgement; failed replays bump a retry counter and stay put.
package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
	"github.com/kamrah/camsync/internal/core/storage"
)

// Executor replays one mutation against the server. A nil return removes
// the entry; any error keeps it queued for the next drain.
type Executor func(ctx context.Context, m domain.PendingMutation) error

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int
	Completed int
	Failed    int
}

type Queue struct {
	store    storage.Store
	logger   log.Log
	draining int32 // atomic bool, single in-flight drain
}

func New(store storage.Store, logger log.Log) *Queue {
	return &Queue{
		store:  store,
		logger: logger.With(log.String("component", "queue")),
	}
}

// Enqueue persists a write intent. An identical intent (same type and
// payload) already queued is collapsed rather than duplicated: the older
// entry is dropped and the intent re-enters at the tail, so repeated taps
// while offline do not multiply replays and the queue keeps enqueue order
// for everything that came between.
func (q *Queue) Enqueue(mutationType domain.MutationType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal mutation payload")
	}

	fingerprint := fingerprintOf(mutationType, data)

	existing, err := q.store.Mutations()
	if err != nil {
		return errors.Wrap(err, "scan queue")
	}
	for _, m := range existing {
		if m.Fingerprint == fingerprint {
			if err = q.store.DeleteMutation(m); err != nil {
				return errors.Wrap(err, "collapse duplicate intent")
			}
			q.logger.Debug("Duplicate intent moved to tail",
				log.String("type", string(mutationType)),
				log.String("mutation_id", m.ID))
			break
		}
	}

	m := domain.PendingMutation{
		ID:          uuid.New().String(),
		Type:        mutationType,
		Payload:     data,
		CreatedAt:   time.Now(),
		Fingerprint: fingerprint,
	}
	if err = q.store.AppendMutation(m); err != nil {
		return errors.Wrap(err, "persist mutation")
	}

	q.logger.Warn("Queued offline mutation",
		log.String("type", string(mutationType)),
		log.String("mutation_id", m.ID))
	return nil
}

// Drain replays queued mutations oldest-first. It is not reentrant: a
// call while another drain is in flight is a no-op, so no entry is ever
// replayed twice concurrently. A failing entry is retained with its retry
// count bumped and the drain continues past it.
func (q *Queue) Drain(ctx context.Context, exec Executor) (DrainResult, error) {
	var result DrainResult

	if !atomic.CompareAndSwapInt32(&q.draining, 0, 1) {
		return result, nil
	}
	defer atomic.StoreInt32(&q.draining, 0)

	ordered, err := q.store.Mutations()
	if err != nil {
		return result, errors.Wrap(err, "scan queue")
	}
	if len(ordered) == 0 {
		return result, nil
	}

	q.logger.Info("Draining mutation queue", log.Int("pending", len(ordered)))

	for _, m := range ordered {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.Attempted++
		if err = exec(ctx, m); err != nil {
			result.Failed++
			m.Retries++
			if uerr := q.store.UpdateMutation(m); uerr != nil {
				q.logger.Error("Failed to record retry", log.String("mutation_id", m.ID), log.Error(uerr))
			}
			q.logger.Warn("Replay failed, keeping mutation",
				log.String("mutation_id", m.ID),
				log.String("type", string(m.Type)),
				log.Int("retries", m.Retries),
				log.Error(err))
			continue
		}

		result.Completed++
		if derr := q.store.DeleteMutation(m); derr != nil {
			q.logger.Error("Failed to remove acknowledged mutation",
				log.String("mutation_id", m.ID), log.Error(derr))
		}
	}

	return result, nil
}

// Pending returns the queued mutations in replay order.
func (q *Queue) Pending() ([]domain.PendingMutation, error) {
	return q.store.Mutations()
}

// Len reports the number of queued mutations.
func (q *Queue) Len() int {
	pending, err := q.store.Mutations()
	if err != nil {
		return 0
	}
	return len(pending)
}

// Clear discards every queued mutation. Used on explicit logout, where
// queued intents carry the session's authorization context.
func (q *Queue) Clear() error {
	return q.store.ClearMutations()
}

func fingerprintOf(mutationType domain.MutationType, payload []byte) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(string(mutationType))
	_, _ = h.Write(payload)
	return h.Sum64()
}
