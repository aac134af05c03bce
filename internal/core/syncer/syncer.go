// Package syncer is the orchestration layer that keeps the local entity
// cache converged with the server. It owns the startup sequence, the
// periodic drain and refresh timers, and the single reconciliation path
// through which every realtime event and every command result flows.
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kamrah/camsync/internal/core/api"
	"github.com/kamrah/camsync/internal/core/cache"
	"github.com/kamrah/camsync/internal/core/connectivity"
	"github.com/kamrah/camsync/internal/core/domain"
	"github.com/kamrah/camsync/internal/core/observability/log"
	"github.com/kamrah/camsync/internal/core/queue"
	"github.com/kamrah/camsync/internal/core/realtime"
	"github.com/kamrah/camsync/internal/core/storage"
)

// EventSource is the realtime push stream the syncer consumes. Satisfied
// by *realtime.Channel.
type EventSource interface {
	Connect(token string)
	Disconnect()
	Retry()
	Events() <-chan realtime.Event
	OnState(fn func(realtime.State))
}

// Notifier receives user-facing notifications: error-level log events
// and sync failures the user should see. May be nil.
type Notifier func(entry domain.LogEntry)

type Config struct {
	// DrainInterval is the safety-net cadence at which the mutation
	// queue is replayed even without a connectivity transition.
	DrainInterval time.Duration

	// RefreshInterval is the cadence of the periodic full refetch that
	// repairs any drift missed events may have caused.
	RefreshInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		DrainInterval:   30 * time.Second,
		RefreshInterval: 5 * time.Minute,
	}
}

// Syncer wires the API client, entity cache, durable mutation queue,
// connectivity monitor and realtime channel together. All mutation of
// the cache funnels through it.
type Syncer struct {
	config  Config
	client  *api.Client
	cache   *cache.Cache
	queue   *queue.Queue
	monitor *connectivity.Monitor
	channel EventSource
	store   storage.Store
	logger  log.Log
	notify  Notifier

	running     int32 // atomic bool
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

func New(
	config Config,
	client *api.Client,
	entityCache *cache.Cache,
	mutationQueue *queue.Queue,
	monitor *connectivity.Monitor,
	channel EventSource,
	store storage.Store,
	logger log.Log,
	notify Notifier,
) *Syncer {
	def := DefaultConfig()
	if config.DrainInterval <= 0 {
		config.DrainInterval = def.DrainInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = def.RefreshInterval
	}

	return &Syncer{
		config:  config,
		client:  client,
		cache:   entityCache,
		queue:   mutationQueue,
		monitor: monitor,
		channel: channel,
		store:   store,
		logger:  logger.With(log.String("component", "syncer")),
		notify:  notify,
	}
}

// Cache exposes the entity cache for read-only consumers.
func (s *Syncer) Cache() *cache.Cache {
	return s.cache
}

// Start brings the syncer online: warm-starts the cache from disk,
// kicks off a full refresh, opens the realtime channel, and arms the
// drain and refresh timers. A failed initial refresh is reported but
// does not fail Start; the cache keeps serving the warm-start snapshot.
func (s *Syncer) Start(ctx context.Context, token string) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil
	}

	s.client.SetToken(token)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.warmStart()

	s.unsubscribe = s.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		// Redial without waiting out the channel's backoff, and replay
		// whatever accumulated while offline.
		s.channel.Retry()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.drain(runCtx)
		}()
	})
	s.monitor.Start()

	s.channel.OnState(func(state realtime.State) {
		if state == realtime.StateClosedTerminal {
			s.record(domain.LogError, "Session expired, sign in again to resume syncing")
		}
	})
	s.channel.Connect(token)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.eventLoop(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.timerLoop(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Refresh(runCtx); err != nil && runCtx.Err() == nil {
			s.record(domain.LogError, "Initial sync failed: "+err.Error())
		}
	}()

	s.logger.Info("Syncer started")
	return nil
}

// Stop tears down timers, the realtime channel and the monitor
// subscription. The mutation queue stays on disk for the next session.
func (s *Syncer) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}

	s.cancel()
	s.channel.Disconnect()
	s.monitor.Stop()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.wg.Wait()

	s.logger.Info("Syncer stopped")
}

// Logout stops the syncer and discards everything tied to the session:
// the queued mutations and the API credential. Queued writes belong to
// the user who made them and must not replay under another account.
func (s *Syncer) Logout() error {
	s.Stop()
	s.client.SetToken("")
	if err := s.queue.Clear(); err != nil {
		return errors.Wrap(err, "discard mutation queue")
	}
	s.logger.Info("Session cleared")
	return nil
}

// Flush replays the mutation queue immediately.
func (s *Syncer) Flush(ctx context.Context) (queue.DrainResult, error) {
	if atomic.LoadInt32(&s.running) == 0 {
		return queue.DrainResult{}, ErrNotRunning
	}
	return s.queue.Drain(ctx, s.execute)
}

// Refresh refetches both collections and swaps them into the cache
// wholesale. Cameras and tasks are fetched in parallel; either failing
// fails the refresh and leaves the cache untouched.
func (s *Syncer) Refresh(ctx context.Context) error {
	var (
		cameras []domain.Camera
		tasks   []domain.Task
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		cameras, err = s.client.Cameras(gctx)
		return err
	})
	group.Go(func() error {
		var err error
		tasks, err = s.client.Tasks(gctx)
		return err
	})
	if err := group.Wait(); err != nil {
		return errors.Wrap(err, "refresh")
	}

	s.cache.ReplaceCameras(cameras)
	s.cache.ReplaceTasks(tasks)
	s.persistSnapshot(cameras, tasks)

	s.logger.Debug("Full refresh applied",
		log.Int("cameras", len(cameras)),
		log.Int("tasks", len(tasks)))
	return nil
}

// warmStart fills the cache from the durable snapshot so the UI has data
// before the first network round trip completes.
func (s *Syncer) warmStart() {
	cameras, err := s.store.Cameras()
	if err != nil {
		s.logger.Warn("Warm start skipped cameras", log.Error(err))
	} else if len(cameras) > 0 {
		s.cache.ReplaceCameras(cameras)
	}

	tasks, err := s.store.Tasks()
	if err != nil {
		s.logger.Warn("Warm start skipped tasks", log.Error(err))
	} else if len(tasks) > 0 {
		s.cache.ReplaceTasks(tasks)
	}

	s.logger.Info("Warm start complete",
		log.Int("cameras", len(cameras)),
		log.Int("tasks", len(tasks)),
		log.Int("pending_mutations", s.queue.Len()))
}

func (s *Syncer) timerLoop(ctx context.Context) {
	drainTicker := time.NewTicker(s.config.DrainInterval)
	defer drainTicker.Stop()
	refreshTicker := time.NewTicker(s.config.RefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-drainTicker.C:
			if s.monitor.IsOnline() {
				s.drain(ctx)
			}
		case <-refreshTicker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("Periodic refresh failed", log.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Syncer) eventLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-s.channel.Events():
			if !ok {
				return
			}
			s.reconcile(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

// reconcile is the single entry point for server push. Every event kind
// lands on the cache the same way a command result does: the server
// snapshot wins over whatever the cache holds.
func (s *Syncer) reconcile(ctx context.Context, event realtime.Event) {
	switch event.Kind {
	case realtime.EventConnected:
		// A fresh stream means events were possibly missed while the
		// connection was down: replay queued writes, then resync.
		s.drain(ctx)
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("Post-connect refresh failed", log.Error(err))
		}

	case realtime.EventCameraStatusUpdate, realtime.EventCameraSettingsUpdate, realtime.EventCameraAdded:
		s.applyCamera(*event.Camera)

	case realtime.EventCameraRemoved:
		s.cache.RemoveCamera(event.EntityID)
		if err := s.store.DeleteCamera(event.EntityID); err != nil {
			s.logger.Warn("Failed to evict camera snapshot", log.Error(err))
		}

	case realtime.EventTaskCreated, realtime.EventTaskUpdated, realtime.EventTaskTriggered:
		s.applyTask(*event.Task)

	case realtime.EventTaskDeleted:
		s.cache.RemoveTask(event.EntityID)
		if err := s.store.DeleteTask(event.EntityID); err != nil {
			s.logger.Warn("Failed to evict task snapshot", log.Error(err))
		}

	case realtime.EventLogEntry:
		entry := *event.Log
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		s.cache.AppendLog(entry)
		if entry.Level == domain.LogError && s.notify != nil {
			s.notify(entry)
		}
	}
}

func (s *Syncer) applyCamera(cam domain.Camera) {
	s.cache.UpsertCamera(cam)
	if err := s.store.PutCameras(cam); err != nil {
		s.logger.Warn("Failed to persist camera snapshot", log.Error(err))
	}
}

func (s *Syncer) applyTask(task domain.Task) {
	s.cache.UpsertTask(task)
	if err := s.store.PutTasks(task); err != nil {
		s.logger.Warn("Failed to persist task snapshot", log.Error(err))
	}
}

func (s *Syncer) persistSnapshot(cameras []domain.Camera, tasks []domain.Task) {
	if err := s.store.PutCameras(cameras...); err != nil {
		s.logger.Warn("Failed to persist camera snapshot", log.Error(err))
	}
	if err := s.store.PutTasks(tasks...); err != nil {
		s.logger.Warn("Failed to persist task snapshot", log.Error(err))
	}
}

func (s *Syncer) drain(ctx context.Context) {
	result, err := s.queue.Drain(ctx, s.execute)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("Queue drain aborted", log.Error(err))
		return
	}
	if result.Attempted > 0 {
		s.logger.Info("Queue drain finished",
			log.Int("attempted", result.Attempted),
			log.Int("completed", result.Completed),
			log.Int("failed", result.Failed))
	}
}

// record appends an internally generated event to the activity log,
// surfacing errors through the notifier like server-sent ones.
func (s *Syncer) record(level domain.LogLevel, message string) {
	entry := domain.LogEntry{
		ID:        uuid.NewString(),
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	}
	s.cache.AppendLog(entry)
	if level == domain.LogError && s.notify != nil {
		s.notify(entry)
	}
}
