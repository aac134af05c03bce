// Package connectivity tracks reachability of the backing service via a
// periodic health probe and fans transition events out to subscribers.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamrah/camsync/internal/core/observability/log"
)

// Prober answers whether the server is reachable right now. The REST
// client satisfies this with its health endpoint.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a plain function to a Prober.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

type Config struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     15 * time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

// Listener receives every online/offline transition. Listeners run on the
// monitor's goroutine and must not block.
type Listener func(online bool)

type Monitor struct {
	prober Prober
	config Config
	logger log.Log

	online int32 // atomic bool, start optimistic
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
	started   bool
}

func NewMonitor(prober Prober, config Config, logger log.Log) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	return &Monitor{
		prober:    prober,
		config:    config,
		logger:    logger.With(log.String("component", "connectivity")),
		online:    1,
		done:      make(chan struct{}),
		listeners: make(map[int]Listener),
	}
}

// Start launches the probe loop. Calling Start on a running monitor is a
// no-op; a stopped monitor can be started again.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	done := m.done
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.probeLoop(done)
	}()
}

// Stop terminates the probe loop and waits for it, then rearms so a later
// Start works. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.started = false
	m.done = make(chan struct{})
	m.mu.Unlock()
}

func (m *Monitor) IsOnline() bool {
	return atomic.LoadInt32(&m.online) == 1
}

// Subscribe registers a transition listener and returns its unsubscribe
// function.
func (m *Monitor) Subscribe(listener Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// SetOnline forces a reachability state, e.g. from a platform signal that
// arrives ahead of the next probe. Fires listeners on transition.
func (m *Monitor) SetOnline(online bool) {
	var prev int32
	if online {
		prev = atomic.SwapInt32(&m.online, 1)
	} else {
		prev = atomic.SwapInt32(&m.online, 0)
	}
	if (prev == 1) == online {
		return // no transition
	}

	m.logger.Info("Reachability changed", log.Bool("online", online))

	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(online)
	}
}

func (m *Monitor) probeLoop(done <-chan struct{}) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.probeOnce()
		case <-done:
			return
		}
	}
}

func (m *Monitor) probeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ProbeTimeout)
	defer cancel()

	err := m.prober.Probe(ctx)
	if err != nil {
		m.logger.Debug("Health probe failed", log.Error(err))
	}
	m.SetOnline(err == nil)
}
