package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrah/camsync/internal/core/observability/log"
)

type flakyProber struct {
	mu   sync.Mutex
	fail bool
}

func (p *flakyProber) Probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("unreachable")
	}
	return nil
}

func (p *flakyProber) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func TestStartsOptimisticallyOnline(t *testing.T) {
	m := NewMonitor(&flakyProber{}, DefaultConfig(), log.NewNop())
	assert.True(t, m.IsOnline())
}

func TestSetOnlineFiresOnlyOnTransition(t *testing.T) {
	m := NewMonitor(&flakyProber{}, DefaultConfig(), log.NewNop())

	var transitions []bool
	m.Subscribe(func(online bool) {
		transitions = append(transitions, online)
	})

	m.SetOnline(true)  // already online, no event
	m.SetOnline(false) // transition
	m.SetOnline(false) // repeated, no event
	m.SetOnline(true)  // transition

	assert.Equal(t, []bool{false, true}, transitions)
	assert.True(t, m.IsOnline())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMonitor(&flakyProber{}, DefaultConfig(), log.NewNop())

	calls := 0
	unsubscribe := m.Subscribe(func(bool) { calls++ })

	m.SetOnline(false)
	unsubscribe()
	m.SetOnline(true)

	assert.Equal(t, 1, calls)
}

func TestProbeLoopDetectsOutageAndRecovery(t *testing.T) {
	prober := &flakyProber{fail: true}
	m := NewMonitor(prober, Config{Interval: 5 * time.Millisecond, ProbeTimeout: time.Second}, log.NewNop())

	transition := make(chan bool, 8)
	m.Subscribe(func(online bool) { transition <- online })

	m.Start()
	defer m.Stop()

	select {
	case online := <-transition:
		assert.False(t, online)
	case <-time.After(time.Second):
		t.Fatal("no offline transition observed")
	}

	prober.setFail(false)
	select {
	case online := <-transition:
		assert.True(t, online)
	case <-time.After(time.Second):
		t.Fatal("no online transition observed")
	}
	require.True(t, m.IsOnline())
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewMonitor(&flakyProber{}, Config{Interval: time.Millisecond}, log.NewNop())
	m.Start()
	m.Stop()
	m.Stop()
}

func TestMonitorRestartsAfterStop(t *testing.T) {
	prober := &flakyProber{}
	m := NewMonitor(prober, Config{Interval: 5 * time.Millisecond, ProbeTimeout: time.Second}, log.NewNop())

	m.Start()
	m.Stop()

	// The second session's probe loop must be alive and keep tracking
	// reachability.
	m.Start()
	defer m.Stop()

	prober.setFail(true)
	require.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 5*time.Millisecond)

	prober.setFail(false)
	require.Eventually(t, m.IsOnline, time.Second, 5*time.Millisecond)
}
