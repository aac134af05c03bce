// Package realtime owns the single duplex connection to the server's
// event stream: authentication handshake, heartbeat, reconnect with
// backoff, and decoding of inbound frames into events consumed by the
// sync orchestrator.
package realtime

import (
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/kamrah/camsync/internal/core/observability/log"
)

// Reserved close codes the server uses to reject a credential. Both are
// terminal: retrying would hot-loop against an unrecoverable token.
const (
	CloseAuthRequired = 4401
	CloseInvalidToken = 4403
)

// State is the channel's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingAuth
	StateAuthenticated
	StateClosedRetrying
	StateClosedTerminal
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAuth:
		return "awaiting-auth-ack"
	case StateAuthenticated:
		return "authenticated"
	case StateClosedRetrying:
		return "closed-retrying"
	case StateClosedTerminal:
		return "closed-terminal"
	default:
		return "unknown"
	}
}

type Config struct {
	// URL is the websocket endpoint, e.g. ws://host/ws/events. The
	// credential travels as a query parameter on the upgrade request.
	URL string

	HeartbeatInterval time.Duration
	AuthAckTimeout    time.Duration
	HandshakeTimeout  time.Duration

	// Reconnect backoff after a transient close: exponential from
	// InitialBackoff, capped at MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:5000/ws/events",
		HeartbeatInterval: 30 * time.Second,
		AuthAckTimeout:    10 * time.Second,
		HandshakeTimeout:  15 * time.Second,
		InitialBackoff:    5 * time.Second,
		MaxBackoff:        60 * time.Second,
	}
}

var (
	errAuthRejected = errors.New("credential rejected by server")
	errTornDown     = errors.New("channel torn down")
)

// Channel maintains exactly one live connection at a time and emits one
// decoded Event per inbound data frame to its single consumer. Delivery
// is a synchronous hand-off; backpressure reaches the transport.
type Channel struct {
	config Config
	dialer *websocket.Dialer
	logger log.Log

	events  chan Event
	onState func(State)

	state   int32 // atomic State
	running int32 // atomic bool, run loop alive
	wanted  int32 // atomic bool, reconnects desired

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	wake chan struct{}

	wg sync.WaitGroup
}

func NewChannel(config Config, logger log.Log) *Channel {
	def := DefaultConfig()
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = def.HeartbeatInterval
	}
	if config.AuthAckTimeout <= 0 {
		config.AuthAckTimeout = def.AuthAckTimeout
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = def.HandshakeTimeout
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}

	return &Channel{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		logger: logger.With(log.String("component", "realtime")),
		events: make(chan Event),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// Events returns the channel's output. There is exactly one consumer;
// events arrive in transport order.
func (ch *Channel) Events() <-chan Event {
	return ch.events
}

// OnState registers a state-transition callback. Register before Connect;
// the callback runs on the channel's goroutine and must not block.
func (ch *Channel) OnState(fn func(State)) {
	ch.onState = fn
}

func (ch *Channel) State() State {
	return State(atomic.LoadInt32(&ch.state))
}

// Connect opens the connection and keeps it alive until Disconnect or a
// terminal auth rejection. Calling Connect while a connection is open or
// connecting is a no-op.
func (ch *Channel) Connect(token string) {
	if !atomic.CompareAndSwapInt32(&ch.running, 0, 1) {
		return
	}
	atomic.StoreInt32(&ch.wanted, 1)

	ch.mu.Lock()
	ch.done = make(chan struct{})
	ch.mu.Unlock()

	ch.wg.Add(1)
	go func() {
		defer ch.wg.Done()
		ch.run(token)
	}()
}

// Disconnect tears the connection down deliberately, suppressing any
// reconnect. Idempotent; safe to call while a reconnect wait or dial is
// in flight.
func (ch *Channel) Disconnect() {
	atomic.StoreInt32(&ch.wanted, 0)

	ch.mu.Lock()
	select {
	case <-ch.done:
	default:
		close(ch.done)
	}
	if ch.conn != nil {
		_ = ch.conn.Close()
		ch.conn = nil
	}
	ch.mu.Unlock()

	ch.wg.Wait()
}

func (ch *Channel) run(token string) {
	defer atomic.StoreInt32(&ch.running, 0)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = ch.config.InitialBackoff
	bo.MaxInterval = ch.config.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for ch.isWanted() {
		ch.setState(StateConnecting)

		conn, err := ch.dial(token)
		if err != nil {
			if errors.Is(err, errAuthRejected) {
				ch.logger.Error("Authentication rejected during handshake", log.Error(err))
				ch.setState(StateClosedTerminal)
				return
			}
			if !ch.isWanted() {
				break
			}
			wait := bo.NextBackOff()
			ch.logger.Warn("Connect failed, retrying",
				log.Duration("backoff", wait),
				log.Error(err))
			ch.setState(StateClosedRetrying)
			if !ch.sleep(wait) {
				break
			}
			continue
		}

		err = ch.session(conn, bo)
		if isTerminalClose(err) {
			ch.logger.Error("Credential rejected, giving up reconnects", log.Error(err))
			ch.setState(StateClosedTerminal)
			return
		}
		if !ch.isWanted() {
			break
		}

		wait := bo.NextBackOff()
		ch.logger.Warn("Event stream closed, reconnecting",
			log.Duration("backoff", wait),
			log.Error(err))
		ch.setState(StateClosedRetrying)
		if !ch.sleep(wait) {
			break
		}
	}

	ch.setState(StateDisconnected)
}

func (ch *Channel) dial(token string) (*websocket.Conn, error) {
	endpoint, err := url.Parse(ch.config.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse event stream url")
	}
	query := endpoint.Query()
	query.Set("token", token)
	endpoint.RawQuery = query.Encode()

	conn, resp, err := ch.dialer.Dial(endpoint.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			return nil, errors.Wrapf(errAuthRejected, "handshake status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial event stream")
	}
	return conn, nil
}

// session runs one established connection: waits for the auth ack, then
// reads data frames until the connection dies or teardown is requested.
func (ch *Channel) session(conn *websocket.Conn, bo *backoff.ExponentialBackOff) error {
	ch.setConn(conn)
	defer func() {
		ch.setConn(nil)
		_ = conn.Close()
	}()

	ch.setState(StateAwaitingAuth)

	// The server must acknowledge the credential before any data event.
	// Silence here is treated as a close, not an indefinite wait.
	_ = conn.SetReadDeadline(time.Now().Add(ch.config.AuthAckTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		return errors.Wrap(err, "await auth ack")
	}
	ack, known, err := decodeEvent(first)
	if err != nil || !known || ack.Kind != EventConnected {
		return errors.New("event stream did not acknowledge authentication")
	}

	ch.setState(StateAuthenticated)
	ch.logger.Info("Event stream authenticated")
	bo.Reset()

	if !ch.emit(ack) {
		return errTornDown
	}

	readWait := ch.config.HeartbeatInterval * 2
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go ch.heartbeat(conn, stopPing)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read event stream")
		}

		event, known, derr := decodeEvent(data)
		if derr != nil {
			// Never fatal, never stalls the frames behind it
			ch.logger.Warn("Dropping malformed frame", log.Error(derr))
			continue
		}
		if !known {
			continue
		}

		if !ch.emit(event) {
			return errTornDown
		}
	}
}

// heartbeat pings on a fixed interval so a half-open connection fails the
// read deadline instead of lingering.
func (ch *Channel) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(ch.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(ch.config.HeartbeatInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// emit hands one event to the consumer. Returns false when teardown was
// requested before the consumer accepted it.
func (ch *Channel) emit(event Event) bool {
	ch.mu.Lock()
	done := ch.done
	ch.mu.Unlock()

	select {
	case ch.events <- event:
		return true
	case <-done:
		return false
	}
}

// Retry cuts short any reconnect wait in progress so the next dial
// happens immediately, e.g. when connectivity is known to be back before
// the backoff timer expires. A no-op on a connected or torn-down channel
// beyond priming the next wait.
func (ch *Channel) Retry() {
	select {
	case ch.wake <- struct{}{}:
	default:
	}
}

// sleep waits out a backoff period, returning false if teardown was
// requested first. A reconnect pending when Disconnect is called never
// re-establishes a connection; a Retry ends the wait early.
func (ch *Channel) sleep(d time.Duration) bool {
	ch.mu.Lock()
	done := ch.done
	ch.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return ch.isWanted()
	case <-ch.wake:
		return ch.isWanted()
	case <-done:
		return false
	}
}

func (ch *Channel) isWanted() bool {
	return atomic.LoadInt32(&ch.wanted) == 1
}

func (ch *Channel) setState(s State) {
	old := State(atomic.SwapInt32(&ch.state, int32(s)))
	if old == s {
		return
	}
	ch.logger.Debug("Channel state changed",
		log.String("from", old.String()),
		log.String("to", s.String()))
	if ch.onState != nil {
		ch.onState(s)
	}
}

func (ch *Channel) setConn(conn *websocket.Conn) {
	ch.mu.Lock()
	ch.conn = conn
	ch.mu.Unlock()
}

// isTerminalClose reports whether the session ended because the server
// rejected the credential outright.
func isTerminalClose(err error) bool {
	if errors.Is(err, errAuthRejected) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code == CloseAuthRequired || closeErr.Code == CloseInvalidToken
	}
	return false
}
