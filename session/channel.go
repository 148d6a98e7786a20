package session

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultReconnectDelay is the fixed interval between reconnection attempts
// after an unsolicited close. The delay is not exponential; the same
// interval is retried indefinitely until reconnection succeeds or teardown
// is requested.
const DefaultReconnectDelay = 3 * time.Second

// channelConn is the slice of a websocket connection the manager uses.
// *websocket.Conn satisfies it; tests substitute scripted connections.
type channelConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens a channel connection to the given URL.
type Dialer func(target string) (channelConn, error)

func gorillaDial(target string) (channelConn, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return conn, nil
}

// ChannelManager maintains at most one open live connection per project and
// reconnects automatically after unexpected closure. A generation counter
// takes the place of handler stripping: superseding or tearing down a
// connection bumps the generation, and the superseded connection's reader
// drops everything it still produces, so at most one connection's events are
// ever live.
type ChannelManager struct {
	urlFn       func() (string, error)
	apply       func(Event)
	onConnected func(bool)

	mu             sync.Mutex
	dial           Dialer
	logf           func(format string, args ...any)
	reconnectDelay time.Duration
	closed         bool
	connecting     bool
	conn           channelConn
	gen            int
	reconnectTimer *time.Timer
}

// ChannelOption configures a ChannelManager.
type ChannelOption func(*ChannelManager)

// WithReconnectDelay overrides the fixed reconnect interval.
func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(m *ChannelManager) { m.reconnectDelay = d }
}

// WithDialer overrides the websocket dialer.
func WithDialer(dial Dialer) ChannelOption {
	return func(m *ChannelManager) { m.dial = dial }
}

// WithChannelLogger overrides the diagnostic logger.
func WithChannelLogger(logf func(format string, args ...any)) ChannelOption {
	return func(m *ChannelManager) { m.logf = logf }
}

// NewChannelManager creates a manager that dials the URL produced by urlFn
// and forwards decoded events to apply. onConnected reports liveness changes
// and may be nil.
func NewChannelManager(urlFn func() (string, error), apply func(Event), onConnected func(bool), opts ...ChannelOption) *ChannelManager {
	m := &ChannelManager{
		urlFn:          urlFn,
		apply:          apply,
		onConnected:    onConnected,
		dial:           gorillaDial,
		logf:           log.Printf,
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the live connection. It is a no-op when a connection is
// already open or being established, and after a permanent disconnect. Any
// pending reconnect timer is cleared so a manual connect cannot race the
// scheduled one into a duplicate attempt.
func (m *ChannelManager) Connect() {
	m.mu.Lock()
	if m.closed || m.connecting || m.conn != nil {
		m.mu.Unlock()
		return
	}
	m.stopReconnectTimerLocked()
	m.connecting = true
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	go m.dialAndServe(gen)
}

// IsConnected reports whether a connection is currently open.
func (m *ChannelManager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Disconnect closes the current connection, if any, and clears any pending
// reconnect timer. With permanent set, all future connection attempts for
// this manager are disabled; this is the teardown path used on unmount and
// project switch. The generation bump silences the old connection's reader
// before the close, so its close handling cannot schedule an unwanted
// reconnect.
func (m *ChannelManager) Disconnect(permanent bool) {
	m.mu.Lock()
	if permanent {
		m.closed = true
	}
	m.stopReconnectTimerLocked()
	m.gen++
	conn := m.conn
	m.conn = nil
	m.connecting = false
	onConnected := m.onConnected
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
		if onConnected != nil {
			onConnected(false)
		}
	}
}

func (m *ChannelManager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *ChannelManager) dialAndServe(gen int) {
	target, err := m.urlFn()
	if err != nil {
		m.handleConnectFailure(gen, err)
		return
	}

	conn, err := m.dial(target)
	if err != nil {
		m.handleConnectFailure(gen, err)
		return
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.connecting = false
	onConnected := m.onConnected
	m.mu.Unlock()

	if onConnected != nil {
		onConnected(true)
	}

	m.readLoop(conn, gen)
}

func (m *ChannelManager) handleConnectFailure(gen int, err error) {
	m.logf("channel connect failed: %v", err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return
	}
	m.connecting = false
	m.scheduleReconnectLocked()
}

func (m *ChannelManager) readLoop(conn channelConn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen)
			return
		}

		m.mu.Lock()
		stale := m.closed || gen != m.gen
		m.mu.Unlock()
		if stale {
			return
		}

		ev, err := ParseEvent(data)
		if err != nil {
			// Protocol error: logged and dropped, never fatal to the
			// connection.
			m.logf("dropping channel message: %v", err)
			continue
		}
		if m.apply != nil {
			m.apply(ev)
		}
	}
}

func (m *ChannelManager) handleClose(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		// Superseded or intentionally torn down; the new owner handles
		// liveness.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	onConnected := m.onConnected
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	if onConnected != nil {
		onConnected(false)
	}
}

func (m *ChannelManager) scheduleReconnectLocked() {
	if m.reconnectTimer != nil {
		return
	}
	m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		m.mu.Unlock()
		m.Connect()
	})
}
