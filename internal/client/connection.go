// Package client is the Go client for the live chat channel: a reconnecting connection, a
// frame router, typing presence, history backfill and the per-conversation Session.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectDelay   = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second

	writeWait = 10 * time.Second
)

var (
	// ErrNotConnected is returned when a frame is sent while the connection is down.
	ErrNotConnected = errors.New("Not connected to chat server")
	// ErrConnectFailed wraps transport failures; the manager keeps retrying after them.
	ErrConnectFailed = errors.New("Failed to connect to chat server")
	// ErrAuthFailed wraps a rejected credential; the manager does not retry after it.
	ErrAuthFailed = errors.New("Authentication failed")
	// ErrClosed is returned by a manager that has been closed.
	ErrClosed = errors.New("connection manager closed")
)

// ConnState is the state of a ConnectionManager.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// ConnectionOptions 连接配置
type ConnectionOptions struct {
	URL            string // ws(s)://host/api/chat/ws
	Token          string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

// ConnectionHandlers receive connection events. Callbacks run on the manager's goroutines and
// must not block.
type ConnectionHandlers struct {
	OnOpen    func()
	OnMessage func(raw []byte)
	// OnDrop reports a failed dial or a lost connection. retrying tells whether a reconnect
	// has been scheduled.
	OnDrop func(err error, retrying bool)
}

// ConnectionManager keeps a single authenticated WebSocket open, redialling after a fixed
// delay whenever the dial fails or the server drops the connection.
type ConnectionManager struct {
	opts     ConnectionOptions
	handlers ConnectionHandlers

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      ConnState
	conn       *websocket.Conn
	timer      *time.Timer
	generation uint64

	writeMu sync.Mutex
}

// NewConnectionManager 创建客户端连接管理器
func NewConnectionManager(opts ConnectionOptions, handlers ConnectionHandlers) *ConnectionManager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConnectionManager{
		opts:     opts,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the server unless a connection is already open or being opened. A failed
// dial schedules the next attempt before returning the error.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateConnected:
		m.mu.Unlock()
		return nil
	}

	m.stopTimerLocked()
	m.state = StateConnecting
	m.generation++
	gen := m.generation
	// 同一时间只保留一个连接对象
	stale := m.conn
	m.conn = nil
	m.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	dialCtx, stop := mergeContext(ctx, m.ctx)
	conn, resp, err := m.opts.Dialer.DialContext(dialCtx, m.dialURL(), nil)
	stop()

	m.mu.Lock()
	if m.state == StateClosed || gen != m.generation {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}

	if err != nil {
		var dropErr error
		retrying := false
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			dropErr = fmt.Errorf("%w: handshake status %d", ErrAuthFailed, resp.StatusCode)
		} else {
			dropErr = fmt.Errorf("%w: %v", ErrConnectFailed, err)
			m.scheduleLocked()
			retrying = true
		}
		m.state = StateDisconnected
		m.mu.Unlock()

		log.Printf("[client] dial failed, retrying=%v: %v", retrying, err)
		m.notifyDrop(dropErr, retrying)
		return dropErr
	}

	m.conn = conn
	m.state = StateConnected
	m.mu.Unlock()

	if m.handlers.OnOpen != nil {
		m.handlers.OnOpen()
	}
	go m.readLoop(gen, conn)
	return nil
}

// Send writes frame as JSON. It fails with ErrNotConnected instead of queuing.
func (m *ConnectionManager) Send(frame any) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close cancels any pending reconnect and closes the connection. Safe to call repeatedly.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	m.generation++
	m.stopTimerLocked()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.cancel()
	if conn == nil {
		return nil
	}

	m.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	m.writeMu.Unlock()
	return conn.Close()
}

func (m *ConnectionManager) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(gen, conn, err)
			return
		}
		if m.handlers.OnMessage != nil {
			m.handlers.OnMessage(raw)
		}
	}
}

func (m *ConnectionManager) handleDrop(gen uint64, conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.state == StateClosed || gen != m.generation {
		m.mu.Unlock()
		return
	}

	m.conn = nil
	m.state = StateDisconnected

	var dropErr error
	retrying := false
	if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		dropErr = fmt.Errorf("%w: %v", ErrAuthFailed, err)
	} else {
		dropErr = fmt.Errorf("%w: %v", ErrConnectFailed, err)
		m.scheduleLocked()
		retrying = true
	}
	m.mu.Unlock()

	conn.Close()
	log.Printf("[client] connection lost, retrying=%v: %v", retrying, err)
	m.notifyDrop(dropErr, retrying)
}

// scheduleLocked arms the single reconnect timer. Callers hold m.mu.
func (m *ConnectionManager) scheduleLocked() {
	m.stopTimerLocked()
	m.timer = time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.mu.Lock()
		m.timer = nil
		closed := m.state == StateClosed
		m.mu.Unlock()

		if !closed {
			m.Connect(m.ctx)
		}
	})
}

func (m *ConnectionManager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *ConnectionManager) notifyDrop(err error, retrying bool) {
	if m.handlers.OnDrop != nil {
		m.handlers.OnDrop(err, retrying)
	}
}

func (m *ConnectionManager) dialURL() string {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return m.opts.URL
	}
	q := u.Query()
	q.Set("token", m.opts.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

// mergeContext returns a context cancelled when either parent is.
func mergeContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
