package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeServer counts dial attempts and lets each test decide what happens to a connection.
type fakeServer struct {
	srv      *httptest.Server
	attempts atomic.Int32

	mu     sync.Mutex
	dialed []time.Time
	tokens []string
}

func newFakeServer(t *testing.T, handle func(n int, w http.ResponseWriter, r *http.Request)) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(fs.attempts.Add(1))
		fs.mu.Lock()
		fs.dialed = append(fs.dialed, time.Now())
		fs.tokens = append(fs.tokens, r.URL.Query().Get("token"))
		fs.mu.Unlock()
		handle(n, w, r)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/api/chat/ws"
}

func (fs *fakeServer) dialTimes() []time.Time {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]time.Time(nil), fs.dialed...)
}

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// holdOpen upgrades and keeps the connection until the client goes away.
func holdOpen(w http.ResponseWriter, r *http.Request) {
	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeWith(code int) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
}

type dropRecorder struct {
	mu       sync.Mutex
	errs     []error
	retrying []bool
	opens    int
}

func (d *dropRecorder) handlers() ConnectionHandlers {
	return ConnectionHandlers{
		OnOpen: func() {
			d.mu.Lock()
			d.opens++
			d.mu.Unlock()
		},
		OnDrop: func(err error, retrying bool) {
			d.mu.Lock()
			d.errs = append(d.errs, err)
			d.retrying = append(d.retrying, retrying)
			d.mu.Unlock()
		},
	}
}

func (d *dropRecorder) drops() ([]error, []bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.errs...), append([]bool(nil), d.retrying...)
}

func TestConnectAttachesToken(t *testing.T) {
	fs := newFakeServer(t, func(_ int, w http.ResponseWriter, r *http.Request) { holdOpen(w, r) })

	m := NewConnectionManager(ConnectionOptions{URL: fs.url(), Token: "abc.def"}, ConnectionHandlers{})
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if m.State() != StateConnected {
		t.Fatalf("expected connected, got %s", m.State())
	}

	fs.mu.Lock()
	token := fs.tokens[0]
	fs.mu.Unlock()
	if token != "abc.def" {
		t.Fatalf("expected token in query, got %q", token)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	m := NewConnectionManager(ConnectionOptions{URL: "ws://127.0.0.1:1/api/chat/ws"}, ConnectionHandlers{})
	defer m.Close()

	if err := m.Send(map[string]string{"type": "chat"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestServerCloseTriggersOneReconnectAfterDelay(t *testing.T) {
	fs := newFakeServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			closeWith(websocket.CloseGoingAway)(w, r)
			return
		}
		holdOpen(w, r)
	})

	delay := 200 * time.Millisecond
	rec := &dropRecorder{}
	m := NewConnectionManager(ConnectionOptions{URL: fs.url(), ReconnectDelay: delay}, rec.handlers())
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}

	waitFor(t, "reconnect", func() bool { return fs.attempts.Load() == 2 && m.State() == StateConnected })
	time.Sleep(3 * delay)

	if n := fs.attempts.Load(); n != 2 {
		t.Fatalf("expected exactly one reconnect, got %d dials", n)
	}
	times := fs.dialTimes()
	if gap := times[1].Sub(times[0]); gap < delay {
		t.Fatalf("reconnect after %s, want at least %s", gap, delay)
	}

	errs, retrying := rec.drops()
	if len(errs) != 1 || !errors.Is(errs[0], ErrConnectFailed) || !retrying[0] {
		t.Fatalf("unexpected drops: %v %v", errs, retrying)
	}
}

func TestReconnectsIndefinitelyUntilSuccess(t *testing.T) {
	fs := newFakeServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n <= 4 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		holdOpen(w, r)
	})

	rec := &dropRecorder{}
	m := NewConnectionManager(ConnectionOptions{URL: fs.url(), ReconnectDelay: 30 * time.Millisecond}, rec.handlers())
	defer m.Close()

	if err := m.Connect(context.Background()); !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}

	waitFor(t, "eventual connection", func() bool { return m.State() == StateConnected })
	if n := fs.attempts.Load(); n != 5 {
		t.Fatalf("expected 5 dials, got %d", n)
	}

	times := fs.dialTimes()
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 30*time.Millisecond {
			t.Fatalf("dial %d came %s after the previous one", i+1, gap)
		}
	}
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	cases := map[string]func(int, http.ResponseWriter, *http.Request){
		"handshake 401": func(_ int, w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		},
		"close 1008": func(_ int, w http.ResponseWriter, r *http.Request) {
			closeWith(websocket.ClosePolicyViolation)(w, r)
		},
	}

	for name, handle := range cases {
		t.Run(name, func(t *testing.T) {
			fs := newFakeServer(t, handle)
			rec := &dropRecorder{}
			m := NewConnectionManager(ConnectionOptions{URL: fs.url(), ReconnectDelay: 30 * time.Millisecond}, rec.handlers())
			defer m.Close()

			m.Connect(context.Background())
			waitFor(t, "drop", func() bool {
				errs, _ := rec.drops()
				return len(errs) == 1
			})
			time.Sleep(150 * time.Millisecond)

			errs, retrying := rec.drops()
			if !errors.Is(errs[0], ErrAuthFailed) || retrying[0] {
				t.Fatalf("expected non-retried auth failure, got %v retrying=%v", errs[0], retrying[0])
			}
			if n := fs.attempts.Load(); n != 1 {
				t.Fatalf("expected no retry, got %d dials", n)
			}
			if m.State() != StateDisconnected {
				t.Fatalf("expected disconnected, got %s", m.State())
			}
		})
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	fs := newFakeServer(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	m := NewConnectionManager(ConnectionOptions{URL: fs.url(), ReconnectDelay: 50 * time.Millisecond}, ConnectionHandlers{})
	m.Connect(context.Background())
	if err := m.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if n := fs.attempts.Load(); n != 1 {
		t.Fatalf("expected no dial after Close, got %d dials", n)
	}
	if err := m.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close err: %v", err)
	}
}

func TestSendDeliversFrame(t *testing.T) {
	received := make(chan []byte, 1)
	fs := newFakeServer(t, func(_ int, w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, raw, err := conn.ReadMessage()
		if err == nil {
			received <- raw
		}
		conn.ReadMessage()
	})

	m := NewConnectionManager(ConnectionOptions{URL: fs.url()}, ConnectionHandlers{})
	defer m.Close()
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if err := m.Send(map[string]string{"type": "typing"}); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	select {
	case raw := <-received:
		if strings.TrimSpace(string(raw)) != `{"type":"typing"}` {
			t.Fatalf("unexpected frame %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}
