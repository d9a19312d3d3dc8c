package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

const msgSendFailed = "Failed to send message"

var (
	ErrPeerRequired = errors.New("peer id is required")
	ErrEmptyMessage = errors.New("message content is empty")
)

// SessionConfig configures a Session bound to one conversation.
type SessionConfig struct {
	ServerURL string // http(s)://host:port
	Token     string
	PeerID    string

	HistoryLimit   int
	ReconnectDelay time.Duration
	TypingTimeout  time.Duration

	Dialer     *websocket.Dialer
	HTTPClient *http.Client

	// OnChange receives a snapshot after every state change. It runs on the session's
	// goroutines and must not call back into Close.
	OnChange func(State)
}

// State is a snapshot of a conversation as the UI sees it.
type State struct {
	UserID        string
	Messages      []chat.Message
	Connected     bool
	PeerTyping    bool
	Error         string
	HistoryLoaded bool
}

// Session merges history and the live stream of one conversation into a single ordered view.
type Session struct {
	cfg      SessionConfig
	conn     *ConnectionManager
	router   *Router
	presence *PresenceTracker
	history  *HistoryClient

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	userID        string
	messages      []chat.Message
	seen          map[string]struct{}
	historyLoaded bool
	connected     bool
	lastError     string
	closed        bool
}

// OpenSession connects to the chat server and starts loading the conversation with
// cfg.PeerID. Connection failures do not fail the call; they show up in State().Error while
// the session keeps reconnecting.
func OpenSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	cfg.PeerID = strings.TrimSpace(cfg.PeerID)
	if cfg.PeerID == "" {
		return nil, ErrPeerRequired
	}

	wsURL, historyURL, err := endpoints(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:  cfg,
		seen: make(map[string]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.conn = NewConnectionManager(ConnectionOptions{
		URL:            wsURL,
		Token:          cfg.Token,
		ReconnectDelay: cfg.ReconnectDelay,
		Dialer:         cfg.Dialer,
	}, ConnectionHandlers{
		OnOpen:    s.handleOpen,
		OnMessage: func(raw []byte) { s.router.Dispatch(raw) },
		OnDrop:    s.handleDrop,
	})
	s.router = NewRouter(s.conn, Events{
		OnChat:      s.handleChat,
		OnTyping:    s.handleTyping,
		OnError:     s.setError,
		OnConnected: s.handleConnected,
	})
	s.presence = NewPresenceTracker(func(isTyping bool) error {
		return s.router.SendTyping(cfg.PeerID, isTyping)
	}, cfg.TypingTimeout)
	s.history = NewHistoryClient(historyURL, cfg.Token, cfg.HTTPClient)

	go s.loadInitialHistory()
	s.conn.Connect(ctx)
	return s, nil
}

// State returns a snapshot of the conversation.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		UserID:        s.userID,
		Messages:      append([]chat.Message(nil), s.messages...),
		Connected:     s.connected,
		PeerTyping:    s.presence.PeerTyping(),
		Error:         s.lastError,
		HistoryLoaded: s.historyLoaded,
	}
}

// SendMessage sends text to the peer as a USER message.
func (s *Session) SendMessage(text string) error {
	return s.SendMessageAs(text, chat.SenderUser)
}

// SendMessageAs sends text with an explicit sender type. The message is not queued: when the
// connection is down it fails with ErrNotConnected and is dropped.
func (s *Session) SendMessageAs(text string, senderType chat.SenderType) error {
	if s.isClosed() {
		return ErrClosed
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	if err := s.router.SendChat(s.cfg.PeerID, text, senderType); err != nil {
		if errors.Is(err, ErrNotConnected) {
			s.setError(ErrNotConnected.Error())
		} else {
			s.setError(msgSendFailed)
		}
		return err
	}
	return nil
}

// UpdateTypingStatus tells the peer whether the user is typing.
func (s *Session) UpdateTypingStatus(isTyping bool) error {
	return s.presence.UpdateTypingStatus(isTyping)
}

// LoadOlder fetches the page before the oldest buffered message and prepends it. It returns
// how many messages were added.
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	var before *time.Time
	if len(s.messages) > 0 {
		oldest := s.messages[0].Timestamp
		before = &oldest
	}
	s.mu.Unlock()

	fetchCtx, stop := mergeContext(ctx, s.ctx)
	defer stop()

	older, err := s.history.LoadHistory(fetchCtx, s.cfg.PeerID, HistoryQuery{Limit: s.cfg.HistoryLimit, Before: before})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if err != nil {
		s.lastError = historyErrorText(err)
		s.mu.Unlock()
		s.notify()
		return 0, err
	}

	fresh := make([]chat.Message, 0, len(older)+len(s.messages))
	for _, msg := range older {
		if s.markSeenLocked(msg.ID) {
			fresh = append(fresh, msg)
		}
	}
	added := len(fresh)
	s.messages = append(fresh, s.messages...)
	s.mu.Unlock()

	if added > 0 {
		s.notify()
	}
	return added, nil
}

// Close releases the connection, the reconnect timer and the typing timer. Results of
// requests still in flight are discarded. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	s.cancel()
	s.presence.Stop()
	return s.conn.Close()
}

func (s *Session) loadInitialHistory() {
	history, err := s.history.LoadHistory(s.ctx, s.cfg.PeerID, HistoryQuery{Limit: s.cfg.HistoryLimit})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.lastError = historyErrorText(err)
		s.mu.Unlock()
		s.notify()
		return
	}

	// 历史在前，加载期间收到的实时消息保持到达顺序接在后面
	live := s.messages
	merged := make([]chat.Message, 0, len(history)+len(live))
	s.seen = make(map[string]struct{}, len(history)+len(live))
	for _, msg := range history {
		if s.markSeenLocked(msg.ID) {
			merged = append(merged, msg)
		}
	}
	for _, msg := range live {
		if s.markSeenLocked(msg.ID) {
			merged = append(merged, msg)
		}
	}
	s.messages = merged
	s.historyLoaded = true
	s.mu.Unlock()

	s.notify()
}

func (s *Session) handleOpen() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.connected = true
	s.lastError = ""
	s.mu.Unlock()

	s.notify()
}

func (s *Session) handleDrop(err error, retrying bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.connected = false
	if errors.Is(err, ErrAuthFailed) {
		s.lastError = ErrAuthFailed.Error()
	} else {
		s.lastError = ErrConnectFailed.Error()
	}
	s.mu.Unlock()

	s.presence.SetPeerTyping(false)
	s.notify()
}

func (s *Session) handleConnected(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

func (s *Session) handleChat(msg chat.Message, _ string) {
	if msg.SenderID != s.cfg.PeerID && msg.ReceiverID != s.cfg.PeerID {
		return
	}

	s.mu.Lock()
	if s.closed || !s.markSeenLocked(msg.ID) {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify()
}

func (s *Session) handleTyping(userID string, isTyping bool) {
	if userID != s.cfg.PeerID || s.isClosed() {
		return
	}
	s.presence.SetPeerTyping(isTyping)
	s.notify()
}

func (s *Session) setError(text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.lastError = text
	s.mu.Unlock()

	s.notify()
}

// markSeenLocked records id and reports whether it was new. Messages without an id are
// always kept.
func (s *Session) markSeenLocked(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) notify() {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(s.State())
	}
}

func historyErrorText(err error) string {
	var herr *HistoryError
	if errors.As(err, &herr) {
		return herr.Message
	}
	return msgHistoryFailed
}

// endpoints derives the WebSocket and history URLs from the server base URL.
func endpoints(serverURL string) (string, string, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(serverURL), "/"))
	if err != nil || base.Host == "" {
		return "", "", fmt.Errorf("invalid server url %q", serverURL)
	}

	ws := *base
	switch base.Scheme {
	case "http", "ws":
		ws.Scheme = "ws"
	case "https", "wss":
		ws.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}
	ws.Path = base.Path + "/api/chat/ws"

	history := *base
	if history.Scheme == "ws" {
		history.Scheme = "http"
	} else if history.Scheme == "wss" {
		history.Scheme = "https"
	}
	history.Path = base.Path + "/api/chat/history"

	return ws.String(), history.String(), nil
}
