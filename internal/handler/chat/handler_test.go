package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/serene/backend/internal/auth"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/serene/backend/internal/service/chat"
	"github.com/zhouzirui/serene/backend/internal/service/hub"
)

type testEnv struct {
	router   *chi.Mux
	chatSvc  *chatservice.Service
	hub      *hub.Hub
	verifier *auth.JWTVerifier
}

func setupRouter() *testEnv {
	chatSvc := chatservice.NewService(chatservice.NewMemoryStore(), chatservice.Options{})
	chatHub := hub.New(hub.NewRegistry(), chatSvc)
	verifier := auth.NewJWTVerifier("test-secret")
	handler := New(chatSvc, chatHub, verifier)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return &testEnv{router: r, chatSvc: chatSvc, hub: chatHub, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Issue(userID, time.Hour)
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	return token
}

func (e *testEnv) historyRequest(t *testing.T, token, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/chat/history"+query, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func TestHistoryRequiresAuth(t *testing.T) {
	env := setupRouter()
	resp := env.historyRequest(t, "", "?receiverId=u2")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestHistoryMissingReceiverID(t *testing.T) {
	env := setupRouter()
	resp := env.historyRequest(t, env.token(t, "u1"), "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "Receiver ID is required" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestHistoryInvalidParams(t *testing.T) {
	env := setupRouter()
	token := env.token(t, "u1")
	for _, query := range []string{"?receiverId=u2&limit=abc", "?receiverId=u2&limit=-1", "?receiverId=u2&before=yesterday"} {
		if resp := env.historyRequest(t, token, query); resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, resp.Code)
		}
	}
}

func TestHistoryReturnsAscendingPage(t *testing.T) {
	env := setupRouter()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		sender, receiver := "u1", "u2"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		if _, err := env.chatSvc.SaveMessage(ctx, chat.Message{SenderID: sender, ReceiverID: receiver, Content: strconv.Itoa(i)}); err != nil {
			t.Fatalf("SaveMessage err: %v", err)
		}
	}

	resp := env.historyRequest(t, env.token(t, "u1"), "?receiverId=u2&limit=3")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var messages []chat.Message
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"2", "3", "4"} {
		if messages[i].Content != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, messages[i].Content)
		}
	}
}

func TestHistoryEmptyIsArray(t *testing.T) {
	env := setupRouter()
	resp := env.historyRequest(t, env.token(t, "u1"), "?receiverId=u2")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body := strings.TrimSpace(resp.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestParseBefore(t *testing.T) {
	got, err := ParseBefore("1767225600000")
	if err != nil {
		t.Fatalf("ParseBefore err: %v", err)
	}
	if !got.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time from millis: %s", got)
	}

	got, err = ParseBefore("2026-01-01T08:00:00+08:00")
	if err != nil {
		t.Fatalf("ParseBefore err: %v", err)
	}
	if !got.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time from RFC 3339: %s", got)
	}
}

func wsURL(srv *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func dialUser(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	var frame map[string]json.RawMessage
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame err: %v", err)
	}
	return frame
}

func frameType(frame map[string]json.RawMessage) string {
	var typ string
	json.Unmarshal(frame["type"], &typ)
	return typ
}

func TestWebSocketRejectsMissingOrInvalidToken(t *testing.T) {
	for name, token := range map[string]string{"missing": "", "invalid": "bogus"} {
		t.Run(name, func(t *testing.T) {
			env := setupRouter()
			srv := httptest.NewServer(env.router)
			defer srv.Close()

			conn := dialUser(t, srv, token)
			_, _, err := conn.ReadMessage()

			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				t.Fatalf("expected close error, got %v", err)
			}
			if closeErr.Code != websocket.ClosePolicyViolation {
				t.Fatalf("expected close code 1008, got %d", closeErr.Code)
			}
			if env.hub.Registry().Len() != 0 {
				t.Fatal("unauthenticated connection must not be registered")
			}
		})
	}
}

func TestWebSocketDeliversChatBetweenUsers(t *testing.T) {
	env := setupRouter()
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	u1 := dialUser(t, srv, env.token(t, "u1"))
	if frame := readFrame(t, u1); frameType(frame) != chat.FrameConnection {
		t.Fatalf("expected connection frame, got %v", frame)
	}
	u2 := dialUser(t, srv, env.token(t, "u2"))
	if frame := readFrame(t, u2); frameType(frame) != chat.FrameConnection {
		t.Fatalf("expected connection frame, got %v", frame)
	}

	if err := u1.WriteJSON(chat.ClientFrame{Type: chat.FrameTyping, ReceiverID: "u2", IsTyping: true}); err != nil {
		t.Fatalf("write typing err: %v", err)
	}
	typing := readFrame(t, u2)
	if frameType(typing) != chat.FrameTyping || string(typing["userId"]) != `"u1"` || string(typing["isTyping"]) != "true" {
		t.Fatalf("unexpected typing frame: %v", typing)
	}

	if err := u1.WriteJSON(chat.ClientFrame{Type: chat.FrameChat, ReceiverID: "u2", Content: "hello", SenderType: chat.SenderUser}); err != nil {
		t.Fatalf("write chat err: %v", err)
	}

	var delivered, confirmed chat.ChatFrame
	if err := u2.ReadJSON(&delivered); err != nil {
		t.Fatalf("read delivered err: %v", err)
	}
	if err := u1.ReadJSON(&confirmed); err != nil {
		t.Fatalf("read confirmation err: %v", err)
	}

	if delivered.Type != chat.FrameChat || delivered.Message.Content != "hello" || delivered.Status != "" {
		t.Fatalf("unexpected delivered frame: %#v", delivered)
	}
	if confirmed.Status != chat.StatusSent || confirmed.Message.ID != delivered.Message.ID {
		t.Fatalf("unexpected confirmation: %#v", confirmed)
	}
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	env := setupRouter()
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	conn := dialUser(t, srv, env.token(t, "u1"))
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{oops")); err != nil {
		t.Fatalf("write err: %v", err)
	}
	errFrame := readFrame(t, conn)
	if frameType(errFrame) != chat.FrameError {
		t.Fatalf("expected error frame, got %v", errFrame)
	}

	if err := conn.WriteJSON(chat.ClientFrame{Type: chat.FrameChat, ReceiverID: "u1", Content: "note to self"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	var confirmed chat.ChatFrame
	if err := conn.ReadJSON(&confirmed); err != nil {
		t.Fatalf("connection should still be usable: %v", err)
	}
	if confirmed.Status != chat.StatusSent {
		t.Fatalf("expected sent status, got %q", confirmed.Status)
	}
}
