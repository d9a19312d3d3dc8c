package client

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

type recordingSender struct {
	frames []any
	err    error
}

func (s *recordingSender) Send(frame any) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func TestRouterDispatch(t *testing.T) {
	var (
		gotChat      chat.Message
		gotStatus    string
		gotTypingID  string
		gotTyping    bool
		gotError     string
		gotConnected string
	)
	r := NewRouter(&recordingSender{}, Events{
		OnChat:      func(msg chat.Message, status string) { gotChat, gotStatus = msg, status },
		OnTyping:    func(userID string, isTyping bool) { gotTypingID, gotTyping = userID, isTyping },
		OnError:     func(text string) { gotError = text },
		OnConnected: func(userID string) { gotConnected = userID },
	})

	r.Dispatch([]byte(`{"type":"chat","message":{"id":"m1","senderId":"u2","receiverId":"u1","content":"hi","senderType":"USER","timestamp":"2026-01-01T00:00:00Z"},"status":"sent"}`))
	r.Dispatch([]byte(`{"type":"typing","userId":"u2","isTyping":true}`))
	r.Dispatch([]byte(`{"type":"error","message":"Failed to process message"}`))
	r.Dispatch([]byte(`{"type":"connection","status":"connected","userId":"u1"}`))

	if gotChat.ID != "m1" || gotChat.Content != "hi" || gotStatus != chat.StatusSent {
		t.Fatalf("unexpected chat dispatch: %#v %q", gotChat, gotStatus)
	}
	if gotTypingID != "u2" || !gotTyping {
		t.Fatalf("unexpected typing dispatch: %q %v", gotTypingID, gotTyping)
	}
	if gotError != "Failed to process message" {
		t.Fatalf("unexpected error dispatch: %q", gotError)
	}
	if gotConnected != "u1" {
		t.Fatalf("unexpected connected dispatch: %q", gotConnected)
	}
}

func TestRouterDropsUnknownAndMalformed(t *testing.T) {
	called := false
	r := NewRouter(&recordingSender{}, Events{
		OnChat:  func(chat.Message, string) { called = true },
		OnError: func(string) { called = true },
	})

	r.Dispatch([]byte(`{"type":"presence","userId":"u2"}`))
	r.Dispatch([]byte(`not json`))
	r.Dispatch([]byte(`{"type":"chat","message":"oops"}`))

	if called {
		t.Fatal("no callback expected for unknown or malformed frames")
	}
}

func TestRouterSendChat(t *testing.T) {
	sender := &recordingSender{}
	r := NewRouter(sender, Events{})

	if err := r.SendChat("u2", "hello", ""); err != nil {
		t.Fatalf("SendChat err: %v", err)
	}
	if err := r.SendTyping("u2", false); err != nil {
		t.Fatalf("SendTyping err: %v", err)
	}

	raw, _ := json.Marshal(sender.frames[0])
	if string(raw) != `{"type":"chat","receiverId":"u2","content":"hello","senderType":"USER"}` {
		t.Fatalf("unexpected chat frame: %s", raw)
	}
	raw, _ = json.Marshal(sender.frames[1])
	if string(raw) != `{"type":"typing","receiverId":"u2","isTyping":false}` {
		t.Fatalf("unexpected typing frame: %s", raw)
	}
}

func TestRouterSendWhileDisconnected(t *testing.T) {
	r := NewRouter(&recordingSender{err: ErrNotConnected}, Events{})
	if err := r.SendChat("u2", "hello", chat.SenderUser); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
