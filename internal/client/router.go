package client

import (
	"encoding/json"
	"log"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

// Sender transmits one outbound frame.
type Sender interface {
	Send(frame any) error
}

// Events are the router callbacks, one per inbound frame type. Nil callbacks are skipped.
type Events struct {
	OnChat      func(msg chat.Message, status string)
	OnTyping    func(userID string, isTyping bool)
	OnError     func(text string)
	OnConnected func(userID string)
}

// Router decodes inbound frames by their type discriminator and builds outbound ones.
type Router struct {
	sender Sender
	events Events
}

// NewRouter 创建消息路由
func NewRouter(sender Sender, events Events) *Router {
	return &Router{sender: sender, events: events}
}

// Dispatch decodes raw and invokes the matching callback. Malformed and unknown frames are
// logged and dropped.
func (r *Router) Dispatch(raw []byte) {
	typ, err := chat.PeekType(raw)
	if err != nil {
		log.Printf("[client] dropping malformed frame: %v", err)
		return
	}

	switch typ {
	case chat.FrameChat:
		var frame chat.ChatFrame
		if !decode(raw, &frame) {
			return
		}
		if r.events.OnChat != nil {
			r.events.OnChat(frame.Message, frame.Status)
		}
	case chat.FrameTyping:
		var frame chat.TypingFrame
		if !decode(raw, &frame) {
			return
		}
		if r.events.OnTyping != nil {
			r.events.OnTyping(frame.UserID, frame.IsTyping)
		}
	case chat.FrameError:
		var frame chat.ErrorFrame
		if !decode(raw, &frame) {
			return
		}
		if r.events.OnError != nil {
			r.events.OnError(frame.Message)
		}
	case chat.FrameConnection:
		var frame chat.ConnectionFrame
		if !decode(raw, &frame) {
			return
		}
		if r.events.OnConnected != nil {
			r.events.OnConnected(frame.UserID)
		}
	default:
		log.Printf("[client] ignoring unknown frame type %q", typ)
	}
}

// SendChat sends a chat frame to receiverID. senderType defaults to USER.
func (r *Router) SendChat(receiverID, content string, senderType chat.SenderType) error {
	return r.sender.Send(chat.NewChatRequest(receiverID, content, senderType))
}

// SendTyping sends a typing frame to receiverID.
func (r *Router) SendTyping(receiverID string, isTyping bool) error {
	return r.sender.Send(chat.NewTypingRequest(receiverID, isTyping))
}

func decode(raw []byte, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("[client] dropping malformed frame: %v", err)
		return false
	}
	return true
}
