// Package hub routes live chat frames between connected users.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/companion"
	chatservice "github.com/zhouzirui/serene/backend/internal/service/chat"
)

const (
	msgProcessFailed      = "Failed to process message"
	msgAssistantFailed    = "Assistant is unavailable right now"
	companionHistoryLimit = 10
	companionReplyTimeout = 60 * time.Second
)

// Responder generates an AI companion reply to text given the recent conversation.
type Responder interface {
	Reply(ctx context.Context, profile companion.Profile, history []chat.Message, text string) (string, error)
}

// Hub persists chat frames and fans them out to the participants' live connections.
type Hub struct {
	registry   *Registry
	chatSvc    *chatservice.Service
	validate   *validator.Validate
	companions companion.Store
	responder  Responder

	wg sync.WaitGroup
}

// Option customises a Hub.
type Option func(*Hub)

// WithCompanions lets users chat with AI companions: messages addressed to a companion id are
// answered by responder. With a nil responder those messages are stored and confirmed, then
// the sender gets an assistant-unavailable error frame.
func WithCompanions(store companion.Store, responder Responder) Option {
	return func(h *Hub) {
		h.companions = store
		h.responder = responder
	}
}

// New creates a hub around registry and the chat service.
func New(registry *Registry, chatSvc *chatservice.Service, opts ...Option) *Hub {
	h := &Hub{
		registry: registry,
		chatSvc:  chatSvc,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry exposes the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect registers conn as userID's live connection and acknowledges it.
func (h *Hub) Connect(userID string, conn Conn) {
	if previous := h.registry.Register(userID, conn); previous != nil && previous != conn {
		log.Printf("[hub] user=%s reconnected, previous connection evicted", userID)
	}
	h.send(userID, conn, chat.NewConnectionFrame(userID))
	log.Printf("[hub] user=%s connected, online=%d", userID, h.registry.Len())
}

// Disconnect removes conn from the registry if it is still userID's live connection.
func (h *Hub) Disconnect(userID string, conn Conn) {
	if h.registry.Remove(userID, conn) {
		log.Printf("[hub] user=%s disconnected, online=%d", userID, h.registry.Len())
	}
}

// Wait blocks until in-flight companion replies have finished.
func (h *Hub) Wait() {
	h.wg.Wait()
}

// HandleFrame processes one raw frame sent by userID over conn. Failures are reported to
// the sender as error frames and never close the connection.
func (h *Hub) HandleFrame(ctx context.Context, userID string, conn Conn, raw []byte) {
	var frame chat.ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("[hub] malformed frame from user=%s: %v", userID, err)
		h.send(userID, conn, chat.NewErrorFrame(msgProcessFailed))
		return
	}

	switch frame.Type {
	case chat.FrameChat:
		h.handleChat(ctx, userID, conn, frame)
	case chat.FrameTyping:
		h.handleTyping(userID, conn, frame)
	default:
		log.Printf("[hub] unknown frame type %q from user=%s", frame.Type, userID)
	}
}

type chatPayload struct {
	ReceiverID string          `json:"receiverId" validate:"required,max=64"`
	Content    string          `json:"content" validate:"required"`
	SenderType chat.SenderType `json:"senderType" validate:"omitempty,oneof=USER THERAPIST AI"`
}

type typingPayload struct {
	ReceiverID string `json:"receiverId" validate:"required,max=64"`
}

func (h *Hub) handleChat(ctx context.Context, senderID string, conn Conn, frame chat.ClientFrame) {
	payload := chatPayload{ReceiverID: frame.ReceiverID, Content: frame.Content, SenderType: frame.SenderType}
	if err := h.validate.Struct(payload); err != nil {
		h.send(senderID, conn, chat.NewErrorFrame(describeValidation(err)))
		return
	}

	msg, err := h.chatSvc.SaveMessage(ctx, chat.Message{
		SenderID:   senderID,
		ReceiverID: payload.ReceiverID,
		Content:    payload.Content,
		SenderType: payload.SenderType,
	})
	if err != nil {
		log.Printf("[hub] persist message from user=%s failed: %v", senderID, err)
		h.send(senderID, conn, chat.NewErrorFrame(clientError(err)))
		return
	}

	if receiver, ok := h.registry.Get(msg.ReceiverID); ok && msg.ReceiverID != senderID {
		h.send(msg.ReceiverID, receiver, chat.NewChatFrame(msg, ""))
	}
	h.send(senderID, conn, chat.NewChatFrame(msg, chat.StatusSent))

	if profile, ok := h.companionFor(msg.ReceiverID); ok {
		if h.responder == nil {
			log.Printf("[hub] companion=%s has no responder configured", profile.ID)
			h.send(senderID, conn, chat.NewErrorFrame(msgAssistantFailed))
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.replyAsCompanion(profile, msg)
		}()
	}
}

func (h *Hub) handleTyping(senderID string, conn Conn, frame chat.ClientFrame) {
	if err := h.validate.Struct(typingPayload{ReceiverID: frame.ReceiverID}); err != nil {
		h.send(senderID, conn, chat.NewErrorFrame(describeValidation(err)))
		return
	}

	if receiver, ok := h.registry.Get(frame.ReceiverID); ok {
		h.send(frame.ReceiverID, receiver, chat.NewTypingFrame(senderID, frame.IsTyping))
	}
}

func (h *Hub) companionFor(receiverID string) (companion.Profile, bool) {
	if h.companions == nil {
		return companion.Profile{}, false
	}
	return h.companions.FindByID(receiverID)
}

// replyAsCompanion answers userMsg on behalf of the companion and pushes the reply to the
// user if they are still online.
func (h *Hub) replyAsCompanion(profile companion.Profile, userMsg chat.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), companionReplyTimeout)
	defer cancel()

	userID := userMsg.SenderID

	history, err := h.chatSvc.LoadHistory(ctx, userID, profile.ID, companionHistoryLimit, &userMsg.Timestamp)
	if err != nil {
		log.Printf("[hub] load companion history user=%s companion=%s failed: %v", userID, profile.ID, err)
		history = nil
	}

	text, err := h.responder.Reply(ctx, profile, history, userMsg.Content)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		log.Printf("[hub] companion=%s reply failed: %v", profile.ID, err)
		if conn, ok := h.registry.Get(userID); ok {
			h.send(userID, conn, chat.NewErrorFrame(msgAssistantFailed))
		}
		return
	}

	if limit := h.chatSvc.MaxContentLength(); len([]rune(text)) > limit {
		text = string([]rune(text)[:limit])
	}

	reply, err := h.chatSvc.SaveMessage(ctx, chat.Message{
		SenderID:   profile.ID,
		ReceiverID: userID,
		Content:    text,
		SenderType: chat.SenderAI,
	})
	if err != nil {
		log.Printf("[hub] persist companion reply failed: %v", err)
		if conn, ok := h.registry.Get(userID); ok {
			h.send(userID, conn, chat.NewErrorFrame(msgProcessFailed))
		}
		return
	}

	if conn, ok := h.registry.Get(userID); ok {
		h.send(userID, conn, chat.NewChatFrame(reply, ""))
	}
}

func (h *Hub) send(userID string, conn Conn, frame any) {
	if err := conn.Send(frame); err != nil {
		log.Printf("[hub] write to user=%s failed: %v", userID, err)
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgProcessFailed
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s is too long", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// clientError maps service errors that the sender can act on to their text and hides the rest.
func clientError(err error) string {
	for _, known := range []error{
		chatservice.ErrContentRequired,
		chatservice.ErrContentTooLong,
		chatservice.ErrInvalidSender,
		chatservice.ErrReceiverRequired,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return msgProcessFailed
}
