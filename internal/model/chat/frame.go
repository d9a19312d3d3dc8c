package chat

import "encoding/json"

// Frame types carried in the "type" discriminator.
const (
	FrameChat       = "chat"
	FrameTyping     = "typing"
	FrameError      = "error"
	FrameConnection = "connection"
)

const (
	StatusConnected = "connected"
	StatusSent      = "sent"
)

// Envelope is used to peek at the type of an inbound frame before decoding the rest.
type Envelope struct {
	Type string `json:"type"`
}

// ClientFrame is anything a client sends to the server.
type ClientFrame struct {
	Type       string     `json:"type"`
	ReceiverID string     `json:"receiverId"`
	Content    string     `json:"content,omitempty"`
	SenderType SenderType `json:"senderType,omitempty"`
	IsTyping   bool       `json:"isTyping,omitempty"`
}

// ChatRequest is the outbound chat frame a client sends.
type ChatRequest struct {
	Type       string     `json:"type"`
	ReceiverID string     `json:"receiverId"`
	Content    string     `json:"content"`
	SenderType SenderType `json:"senderType"`
}

// TypingRequest is the outbound typing frame a client sends. IsTyping is always encoded.
type TypingRequest struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// ChatFrame delivers a persisted message. Status is "sent" only on the sender's copy.
type ChatFrame struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
	Status  string  `json:"status,omitempty"`
}

// TypingFrame tells a receiver whether UserID is typing.
type TypingFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorFrame reports a failed operation without closing the connection.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ConnectionFrame acknowledges an authenticated connection.
type ConnectionFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	UserID string `json:"userId"`
}

// NewChatRequest builds an outbound chat frame, defaulting senderType to USER.
func NewChatRequest(receiverID, content string, senderType SenderType) ChatRequest {
	if senderType == "" {
		senderType = SenderUser
	}
	return ChatRequest{Type: FrameChat, ReceiverID: receiverID, Content: content, SenderType: senderType}
}

// NewTypingRequest builds an outbound typing frame.
func NewTypingRequest(receiverID string, isTyping bool) TypingRequest {
	return TypingRequest{Type: FrameTyping, ReceiverID: receiverID, IsTyping: isTyping}
}

// NewChatFrame wraps a persisted message for delivery.
func NewChatFrame(msg Message, status string) ChatFrame {
	return ChatFrame{Type: FrameChat, Message: msg, Status: status}
}

// NewTypingFrame builds the frame forwarded to the receiver of a typing signal.
func NewTypingFrame(userID string, isTyping bool) TypingFrame {
	return TypingFrame{Type: FrameTyping, UserID: userID, IsTyping: isTyping}
}

// NewErrorFrame builds an error frame carrying text.
func NewErrorFrame(text string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: text}
}

// NewConnectionFrame builds the acknowledgement sent after authentication.
func NewConnectionFrame(userID string) ConnectionFrame {
	return ConnectionFrame{Type: FrameConnection, Status: StatusConnected, UserID: userID}
}

// PeekType returns the type discriminator of a raw frame.
func PeekType(raw []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
