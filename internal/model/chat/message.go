package chat

import "time"

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderUser      SenderType = "USER"
	SenderTherapist SenderType = "THERAPIST"
	SenderAI        SenderType = "AI"
)

// Valid reports whether t is one of the known sender types.
func (t SenderType) Valid() bool {
	switch t {
	case SenderUser, SenderTherapist, SenderAI:
		return true
	default:
		return false
	}
}

// Message is a persisted chat turn between two participants. It is immutable once stored.
type Message struct {
	Seq        uint64     `json:"-" gorm:"primaryKey;autoIncrement"`
	ID         string     `json:"id" gorm:"size:36;uniqueIndex;not null"`
	SenderID   string     `json:"senderId" gorm:"size:64;not null;index:idx_chat_pair,priority:1"`
	ReceiverID string     `json:"receiverId" gorm:"size:64;not null;index:idx_chat_pair,priority:2"`
	Content    string     `json:"content" gorm:"type:text;not null"`
	SenderType SenderType `json:"senderType" gorm:"size:16;not null"`
	Timestamp  time.Time  `json:"timestamp" gorm:"column:sent_at;not null;index"`
}

// TableName pins the table name used by gorm.
func (Message) TableName() string {
	return "chat_messages"
}

// ConversationKey derives the identity of the conversation between two users. The key is
// the same regardless of argument order.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// NextTimestamp returns now truncated to unit, moved past last when it would not be later.
// Stores use it so that timestamps within a conversation strictly increase at the precision
// they can persist; a "before" cursor then never hides a message that shares its timestamp.
func NextTimestamp(now, last time.Time, unit time.Duration) time.Time {
	if unit <= 0 {
		unit = time.Nanosecond
	}
	ts := now.Truncate(unit)
	if !last.IsZero() && !ts.After(last) {
		ts = last.Truncate(unit).Add(unit)
	}
	return ts
}

// HistoryQuery selects a page of a conversation, newest first. A nil Before means no upper
// bound on the timestamp.
type HistoryQuery struct {
	SelfID string
	PeerID string
	Before *time.Time
	Limit  int
}
