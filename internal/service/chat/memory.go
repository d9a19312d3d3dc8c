package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

// MemoryStore keeps conversations in process memory, suitable for tests and local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]chat.Message
	now           func() time.Time
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string][]chat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Append stores msg at the end of its conversation.
func (s *MemoryStore) Append(_ context.Context, msg chat.Message) (chat.Message, error) {
	key := chat.ConversationKey(msg.SenderID, msg.ReceiverID)

	s.mu.Lock()
	defer s.mu.Unlock()

	messages := s.conversations[key]
	var last time.Time
	if n := len(messages); n > 0 {
		last = messages[n-1].Timestamp
	}
	ts := chat.NextTimestamp(s.now(), last, time.Nanosecond)

	msg.ID = uuid.NewString()
	msg.Timestamp = ts
	msg.Seq = uint64(len(messages) + 1)

	s.conversations[key] = append(messages, msg)
	return msg, nil
}

// Query walks the conversation backwards from the newest message.
func (s *MemoryStore) Query(_ context.Context, q chat.HistoryQuery) ([]chat.Message, error) {
	if q.Limit <= 0 {
		return []chat.Message{}, nil
	}
	key := chat.ConversationKey(q.SelfID, q.PeerID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.conversations[key]
	result := make([]chat.Message, 0, min(q.Limit, len(messages)))
	for i := len(messages) - 1; i >= 0 && len(result) < q.Limit; i-- {
		msg := messages[i]
		if q.Before != nil && !msg.Timestamp.Before(*q.Before) {
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}
