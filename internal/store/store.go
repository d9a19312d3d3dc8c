// Package store persists chat messages through gorm.
package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

// appendStripes bounds the number of append locks; conversations hashing to the same stripe
// share one.
const appendStripes = 64

// MessageStore is an append-only message log in a SQL database.
type MessageStore struct {
	db   *gorm.DB
	now  func() time.Time
	unit time.Duration

	stripes [appendStripes]sync.Mutex
}

// New returns a store using db. Call Migrate before first use.
func New(db *gorm.DB) *MessageStore {
	return &MessageStore{
		db:   db,
		now:  func() time.Time { return time.Now().UTC() },
		unit: timestampUnit(db.Dialector.Name()),
	}
}

// timestampUnit is the finest time step the dialect's datetime column keeps.
func timestampUnit(dialect string) time.Duration {
	switch dialect {
	case "mysql":
		return time.Millisecond
	case "postgres":
		return time.Microsecond
	default:
		return time.Nanosecond
	}
}

// Migrate creates or updates the chat_messages table.
func (s *MessageStore) Migrate() error {
	if err := s.db.AutoMigrate(&chat.Message{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append inserts msg with a fresh id and a timestamp strictly later than the previous
// message of the conversation.
func (s *MessageStore) Append(ctx context.Context, msg chat.Message) (chat.Message, error) {
	mu := s.lockFor(chat.ConversationKey(msg.SenderID, msg.ReceiverID))
	mu.Lock()
	defer mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := latestTimestamp(tx, msg.SenderID, msg.ReceiverID)
		if err != nil {
			return err
		}

		msg.Seq = 0
		msg.ID = uuid.NewString()
		msg.Timestamp = chat.NextTimestamp(s.now().UTC(), last.UTC(), s.unit)
		return tx.Create(&msg).Error
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("store: append: %w", err)
	}
	return msg, nil
}

// Query returns up to q.Limit messages of the conversation, newest first.
func (s *MessageStore) Query(ctx context.Context, q chat.HistoryQuery) ([]chat.Message, error) {
	tx := s.db.WithContext(ctx).Where(pairClause(s.db, q.SelfID, q.PeerID))
	if q.Before != nil {
		tx = tx.Where("sent_at < ?", q.Before.UTC())
	}

	var messages []chat.Message
	if err := tx.Order("sent_at DESC").Order("seq DESC").Limit(q.Limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("store: query %s: %w", chat.ConversationKey(q.SelfID, q.PeerID), err)
	}
	return messages, nil
}

func (s *MessageStore) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.stripes[h.Sum32()%appendStripes]
}

func latestTimestamp(tx *gorm.DB, a, b string) (time.Time, error) {
	var messages []chat.Message
	err := tx.Where(pairClause(tx, a, b)).
		Order("sent_at DESC").Limit(1).Find(&messages).Error
	if err != nil {
		return time.Time{}, fmt.Errorf("latest timestamp: %w", err)
	}
	if len(messages) == 0 {
		return time.Time{}, nil
	}
	return messages[0].Timestamp, nil
}

// pairClause matches both directions of the a/b conversation.
func pairClause(db *gorm.DB, a, b string) *gorm.DB {
	return db.Session(&gorm.Session{NewDB: true}).
		Where("sender_id = ? AND receiver_id = ?", a, b).
		Or("sender_id = ? AND receiver_id = ?", b, a)
}
