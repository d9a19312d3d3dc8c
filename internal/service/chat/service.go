package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

const (
	DefaultHistoryLimit = 50
	DefaultMaxLimit     = 200
	DefaultMaxContent   = 4000
)

var (
	ErrSenderRequired   = errors.New("sender id is required")
	ErrReceiverRequired = errors.New("receiver id is required")
	ErrContentRequired  = errors.New("content is required")
	ErrContentTooLong   = errors.New("content exceeds maximum length")
	ErrInvalidSender    = errors.New("invalid sender type")
)

// Store is the durable, append-only message log.
type Store interface {
	// Append persists msg, assigning its ID and Timestamp.
	Append(ctx context.Context, msg chat.Message) (chat.Message, error)
	// Query returns messages of one conversation ordered newest first.
	Query(ctx context.Context, q chat.HistoryQuery) ([]chat.Message, error)
}

// Options tune message validation and history paging.
type Options struct {
	DefaultLimit     int
	MaxLimit         int
	MaxContentLength int
}

// Service validates, persists and pages chat messages.
type Service struct {
	store Store
	opts  Options
}

// NewService wraps store with the given options. Zero options fall back to defaults.
func NewService(store Store, opts Options) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultHistoryLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultMaxLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = DefaultMaxContent
	}
	return &Service{store: store, opts: opts}
}

// MaxContentLength is the longest content, in runes, SaveMessage accepts.
func (s *Service) MaxContentLength() int {
	return s.opts.MaxContentLength
}

// SaveMessage validates and persists a new message. ID and Timestamp are assigned by the store.
func (s *Service) SaveMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if message.SenderID == "" {
		return chat.Message{}, ErrSenderRequired
	}
	if message.ReceiverID == "" {
		return chat.Message{}, ErrReceiverRequired
	}
	if strings.TrimSpace(message.Content) == "" {
		return chat.Message{}, ErrContentRequired
	}
	if utf8.RuneCountInString(message.Content) > s.opts.MaxContentLength {
		return chat.Message{}, ErrContentTooLong
	}
	if message.SenderType == "" {
		message.SenderType = chat.SenderUser
	}
	if !message.SenderType.Valid() {
		return chat.Message{}, ErrInvalidSender
	}

	message.ID = ""
	message.Timestamp = time.Time{}

	saved, err := s.store.Append(ctx, message)
	if err != nil {
		return chat.Message{}, fmt.Errorf("save message: %w", err)
	}
	return saved, nil
}

// LoadHistory returns up to limit messages exchanged between selfID and peerID, oldest
// first. A non-positive limit uses the default; limits above the maximum are capped. When
// before is set only messages strictly older than it are returned.
func (s *Service) LoadHistory(ctx context.Context, selfID, peerID string, limit int, before *time.Time) ([]chat.Message, error) {
	if selfID == "" {
		return nil, ErrSenderRequired
	}
	if peerID == "" {
		return nil, ErrReceiverRequired
	}

	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	messages, err := s.store.Query(ctx, chat.HistoryQuery{
		SelfID: selfID,
		PeerID: peerID,
		Before: before,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if len(messages) > limit {
		messages = messages[:limit]
	}

	// Store order is newest first; callers display oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}
