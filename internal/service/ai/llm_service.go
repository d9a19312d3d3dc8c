package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/serene/backend/internal/config"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/companion"
	moodservice "github.com/zhouzirui/serene/backend/internal/service/mood"
)

const historyLimit = 10

// Service generates AI companion replies.
type Service struct {
	chatModel model.ChatModel
	mood      *moodservice.Service
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance from the Ark configuration. Mood guidance is
// attached afterwards with AttachMood, usually backed by the same chat model.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, nil)
}

// NewServiceWithModel builds the reply chain around an existing chat model. moodSvc may be nil.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, moodSvc *moodservice.Service) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		mood:      moodSvc,
		chain:     runnable,
	}, nil
}

// ChatModel 返回底层的聊天模型，供情绪分析复用
func (s *Service) ChatModel() model.ChatModel {
	return s.chatModel
}

// AttachMood sets the classifier used to steer replies. Call it before serving traffic.
func (s *Service) AttachMood(moodSvc *moodservice.Service) {
	s.mood = moodSvc
}

// Reply answers text on behalf of profile given the earlier conversation (oldest first).
func (s *Service) Reply(ctx context.Context, profile companion.Profile, history []chat.Message, text string) (string, error) {
	var guidance *moodservice.Guidance
	if s.mood != nil {
		g := s.mood.Analyze(ctx, history, text)
		guidance = &g
	}

	input := map[string]any{
		"system":  buildSystemPrompt(profile, guidance),
		"history": buildHistoryMessages(profile, history),
		"query":   text,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	reply := strings.TrimSpace(response.Content)
	log.Printf("[ai] generated reply companion=%s length=%d", profile.ID, len(reply))
	return reply, nil
}

func buildHistoryMessages(profile companion.Profile, messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		if msg.SenderID == profile.ID || msg.SenderType == chat.SenderAI {
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		} else {
			history = append(history, schema.UserMessage(msg.Content))
		}
	}
	return history
}
