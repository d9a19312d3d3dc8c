package mood

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/zhouzirui/serene/backend/internal/analysis/mood"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
)

// Config 控制情绪分析服务的行为。
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Guidance 表示情绪分析的结果以及对回复语气的建议。
type Guidance struct {
	Decision   analysis.Decision
	Style      string
	Confidence float32
	Reason     string
}

// Service 使用大模型对会话情绪进行分类，失败时回退到关键词规则。
type Service struct {
	enabled      bool
	classifier   compose.Runnable[map[string]any, *schema.Message]
	fallback     func(text string) analysis.Decision
	historyLimit int
}

// NewService 创建情绪分析服务。chatModel 为 nil 或未启用时只使用关键词规则。
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}

	svc := &Service{
		enabled:      cfg.Enabled && chatModel != nil,
		fallback:     analysis.Analyze,
		historyLimit: historyLimit,
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(moodSystemPrompt),
		schema.UserMessage(moodUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mood classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回是否使用大模型分类。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Analyze 根据最近的对话与用户最新输入判断情绪。
func (s *Service) Analyze(ctx context.Context, history []chat.Message, userMessage string) Guidance {
	if !s.Enabled() {
		return s.fallbackGuidance(userMessage)
	}

	input := map[string]any{
		"history":      formatHistory(history, s.historyLimit),
		"user_message": strings.TrimSpace(userMessage),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		log.Printf("[mood] classifier invoke failed, use fallback: %v", err)
		return s.fallbackGuidance(userMessage)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return s.fallbackGuidance(userMessage)
	}

	result, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[mood] classifier output parse failed, use fallback: %v", err)
		return s.fallbackGuidance(userMessage)
	}

	label, ok := analysis.ParseLabel(result.Mood)
	if !ok {
		return s.fallbackGuidance(userMessage)
	}

	// 危机表达以关键词规则为准，模型漏判时仍要保留
	heuristic := s.fallback(userMessage)

	decision := analysis.Decision{
		Mood:      label,
		Intensity: clampIntensity(result.Intensity),
		Crisis:    result.Crisis || heuristic.Crisis,
	}
	decision.Score = int(decision.Intensity * 2)

	style := strings.TrimSpace(result.Style)
	if style == "" {
		style = defaultStyleByMood[decision.Mood]
	}

	confidence := result.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	return Guidance{
		Decision:   decision,
		Style:      style,
		Confidence: confidence,
		Reason:     strings.TrimSpace(result.Reason),
	}
}

func (s *Service) fallbackGuidance(userMessage string) Guidance {
	decision := s.fallback(userMessage)
	style := defaultStyleByMood[decision.Mood]

	confidence := float32(0.3)
	if decision.Score > 0 {
		confidence = 0.55
	}

	return Guidance{
		Decision:   decision,
		Style:      style,
		Confidence: confidence,
		Reason:     "fallback",
	}
}

// parseClassifierOutput 解析大模型返回的 JSON，容忍前后多余文本。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formatHistory(messages []chat.Message, limit int) string {
	if len(messages) == 0 {
		return "(no earlier messages)"
	}
	if limit < 1 {
		limit = 1
	}
	start := len(messages) - limit
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := "User"
		if msg.SenderType == chat.SenderAI {
			role = "Companion"
		}
		lines = append(lines, role+": "+content)
	}
	if len(lines) == 0 {
		return "(no earlier messages)"
	}
	return strings.Join(lines, "\n")
}

func clampIntensity(val float32) float32 {
	if val <= 0 {
		return 3
	}
	if val < 1 {
		return 1
	}
	if val > 5 {
		return 5
	}
	return val
}

type classifierPayload struct {
	Mood       string  `json:"mood"`
	Intensity  float32 `json:"intensity"`
	Confidence float32 `json:"confidence"`
	Crisis     bool    `json:"crisis"`
	Style      string  `json:"style"`
	Reason     string  `json:"reason"`
}

const moodSystemPrompt = "You assess the emotional state of a person talking to a wellbeing companion. Read the recent conversation and the latest message, then answer with a single JSON object and nothing else: mood (one of neutral/calm/happy/sad/anxious/angry/stressed), intensity (number 1-5), confidence (0-1), crisis (true only if the person expresses intent to harm themselves or others), style (one sentence describing the tone the companion should use), reason (short explanation)."

const moodUserPrompt = "Recent conversation:\n{history}\n\nLatest message:\n{user_message}\n\nRespond with the JSON object."

var defaultStyleByMood = map[analysis.Label]string{
	analysis.Neutral:  "Stay warm, clear and unhurried.",
	analysis.Calm:     "Match the settled pace and gently build on what is going well.",
	analysis.Happy:    "Share the good moment and reflect the progress back.",
	analysis.Sad:      "Slow down, validate the feeling and offer quiet support.",
	analysis.Anxious:  "Be steady and grounding, suggest one small calming step.",
	analysis.Angry:    "Stay calm and non-judgemental, acknowledge the frustration first.",
	analysis.Stressed: "Keep it short, help break things into one manageable next step.",
}
