package mood

import (
	"strings"
)

// Label 表示用户当前情绪的分类标签。
type Label string

const (
	Neutral  Label = "neutral"
	Calm     Label = "calm"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Anxious  Label = "anxious"
	Angry    Label = "angry"
	Stressed Label = "stressed"
)

// Labels lists every label in a stable order.
var Labels = []Label{Neutral, Calm, Happy, Sad, Anxious, Angry, Stressed}

// ParseLabel normalises raw into a known label.
func ParseLabel(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels {
		if label == normalized {
			return label, true
		}
	}
	return "", false
}

// Decision 给出情绪识别结果以及强度（1~5）。Crisis 表示出现了需要转介紧急援助的表达。
type Decision struct {
	Mood      Label
	Intensity float32
	Score     int
	Crisis    bool
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"happy", "glad", "great", "awesome", "amazing", "excited", "grateful", "thankful", "proud", "joy",
		"开心", "高兴", "快乐", "太好了", "感恩", "满意",
	},
	Calm: {
		"calm", "relaxed", "peaceful", "rested", "at ease", "content", "better today",
		"平静", "放松", "安心", "舒服",
	},
	Sad: {
		"sad", "down", "lonely", "cry", "crying", "depressed", "hopeless", "empty", "miss", "grief", "hurt",
		"难过", "伤心", "失落", "孤单", "哭", "低落",
	},
	Anxious: {
		"anxious", "anxiety", "worried", "worry", "nervous", "panic", "scared", "afraid", "overthinking", "can't sleep",
		"焦虑", "担心", "紧张", "害怕", "失眠",
	},
	Angry: {
		"angry", "furious", "mad", "annoyed", "irritated", "hate", "frustrated", "rage",
		"生气", "愤怒", "烦死", "受够了", "气死",
	},
	Stressed: {
		"stressed", "stress", "overwhelmed", "burnout", "burned out", "exhausted", "deadline", "too much", "pressure",
		"压力", "累", "崩溃", "忙不过来",
	},
}

var crisisKeywords = []string{
	"kill myself", "suicide", "suicidal", "end my life", "self harm", "self-harm", "hurt myself", "want to die",
	"不想活", "自杀", "伤害自己",
}

// Analyze 根据用户的话语推断情绪，仅依赖关键词，不调用模型。
func Analyze(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Mood: Neutral, Intensity: 1}
	}

	crisis := containsAny(normalized, crisisKeywords)

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += 3
			}
		}
	}

	// 感叹号放大当前最强的情绪
	exclamations := strings.Count(text, "!") + strings.Count(text, "！")

	best, bestScore := Neutral, 0
	for _, label := range Labels {
		if s := scores[label]; s > bestScore {
			best, bestScore = label, s
		}
	}

	if crisis {
		best = Sad
		bestScore += 6
	}
	if bestScore == 0 {
		return Decision{Mood: Neutral, Intensity: 1}
	}
	bestScore += exclamations

	intensity := 1 + float32(bestScore)/3
	if crisis {
		intensity = 5
	}
	if intensity > 5 {
		intensity = 5
	}

	return Decision{Mood: best, Intensity: intensity, Score: bestScore, Crisis: crisis}
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
