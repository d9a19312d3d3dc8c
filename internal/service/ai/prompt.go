package ai

import (
	"fmt"
	"strings"

	analysis "github.com/zhouzirui/serene/backend/internal/analysis/mood"
	"github.com/zhouzirui/serene/backend/internal/model/companion"
	moodservice "github.com/zhouzirui/serene/backend/internal/service/mood"
)

const crisisInstruction = "The person may be in danger. Respond with care, encourage them to contact local emergency services or a crisis line right now, and do not continue with other topics."

// buildSystemPrompt creates the companion system prompt, extended with mood guidance when
// available.
func buildSystemPrompt(profile companion.Profile, guidance *moodservice.Guidance) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You are %s, %s, talking with someone through a wellbeing app.\n", profile.Name, strings.ToLower(profile.Title))
	fmt.Fprintf(&builder, "Tone: %s.\n", profile.Tone)
	if hint := strings.TrimSpace(profile.PromptHint); hint != "" {
		builder.WriteString(hint)
		builder.WriteString("\n")
	}
	if len(profile.Focus) > 0 {
		fmt.Fprintf(&builder, "You are good at: %s.\n", strings.Join(profile.Focus, ", "))
	}
	if len(profile.Boundaries) > 0 {
		fmt.Fprintf(&builder, "Boundaries: %s.\n", strings.Join(profile.Boundaries, "; "))
	}
	builder.WriteString("You are not a therapist. Keep replies under 120 words and never invent facts about the person.")

	if guidance == nil || guidance.Decision.Mood == "" {
		return builder.String()
	}

	decision := guidance.Decision
	builder.WriteString("\n\nCurrent mood assessment: ")
	builder.WriteString(describeMood(decision.Mood))
	fmt.Fprintf(&builder, " Intensity about %.1f of 5.", decision.Intensity)
	if guidance.Style != "" {
		builder.WriteString("\nSuggested tone: ")
		builder.WriteString(guidance.Style)
	}
	if decision.Crisis {
		builder.WriteString("\n")
		builder.WriteString(crisisInstruction)
	}
	return builder.String()
}

func describeMood(label analysis.Label) string {
	switch label {
	case analysis.Calm:
		return "the person seems calm and settled."
	case analysis.Happy:
		return "the person seems happy or proud."
	case analysis.Sad:
		return "the person seems sad or low."
	case analysis.Anxious:
		return "the person seems anxious or worried."
	case analysis.Angry:
		return "the person seems angry or frustrated."
	case analysis.Stressed:
		return "the person seems stressed or overwhelmed."
	default:
		return "no strong emotion detected."
	}
}
