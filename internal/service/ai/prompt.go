package ai

import (
	"fmt"
	"strings"

	"github.com/soulbot/soulbot/backend/internal/model/profile"
)

// DefaultSystemPrompt is used when SYSTEM_PROMPT is not configured.
const DefaultSystemPrompt = `You are Soul-Bot, a Kundali and horoscope assistant providing concise, natural and accurate insights.
Keep responses to two sentences unless detailed analysis is requested. Ask whether the user wants Kundali or horoscope details, or a summary of both.
Keep it conversational and empathetic.`

// BuildSystemPrompt appends the personalization block for p to base. A nil profile leaves base unchanged.
func BuildSystemPrompt(base string, p *profile.Profile) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultSystemPrompt
	}
	if p == nil {
		return base
	}

	return fmt.Sprintf(`%s

User details for personalization:
  - Name: %s
  - Email: %s
  - Notes: %s
`,
		base,
		orDefault(p.Name, "Unknown"),
		orDefault(p.ContactAddress, "Unknown"),
		orDefault(p.Notes, "None"),
	)
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
