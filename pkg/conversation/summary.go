package conversation

import (
	"fmt"
	"strings"

	"github.com/tractionlabs/aigateway/pkg/models"
)

// summaryWindow caps how many trailing messages feed the resume summary.
const summaryWindow = 20

// summaryPayload builds the CONVERSATION source payload handed to
// enrichment when a session is resumed.
func summaryPayload(session *models.Session) map[string]any {
	return map[string]any{
		"conversation_summary": summarize(session.Messages),
		"turn":                 session.Turn,
		"max_turns":            session.MaxTurns,
		"topic_id":             session.TopicID,
	}
}

// summarize renders the trailing conversation window as a transcript.
// System prompts are omitted: the summary feeds a fresh system prompt.
func summarize(messages []models.Message) string {
	var turns []models.Message
	for _, m := range messages {
		if m.Role == models.MessageRoleSystem {
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) > summaryWindow {
		turns = turns[len(turns)-summaryWindow:]
	}

	var b strings.Builder
	for _, m := range turns {
		speaker := "User"
		if m.Role == models.MessageRoleAssistant {
			speaker = "Coach"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
