package sleep

import (
	"strings"

	"github.com/bdobrica/Anima/internal/anima/store"
)

const splitInstruction = `Analyze the conversation and extract information strictly in JSON format with two keys:

"semantic": Array of strings containing timeless facts, personality traits, rules, fears, and core identity.

"episodic": Array of strings containing daily events, meals, mood, specific tasks done today, or chronological events.

Output only valid JSON, with exactly those two keys and string arrays. Do not include markdown, comments, or extra text.`

const categorizedInstruction = `Analyze the current user profile and the conversation, then return the complete, updated user profile strictly as a JSON array of objects with two keys:

"category": a short lowercase label such as identity, family, work, health, preferences, goals or routine.

"content": one concise fact about the user in that category.

Keep every fact from the current profile that is still true, merge duplicates, and add what the conversation reveals. Output only valid JSON. Do not include markdown, comments, or extra text.`

// Prompt returns the system instruction and user turn of an extraction pass.
func Prompt(schema Schema, raw []store.Memory, profile []store.ProfileTrait) (system, user string) {
	if schema != SchemaCategorized {
		return splitInstruction, UserInput(raw)
	}
	var b strings.Builder
	b.WriteString("CURRENT PROFILE:")
	if len(profile) == 0 {
		b.WriteString("\n(empty)")
	}
	for _, t := range profile {
		b.WriteString("\n- [" + t.Category + "]: " + t.Content)
	}
	b.WriteString("\n\n")
	b.WriteString(UserInput(raw))
	return categorizedInstruction, b.String()
}
