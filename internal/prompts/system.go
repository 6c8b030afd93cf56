// Package prompts provides the system prompt that anchors every session.
package prompts

import (
	"fmt"
	"os"
	"strings"
)

// baseSystemTemplate is the default system prompt used when no prompt file
// is configured. It sets the assistant's voice and the tool usage rules.
const baseSystemTemplate = `You are Parley, a helpful research assistant.

## When to Use Tools
Only use tools when answering requires information you don't have:
- "What's happening with X?" → use search
- "Summarize this page: https://..." → use fetch_url
- "What time is it?" → use current_time

Do NOT use tools for:
- Greetings ("hi", "hello") — just say hi back
- Conversation ("how are you?", "thanks") — respond directly
- Questions you can answer from your own knowledge

## Rules
- Cite the source URL when your answer came from search or fetch_url.
- If a tool fails, say what you tried and ask whether to continue.
- Keep answers concise. Expand only when asked.`

// BaseSystemPrompt returns the default system prompt. It currently requires
// no interpolation, but the exported function keeps the interface consistent
// and allows future parameterization.
func BaseSystemPrompt() string {
	return baseSystemTemplate
}

// Load returns the system prompt to use for new sessions. When path is
// non-empty the file contents replace the built-in prompt entirely.
func Load(path string) (string, error) {
	if path == "" {
		return BaseSystemPrompt(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("system prompt file %s is empty", path)
	}
	return prompt, nil
}
