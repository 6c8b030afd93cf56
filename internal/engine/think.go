package engine

import "strings"

// StripThink removes <think>...</think> reasoning blocks from model
// output. This is a presentation transform only: the stored sequence
// keeps the raw text so the model sees its own reasoning on later turns.
// An unclosed block is stripped to the end of the text.
func StripThink(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "</think>")
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}
