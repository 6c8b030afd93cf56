package api

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/dwhitley/parley/internal/engine"
	"github.com/dwhitley/parley/internal/llm"
	"github.com/dwhitley/parley/internal/session"
)

// ExportMarkdown renders a session transcript as a markdown document.
// Reasoning markup is stripped; tool activity is summarized inline.
func ExportMarkdown(sess *session.Session, msgs []llm.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", sess.ID)
	fmt.Fprintf(&b, "Started %s, last active %s, %d messages.\n\n",
		sess.CreatedAt.Format("2006-01-02 15:04"),
		sess.UpdatedAt.Format("2006-01-02 15:04"),
		sess.MessageCount,
	)

	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			// The system prompt is plumbing, not conversation.
			continue

		case llm.RoleUser:
			fmt.Fprintf(&b, "**User:**\n\n%s\n\n", m.Content)

		case llm.RoleAssistant:
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&b, "*Called `%s`*\n\n", tc.Name)
			}
			if text := engine.StripThink(m.Content); text != "" {
				fmt.Fprintf(&b, "**Assistant:**\n\n%s\n\n", text)
			}

		case llm.RoleTool:
			result := truncateRunes(m.Content, 500)
			fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(result, "\n", "\n> "))
		}
	}

	return b.String()
}

// truncateRunes cuts s to at most max runes without splitting a
// multi-byte character, appending an ellipsis when it cut.
func truncateRunes(s string, max int) string {
	count := 0
	for i := range s {
		if count >= max {
			return s[:i] + "…"
		}
		count++
	}
	return s
}

// ExportHTML renders the markdown transcript as a standalone HTML page.
func ExportHTML(sess *session.Session, msgs []llm.Message) (string, error) {
	md := ExportMarkdown(sess, msgs)

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	doc := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Session %s</title>
<style>body { font-family: sans-serif; max-width: 46rem; margin: 2rem auto; line-height: 1.5; } blockquote { color: #555; border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; }</style>
</head><body>
%s
</body></html>`, sess.ID, buf.String())

	return doc, nil
}
