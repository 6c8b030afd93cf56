package search

import (
	"context"
	"fmt"

	"github.com/dwhitley/parley/internal/capability"
)

// Capability wraps the manager as the "search" tool.
func Capability(mgr *Manager) *capability.Capability {
	return &capability.Capability{
		Name:        "search",
		Description: "Search the web. Use for current events, facts you are unsure about, or anything that benefits from a source.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query string.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (1-10). Default: 5.",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "ISO 639-1 language code for results (e.g., 'en', 'de').",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("search: query is required")
			}

			opts := Options{}
			if limit, ok := args["limit"].(float64); ok && limit > 0 {
				opts.Limit = int(limit)
			}
			if lang, ok := args["language"].(string); ok {
				opts.Language = lang
			}

			results, err := mgr.Search(ctx, query, opts)
			if err != nil {
				return "", err
			}
			return FormatResults(results), nil
		},
	}
}
