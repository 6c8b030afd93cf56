package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dwhitley/parley/internal/capability"
)

// Capability wraps the fetcher as the "fetch_url" tool.
func Capability(f *Fetcher) *capability.Capability {
	return &capability.Capability{
		Name:        "fetch_url",
		Description: "Download a web page and return its readable text. Use after search to read a promising result, or when the user gives you a URL.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "URL to fetch and extract content from.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum characters to return. Default: 50000.",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, _ := args["url"].(string)
			if url == "" {
				return "", fmt.Errorf("fetch_url: url is required")
			}

			maxChars := 0
			if mc, ok := args["max_chars"].(float64); ok && mc > 0 {
				maxChars = int(mc)
			}

			result, err := f.Fetch(ctx, url, maxChars)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			if result.Title != "" {
				fmt.Fprintf(&b, "Title: %s\n", result.Title)
			}
			fmt.Fprintf(&b, "URL: %s\n\n%s", result.URL, result.Content)
			if result.Truncated {
				b.WriteString("\n\n[content truncated]")
			}
			return b.String(), nil
		},
	}
}
