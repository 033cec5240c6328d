package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const NameWebFetch = "web_fetch"

const defaultFetchChars = 3000

// WebFetchTool pulls a single page and reduces it to readable text.
// JS-heavy pages need the browser tool instead.
type WebFetchTool struct {
	UserAgent string
	Client    *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WebFetchTool) Name() string {
	return NameWebFetch
}

func (w *WebFetchTool) Description() string {
	return "Fetch and parse content from a specific URL. " +
		"Use when you have a direct URL and need its full content. " +
		"Returns cleaned text content of the page."
}

func (w *WebFetchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"description": "Maximum characters to return (default: 3000)",
			},
		},
		"required": []string{"url"},
	}
}

func (w *WebFetchTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	rawURL, _ := input["url"].(string)
	maxChars := intArg(input, "max_chars", defaultFetchChars)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{Error: fmt.Sprintf("invalid URL: %v", err), ExitCode: 1}, nil
	}
	req.Header.Set("User-Agent", w.UserAgent)

	resp, err := w.Client.Do(req)
	if err != nil {
		return Result{Error: fmt.Sprintf("fetch failed: %v", err), ExitCode: 1}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Error: fmt.Sprintf("fetch failed: status code %d", resp.StatusCode), ExitCode: 1}, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{Error: fmt.Sprintf("invalid URL: %v", err), ExitCode: 1}, nil
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return Result{Error: fmt.Sprintf("failed to parse article: %v", err), ExitCode: 1}, nil
	}

	// Strip anything readability let through.
	sanitized := bluemonday.StrictPolicy().Sanitize(article.TextContent)

	output := fmt.Sprintf("TITLE: %s\n", article.Title)
	if article.Excerpt != "" {
		output += fmt.Sprintf("EXCERPT: %s\n", article.Excerpt)
	}
	output += "\n-- CONTENT --\n"

	if len(sanitized) > maxChars {
		sanitized = sanitized[:maxChars] + "\n... (content truncated) ..."
	}
	output += sanitized

	return Result{Output: output}, nil
}

// intArg reads a numeric input value; planner output decodes numbers
// as float64.
func intArg(input map[string]any, key string, fallback int) int {
	switch v := input[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}
