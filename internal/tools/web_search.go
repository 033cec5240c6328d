package tools

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools/duckduckgo"
)

const NameWebSearch = "web_search"

type WebSearchTool struct {
	client *duckduckgo.Tool
}

func NewWebSearchTool(maxResults int) (*WebSearchTool, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return &WebSearchTool{client: ddg}, nil
}

func (s *WebSearchTool) Name() string {
	return NameWebSearch
}

func (s *WebSearchTool) Description() string {
	return "Search the internet for current information. " +
		"Use for news, facts, prices, events. " +
		"Returns relevant results with titles, URLs and snippets."
}

func (s *WebSearchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query",
			},
		},
		"required": []string{"query"},
	}
}

func (s *WebSearchTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return Result{Error: "empty query", ExitCode: 1}, nil
	}

	res, err := s.client.Call(ctx, query)
	if err != nil {
		return Result{Error: fmt.Sprintf("search failed: %v", err), ExitCode: 1}, nil
	}
	return Result{Output: res}, nil
}
