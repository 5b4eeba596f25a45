package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultSearchResults = 5

// SearchResult is one hit from a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchProvider is the pluggable backend of the web_search tool.
type SearchProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// WebSearchTool exposes a SearchProvider to agents.
type WebSearchTool struct {
	provider SearchProvider
}

func NewWebSearchTool(provider SearchProvider) *WebSearchTool {
	return &WebSearchTool{provider: provider}
}

func (t *WebSearchTool) GetName() string { return "web_search" }

func (t *WebSearchTool) GetDescription() string {
	return "Search the web and return a ranked list of results"
}

func (t *WebSearchTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		Parameters: []ToolParameter{
			{
				Name:        "query",
				Type:        "string",
				Description: "Search query",
				Required:    true,
			},
			{
				Name:        "max_results",
				Type:        "integer",
				Description: "Maximum number of results to return",
				Required:    false,
				Default:     defaultSearchResults,
			},
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult(t.GetName(), "invalid arguments: query parameter is required"), nil
	}

	maxResults := defaultSearchResults
	if raw, ok := args["max_results"].(float64); ok && raw > 0 {
		maxResults = int(raw)
	}

	start := time.Now()
	results, err := t.provider.Search(ctx, query, maxResults)
	if err != nil {
		return errorResult(t.GetName(), fmt.Sprintf("search failed: %v", err)), nil
	}

	var content strings.Builder
	for i, r := range results {
		fmt.Fprintf(&content, "%d. %s\n%s\n%s\n", i+1, r.Title, r.URL, r.Snippet)
	}

	return successResult(t.GetName(), content.String(), results, time.Since(start)), nil
}

// MockSearchProvider returns deterministic results; it backs web_search
// in deployments without a search API credential and in tests.
type MockSearchProvider struct{}

func (MockSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}
	results := make([]SearchResult, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		results = append(results, SearchResult{
			Title:   fmt.Sprintf("Result %d for %q", i+1, query),
			URL:     fmt.Sprintf("https://example.com/search/%d", i+1),
			Snippet: fmt.Sprintf("Placeholder snippet %d matching %q.", i+1, query),
		})
	}
	return results, nil
}

var (
	_ Tool           = (*WebSearchTool)(nil)
	_ SearchProvider = MockSearchProvider{}
)
